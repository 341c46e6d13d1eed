// Package pipeline orchestrates chunking, sequential synthesis and audio
// assembly for one invocation.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/readaloud-tools/readaloud/internal/assemble"
	"github.com/readaloud-tools/readaloud/internal/audio"
	"github.com/readaloud-tools/readaloud/internal/chunk"
	"github.com/readaloud-tools/readaloud/internal/config"
	"github.com/readaloud-tools/readaloud/internal/history"
	"github.com/readaloud-tools/readaloud/internal/tts"
)

// Failure kinds. The entry point maps these to exit codes; nothing inside
// the pipeline terminates the process.
var (
	ErrInput     = errors.New("input error")
	ErrSynthesis = errors.New("synthesis error")
	ErrAssembly  = errors.New("assembly error")
)

// Result describes a finished run. Exactly one of OutputPath and PartPaths
// is set.
type Result struct {
	OutputPath string
	PartPaths  []string
	Segments   int
	Bytes      int64
	Duration   time.Duration
}

type Pipeline struct {
	cfg      config.Config
	synth    tts.Synthesizer
	asm      *assemble.Assembler
	hist     *history.Store
	logger   *slog.Logger
	tracer   trace.Tracer
	segCount metric.Int64Counter
	byteSum  metric.Int64Counter
}

func New(cfg config.Config, synth tts.Synthesizer, asm *assemble.Assembler, hist *history.Store, logger *slog.Logger) *Pipeline {
	p := &Pipeline{
		cfg:    cfg,
		synth:  synth,
		asm:    asm,
		hist:   hist,
		logger: logger.With(slog.String("component", "pipeline")),
		tracer: otel.Tracer("readaloud/pipeline"),
	}
	meter := otel.Meter("readaloud/pipeline")
	var err error
	if p.segCount, err = meter.Int64Counter("readaloud.segments.synthesized"); err != nil {
		p.logger.Warn("failed to create segment counter", slog.String("error", err.Error()))
	}
	if p.byteSum, err = meter.Int64Counter("readaloud.audio.bytes"); err != nil {
		p.logger.Warn("failed to create byte counter", slog.String("error", err.Error()))
	}
	return p
}

// Plan returns the segments Run would synthesize, without calling the API.
func (p *Pipeline) Plan(text string) []string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}
	if len(trimmed) <= chunk.Threshold {
		return []string{trimmed}
	}
	return chunk.Split(trimmed, chunk.MaxSegmentLength)
}

// Run drives the full pipeline for one input. source is a label for
// logging and the run history only.
func (p *Pipeline) Run(ctx context.Context, source, text, outputPath string) (Result, error) {
	start := time.Now()
	res, err := p.run(ctx, text, outputPath)
	res.Duration = time.Since(start)

	p.record(ctx, source, outputPath, res, err)
	return res, err
}

func (p *Pipeline) run(ctx context.Context, text, outputPath string) (Result, error) {
	segments := p.Plan(text)
	if len(segments) == 0 {
		return Result{}, fmt.Errorf("%w: no text to synthesize", ErrInput)
	}

	ctx, span := p.tracer.Start(ctx, "pipeline.run",
		trace.WithAttributes(
			attribute.Int("segments", len(segments)),
			attribute.Int("input_bytes", len(text)),
		))
	defer span.End()

	wrapPCM := p.cfg.Speech.Format == "pcm"
	req := tts.SynthRequest{
		Model:  p.cfg.Speech.Model,
		Voice:  p.cfg.Speech.Voice,
		Format: p.cfg.Speech.Format,
		Speed:  p.cfg.Speech.Speed,
	}

	// Segments are synthesized strictly in order, one request in flight at
	// a time, so reassembly never has to re-sort.
	buffers := make([]assemble.Segment, 0, len(segments))
	var total int64
	for i, segText := range segments {
		data, err := p.synthesizeSegment(ctx, req, segText, i, len(segments))
		if err != nil {
			return Result{}, err
		}
		buffers = append(buffers, assemble.Segment{Index: i, Data: data})
		total += int64(len(data))
		if p.segCount != nil {
			p.segCount.Add(ctx, 1)
		}
		if p.byteSum != nil {
			p.byteSum.Add(ctx, int64(len(data)))
		}
	}

	// Single-segment fast path: write straight to the output path, no
	// staging directory involved.
	if len(buffers) == 1 {
		if err := p.writeOutput(outputPath, buffers[0].Data, wrapPCM); err != nil {
			return Result{}, fmt.Errorf("%w: %v", ErrAssembly, err)
		}
		return Result{OutputPath: outputPath, Segments: 1, Bytes: total}, nil
	}

	ctx, asmSpan := p.tracer.Start(ctx, "pipeline.assemble")
	asmRes, err := p.asm.Assemble(ctx, buffers, outputPath)
	asmSpan.End()
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrAssembly, err)
	}
	return Result{
		OutputPath: asmRes.OutputPath,
		PartPaths:  asmRes.PartPaths,
		Segments:   len(buffers),
		Bytes:      total,
	}, nil
}

func (p *Pipeline) synthesizeSegment(ctx context.Context, req tts.SynthRequest, text string, index, count int) ([]byte, error) {
	ctx, span := p.tracer.Start(ctx, "pipeline.synthesize",
		trace.WithAttributes(attribute.Int("segment", index)))
	defer span.End()

	p.logger.Info("synthesizing segment",
		slog.Int("segment", index+1),
		slog.Int("of", count),
		slog.Int("chars", len(text)))

	req.Input = text
	data, err := p.synth.Synthesize(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%w: segment %d/%d: %v", ErrSynthesis, index+1, count, err)
	}
	return data, nil
}

func (p *Pipeline) writeOutput(path string, data []byte, wrapPCM bool) error {
	if wrapPCM {
		return audio.WrapPCM(path, data, audio.PCMSampleRate, audio.PCMChannels)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}

func (p *Pipeline) record(ctx context.Context, source, outputPath string, res Result, runErr error) {
	if p.hist == nil {
		return
	}
	run := history.Run{
		Source:     source,
		OutputPath: outputPath,
		Segments:   res.Segments,
		Bytes:      res.Bytes,
		DurationMS: res.Duration.Milliseconds(),
		Status:     "success",
	}
	if runErr != nil {
		run.Status = "failure"
		run.Error = runErr.Error()
	}
	if err := p.hist.Record(ctx, run); err != nil {
		p.logger.Warn("failed to record run history", slog.String("error", err.Error()))
	}
}
