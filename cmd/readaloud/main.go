package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/readaloud-tools/readaloud/internal/assemble"
	"github.com/readaloud-tools/readaloud/internal/config"
	"github.com/readaloud-tools/readaloud/internal/history"
	"github.com/readaloud-tools/readaloud/internal/ocr"
	"github.com/readaloud-tools/readaloud/internal/pipeline"
	"github.com/readaloud-tools/readaloud/internal/runtime"
	"github.com/readaloud-tools/readaloud/internal/source"
	"github.com/readaloud-tools/readaloud/internal/tts"
)

var version = "0.1.0-dev"

// Exit codes by failure kind.
const (
	exitConfig    = 2
	exitInput     = 3
	exitSynthesis = 4
	exitAssembly  = 5
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		configPath  string
		outputPath  string
		voice       string
		model       string
		format      string
		speed       float64
		dryRun      bool
		recent      int
		showVersion bool
	)

	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.StringVar(&outputPath, "o", "", "Output audio file path")
	flag.StringVar(&voice, "voice", "", "Voice to use")
	flag.StringVar(&model, "model", "", "Speech model to use")
	flag.StringVar(&format, "format", "", "Audio output format")
	flag.Float64Var(&speed, "speed", 0, "Speech speed factor (0.25-4.0)")
	flag.BoolVar(&dryRun, "dry-run", false, "Chunk the input and report segment statistics without synthesizing")
	flag.IntVar(&recent, "recent", 0, "Print the N most recent runs and exit")
	flag.BoolVar(&showVersion, "version", false, "Print version and exit")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [OPTIONS] [FILE]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Converts text to speech. FILE may be plain text, a PDF, an image\n")
		fmt.Fprintf(os.Stderr, "(read via OCR), or \"-\" for stdin (the default).\n\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if showVersion {
		fmt.Println(version)
		return 0
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Error("failed to load config", slog.String("error", err.Error()))
		return exitConfig
	}
	if voice != "" {
		cfg.Speech.Voice = voice
	}
	if model != "" {
		cfg.Speech.Model = model
	}
	if format != "" {
		cfg.Speech.Format = format
	}
	if speed != 0 {
		cfg.Speech.Speed = speed
	}
	// Neither a dry run nor a history listing reaches the API, so they
	// must not demand a key.
	if dryRun || recent > 0 {
		cfg.API.Mode = "mock"
	}
	if err := config.Validate(cfg); err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		return exitConfig
	}
	logger = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: parseLevel(cfg.Telemetry.LogLevel)}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdown, err := runtime.SetupTelemetry(ctx, cfg.Telemetry, version, logger)
	if err != nil {
		logger.Error("failed to setup telemetry", slog.String("error", err.Error()))
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown error", slog.String("error", err.Error()))
		}
	}()

	hist, err := history.Open(ctx, cfg.History, logger)
	if err != nil {
		logger.Error("failed to open history store", slog.String("error", err.Error()))
		return 1
	}
	defer hist.Close()

	if recent > 0 {
		return printRecent(ctx, hist, recent)
	}

	inputPath := flag.Arg(0)
	var images ocr.Reader
	if cfg.API.Mode == "mock" {
		images = ocr.NewMockReader("mock image text")
	} else {
		images = ocr.NewVisionReader(cfg.API, cfg.OCR)
	}

	text, err := source.Resolve(ctx, inputPath, os.Stdin, images)
	if err != nil {
		logger.Error("failed to resolve input", slog.String("error", err.Error()))
		return exitInput
	}

	if outputPath == "" {
		outputPath = "speech" + extForFormat(cfg.Speech.Format)
	}

	var synth tts.Synthesizer
	if cfg.API.Mode == "mock" {
		synth = tts.NewMockSynth()
	} else {
		synth = tts.NewOpenAISynth(cfg.API)
	}

	asm, err := assemble.New(cfg.Merge.Command, cfg.Speech.Format == "pcm", logger)
	if err != nil {
		logger.Error("invalid merge command", slog.String("error", err.Error()))
		return exitConfig
	}
	if !asm.MergeAvailable() {
		logger.Warn("merge tool not found; multi-segment output will be written as numbered part files",
			slog.String("command", cfg.Merge.Command))
	}

	pipe := pipeline.New(cfg, synth, asm, hist, logger)

	if dryRun {
		return printPlan(pipe, text)
	}

	res, err := pipe.Run(ctx, sourceLabel(inputPath), text, outputPath)
	if err != nil {
		logger.Error("pipeline failed", slog.String("error", err.Error()))
		switch {
		case errors.Is(err, pipeline.ErrInput):
			return exitInput
		case errors.Is(err, pipeline.ErrSynthesis):
			return exitSynthesis
		case errors.Is(err, pipeline.ErrAssembly):
			return exitAssembly
		default:
			return 1
		}
	}

	if res.OutputPath != "" {
		logger.Info("done",
			slog.String("output", res.OutputPath),
			slog.Int("segments", res.Segments),
			slog.Int64("bytes", res.Bytes),
			slog.Duration("duration", res.Duration))
	} else {
		logger.Info("done",
			slog.Int("parts", len(res.PartPaths)),
			slog.Int("segments", res.Segments),
			slog.Int64("bytes", res.Bytes),
			slog.Duration("duration", res.Duration))
	}
	return 0
}

func printPlan(pipe *pipeline.Pipeline, text string) int {
	segments := pipe.Plan(text)
	fmt.Printf("input: %d chars, %d segment(s)\n", len(text), len(segments))
	for i, seg := range segments {
		fmt.Printf("  segment %d: %d chars\n", i+1, len(seg))
	}
	return 0
}

func printRecent(ctx context.Context, hist *history.Store, limit int) int {
	runs, err := hist.Recent(ctx, limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read history: %v\n", err)
		return 1
	}
	if len(runs) == 0 {
		fmt.Println("no recorded runs")
		return 0
	}
	for _, r := range runs {
		fmt.Printf("%s  %-8s  %-24s  %d segment(s)  %d bytes  %dms",
			r.CreatedAt.Format(time.RFC3339), r.Status, r.OutputPath, r.Segments, r.Bytes, r.DurationMS)
		if r.Error != "" {
			fmt.Printf("  %s", r.Error)
		}
		fmt.Println()
	}
	return 0
}

func sourceLabel(path string) string {
	if path == "" || path == "-" {
		return "stdin"
	}
	return filepath.Base(path)
}

func extForFormat(format string) string {
	switch format {
	case "pcm":
		return ".wav"
	default:
		return "." + format
	}
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
