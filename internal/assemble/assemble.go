// Package assemble turns an ordered list of per-segment audio buffers into
// the final output artifact, either by stream-copy concatenation through an
// external merge tool or by writing numbered part files when no merge tool
// is available.
package assemble

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/mattn/go-shellwords"
	"github.com/readaloud-tools/readaloud/internal/audio"
)

// ErrMergeFailed is returned when the merge subprocess exits non-zero.
var ErrMergeFailed = errors.New("merge command failed")

// Segment is one synthesized audio buffer, ordered by Index.
type Segment struct {
	Index int
	Data  []byte
}

// Result reports where the assembled audio ended up. Exactly one of
// OutputPath and PartPaths is set.
type Result struct {
	OutputPath string
	PartPaths  []string
}

type Assembler struct {
	cmd       []string
	available bool
	wrapPCM   bool
	logger    *slog.Logger
}

// New parses the merge command string and probes whether its binary is on
// PATH. The probe happens once; Assemble falls back to part files when the
// tool is missing. wrapPCM selects WAV-container wrapping for raw pcm
// segment data.
func New(command string, wrapPCM bool, logger *slog.Logger) (*Assembler, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse merge command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("merge command empty")
	}
	_, lookErr := exec.LookPath(args[0])
	return &Assembler{
		cmd:       args,
		available: lookErr == nil,
		wrapPCM:   wrapPCM,
		logger:    logger.With(slog.String("component", "assembler")),
	}, nil
}

// MergeAvailable reports whether the merge tool was found at construction.
func (a *Assembler) MergeAvailable() bool { return a.available }

// Assemble persists segments in order and produces the final artifact. The
// staging directory is created lazily and removed before returning on every
// path; removal failures are logged, not returned.
func (a *Assembler) Assemble(ctx context.Context, segments []Segment, outputPath string) (Result, error) {
	if len(segments) == 0 {
		return Result{}, fmt.Errorf("no audio segments to assemble")
	}

	if !a.available {
		return a.writeParts(segments, outputPath)
	}

	staging, err := os.MkdirTemp("", "readaloud_segments_*")
	if err != nil {
		return Result{}, fmt.Errorf("create staging dir: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(staging); err != nil {
			a.logger.Warn("failed to remove staging dir",
				slog.String("dir", staging), slog.String("error", err.Error()))
		}
	}()

	ext := segmentExt(outputPath, a.wrapPCM)
	var manifest strings.Builder
	for _, seg := range segments {
		segPath := filepath.Join(staging, fmt.Sprintf("segment_%03d%s", seg.Index, ext))
		if err := a.writeSegment(segPath, seg.Data); err != nil {
			return Result{}, fmt.Errorf("stage segment %d: %w", seg.Index, err)
		}
		fmt.Fprintf(&manifest, "file '%s'\n", escapeManifestPath(segPath))
	}

	manifestPath := filepath.Join(staging, "segments.txt")
	if err := os.WriteFile(manifestPath, []byte(manifest.String()), 0o644); err != nil {
		return Result{}, fmt.Errorf("write manifest: %w", err)
	}

	if err := a.runMerge(ctx, manifestPath, outputPath); err != nil {
		// Never leave a half-written artifact at the output path.
		_ = os.Remove(outputPath)
		return Result{}, err
	}
	return Result{OutputPath: outputPath}, nil
}

func (a *Assembler) runMerge(ctx context.Context, manifestPath, outputPath string) error {
	args := append([]string{}, a.cmd[1:]...)
	args = append(args, "-y", "-f", "concat", "-safe", "0", "-i", manifestPath, "-c", "copy", outputPath)

	cmd := exec.CommandContext(ctx, a.cmd[0], args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	a.logger.Debug("running merge command", slog.String("binary", a.cmd[0]), slog.String("output", outputPath))
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%w: %v: %s", ErrMergeFailed, err, tail(stderr.String(), 512))
	}
	return nil
}

// writeParts persists each segment as <base>_partN<ext>. The part files are
// the deliverable, so nothing here is cleaned up afterwards.
func (a *Assembler) writeParts(segments []Segment, outputPath string) (Result, error) {
	ext := filepath.Ext(outputPath)
	base := strings.TrimSuffix(outputPath, ext)
	if a.wrapPCM {
		ext = ".wav"
	}

	paths := make([]string, 0, len(segments))
	for i, seg := range segments {
		partPath := fmt.Sprintf("%s_part%d%s", base, i+1, ext)
		if err := a.writeSegment(partPath, seg.Data); err != nil {
			return Result{}, fmt.Errorf("write part %d: %w", i+1, err)
		}
		a.logger.Info("wrote part file", slog.String("path", partPath))
		paths = append(paths, partPath)
	}
	return Result{PartPaths: paths}, nil
}

func (a *Assembler) writeSegment(path string, data []byte) error {
	if a.wrapPCM {
		return audio.WrapPCM(path, data, audio.PCMSampleRate, audio.PCMChannels)
	}
	return os.WriteFile(path, data, 0o644)
}

func segmentExt(outputPath string, wrapPCM bool) string {
	if wrapPCM {
		return ".wav"
	}
	if ext := filepath.Ext(outputPath); ext != "" {
		return ext
	}
	return ".mp3"
}

// escapeManifestPath quotes single quotes the way the concat demuxer
// expects inside a quoted manifest entry.
func escapeManifestPath(path string) string {
	return strings.ReplaceAll(path, "'", `'\''`)
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
