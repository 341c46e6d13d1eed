package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/readaloud-tools/readaloud/internal/assemble"
	"github.com/readaloud-tools/readaloud/internal/chunk"
	"github.com/readaloud-tools/readaloud/internal/config"
	"github.com/readaloud-tools/readaloud/internal/tts"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

// recordingSynth captures the order of inputs and returns audio that
// encodes the call index so tests can verify assembly order.
type recordingSynth struct {
	calls  []string
	failAt int // 1-based call number to fail on; 0 disables
}

func (r *recordingSynth) Synthesize(ctx context.Context, req tts.SynthRequest) ([]byte, error) {
	r.calls = append(r.calls, req.Input)
	if r.failAt > 0 && len(r.calls) == r.failAt {
		return nil, errors.New("simulated api failure")
	}
	return []byte(fmt.Sprintf("[audio-%d]", len(r.calls)-1)), nil
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.API.Mode = "mock"
	return cfg
}

func writeConcatMerge(t *testing.T) string {
	t.Helper()
	script := `#!/bin/sh
manifest=""
prev=""
for arg; do
    if [ "$prev" = "-i" ]; then manifest="$arg"; fi
    prev="$arg"
    out="$arg"
done
: > "$out"
while read -r line; do
    f=${line#file \'}
    f=${f%\'}
    cat "$f" >> "$out"
done < "$manifest"
`
	path := filepath.Join(t.TempDir(), "fakemerge")
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write fake merge: %v", err)
	}
	return path
}

func newAssembler(t *testing.T, command string) *assemble.Assembler {
	t.Helper()
	asm, err := assemble.New(command, false, newLogger())
	if err != nil {
		t.Fatalf("new assembler: %v", err)
	}
	return asm
}

func TestFastPathSingleSegment(t *testing.T) {
	synth := &recordingSynth{}
	pipe := New(testConfig(), synth, newAssembler(t, writeConcatMerge(t)), nil, newLogger())

	out := filepath.Join(t.TempDir(), "out.mp3")
	res, err := pipe.Run(context.Background(), "test", "Hello there.", out)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Segments != 1 {
		t.Fatalf("expected 1 segment, got %d", res.Segments)
	}
	if len(synth.calls) != 1 || synth.calls[0] != "Hello there." {
		t.Fatalf("unexpected synth calls: %#v", synth.calls)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if string(data) != "[audio-0]" {
		t.Fatalf("unexpected output: %q", data)
	}
}

func TestMultiSegmentOrderPreserved(t *testing.T) {
	// Long enough to force chunking, with paragraph boundaries.
	para := strings.Repeat("Some sentence goes here. ", 40) // ~1000 chars
	text := strings.TrimSpace(strings.Repeat(para+"\n\n", 8))

	synth := &recordingSynth{}
	pipe := New(testConfig(), synth, newAssembler(t, writeConcatMerge(t)), nil, newLogger())

	out := filepath.Join(t.TempDir(), "out.mp3")
	res, err := pipe.Run(context.Background(), "test", text, out)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	want := chunk.Split(text, chunk.MaxSegmentLength)
	if len(want) < 2 {
		t.Fatalf("test input did not force chunking: %d segments", len(want))
	}
	if res.Segments != len(want) {
		t.Fatalf("expected %d segments, got %d", len(want), res.Segments)
	}
	// Synthesis calls must match the chunker's output exactly, in order.
	if len(synth.calls) != len(want) {
		t.Fatalf("expected %d synth calls, got %d", len(want), len(synth.calls))
	}
	for i := range want {
		if synth.calls[i] != want[i] {
			t.Fatalf("segment %d synthesized out of order", i)
		}
	}
	// Merged audio holds segment payloads in ascending index order.
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	var expected strings.Builder
	for i := range want {
		fmt.Fprintf(&expected, "[audio-%d]", i)
	}
	if string(data) != expected.String() {
		t.Fatalf("merged audio out of order: %q", data)
	}
}

func TestSynthesisFailureAbortsRun(t *testing.T) {
	text := strings.TrimSpace(strings.Repeat(strings.Repeat("Filler sentence. ", 40)+"\n\n", 8))

	synth := &recordingSynth{failAt: 2}
	pipe := New(testConfig(), synth, newAssembler(t, writeConcatMerge(t)), nil, newLogger())

	out := filepath.Join(t.TempDir(), "out.mp3")
	_, err := pipe.Run(context.Background(), "test", text, out)
	if !errors.Is(err, ErrSynthesis) {
		t.Fatalf("expected ErrSynthesis, got %v", err)
	}
	// Sequential invocation: nothing after the failing segment was tried.
	if len(synth.calls) != 2 {
		t.Fatalf("expected synthesis to stop at failure, got %d calls", len(synth.calls))
	}
	if _, statErr := os.Stat(out); !os.IsNotExist(statErr) {
		t.Fatal("no output should exist after synthesis failure")
	}
}

func TestAssemblyFailureReported(t *testing.T) {
	failScript := filepath.Join(t.TempDir(), "failmerge")
	if err := os.WriteFile(failScript, []byte("#!/bin/sh\nexit 1\n"), 0o755); err != nil {
		t.Fatalf("write fail merge: %v", err)
	}

	text := strings.TrimSpace(strings.Repeat(strings.Repeat("Filler sentence. ", 40)+"\n\n", 8))
	pipe := New(testConfig(), &recordingSynth{}, newAssembler(t, failScript), nil, newLogger())

	out := filepath.Join(t.TempDir(), "out.mp3")
	_, err := pipe.Run(context.Background(), "test", text, out)
	if !errors.Is(err, ErrAssembly) {
		t.Fatalf("expected ErrAssembly, got %v", err)
	}
	if _, statErr := os.Stat(out); !os.IsNotExist(statErr) {
		t.Fatal("partial output left at output path after assembly failure")
	}
}

func TestMergeUnavailableProducesParts(t *testing.T) {
	text := strings.TrimSpace(strings.Repeat(strings.Repeat("Filler sentence. ", 40)+"\n\n", 8))
	pipe := New(testConfig(), &recordingSynth{}, newAssembler(t, "no-such-merge-binary"), nil, newLogger())

	dir := t.TempDir()
	out := filepath.Join(dir, "out.mp3")
	res, err := pipe.Run(context.Background(), "test", text, out)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.OutputPath != "" {
		t.Fatalf("expected part files, got merged output %q", res.OutputPath)
	}
	if len(res.PartPaths) != res.Segments {
		t.Fatalf("expected %d parts, got %d", res.Segments, len(res.PartPaths))
	}
	for i, p := range res.PartPaths {
		want := filepath.Join(dir, fmt.Sprintf("out_part%d.mp3", i+1))
		if p != want {
			t.Fatalf("part %d: expected %q, got %q", i, want, p)
		}
	}
}

func TestEmptyInputRejected(t *testing.T) {
	pipe := New(testConfig(), &recordingSynth{}, newAssembler(t, "no-such-merge-binary"), nil, newLogger())
	_, err := pipe.Run(context.Background(), "test", "   \n ", "out.mp3")
	if !errors.Is(err, ErrInput) {
		t.Fatalf("expected ErrInput, got %v", err)
	}
}

func TestPlan(t *testing.T) {
	pipe := New(testConfig(), &recordingSynth{}, newAssembler(t, "no-such-merge-binary"), nil, newLogger())

	if got := pipe.Plan("short text"); len(got) != 1 {
		t.Fatalf("expected singleton plan, got %d", len(got))
	}
	long := strings.Repeat("A sentence here. ", 500)
	if got := pipe.Plan(long); len(got) < 2 {
		t.Fatalf("expected multi-segment plan, got %d", len(got))
	}
}
