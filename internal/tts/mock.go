package tts

import (
	"context"
	"fmt"
)

type mockSynth struct{}

// NewMockSynth returns a Synthesizer that produces small deterministic
// payloads without any network call. Useful for tests and dry wiring.
func NewMockSynth() Synthesizer {
	return &mockSynth{}
}

func (m *mockSynth) Synthesize(ctx context.Context, req SynthRequest) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	return []byte(fmt.Sprintf("mock-%s-%s-%d", req.Model, req.Voice, len(req.Input))), nil
}
