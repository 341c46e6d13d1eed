package tts

import "context"

// SynthRequest contains parameters for one speech-synthesis call. The same
// request is reused across segments with only Input changing.
type SynthRequest struct {
	Model  string
	Voice  string
	Input  string
	Format string
	Speed  float64
}

// Synthesizer is the contract for producing audio from one text segment.
type Synthesizer interface {
	Synthesize(ctx context.Context, req SynthRequest) ([]byte, error)
}
