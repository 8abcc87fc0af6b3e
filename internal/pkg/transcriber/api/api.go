package api

import "context"

// Transcriber turns normalized wav audio into text.
// Empty text with nil error means no speech was detected.
type Transcriber interface {
	Transcribe(ctx context.Context, wav []byte) (string, error)
}
