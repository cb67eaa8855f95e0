// Package speech provides voice output and input: synthesized readback of
// identification results and transcription of recorded voice queries. It is
// consumed only by the command layer; the identification pipeline itself has
// no speech dependency.
package speech

import "context"

// Synthesizer speaks text aloud. Speak is fire-and-forget from the caller's
// point of view; it returns once playback completes or fails.
type Synthesizer interface {
	Speak(ctx context.Context, text string) error
}

// Transcriber converts a recorded audio clip to text.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (string, error)
}
