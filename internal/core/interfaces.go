// Package core defines the shared types, error kinds and capability interfaces of voicebox.
package core

import "context"

// ObjectStore defines the interface for interacting with a key-value blob store.
type ObjectStore interface {
	Download(ctx context.Context, key string) ([]byte, error)
	Upload(ctx context.Context, key string, data []byte) error
}

// Reference is a reference clip paired with its transcript, as consumed by the model.
type Reference struct {
	AudioPath string
	Text      string
}

// Waveform is synthesized mono audio as produced by the model.
type Waveform struct {
	SampleRate int
	Samples    []float32
}

// Model is the external speech capability: transcription for voices saved without a
// transcript, and reference preprocessing plus synthesis for generation.
type Model interface {
	Transcribe(ctx context.Context, audioPath, language string) (string, error)
	PreprocessReference(ctx context.Context, audioPath, transcript, language string) (Reference, error)
	Synthesize(ctx context.Context, ref Reference, targetText string, speed float64) (Waveform, error)
}
