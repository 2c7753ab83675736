package tts

import (
	"context"
	"fmt"
	"time"

	"github.com/book-expert/logger"

	"github.com/book-expert/voicebox/internal/audio"
	"github.com/book-expert/voicebox/internal/core"
)

// HealthCheckTimeout defines the timeout for health check operations.
const HealthCheckTimeout = 10 * time.Second

// Log formats.
const (
	logFmtTranscribed  = "Transcribed %s in %s (%d characters)"
	logFmtPreprocessed = "Preprocessed reference %s in %s"
	logFmtSynthesized  = "Synthesized %d characters in %s (%s of audio at %d Hz)"
)

// Transcriber converts an audio file to text.
type Transcriber interface {
	TranscribeFile(ctx context.Context, audioPath, language string) (string, error)
}

// Engine implements core.Model on top of the model service and a transcriber.
type Engine struct {
	client      *HTTPClient
	transcriber Transcriber
	logger      *logger.Logger
}

var _ core.Model = (*Engine)(nil)

// NewEngine creates an Engine.
func NewEngine(client *HTTPClient, transcriber Transcriber, log *logger.Logger) *Engine {
	return &Engine{
		client:      client,
		transcriber: transcriber,
		logger:      log,
	}
}

// Transcribe returns the text spoken in audioPath.
func (e *Engine) Transcribe(ctx context.Context, audioPath, language string) (string, error) {
	started := time.Now()

	text, err := e.transcriber.TranscribeFile(ctx, audioPath, language)
	if err != nil {
		return "", err
	}

	e.logger.Info(logFmtTranscribed, audioPath, time.Since(started), len([]rune(text)))

	return text, nil
}

// PreprocessReference normalizes a reference clip and transcript through the model service.
func (e *Engine) PreprocessReference(
	ctx context.Context,
	audioPath, transcript, language string,
) (core.Reference, error) {
	started := time.Now()

	resp, err := e.client.PreprocessReference(ctx, PreprocessRequest{
		RefAudioPath: audioPath,
		RefText:      transcript,
		Language:     language,
	})
	if err != nil {
		return core.Reference{}, fmt.Errorf("failed to preprocess reference: %w", err)
	}

	e.logger.Info(logFmtPreprocessed, audioPath, time.Since(started))

	return core.Reference{AudioPath: resp.RefAudioPath, Text: resp.RefText}, nil
}

// Synthesize speaks targetText in the voice of ref.
func (e *Engine) Synthesize(
	ctx context.Context,
	ref core.Reference,
	targetText string,
	speed float64,
) (core.Waveform, error) {
	started := time.Now()

	waveform, err := e.client.GenerateSpeech(ctx, SpeechRequest{
		RefAudioPath: ref.AudioPath,
		RefText:      ref.Text,
		GenText:      targetText,
		Speed:        speed,
	})
	if err != nil {
		return core.Waveform{}, fmt.Errorf("failed to generate speech: %w", err)
	}

	info := audio.Describe(waveform)
	e.logger.Info(logFmtSynthesized, len([]rune(targetText)), time.Since(started), info.Duration, info.SampleRate)

	return waveform, nil
}

// CheckHealth fails fast when the model service is unavailable.
func (e *Engine) CheckHealth(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, HealthCheckTimeout)
	defer cancel()

	err := e.client.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("TTS service health check failed: %w", err)
	}

	return nil
}
