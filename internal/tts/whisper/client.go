// Package whisper provides speech-to-text for reference clips saved without a transcript.
//
// Any OpenAI-compatible /audio/transcriptions endpoint works: the hosted API, or a
// local Whisper server reached through Config.BaseURL.
package whisper

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// Error messages.
const (
	errAudioPathEmpty        = "audio path cannot be empty"
	errFmtTranscriptionFail  = "whisper transcription of %s failed: %w"
	errFmtEmptyTranscription = "whisper returned an empty transcription for %s"
)

// DefaultModel is used when no model is configured.
const DefaultModel = openai.Whisper1

// Config describes the transcription endpoint.
type Config struct {
	BaseURL string
	APIKey  string
	Model   string
}

// Client transcribes audio files.
type Client struct {
	api   *openai.Client
	model string
}

// NewClient creates a transcription client.
func NewClient(cfg Config) *Client {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}

	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}

	return &Client{
		api:   openai.NewClientWithConfig(clientConfig),
		model: model,
	}
}

// TranscribeFile returns the text spoken in the audio file. An empty language lets the
// service detect it.
func (c *Client) TranscribeFile(ctx context.Context, audioPath, language string) (string, error) {
	if audioPath == "" {
		return "", errors.New(errAudioPathEmpty)
	}

	resp, err := c.api.CreateTranscription(ctx, openai.AudioRequest{
		Model:    c.model,
		FilePath: audioPath,
		Language: language,
	})
	if err != nil {
		return "", fmt.Errorf(errFmtTranscriptionFail, audioPath, err)
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", fmt.Errorf(errFmtEmptyTranscription, audioPath)
	}

	return text, nil
}
