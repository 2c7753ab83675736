// Package tts provides the client for the text-to-speech model service.
//
// The model service holds the acoustic model and vocoder. It shares the filesystem with
// voicebox, so reference clips are passed by server-side path rather than uploaded.
package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/book-expert/voicebox/internal/audio"
	"github.com/book-expert/voicebox/internal/core"
)

// API endpoints and paths.
const (
	apiPreprocessReference = "/v1/reference/preprocess"
	apiGenerateSpeech      = "/v1/generate/speech"
	apiHealth              = "/health"
)

// HTTP headers.
const (
	headerContentType = "Content-Type"
	headerAccept      = "Accept"
	contentTypeJSON   = "application/json"
	contentTypeWAV    = "audio/wav"
)

// Error messages.
const (
	errRefAudioCannotBeEmpty   = "reference audio path cannot be empty"
	errGenTextCannotBeEmpty    = "generation text cannot be empty"
	errUnexpectedContentType   = "unexpected content type: expected audio/wav, got %s"
	errReceivedEmptyAudio      = "received empty audio data"
	errFmtServiceErrorWithCode = "TTS service error (%s): %s (code: %s)"
	errFmtServiceNonOKStatus   = "TTS service returned non-OK status: %s, body: %s"
)

// HTTPClient represents a client for the model service.
type HTTPClient struct {
	httpClient *http.Client
	baseURL    string
}

// PreprocessRequest asks the service to normalize a reference clip and its transcript.
type PreprocessRequest struct {
	RefAudioPath string `json:"ref_audio_path"`
	RefText      string `json:"ref_text"`
	Language     string `json:"language"`
}

// PreprocessResponse carries the normalized reference pair.
type PreprocessResponse struct {
	RefAudioPath string `json:"ref_audio_path"`
	RefText      string `json:"ref_text"`
}

// SpeechRequest defines the JSON payload for speech generation.
type SpeechRequest struct {
	// RefAudioPath is the normalized reference clip returned by preprocessing.
	RefAudioPath string `json:"ref_audio_path"`

	// RefText is the normalized reference transcript.
	RefText string `json:"ref_text"`

	// GenText is the text to speak in the reference voice.
	GenText string `json:"gen_text"`

	// Speed is the speaking rate multiplier.
	Speed float64 `json:"speed"`
}

// ErrorResponse represents a structured error response from the model service.
type ErrorResponse struct {
	Detail    string `json:"detail"`
	ErrorCode string `json:"error_code,omitempty"`
}

// NewHTTPClient creates a client for the model service at baseURL
// (e.g. "http://localhost:8000"). A zero timeout means requests never time out.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// PreprocessReference normalizes a reference clip and transcript for the target language.
func (c *HTTPClient) PreprocessReference(ctx context.Context, req PreprocessRequest) (PreprocessResponse, error) {
	if req.RefAudioPath == "" {
		return PreprocessResponse{}, errors.New(errRefAudioCannotBeEmpty)
	}

	resp, err := c.postJSON(ctx, apiPreprocessReference, req, contentTypeJSON)
	if err != nil {
		return PreprocessResponse{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return PreprocessResponse{}, c.parseErrorResponse(resp)
	}

	var out PreprocessResponse

	decodeErr := json.NewDecoder(resp.Body).Decode(&out)
	if decodeErr != nil {
		return PreprocessResponse{}, fmt.Errorf("failed to decode preprocess response: %w", decodeErr)
	}

	return out, nil
}

// GenerateSpeech synthesizes GenText in the reference voice and returns the waveform
// decoded from the service's WAV response.
func (c *HTTPClient) GenerateSpeech(ctx context.Context, req SpeechRequest) (core.Waveform, error) {
	if req.RefAudioPath == "" {
		return core.Waveform{}, errors.New(errRefAudioCannotBeEmpty)
	}

	if strings.TrimSpace(req.GenText) == "" {
		return core.Waveform{}, errors.New(errGenTextCannotBeEmpty)
	}

	resp, err := c.postJSON(ctx, apiGenerateSpeech, req, contentTypeWAV)
	if err != nil {
		return core.Waveform{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return core.Waveform{}, c.parseErrorResponse(resp)
	}

	contentType := resp.Header.Get(headerContentType)
	if contentType != contentTypeWAV {
		return core.Waveform{}, fmt.Errorf(errUnexpectedContentType, contentType)
	}

	audioData, err := io.ReadAll(resp.Body)
	if err != nil {
		return core.Waveform{}, fmt.Errorf("failed to read audio data: %w", err)
	}

	if len(audioData) == 0 {
		return core.Waveform{}, errors.New(errReceivedEmptyAudio)
	}

	waveform, err := audio.DecodeWAV(bytes.NewReader(audioData))
	if err != nil {
		return core.Waveform{}, fmt.Errorf("failed to decode audio data: %w", err)
	}

	return waveform, nil
}

// HealthCheck verifies that the model service is running and operational.
func (c *HTTPClient) HealthCheck(ctx context.Context) error {
	url := c.baseURL + apiHealth

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed for service at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check failed with status: %s", resp.Status)
	}

	return nil
}

func (c *HTTPClient) postJSON(ctx context.Context, path string, payload any, accept string) (*http.Response, error) {
	requestBody, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(requestBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set(headerContentType, contentTypeJSON)
	httpReq.Header.Set(headerAccept, accept)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request to TTS service at %s: %w", c.baseURL, err)
	}

	return resp, nil
}

// parseErrorResponse decodes a structured JSON error from the service, falling back to
// the raw body so diagnostic information is preserved.
func (c *HTTPClient) parseErrorResponse(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	var errorResp ErrorResponse

	err := json.Unmarshal(body, &errorResp)
	if err == nil && errorResp.Detail != "" {
		return fmt.Errorf(errFmtServiceErrorWithCode, resp.Status, errorResp.Detail, errorResp.ErrorCode)
	}

	return fmt.Errorf(errFmtServiceNonOKStatus, resp.Status, string(body))
}
