// Package worker provides a NATS worker that speaks processed text in a saved voice.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/book-expert/events"
	"github.com/book-expert/logger"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/book-expert/voicebox/internal/audio"
	"github.com/book-expert/voicebox/internal/core"
	"github.com/book-expert/voicebox/internal/synthesis"
	"github.com/book-expert/voicebox/internal/text"
)

// HeaderStatus carries the failure status on error replies.
const HeaderStatus = "Voicebox-Status"

const (
	defaultJobTimeout = 5 * time.Minute
	audioKeyExtension = ".wav"
)

// Log formats.
const (
	logFmtInvalidEvent   = "Failed to parse event on %s: %v"
	logFmtJobFailed      = "Failed to synthesize page %d of workflow %s: %v"
	logFmtJobRejected    = "Rejected page %d of workflow %s: %v"
	logFmtJobDone        = "Synthesized page %d/%d of workflow %s with voice %q as %s"
	logFmtReplyFailed    = "Failed to reply for workflow %s: %v"
	logFmtErrReplyFailed = "Failed to send error reply on %s: %v"
)

var (
	// ErrVoiceRequired indicates an event without a voice name.
	ErrVoiceRequired = errors.New("voice cannot be empty")
	// ErrTextKeyRequired indicates an event without a text key.
	ErrTextKeyRequired = errors.New("text key cannot be empty")
)

// Synthesizer resolves saved voices and generates speech.
type Synthesizer interface {
	ResolveVoiceSelection(name string) (audioPath, transcript string, ok bool, err error)
	Generate(ctx context.Context, req synthesis.Request) (core.Waveform, error)
}

// Options configures a NatsWorker.
type Options struct {
	// Subject is the request subject for TextProcessedEvent messages.
	Subject string
	// Speed is the speaking rate used for every job.
	Speed float64
	// JobTimeout bounds one job from download to upload.
	JobTimeout time.Duration
}

// NatsWorker answers TextProcessedEvent requests with AudioChunkCreatedEvent replies.
type NatsWorker struct {
	natsConnection *nats.Conn
	store          core.ObjectStore
	synthesizer    Synthesizer
	normalizer     *text.Normalizer
	opts           Options
	log            *logger.Logger
}

// NewNatsWorker creates a new instance of a NATS worker.
func NewNatsWorker(
	natsConnection *nats.Conn,
	store core.ObjectStore,
	synthesizer Synthesizer,
	opts Options,
	log *logger.Logger,
) *NatsWorker {
	if opts.JobTimeout <= 0 {
		opts.JobTimeout = defaultJobTimeout
	}

	return &NatsWorker{
		natsConnection: natsConnection,
		store:          store,
		synthesizer:    synthesizer,
		normalizer:     text.NewNormalizer(),
		opts:           opts,
		log:            log,
	}
}

// Run subscribes and handles messages until ctx is canceled, then drains the subscription.
func (w *NatsWorker) Run(ctx context.Context) error {
	sub, err := w.natsConnection.Subscribe(w.opts.Subject, w.handleMessage)
	if err != nil {
		return fmt.Errorf("failed to subscribe to subject %s: %w", w.opts.Subject, err)
	}

	<-ctx.Done()

	drainErr := sub.Drain()
	if drainErr != nil {
		return fmt.Errorf("failed to drain subscription: %w", drainErr)
	}

	return nil
}

func (w *NatsWorker) handleMessage(msg *nats.Msg) {
	ctx, cancel := context.WithTimeout(context.Background(), w.opts.JobTimeout)
	defer cancel()

	event, err := parseEvent(msg)
	if err != nil {
		w.log.Error(logFmtInvalidEvent, msg.Subject, err)
		w.replyError(msg, err)

		return
	}

	audioKey, err := w.processJob(ctx, event)
	if err != nil {
		if core.IsUserError(err) {
			w.log.Warn(logFmtJobRejected, event.PageNumber, event.Header.WorkflowID, err)
		} else {
			w.log.Error(logFmtJobFailed, event.PageNumber, event.Header.WorkflowID, err)
		}

		w.replyError(msg, err)

		return
	}

	w.log.Info(logFmtJobDone, event.PageNumber, event.TotalPages, event.Header.WorkflowID, event.Voice, audioKey)

	replyEvent := &events.AudioChunkCreatedEvent{
		Header:     event.Header,
		AudioKey:   audioKey,
		PageNumber: event.PageNumber,
		TotalPages: event.TotalPages,
	}

	err = publishReply(msg, replyEvent)
	if err != nil {
		w.log.Error(logFmtReplyFailed, event.Header.WorkflowID, err)
	}
}

// processJob downloads the page text, cleans it, speaks it in the requested voice and
// uploads the WAV.
func (w *NatsWorker) processJob(ctx context.Context, event *events.TextProcessedEvent) (string, error) {
	audioPath, transcript, ok, err := w.synthesizer.ResolveVoiceSelection(event.Voice)
	if err != nil {
		return "", err
	}

	if !ok {
		return "", fmt.Errorf("%w: voice '%s' not found", core.ErrNotFound, event.Voice)
	}

	textData, err := w.store.Download(ctx, event.TextKey)
	if err != nil {
		return "", fmt.Errorf("failed to download text data for key '%s': %w", event.TextKey, err)
	}

	waveform, err := w.synthesizer.Generate(ctx, synthesis.Request{
		ReferenceAudio: audioPath,
		ReferenceText:  transcript,
		TargetText:     w.normalizer.Normalize(string(textData)),
		Speed:          w.opts.Speed,
	})
	if err != nil {
		return "", err
	}

	audioData, err := audio.RenderWAV(waveform)
	if err != nil {
		return "", fmt.Errorf("failed to render audio: %w", err)
	}

	audioKey := uuid.NewString() + audioKeyExtension

	err = w.store.Upload(ctx, audioKey, audioData)
	if err != nil {
		return "", fmt.Errorf("failed to upload audio data for key '%s': %w", audioKey, err)
	}

	return audioKey, nil
}

// replyError answers a request with an empty body and the failure status in a header.
func (w *NatsWorker) replyError(msg *nats.Msg, cause error) {
	if msg.Reply == "" {
		return
	}

	reply := nats.NewMsg(msg.Reply)
	reply.Header.Set(HeaderStatus, core.StatusMessage(cause))

	err := msg.RespondMsg(reply)
	if err != nil {
		w.log.Error(logFmtErrReplyFailed, msg.Reply, err)
	}
}

func publishReply(msg *nats.Msg, replyEvent *events.AudioChunkCreatedEvent) error {
	replyData, err := json.Marshal(replyEvent)
	if err != nil {
		return fmt.Errorf("failed to marshal reply event: %w", err)
	}

	err = msg.Respond(replyData)
	if err != nil {
		return fmt.Errorf("failed to publish reply event: %w", err)
	}

	return nil
}

func parseEvent(msg *nats.Msg) (*events.TextProcessedEvent, error) {
	var event events.TextProcessedEvent

	err := json.Unmarshal(msg.Data, &event)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to unmarshal event: %w", core.ErrValidation, err)
	}

	if strings.TrimSpace(event.Voice) == "" {
		return nil, fmt.Errorf("%w: %w", core.ErrValidation, ErrVoiceRequired)
	}

	if event.TextKey == "" {
		return nil, fmt.Errorf("%w: %w", core.ErrValidation, ErrTextKeyRequired)
	}

	return &event, nil
}
