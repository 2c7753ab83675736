// Package synthesis turns a voice selection or an uploaded reference clip into speech.
package synthesis

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/book-expert/logger"

	"github.com/book-expert/voicebox/internal/config"
	"github.com/book-expert/voicebox/internal/core"
)

// Validation messages.
const (
	msgReferenceAudioRequired = "reference audio required"
	msgTargetTextRequired     = "target text required"
	msgFmtSpeedOutOfRange     = "speed %.2f out of range %.1f-%.1f"
)

// Log formats.
const (
	logFmtSelectionFailed = "Voice selection of %q failed: %v"
	logFmtRejected        = "Rejected synthesis request: %v"
	logFmtModelFailed     = "Synthesis failed for reference %s: %v"
	logFmtTranscribing    = "No reference transcript, transcribing %s"
)

// VoiceSelector looks up a saved voice. voices.Manager satisfies it.
type VoiceSelector interface {
	SelectVoice(name string) (audioPath, transcript string, found bool, err error)
}

// Request describes one synthesis.
type Request struct {
	// ReferenceAudio is the path of the reference clip.
	ReferenceAudio string
	// ReferenceText is the transcript of the reference clip.
	ReferenceText string
	// TargetText is the text to speak.
	TargetText string
	// Speed is the speaking rate multiplier.
	Speed float64
}

// Orchestrator validates requests and drives the model.
type Orchestrator struct {
	voices   VoiceSelector
	model    core.Model
	language string
	log      *logger.Logger

	// mu keeps one synthesis in flight at a time.
	mu sync.Mutex
}

// NewOrchestrator creates an Orchestrator. language is the spoken language of every
// synthesis.
func NewOrchestrator(voices VoiceSelector, model core.Model, language string, log *logger.Logger) *Orchestrator {
	return &Orchestrator{
		voices:   voices,
		model:    model,
		language: language,
		log:      log,
	}
}

// ResolveVoiceSelection returns the clip and transcript of a saved voice. An empty or
// unknown name gives ok=false and no error; the caller may upload a clip instead. An
// unreadable registry is returned as an error rather than reported as absent.
func (o *Orchestrator) ResolveVoiceSelection(name string) (audioPath, transcript string, ok bool, err error) {
	audioPath, transcript, found, err := o.voices.SelectVoice(name)
	if err != nil {
		o.log.Error(logFmtSelectionFailed, name, err)

		return "", "", false, err
	}

	if !found {
		return "", "", false, nil
	}

	return audioPath, transcript, true, nil
}

// Generate speaks req.TargetText in the voice of the reference clip. A blank reference
// text is transcribed first. The waveform is returned exactly as the model produced it.
func (o *Orchestrator) Generate(ctx context.Context, req Request) (core.Waveform, error) {
	validateErr := validate(req)
	if validateErr != nil {
		o.log.Info(logFmtRejected, validateErr)

		return core.Waveform{}, validateErr
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	referenceText := strings.TrimSpace(req.ReferenceText)
	if referenceText == "" {
		o.log.Info(logFmtTranscribing, req.ReferenceAudio)

		text, err := o.model.Transcribe(ctx, req.ReferenceAudio, o.language)
		if err != nil {
			o.log.Error(logFmtModelFailed, req.ReferenceAudio, err)

			return core.Waveform{}, fmt.Errorf("%w: %w", core.ErrTranscription, err)
		}

		referenceText = text
	}

	ref, err := o.model.PreprocessReference(ctx, req.ReferenceAudio, referenceText, o.language)
	if err != nil {
		o.log.Error(logFmtModelFailed, req.ReferenceAudio, err)

		return core.Waveform{}, fmt.Errorf("%w: %w", core.ErrSynthesis, err)
	}

	waveform, err := o.model.Synthesize(ctx, ref, req.TargetText, req.Speed)
	if err != nil {
		o.log.Error(logFmtModelFailed, req.ReferenceAudio, err)

		return core.Waveform{}, fmt.Errorf("%w: %w", core.ErrSynthesis, err)
	}

	return waveform, nil
}

func validate(req Request) error {
	if req.ReferenceAudio == "" {
		return fmt.Errorf("%w: %s", core.ErrValidation, msgReferenceAudioRequired)
	}

	if strings.TrimSpace(req.TargetText) == "" {
		return fmt.Errorf("%w: %s", core.ErrValidation, msgTargetTextRequired)
	}

	// NaN must fail this check.
	if !(req.Speed >= config.MinSpeed && req.Speed <= config.MaxSpeed) {
		return fmt.Errorf("%w: "+msgFmtSpeedOutOfRange, core.ErrValidation, req.Speed, config.MinSpeed, config.MaxSpeed)
	}

	return nil
}
