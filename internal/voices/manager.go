// Package voices implements the voice lifecycle: saving, deleting, listing and
// selecting named reference voices, keeping the registry and the asset store in step.
package voices

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/book-expert/logger"

	"github.com/book-expert/voicebox/internal/assets"
	"github.com/book-expert/voicebox/internal/audio"
	"github.com/book-expert/voicebox/internal/core"
	"github.com/book-expert/voicebox/internal/registry"
)

// PreviewLength is the number of transcript characters shown per voice in summaries.
const PreviewLength = 80

// Status messages.
const (
	statusSaved         = "Voice '%s' saved."
	statusDeleted       = "Voice '%s' deleted."
	msgNameRequired     = "name required"
	msgAudioRequired    = "audio required"
	msgSelectToDelete   = "select a voice to delete"
	msgFmtVoiceNotFound = "voice '%s' not found"
	msgFmtUnsupported   = "unsupported audio format %q"
)

// Log formats.
const (
	logFmtSaved              = "Saved voice %q (asset %s, %d transcript characters)"
	logFmtDeleted            = "Deleted voice %q (asset %s)"
	logFmtAutoTranscribing   = "No transcript for voice %q, transcribing %s"
	logFmtStaleAssetRemoval  = "Failed to remove stale asset %s of voice %q: %v"
	logFmtOrphanRemoval      = "Failed to remove unregistered asset %s of voice %q: %v"
	logFmtRejected           = "Rejected %s of voice %q: %v"
	logFmtOperationFailed    = "Failed to %s voice %q: %v"
	logFmtDanglingAsset      = "Voice %q references missing asset %s"
	errFmtTranscriptionError = "%w: %w"
)

// Transcriber is the part of the model used when a voice is saved without a transcript.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath, language string) (string, error)
}

// Result is returned by every mutation so a caller can refresh everything derived from
// the voice list without a second query. On failure Names is the unchanged list.
type Result struct {
	Status string   `json:"status"`
	Names  []string `json:"names"`
}

// Summary is one row of the voices table.
type Summary struct {
	Name              string `json:"name"`
	TranscriptPreview string `json:"transcript"`
}

// Manager composes the registry and the asset store.
type Manager struct {
	registry    *registry.Registry
	assets      *assets.Store
	transcriber Transcriber
	language    string
	log         *logger.Logger

	// mu serializes whole save/delete operations across the asset store and the registry.
	mu sync.Mutex
}

// NewManager creates a Manager. language is passed to the transcriber. The registry
// document is reserved in the asset store so no clip can replace it.
func NewManager(
	reg *registry.Registry,
	store *assets.Store,
	transcriber Transcriber,
	language string,
	log *logger.Logger,
) *Manager {
	store.Reserve(reg.Path())

	return &Manager{
		registry:    reg,
		assets:      store,
		transcriber: transcriber,
		language:    language,
		log:         log,
	}
}

// ListVoiceNames returns the saved voice names in insertion order.
func (m *Manager) ListVoiceNames() ([]string, error) {
	return m.registry.ListNames()
}

// SaveVoice creates or overwrites the voice name with the clip at sourceAudioPath.
// A blank transcript is filled in by the transcriber.
func (m *Manager) SaveVoice(ctx context.Context, name, sourceAudioPath, transcript string) (Result, error) {
	name = strings.TrimSpace(name)

	validateErr := validateSave(name, sourceAudioPath)
	if validateErr != nil {
		return m.fail("save", name, validateErr)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	current, loadErr := m.registry.Load()
	if loadErr != nil {
		return m.fail("save", name, loadErr)
	}

	_, existed := current.Get(name)

	transcript = strings.TrimSpace(transcript)
	if transcript == "" {
		m.log.Info(logFmtAutoTranscribing, name, sourceAudioPath)

		text, err := m.transcribe(ctx, sourceAudioPath)
		if err != nil {
			return m.fail("save", name, err)
		}

		transcript = text
	}

	assetPath, storeErr := m.assets.Store(name, sourceAudioPath)
	if storeErr != nil {
		return m.fail("save", name, storeErr)
	}

	var previous registry.Record

	voices, updateErr := m.registry.Update(func(voices *registry.Voices) error {
		previous, _ = voices.Get(name)
		voices.Set(name, registry.Record{Audio: assetPath, Transcript: transcript})

		return nil
	})
	if updateErr != nil {
		if !existed {
			m.removeOrphan(assetPath, name)
		}

		return m.fail("save", name, updateErr)
	}

	if previous.Audio != "" && previous.Audio != assetPath {
		removeErr := m.assets.Remove(previous.Audio)
		if removeErr != nil {
			m.log.Warn(logFmtStaleAssetRemoval, previous.Audio, name, removeErr)
		}
	}

	m.log.Info(logFmtSaved, name, assetPath, len([]rune(transcript)))

	return Result{Status: fmt.Sprintf(statusSaved, name), Names: voices.Names()}, nil
}

// DeleteVoice removes the voice and its reference clip. The clip is removed before the
// registry is persisted, so a crash in between leaves a detectable dangling record
// rather than an untracked file.
func (m *Manager) DeleteVoice(_ context.Context, name string) (Result, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return m.fail("delete", name, fmt.Errorf("%w: %s", core.ErrNotFound, msgSelectToDelete))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	current, err := m.registry.Load()
	if err != nil {
		return m.fail("delete", name, err)
	}

	rec, ok := current.Get(name)
	if !ok {
		return m.fail("delete", name, fmt.Errorf("%w: "+msgFmtVoiceNotFound, core.ErrNotFound, name))
	}

	removeErr := m.assets.Remove(rec.Audio)
	if removeErr != nil {
		return m.fail("delete", name, removeErr)
	}

	voices, updateErr := m.registry.Update(func(voices *registry.Voices) error {
		voices.Delete(name)

		return nil
	})
	if updateErr != nil {
		return m.fail("delete", name, updateErr)
	}

	m.log.Info(logFmtDeleted, name, rec.Audio)

	return Result{Status: fmt.Sprintf(statusDeleted, name), Names: voices.Names()}, nil
}

// SelectVoice returns the absolute clip path and transcript of a saved voice. An empty or
// unknown name reports found=false; selection is advisory, the caller may upload a clip
// instead.
func (m *Manager) SelectVoice(name string) (audioPath, transcript string, found bool, err error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", "", false, nil
	}

	voices, loadErr := m.registry.Load()
	if loadErr != nil {
		return "", "", false, loadErr
	}

	rec, ok := voices.Get(name)
	if !ok {
		return "", "", false, nil
	}

	return m.assets.Resolve(rec.Audio), rec.Transcript, true, nil
}

// DescribeVoices returns one summary per voice with the transcript cut to PreviewLength.
func (m *Manager) DescribeVoices() ([]Summary, error) {
	voices, err := m.registry.Load()
	if err != nil {
		return nil, err
	}

	summaries := make([]Summary, 0, voices.Len())
	for _, entry := range voices.Entries() {
		summaries = append(summaries, Summary{
			Name:              entry.Name,
			TranscriptPreview: Preview(entry.Record.Transcript),
		})
	}

	return summaries, nil
}

// CheckIntegrity returns the names of voices whose clip is missing from the asset store.
func (m *Manager) CheckIntegrity() ([]string, error) {
	voices, err := m.registry.Load()
	if err != nil {
		return nil, err
	}

	var dangling []string

	for _, entry := range voices.Entries() {
		if !m.assets.Exists(entry.Record.Audio) {
			m.log.Warn(logFmtDanglingAsset, entry.Name, entry.Record.Audio)
			dangling = append(dangling, entry.Name)
		}
	}

	return dangling, nil
}

// Preview cuts a transcript to PreviewLength characters.
func Preview(transcript string) string {
	runes := []rune(transcript)
	if len(runes) <= PreviewLength {
		return transcript
	}

	return string(runes[:PreviewLength])
}

func (m *Manager) removeOrphan(assetPath, name string) {
	removeErr := m.assets.Remove(assetPath)
	if removeErr != nil {
		m.log.Warn(logFmtOrphanRemoval, assetPath, name, removeErr)
	}
}

func (m *Manager) transcribe(ctx context.Context, audioPath string) (string, error) {
	text, err := m.transcriber.Transcribe(ctx, audioPath, m.language)
	if err != nil {
		return "", fmt.Errorf(errFmtTranscriptionError, core.ErrTranscription, err)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("%w: empty transcription for %s", core.ErrTranscription, audioPath)
	}

	return text, nil
}

// fail builds the Result of a failed operation: the error's status message and the
// unchanged name list.
func (m *Manager) fail(operation, name string, err error) (Result, error) {
	if core.IsUserError(err) {
		m.log.Info(logFmtRejected, operation, name, err)
	} else {
		m.log.Error(logFmtOperationFailed, operation, name, err)
	}

	names, listErr := m.registry.ListNames()
	if listErr != nil {
		names = nil
	}

	return Result{Status: core.StatusMessage(err), Names: names}, err
}

func validateSave(name, sourceAudioPath string) error {
	if name == "" {
		return fmt.Errorf("%w: %s", core.ErrValidation, msgNameRequired)
	}

	nameErr := assets.ValidateName(name)
	if nameErr != nil {
		return fmt.Errorf("%w: %w", core.ErrValidation, nameErr)
	}

	if sourceAudioPath == "" {
		return fmt.Errorf("%w: %s", core.ErrValidation, msgAudioRequired)
	}

	format, ok := audio.FormatOf(sourceAudioPath)
	if !ok {
		return fmt.Errorf("%w: "+msgFmtUnsupported, core.ErrValidation, format)
	}

	return nil
}
