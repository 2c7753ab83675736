package synthesis_test

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/book-expert/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/voicebox/internal/core"
	"github.com/book-expert/voicebox/internal/synthesis"
)

var errModelOffline = errors.New("model offline")

// mockModel records every call and returns a fixed waveform.
type mockModel struct {
	failTranscribe bool
	failPreprocess bool
	failSynthesize bool
	delay          time.Duration

	mu              sync.Mutex
	transcribeCalls int
	preprocessCalls int
	synthesizeCalls int
	lastLanguage    string
	lastReference   core.Reference
	lastTarget      string
	lastSpeed       float64

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func (m *mockModel) Transcribe(context.Context, string, string) (string, error) {
	m.mu.Lock()
	m.transcribeCalls++
	m.mu.Unlock()

	if m.failTranscribe {
		return "", errModelOffline
	}

	return "transcripción", nil
}

func (m *mockModel) PreprocessReference(
	_ context.Context,
	audioPath, transcript, language string,
) (core.Reference, error) {
	m.mu.Lock()
	m.preprocessCalls++
	m.lastLanguage = language
	m.mu.Unlock()

	if m.failPreprocess {
		return core.Reference{}, errModelOffline
	}

	return core.Reference{AudioPath: audioPath + ".norm", Text: transcript + "."}, nil
}

func (m *mockModel) Synthesize(
	_ context.Context,
	ref core.Reference,
	targetText string,
	speed float64,
) (core.Waveform, error) {
	current := m.inFlight.Add(1)
	defer m.inFlight.Add(-1)

	for {
		seen := m.maxInFlight.Load()
		if current <= seen || m.maxInFlight.CompareAndSwap(seen, current) {
			break
		}
	}

	time.Sleep(m.delay)

	m.mu.Lock()
	m.synthesizeCalls++
	m.lastReference = ref
	m.lastTarget = targetText
	m.lastSpeed = speed
	m.mu.Unlock()

	if m.failSynthesize {
		return core.Waveform{}, errModelOffline
	}

	return core.Waveform{SampleRate: 24000, Samples: []float32{0.5, -2, 0}}, nil
}

// mockSelector serves voices from a map.
type mockSelector struct {
	voices     map[string][2]string
	shouldFail bool
}

func (s *mockSelector) SelectVoice(name string) (string, string, bool, error) {
	if s.shouldFail {
		return "", "", false, fmt.Errorf("%w: broken", core.ErrCorruptRegistry)
	}

	voice, ok := s.voices[name]
	if !ok {
		return "", "", false, nil
	}

	return voice[0], voice[1], true, nil
}

func newOrchestrator(t *testing.T, model *mockModel, selector *mockSelector) *synthesis.Orchestrator {
	t.Helper()

	testLogger, err := logger.New(t.TempDir(), "test.log")
	require.NoError(t, err)

	t.Cleanup(func() { _ = testLogger.Close() })

	if selector == nil {
		selector = &mockSelector{voices: map[string][2]string{"Maria": {"/data/voices/Maria.wav", "hola"}}}
	}

	return synthesis.NewOrchestrator(selector, model, "es", testLogger)
}

func TestGenerate_Success(t *testing.T) {
	t.Parallel()

	model := &mockModel{}
	orchestrator := newOrchestrator(t, model, nil)

	waveform, err := orchestrator.Generate(context.Background(), synthesis.Request{
		ReferenceAudio: "/tmp/ref.wav",
		ReferenceText:  "hola",
		TargetText:     "buenos días",
		Speed:          1.2,
	})
	require.NoError(t, err)

	assert.Equal(t, 24000, waveform.SampleRate)
	assert.Equal(t, []float32{0.5, -2, 0}, waveform.Samples, "samples must not be post-processed")
	assert.Equal(t, "es", model.lastLanguage)
	assert.Equal(t, core.Reference{AudioPath: "/tmp/ref.wav.norm", Text: "hola."}, model.lastReference)
	assert.Equal(t, "buenos días", model.lastTarget)
	assert.InDelta(t, 1.2, model.lastSpeed, 1e-9)
}

func TestGenerate_TranscribesBlankReference(t *testing.T) {
	t.Parallel()

	model := &mockModel{}
	orchestrator := newOrchestrator(t, model, nil)

	_, err := orchestrator.Generate(context.Background(), synthesis.Request{
		ReferenceAudio: "/tmp/ref.wav",
		ReferenceText:  "  ",
		TargetText:     "hola",
		Speed:          1,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, model.transcribeCalls)
	assert.Equal(t, "transcripción.", model.lastReference.Text)

	failing := &mockModel{failTranscribe: true}

	_, err = newOrchestrator(t, failing, nil).Generate(context.Background(), synthesis.Request{
		ReferenceAudio: "/tmp/ref.wav",
		TargetText:     "hola",
		Speed:          1,
	})
	require.ErrorIs(t, err, core.ErrTranscription)
	assert.Zero(t, failing.preprocessCalls)
}

func TestGenerate_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		request synthesis.Request
		message string
	}{
		{
			name:    "missing reference audio",
			request: synthesis.Request{TargetText: "hola", Speed: 1},
			message: "Error: reference audio required",
		},
		{
			name:    "blank target text",
			request: synthesis.Request{ReferenceAudio: "/tmp/ref.wav", TargetText: "  ", Speed: 1},
			message: "Error: target text required",
		},
		{
			name:    "speed too slow",
			request: synthesis.Request{ReferenceAudio: "/tmp/ref.wav", TargetText: "hola", Speed: 0.1},
		},
		{
			name:    "speed too fast",
			request: synthesis.Request{ReferenceAudio: "/tmp/ref.wav", TargetText: "hola", Speed: 2.5},
		},
		{
			name:    "speed not a number",
			request: synthesis.Request{ReferenceAudio: "/tmp/ref.wav", TargetText: "hola", Speed: math.NaN()},
		},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			model := &mockModel{}
			orchestrator := newOrchestrator(t, model, nil)

			_, err := orchestrator.Generate(context.Background(), testCase.request)
			require.ErrorIs(t, err, core.ErrValidation)

			if testCase.message != "" {
				assert.Equal(t, testCase.message, core.StatusMessage(err))
			}

			assert.Zero(t, model.transcribeCalls)
			assert.Zero(t, model.preprocessCalls)
			assert.Zero(t, model.synthesizeCalls)
		})
	}
}

func TestGenerate_SpeedBoundsAccepted(t *testing.T) {
	t.Parallel()

	orchestrator := newOrchestrator(t, &mockModel{}, nil)

	for _, speed := range []float64{0.3, 2.0} {
		_, err := orchestrator.Generate(context.Background(), synthesis.Request{
			ReferenceAudio: "/tmp/ref.wav",
			TargetText:     "hola",
			Speed:          speed,
		})
		require.NoError(t, err)
	}
}

func TestGenerate_ModelFailures(t *testing.T) {
	t.Parallel()

	for _, model := range []*mockModel{{failPreprocess: true}, {failSynthesize: true}} {
		orchestrator := newOrchestrator(t, model, nil)

		_, err := orchestrator.Generate(context.Background(), synthesis.Request{
			ReferenceAudio: "/tmp/ref.wav",
			TargetText:     "hola",
			Speed:          1,
		})
		require.ErrorIs(t, err, core.ErrSynthesis)
		require.ErrorIs(t, err, errModelOffline)
		assert.Contains(t, core.StatusMessage(err), "model offline")
	}
}

func TestGenerate_SerializesModelCalls(t *testing.T) {
	t.Parallel()

	model := &mockModel{delay: 20 * time.Millisecond}
	orchestrator := newOrchestrator(t, model, nil)

	var waitGroup sync.WaitGroup

	for range 4 {
		waitGroup.Add(1)

		go func() {
			defer waitGroup.Done()

			_, err := orchestrator.Generate(context.Background(), synthesis.Request{
				ReferenceAudio: "/tmp/ref.wav",
				TargetText:     "hola",
				Speed:          1,
			})
			assert.NoError(t, err)
		}()
	}

	waitGroup.Wait()

	assert.Equal(t, 4, model.synthesizeCalls)
	assert.Equal(t, int32(1), model.maxInFlight.Load())
}

func TestResolveVoiceSelection(t *testing.T) {
	t.Parallel()

	orchestrator := newOrchestrator(t, &mockModel{}, nil)

	audioPath, transcript, ok, err := orchestrator.ResolveVoiceSelection("Maria")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "/data/voices/Maria.wav", audioPath)
	assert.Equal(t, "hola", transcript)

	for _, name := range []string{"", "unknown"} {
		audioPath, transcript, ok, err = orchestrator.ResolveVoiceSelection(name)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Empty(t, audioPath)
		assert.Empty(t, transcript)
	}
}

func TestResolveVoiceSelection_CorruptRegistry(t *testing.T) {
	t.Parallel()

	orchestrator := newOrchestrator(t, &mockModel{}, &mockSelector{shouldFail: true})

	audioPath, transcript, ok, err := orchestrator.ResolveVoiceSelection("Maria")
	require.ErrorIs(t, err, core.ErrCorruptRegistry)
	assert.False(t, ok)
	assert.Empty(t, audioPath)
	assert.Empty(t, transcript)
}
