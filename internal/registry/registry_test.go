package registry_test

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/book-expert/voicebox/internal/core"
	"github.com/book-expert/voicebox/internal/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRegistry(t *testing.T) *registry.Registry {
	t.Helper()

	return registry.New(filepath.Join(t.TempDir(), "voices", "voices.json"))
}

func TestLoad_MissingDocumentIsEmpty(t *testing.T) {
	t.Parallel()

	reg := newRegistry(t)

	voices, err := reg.Load()
	require.NoError(t, err)
	assert.Equal(t, 0, voices.Len())

	_, statErr := os.Stat(reg.Path())
	assert.True(t, errors.Is(statErr, os.ErrNotExist), "load must not create the document")
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	t.Parallel()

	reg := newRegistry(t)

	voices := registry.NewVoices()
	voices.Set("Zoe", registry.Record{Audio: "voices/Zoe.wav", Transcript: "hola"})
	voices.Set("Ana", registry.Record{Audio: "voices/Ana.mp3", Transcript: "¿Qué tal? <b> & ñandú 日本"})

	require.NoError(t, reg.Save(voices))

	loaded, err := reg.Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"Zoe", "Ana"}, loaded.Names(), "insertion order is preserved")

	rec, ok := loaded.Get("Ana")
	require.True(t, ok)
	assert.Equal(t, "¿Qué tal? <b> & ñandú 日本", rec.Transcript)
	assert.Equal(t, "voices/Ana.mp3", rec.Audio)
}

func TestSave_Formatting(t *testing.T) {
	t.Parallel()

	reg := newRegistry(t)

	voices := registry.NewVoices()
	voices.Set("María", registry.Record{Audio: "voices/María.wav", Transcript: "Buenos días & <adiós>"})

	require.NoError(t, reg.Save(voices))

	data, err := os.ReadFile(reg.Path())
	require.NoError(t, err)

	want := "{\n" +
		"  \"María\": {\n" +
		"    \"audio\": \"voices/María.wav\",\n" +
		"    \"transcript\": \"Buenos días & <adiós>\"\n" +
		"  }\n" +
		"}\n"
	assert.Equal(t, want, string(data))
}

func TestLoad_CorruptDocument(t *testing.T) {
	t.Parallel()

	for _, content := range []string{"{not json", "", "[1, 2]", "null", `{"a": "b"}`} {
		reg := newRegistry(t)
		require.NoError(t, os.MkdirAll(filepath.Dir(reg.Path()), 0o750))
		require.NoError(t, os.WriteFile(reg.Path(), []byte(content), 0o600))

		_, err := reg.Load()
		require.ErrorIs(t, err, core.ErrCorruptRegistry, "content %q", content)

		_, listErr := reg.ListNames()
		require.ErrorIs(t, listErr, core.ErrCorruptRegistry)
	}
}

func TestUpdate_CorruptDocumentIsNotOverwritten(t *testing.T) {
	t.Parallel()

	reg := newRegistry(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(reg.Path()), 0o750))
	require.NoError(t, os.WriteFile(reg.Path(), []byte("{broken"), 0o600))

	_, err := reg.Update(func(voices *registry.Voices) error {
		voices.Set("X", registry.Record{Audio: "voices/X.wav", Transcript: "x"})

		return nil
	})
	require.ErrorIs(t, err, core.ErrCorruptRegistry)

	data, readErr := os.ReadFile(reg.Path())
	require.NoError(t, readErr)
	assert.Equal(t, "{broken", string(data))
}

func TestUpdate_MutateErrorAbortsSave(t *testing.T) {
	t.Parallel()

	reg := newRegistry(t)
	errAbort := errors.New("abort")

	_, err := reg.Update(func(voices *registry.Voices) error {
		voices.Set("X", registry.Record{Audio: "voices/X.wav", Transcript: "x"})

		return errAbort
	})
	require.ErrorIs(t, err, errAbort)

	names, err := reg.ListNames()
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestUpdate_ConcurrentMutationsAreSerialized(t *testing.T) {
	t.Parallel()

	reg := newRegistry(t)
	names := []string{"a", "b", "c", "d", "e", "f", "g", "h"}

	var waitGroup sync.WaitGroup

	for _, name := range names {
		waitGroup.Add(1)

		go func(voiceName string) {
			defer waitGroup.Done()

			_, err := reg.Update(func(voices *registry.Voices) error {
				voices.Set(voiceName, registry.Record{Audio: "voices/" + voiceName + ".wav", Transcript: voiceName})

				return nil
			})
			assert.NoError(t, err)
		}(name)
	}

	waitGroup.Wait()

	stored, err := reg.ListNames()
	require.NoError(t, err)
	assert.ElementsMatch(t, names, stored, "no update may be lost")
}

func TestVoices_SetDeleteOrder(t *testing.T) {
	t.Parallel()

	voices := registry.NewVoices()
	voices.Set("a", registry.Record{Transcript: "1"})
	voices.Set("b", registry.Record{Transcript: "2"})
	voices.Set("c", registry.Record{Transcript: "3"})
	voices.Set("a", registry.Record{Transcript: "4"})

	assert.Equal(t, []string{"a", "b", "c"}, voices.Names())

	rec, ok := voices.Get("a")
	require.True(t, ok)
	assert.Equal(t, "4", rec.Transcript)

	assert.True(t, voices.Delete("b"))
	assert.False(t, voices.Delete("b"))
	assert.Equal(t, []string{"a", "c"}, voices.Names())

	entries := voices.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "c", entries[1].Name)
}
