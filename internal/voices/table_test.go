package voices_test

import (
	"testing"

	"github.com/book-expert/voicebox/internal/voices"
	"github.com/stretchr/testify/assert"
)

func TestRenderTable(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "_No saved voices._", voices.RenderTable(nil))

	table := voices.RenderTable([]voices.Summary{
		{Name: "Maria", TranscriptPreview: "hola\nqué tal"},
		{Name: "Luis", TranscriptPreview: "a | b"},
	})

	want := "| Name | Transcript |\n" +
		"|------|------------|\n" +
		"| Maria | hola qué tal |\n" +
		`| Luis | a \| b |`
	assert.Equal(t, want, table)
}

func TestPreview(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "corto", voices.Preview("corto"))
	assert.Len(t, []rune(voices.Preview(string(make([]rune, 200)))), voices.PreviewLength)
}
