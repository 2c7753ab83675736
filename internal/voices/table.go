package voices

import "strings"

// Table rendering.
const (
	tableHeader      = "| Name | Transcript |\n|------|------------|"
	tableEmpty       = "_No saved voices._"
	cellPipeReplacer = `\|`
)

// VoicesTable renders the saved voices as a markdown table, one row per voice.
func (m *Manager) VoicesTable() (string, error) {
	summaries, err := m.DescribeVoices()
	if err != nil {
		return "", err
	}

	return RenderTable(summaries), nil
}

// RenderTable renders summaries as a markdown table.
func RenderTable(summaries []Summary) string {
	if len(summaries) == 0 {
		return tableEmpty
	}

	var builder strings.Builder

	builder.WriteString(tableHeader)

	for _, summary := range summaries {
		builder.WriteString("\n| ")
		builder.WriteString(escapeCell(summary.Name))
		builder.WriteString(" | ")
		builder.WriteString(escapeCell(summary.TranscriptPreview))
		builder.WriteString(" |")
	}

	return builder.String()
}

// escapeCell keeps a value on one line and inside its column.
func escapeCell(value string) string {
	value = strings.ReplaceAll(value, "|", cellPipeReplacer)

	return strings.Join(strings.Fields(value), " ")
}
