package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
)

var errNotAnObject = errors.New("registry document must be a JSON object")

// Record is the persisted entry for one voice.
type Record struct {
	// Audio is the asset path of the reference clip, relative to the base directory.
	Audio string `json:"audio"`
	// Transcript is the text spoken in the reference clip.
	Transcript string `json:"transcript"`
}

// Entry pairs a voice name with its record.
type Entry struct {
	Name   string
	Record Record
}

// Voices is the in-memory form of the registry document: a name-to-record mapping
// that remembers insertion order.
type Voices struct {
	order   []string
	records map[string]Record
}

// NewVoices returns an empty mapping.
func NewVoices() *Voices {
	return &Voices{
		order:   nil,
		records: make(map[string]Record),
	}
}

// Len returns the number of voices.
func (v *Voices) Len() int {
	return len(v.order)
}

// Get returns the record stored under name.
func (v *Voices) Get(name string) (Record, bool) {
	rec, ok := v.records[name]

	return rec, ok
}

// Set inserts or replaces the record for name. Replacing keeps the original position.
func (v *Voices) Set(name string, rec Record) {
	if v.records == nil {
		v.records = make(map[string]Record)
	}

	if _, exists := v.records[name]; !exists {
		v.order = append(v.order, name)
	}

	v.records[name] = rec
}

// Delete removes name and reports whether it was present.
func (v *Voices) Delete(name string) bool {
	if _, exists := v.records[name]; !exists {
		return false
	}

	delete(v.records, name)
	v.order = slices.DeleteFunc(v.order, func(candidate string) bool { return candidate == name })

	return true
}

// Names returns the voice names in insertion order.
func (v *Voices) Names() []string {
	return slices.Clone(v.order)
}

// Entries returns every voice in insertion order.
func (v *Voices) Entries() []Entry {
	entries := make([]Entry, 0, len(v.order))
	for _, name := range v.order {
		entries = append(entries, Entry{Name: name, Record: v.records[name]})
	}

	return entries
}

// MarshalJSON encodes the mapping as a JSON object with keys in insertion order.
func (v *Voices) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte('{')

	for i, name := range v.order {
		if i > 0 {
			buf.WriteByte(',')
		}

		keyErr := encodeCompact(&buf, name)
		if keyErr != nil {
			return nil, keyErr
		}

		buf.WriteByte(':')

		valueErr := encodeCompact(&buf, v.records[name])
		if valueErr != nil {
			return nil, valueErr
		}
	}

	buf.WriteByte('}')

	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object, keeping the key order of the document.
// A repeated key keeps its first position and its last value.
func (v *Voices) UnmarshalJSON(data []byte) error {
	decoder := json.NewDecoder(bytes.NewReader(data))

	token, err := decoder.Token()
	if err != nil {
		return fmt.Errorf("read opening token: %w", err)
	}

	if delim, ok := token.(json.Delim); !ok || delim != '{' {
		return errNotAnObject
	}

	parsed := NewVoices()

	for decoder.More() {
		keyToken, keyErr := decoder.Token()
		if keyErr != nil {
			return fmt.Errorf("read voice name: %w", keyErr)
		}

		name, ok := keyToken.(string)
		if !ok {
			return fmt.Errorf("%w: unexpected key %v", errNotAnObject, keyToken)
		}

		var rec Record

		decodeErr := decoder.Decode(&rec)
		if decodeErr != nil {
			return fmt.Errorf("decode voice %q: %w", name, decodeErr)
		}

		parsed.Set(name, rec)
	}

	_, closeErr := decoder.Token()
	if closeErr != nil {
		return fmt.Errorf("read closing token: %w", closeErr)
	}

	*v = *parsed

	return nil
}

// encodeCompact writes value as JSON without HTML escaping or a trailing newline.
func encodeCompact(buf *bytes.Buffer, value any) error {
	encoder := json.NewEncoder(buf)
	encoder.SetEscapeHTML(false)

	err := encoder.Encode(value)
	if err != nil {
		return fmt.Errorf("encode registry value: %w", err)
	}

	buf.Truncate(buf.Len() - 1)

	return nil
}
