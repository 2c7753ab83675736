// Package audio provides reference clip format checks and WAV rendering of synthesized
// waveforms.
package audio

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/book-expert/voicebox/internal/core"
)

// Rendering settings for synthesized speech.
const (
	OutputBitDepth  = 16
	OutputChannels  = 1
	pcmAudioFormat  = 1
	maxSampleRate   = 192000
	tempFilePattern = "voicebox-render-*.wav"
)

// Common errors for the audio package.
var (
	ErrInvalidWaveform = errors.New("invalid waveform")
	ErrInvalidWAV      = errors.New("invalid WAV data")
)

// Error message formats.
const (
	errFmtSampleRateRange = "%w: sample rate must be between 1 and %d Hz, got %d"
	errFmtEmptyWaveform   = "%w: no samples"
)

// Format represents supported reference clip formats.
type Format string

// Supported formats.
const (
	FormatWAV  Format = "wav"
	FormatMP3  Format = "mp3"
	FormatFLAC Format = "flac"
	FormatOGG  Format = "ogg"
	FormatM4A  Format = "m4a"
	FormatAAC  Format = "aac"
)

var supportedFormats = map[Format]struct{}{
	FormatWAV: {}, FormatMP3: {}, FormatFLAC: {}, FormatOGG: {}, FormatM4A: {}, FormatAAC: {},
}

// Info summarizes a synthesized waveform.
type Info struct {
	Format     Format        `json:"format"`
	Duration   time.Duration `json:"duration"`
	SampleRate int           `json:"sampleRate"`
	Channels   int           `json:"channels"`
	Samples    int           `json:"samples"`
}

// FormatOf returns the format implied by the file extension and whether it is supported.
// A path without an extension is treated as WAV.
func FormatOf(path string) (Format, bool) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	if ext == "" {
		return FormatWAV, true
	}

	format := Format(ext)
	_, ok := supportedFormats[format]

	return format, ok
}

// Describe returns rendering information for a waveform.
func Describe(wf core.Waveform) Info {
	var duration time.Duration
	if wf.SampleRate > 0 {
		duration = time.Duration(float64(len(wf.Samples)) / float64(wf.SampleRate) * float64(time.Second))
	}

	return Info{
		Format:     FormatWAV,
		Duration:   duration,
		SampleRate: wf.SampleRate,
		Channels:   OutputChannels,
		Samples:    len(wf.Samples),
	}
}

// Validate checks that a waveform can be rendered.
func Validate(wf core.Waveform) error {
	if wf.SampleRate <= 0 || wf.SampleRate > maxSampleRate {
		return fmt.Errorf(errFmtSampleRateRange, ErrInvalidWaveform, maxSampleRate, wf.SampleRate)
	}

	if len(wf.Samples) == 0 {
		return fmt.Errorf(errFmtEmptyWaveform, ErrInvalidWaveform)
	}

	return nil
}

// EncodeWAV writes wf as 16-bit mono PCM WAV. Samples are expected in [-1, 1] and are
// clipped outside that range.
func EncodeWAV(w io.WriteSeeker, wf core.Waveform) error {
	validateErr := Validate(wf)
	if validateErr != nil {
		return validateErr
	}

	encoder := wav.NewEncoder(w, wf.SampleRate, OutputBitDepth, OutputChannels, pcmAudioFormat)

	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: OutputChannels, SampleRate: wf.SampleRate},
		Data:           toPCM16(wf.Samples),
		SourceBitDepth: OutputBitDepth,
	}

	writeErr := encoder.Write(buf)
	if writeErr != nil {
		return fmt.Errorf("failed to write WAV samples: %w", writeErr)
	}

	closeErr := encoder.Close()
	if closeErr != nil {
		return fmt.Errorf("failed to finalize WAV header: %w", closeErr)
	}

	return nil
}

// RenderWAV returns wf as an in-memory WAV file. The encoder needs a seekable writer,
// so the file is assembled in a temp file first.
func RenderWAV(wf core.Waveform) ([]byte, error) {
	tempFile, err := os.CreateTemp("", tempFilePattern)
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file for WAV rendering: %w", err)
	}

	defer func() {
		_ = tempFile.Close()
		_ = os.Remove(tempFile.Name())
	}()

	encodeErr := EncodeWAV(tempFile, wf)
	if encodeErr != nil {
		return nil, encodeErr
	}

	_, seekErr := tempFile.Seek(0, io.SeekStart)
	if seekErr != nil {
		return nil, fmt.Errorf("failed to rewind rendered WAV: %w", seekErr)
	}

	data, readErr := io.ReadAll(tempFile)
	if readErr != nil {
		return nil, fmt.Errorf("failed to read rendered WAV: %w", readErr)
	}

	return data, nil
}

// DecodeWAV reads a PCM WAV stream into a mono waveform normalized to [-1, 1].
// Multi-channel input is downmixed by averaging.
func DecodeWAV(r io.ReadSeeker) (core.Waveform, error) {
	decoder := wav.NewDecoder(r)
	if !decoder.IsValidFile() {
		return core.Waveform{}, ErrInvalidWAV
	}

	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return core.Waveform{}, fmt.Errorf("%w: %w", ErrInvalidWAV, err)
	}

	channels := int(decoder.NumChans)
	if channels <= 0 {
		return core.Waveform{}, fmt.Errorf("%w: no channels", ErrInvalidWAV)
	}

	bitDepth := int(decoder.BitDepth)
	if bitDepth <= 0 {
		return core.Waveform{}, fmt.Errorf("%w: no bit depth", ErrInvalidWAV)
	}

	scale := math.Pow(2, float64(bitDepth-1))
	frames := len(buf.Data) / channels
	samples := make([]float32, frames)

	for frame := range frames {
		var sum float64
		for channel := range channels {
			sum += float64(buf.Data[frame*channels+channel])
		}

		samples[frame] = float32(sum / float64(channels) / scale)
	}

	return core.Waveform{SampleRate: int(decoder.SampleRate), Samples: samples}, nil
}

func toPCM16(samples []float32) []int {
	const maxAmplitude = math.MaxInt16

	data := make([]int, len(samples))
	for i, sample := range samples {
		clipped := math.Max(-1, math.Min(1, float64(sample)))
		data[i] = int(math.Round(clipped * maxAmplitude))
	}

	return data
}
