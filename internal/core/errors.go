package core

import (
	"errors"
	"strings"
)

// Error kinds. Components wrap these with fmt.Errorf("%w: ...") so callers can
// classify any failure with errors.Is.
var (
	// ErrValidation marks missing or malformed user input.
	ErrValidation = errors.New("validation error")
	// ErrNotFound marks a voice name that does not exist.
	ErrNotFound = errors.New("not found")
	// ErrIO marks a filesystem failure storing or removing an asset.
	ErrIO = errors.New("io error")
	// ErrCorruptRegistry marks a registry document that exists but cannot be parsed.
	ErrCorruptRegistry = errors.New("corrupt voice registry")
	// ErrTranscription marks a failure of the transcription capability.
	ErrTranscription = errors.New("transcription failed")
	// ErrSynthesis marks a failure of reference preprocessing or synthesis.
	ErrSynthesis = errors.New("synthesis failed")
)

// kindPrefixes lists the error kinds whose text is stripped from user-facing messages.
var kindPrefixes = []error{ErrValidation, ErrNotFound}

// StatusMessage renders err as a human-readable status line for display.
// Validation and not-found errors are user-correctable, so only the detail is shown.
func StatusMessage(err error) string {
	if err == nil {
		return ""
	}

	message := err.Error()

	for _, kind := range kindPrefixes {
		if errors.Is(err, kind) {
			message = strings.TrimPrefix(message, kind.Error()+": ")

			break
		}
	}

	return "Error: " + message
}

// IsUserError reports whether err is correctable by the user rather than a system failure.
func IsUserError(err error) bool {
	return errors.Is(err, ErrValidation) || errors.Is(err, ErrNotFound)
}
