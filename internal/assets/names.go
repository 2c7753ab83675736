package assets

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// ErrUnsafeName is returned for voice names that cannot be used as a filename component.
var ErrUnsafeName = errors.New("voice name cannot be used as a file name")

// invalidNameChars are rejected because they are invalid in most filesystems.
const invalidNameChars = `<>:"/\|?*`

// ValidateName checks that a trimmed voice name is usable as a filename component.
func ValidateName(name string) error {
	if name == "." || name == ".." {
		return fmt.Errorf("%w: %q", ErrUnsafeName, name)
	}

	if strings.ContainsAny(name, invalidNameChars) {
		return fmt.Errorf("%w: %q contains one of %s", ErrUnsafeName, name, invalidNameChars)
	}

	for _, r := range name {
		if unicode.IsControl(r) {
			return fmt.Errorf("%w: %q contains control characters", ErrUnsafeName, name)
		}
	}

	return nil
}
