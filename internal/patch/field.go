package patch

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidFieldName = errors.New("patch: invalid field name")
	ErrEmptyPath        = errors.New("patch: empty path")
	ErrPathConflict     = errors.New("patch: path crosses a non-object value")
)

// MaxFieldLen bounds a single path segment.
const MaxFieldLen = 128

// reservedFields are names that address an object's behaviour rather than
// its data on some peers (prototype chain, serialization hooks).
var reservedFields = map[string]struct{}{
	"__proto__":        {},
	"constructor":      {},
	"prototype":        {},
	"toJSON":           {},
	"toString":         {},
	"valueOf":          {},
	"hasOwnProperty":   {},
	"__defineGetter__": {},
	"__defineSetter__": {},
	"__lookupGetter__": {},
	"__lookupSetter__": {},
}

// ValidateField rejects empty, oversized, unsafe or reserved field names.
// Patches come off the network, so every segment passes through here before
// it is used as a key.
func ValidateField(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty", ErrInvalidFieldName)
	}
	if len(name) > MaxFieldLen {
		return fmt.Errorf("%w: %d bytes exceeds %d", ErrInvalidFieldName, len(name), MaxFieldLen)
	}
	for i := 0; i < len(name); i++ {
		if !safeByte(name[i]) {
			return fmt.Errorf("%w: %q has unsafe byte at %d", ErrInvalidFieldName, name, i)
		}
	}
	if _, bad := reservedFields[name]; bad {
		return fmt.Errorf("%w: %q is reserved", ErrInvalidFieldName, name)
	}
	return nil
}

func safeByte(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	case c == '_' || c == '-':
		return true
	}
	return false
}

// ValidatePath validates every segment of a non-empty path.
func ValidatePath(path []string) error {
	if len(path) == 0 {
		return ErrEmptyPath
	}
	for _, seg := range path {
		if err := ValidateField(seg); err != nil {
			return err
		}
	}
	return nil
}
