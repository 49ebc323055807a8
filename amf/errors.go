package amf

import (
	"fmt"

	"github.com/pkg/errors"
)

// Protocol violations. A stream that produces one of these cannot be decoded further.
var (
	ErrInt29Range      = errors.New("amf: integer out of 29-bit range")
	ErrBadReference    = errors.New("amf: reference to undefined table entry")
	ErrUnknownMarker   = errors.New("amf: unknown type marker")
	ErrUnknownExternal = errors.New("amf: externalizable class not registered")
)

// ErrUnsupportedValue is returned when asked to encode something that is not a Value.
var ErrUnsupportedValue = errors.New("amf: unsupported value")

// FieldError reports a wire value that does not fit the member it was assigned to.
// It is local to the value being decoded and does not poison the stream.
type FieldError struct {
	Class string
	Field string
	Want  string
	Got   Value
}

func (e *FieldError) Error() string {
	class := e.Class
	if class == "" {
		class = "<anonymous>"
	}
	return fmt.Sprintf("amf: %s.%s: cannot assign %T to %s", class, e.Field, e.Got, e.Want)
}

// IsProtocolError reports whether err is, or wraps, one of the codec's protocol violations.
func IsProtocolError(err error) bool {
	for _, target := range []error{ErrInt29Range, ErrBadReference, ErrUnknownMarker, ErrUnknownExternal} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
