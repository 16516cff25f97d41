package headers

import (
	"slices"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/indigo-web/utils/strcomp"
	"github.com/samber/lo"
)

// Headers maps a header name to all its values in order of appearance. A nil Headers is
// the explicit "none" value: when passed as trailers, it means no trailer section at all,
// whereas an empty non-nil Headers is an empty trailer section.
//
// Lookups are case-insensitive, however keys are stored exactly as they were added.
type Headers map[string][]string

// New returns an empty non-nil Headers.
func New() Headers {
	return make(Headers)
}

// FromPairs builds Headers from key-value pairs. Odd trailing key is ignored.
func FromPairs(pairs ...string) Headers {
	h := make(Headers, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		h.Add(pairs[i], pairs[i+1])
	}

	return h
}

// Add appends the value to the key. If the key is already presented in another case,
// the value is appended to it instead of creating a new entry.
func (h Headers) Add(key, value string) Headers {
	if existing, found := h.lookup(key); found {
		h[existing] = append(h[existing], value)
		return h
	}

	h[key] = []string{value}
	return h
}

// Set overrides all the values of the key.
func (h Headers) Set(key string, values ...string) Headers {
	if existing, found := h.lookup(key); found {
		delete(h, existing)
	}

	h[key] = values
	return h
}

// Value returns the first value of the key. Empty string is returned if no value is found.
func (h Headers) Value(key string) string {
	return h.ValueOr(key, "")
}

// ValueOr returns either the first value of the key or the passed default.
func (h Headers) ValueOr(key, or string) string {
	values := h.Values(key)
	if len(values) == 0 {
		return or
	}

	return values[0]
}

// Values returns all values of the key. Returns nil if the key doesn't exist.
func (h Headers) Values(key string) []string {
	existing, found := h.lookup(key)
	if !found {
		return nil
	}

	return h[existing]
}

// Has reports whether the key is presented.
func (h Headers) Has(key string) bool {
	_, found := h.lookup(key)
	return found
}

// Keys returns all keys in lexicographical order. Used to produce deterministic output.
func (h Headers) Keys() []string {
	keys := lo.Keys(h)
	slices.Sort(keys)

	return keys
}

// Clone returns a deep copy. Clone of nil Headers is nil.
func (h Headers) Clone() Headers {
	if h == nil {
		return nil
	}

	clone := make(Headers, len(h))
	for key, values := range h {
		clone[key] = slices.Clone(values)
	}

	return clone
}

var (
	ErrNilHeaders = errors.New("headers are absent")
	ErrEmptyKey   = errors.New("header key is absent")
	ErrNilValues  = errors.New("header values are absent")
	ErrBadChars   = errors.New("header contains CR or LF")
)

// Validate checks that neither the mapping nor any key or values list inside it are absent,
// and that nothing contains line breaks, which would corrupt the header block.
func (h Headers) Validate() error {
	if h == nil {
		return ErrNilHeaders
	}

	for key, values := range h {
		switch {
		case len(key) == 0:
			return ErrEmptyKey
		case values == nil:
			return errors.Wrapf(ErrNilValues, "key %q", key)
		case hasLineBreak(key):
			return errors.Wrapf(ErrBadChars, "key %q", key)
		}

		if lo.SomeBy(values, hasLineBreak) {
			return errors.Wrapf(ErrBadChars, "value of %q", key)
		}
	}

	return nil
}

func (h Headers) lookup(key string) (string, bool) {
	if _, found := h[key]; found {
		return key, true
	}

	for existing := range h {
		if strcomp.EqualFold(existing, key) {
			return existing, true
		}
	}

	return "", false
}

func hasLineBreak(str string) bool {
	return strings.ContainsAny(str, "\r\n")
}
