package proto

import (
	"strconv"

	"github.com/indigo-web/utils/uf"
)

// Version is an HTTP protocol version. The zero value represents an absent version.
type Version struct {
	Major, Minor uint8
}

var (
	HTTP10 = Version{Major: 1, Minor: 0}
	HTTP11 = Version{Major: 1, Minor: 1}
)

// IsZero reports whether the version is absent.
func (v Version) IsZero() bool {
	return v == Version{}
}

// AtLeast reports whether the version is equal to or newer than the passed one.
func (v Version) AtLeast(other Version) bool {
	if v.Major != other.Major {
		return v.Major > other.Major
	}

	return v.Minor >= other.Minor
}

// String returns the version as it appears on the wire, e.g. HTTP/1.1
func (v Version) String() string {
	buff := make([]byte, 0, len(httpScheme)+3)
	buff = append(buff, httpScheme...)
	buff = strconv.AppendUint(buff, uint64(v.Major), 10)
	buff = append(buff, '.')
	buff = strconv.AppendUint(buff, uint64(v.Minor), 10)

	return uf.B2S(buff)
}

const (
	protoTokenLength   = len("HTTP/x.x")
	majorVersionOffset = len("HTTP/x") - 1
	minorVersionOffset = len("HTTP/x.x") - 1
	httpScheme         = "HTTP/"
)

// FromBytes parses a protocol token, e.g. HTTP/1.1. The zero version is returned if the
// token is malformed.
func FromBytes(raw []byte) Version {
	if len(raw) != protoTokenLength || uf.B2S(raw[:majorVersionOffset]) != httpScheme ||
		raw[minorVersionOffset-1] != '.' {
		return Version{}
	}

	return Parse(raw[majorVersionOffset]-'0', raw[minorVersionOffset]-'0')
}

// Parse returns a version from its major and minor digits. Only single-digit versions
// are representable on the wire, so everything else is considered malformed.
func Parse(major, minor uint8) Version {
	if major > 9 || minor > 9 {
		return Version{}
	}

	return Version{Major: major, Minor: minor}
}
