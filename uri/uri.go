// Package uri implements the native-scheme URI grammar used to name binders:
// scheme://authority/path, where authority is either a decimal node id (for
// id-URIs) or a symbolic service name, and path is hex-encoded for id-URIs or
// a symbolic segment for service lookups.
package uri

import (
	"errors"
	"strconv"
	"strings"
)

// ErrInvalidURI is returned by Parse when s does not match the grammar.
var ErrInvalidURI = errors.New("uri: invalid binder uri")

// URI is a parsed scheme://authority/path binder name.
type URI struct {
	Scheme    string
	Authority string
	Path      string
}

// Parse splits s into its scheme, authority and path components. It does not
// attempt general RFC 3986 compliance — the grammar is deliberately narrow.
func Parse(s string) (*URI, error) {
	schemeSep := strings.Index(s, "://")
	if schemeSep < 0 {
		return nil, ErrInvalidURI
	}
	scheme := s[:schemeSep]
	rest := s[schemeSep+3:]
	if scheme == "" {
		return nil, ErrInvalidURI
	}

	authority := rest
	path := ""
	if slash := strings.IndexByte(rest, '/'); slash >= 0 {
		authority = rest[:slash]
		path = rest[slash+1:]
	}
	if authority == "" {
		return nil, ErrInvalidURI
	}
	return &URI{Scheme: scheme, Authority: authority, Path: path}, nil
}

// String renders the URI back into scheme://authority/path form.
func (u *URI) String() string {
	if u.Path == "" {
		return u.Scheme + "://" + u.Authority
	}
	return u.Scheme + "://" + u.Authority + "/" + u.Path
}

// Equal reports whether u and other name the same binder.
func (u *URI) Equal(other *URI) bool {
	if u == nil || other == nil {
		return u == other
	}
	return u.Scheme == other.Scheme && u.Authority == other.Authority && u.Path == other.Path
}

// NodeID parses the authority as a decimal node id. ok is false for symbolic
// (service-name) authorities.
func (u *URI) NodeID() (id uint32, ok bool) {
	n, err := strconv.ParseUint(u.Authority, 10, 32)
	if err != nil {
		return 0, false
	}
	return uint32(n), true
}

// LocalID parses the path as a hex-encoded 64-bit binder id. ok is false for
// symbolic (service lookup) paths.
func (u *URI) LocalID() (id uint64, ok bool) {
	n, err := strconv.ParseUint(u.Path, 16, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// NewID builds the canonical id-URI for a binder: scheme://nodeID/hex(id).
func NewID(scheme string, nodeID uint32, id uint64) *URI {
	return &URI{
		Scheme:    scheme,
		Authority: strconv.FormatUint(uint64(nodeID), 10),
		Path:      strconv.FormatUint(id, 16),
	}
}

// NewService builds a symbolic service-lookup URI: scheme://name.
func NewService(scheme, name string) *URI {
	return &URI{Scheme: scheme, Authority: name}
}

// IsService reports whether u names a service by symbolic authority rather
// than a numeric node id.
func (u *URI) IsService() bool {
	_, ok := u.NodeID()
	return !ok
}
