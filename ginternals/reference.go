package ginternals

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/goabstract/gitcore/ginternals/githash"
)

// Common ref names
const (
	// Head is a reference to the current branch, or to a commit if
	// we're detached
	Head = "HEAD"
	// Master corresponds to the default branch name if none was
	// specified
	Master = "master"
)

// DefaultMaxRefDepth is the default bound on the number of symbolic
// links followed during a resolution
const DefaultMaxRefDepth = 10

// ReferenceType represents the type of a reference
type ReferenceType int8

const (
	// OidReference represents a reference that targets an Oid
	OidReference ReferenceType = 1
	// SymbolicReference represents a reference that targets another
	// reference
	SymbolicReference ReferenceType = 2
)

// Reference represents a git reference
// https://git-scm.com/book/en/v2/Git-Internals-Git-References
type Reference struct {
	name   string
	target string
	id     githash.Oid
	typ    ReferenceType
}

// NewReference returns a new Reference object that targets
// an object
func NewReference(name string, target githash.Oid) *Reference {
	return &Reference{
		typ:  OidReference,
		name: name,
		id:   target,
	}
}

// NewSymbolicReference returns a new Reference object that targets
// another reference.
// Example HEAD targeting refs/heads/master
func NewSymbolicReference(name, target string) *Reference {
	return &Reference{
		typ:    SymbolicReference,
		name:   name,
		target: target,
	}
}

// Name returns the full name of the reference:
// example: refs/heads/master
func (ref *Reference) Name() string {
	return ref.name
}

// Target returns the ID targeted by a reference
func (ref *Reference) Target() githash.Oid {
	return ref.id
}

// Type returns the type of a reference
func (ref *Reference) Type() ReferenceType {
	return ref.typ
}

// IsSymbolic returns whether the reference targets another reference
func (ref *Reference) IsSymbolic() bool {
	return ref.typ == SymbolicReference
}

// SymbolicTarget returns the symbolic target of a reference
func (ref *Reference) SymbolicTarget() string {
	return ref.target
}

// ContentOf returns the on-disk content of a reference:
// "<hex-id>\n" for a direct ref, "ref: <target-name>\n" for a
// symbolic ref
func ContentOf(ref *Reference) ([]byte, error) {
	switch ref.Type() {
	case SymbolicReference:
		return []byte(fmt.Sprintf("ref: %s\n", ref.SymbolicTarget())), nil
	case OidReference:
		return []byte(fmt.Sprintf("%s\n", ref.Target().String())), nil
	default:
		return nil, fmt.Errorf("reference type %d: %w", ref.Type(), ErrUnknownRefType)
	}
}

// NewReferenceFromContent parses the on-disk content of a reference
func NewReferenceFromContent(name string, data []byte) (*Reference, error) {
	data = bytes.Trim(data, " \n")

	if target, ok := cutPrefix(data, "ref: "); ok {
		return NewSymbolicReference(name, string(target)), nil
	}

	oid, err := githash.NewOidFromChars(data)
	if err != nil {
		return nil, fmt.Errorf(`content of ref "%s": %w`, name, ErrRefInvalid)
	}
	return NewReference(name, oid), nil
}

// cutPrefix strips the given prefix from data, reporting whether it
// was present
func cutPrefix(data []byte, prefix string) ([]byte, bool) {
	if !bytes.HasPrefix(data, []byte(prefix)) {
		return data, false
	}
	return data[len(prefix):], true
}

// RefContent represents a method that returns the raw content of a
// reference. This is used so we can resolve references here, without
// depending on a specific backend or having circular dependencies
type RefContent func(name string) ([]byte, error)

// Resolution is the result of resolving a (possibly symbolic)
// reference down to an object id
type Resolution struct {
	// ID is the id targeted at the end of the chain
	ID githash.Oid
	// Chain contains the name of every reference traversed, in
	// order, starting with the requested one
	Chain []string
}

// ResolveReference follows symbolic references until it reaches a
// direct reference, and returns the terminal id alongside the list of
// traversed references.
// A maxDepth of 0 or less falls back to DefaultMaxRefDepth.
// Fails with ErrRefCircular if a reference is visited twice, and with
// ErrRefDepthExceeded if the chain is longer than maxDepth.
func ResolveReference(name string, finder RefContent, maxDepth int) (Resolution, error) {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxRefDepth
	}

	res := Resolution{}
	visited := map[string]struct{}{}
	for {
		// we need to protect ourselves against circular references
		// Ex: refs/heads/master is a ref to refs/heads/a which is a
		// ref to refs/heads/master
		if _, ok := visited[name]; ok {
			return res, fmt.Errorf(`ref "%s": %w`, name, ErrRefCircular)
		}
		visited[name] = struct{}{}

		if len(res.Chain) == maxDepth {
			return res, fmt.Errorf(`ref "%s": %w`, name, ErrRefDepthExceeded)
		}

		if !IsRefNameValid(name) {
			return res, fmt.Errorf(`ref "%s": %w`, name, ErrRefNameInvalid)
		}
		res.Chain = append(res.Chain, name)

		data, err := finder(name)
		if err != nil {
			return res, err
		}
		ref, err := NewReferenceFromContent(name, data)
		if err != nil {
			return res, err
		}

		if !ref.IsSymbolic() {
			res.ID = ref.Target()
			return res, nil
		}
		name = ref.SymbolicTarget()
	}
}

// IsRefNameValid returns whether the name of a reference is valid.
// The rules follow git-check-ref-format, with HEAD being the only
// always-valid special name
func IsRefNameValid(name string) bool {
	if name == Head {
		return true
	}

	// the reference name cannot:
	// - be empty
	// - be the single character "@"
	// - end with a "/"
	if name == "" || name == "@" || name[len(name)-1] == '/' {
		return false
	}

	// the reference name cannot contain:
	// - an ASCII control char (below 32) or a DEL (ASCII 127)
	// - a space
	// - any of ~ ^ : ? * [ \
	// - the sequences ".." and "@{"
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c < 32 || c == 127 {
			return false
		}
		switch c {
		case ' ', '~', '^', ':', '?', '*', '[', '\\':
			return false
		}
		if i < len(name)-1 {
			substr := name[i : i+2]
			if substr == "@{" || substr == ".." {
				return false
			}
		}
	}

	segments := strings.Split(name, "/")
	for _, s := range segments {
		// no segment can:
		// - be empty
		// - start with a dot
		// - end with a dot
		// - end with ".lock"
		if s == "" || s[0] == '.' || s[len(s)-1] == '.' || strings.HasSuffix(s, ".lock") {
			return false
		}
	}

	return true
}
