// Package object contains methods and objects to work with git objects
package object

import (
	"bytes"
	"compress/zlib"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/goabstract/gitcore/ginternals/githash"
	"github.com/goabstract/gitcore/internal/readutil"
)

var (
	// ErrObjectUnknown represents an error thrown when encoutering an
	// unknown object
	ErrObjectUnknown = errors.New("invalid object type")

	// ErrObjectInvalid represents an error thrown when an object contains
	// unexpected data or when the wrong object is provided to a method.
	ErrObjectInvalid = errors.New("invalid object")

	// ErrHeaderMalformed is an error thrown when an object's envelope
	// header cannot be parsed
	ErrHeaderMalformed = errors.New("malformed object header")

	// ErrPayloadTruncated is an error thrown when an object's payload
	// doesn't match the size announced in its header
	ErrPayloadTruncated = errors.New("truncated object payload")

	// ErrTreeInvalid represents an error thrown when parsing an invalid
	// tree object
	ErrTreeInvalid = errors.New("invalid tree")

	// ErrTreeEntryInvalid is an error thrown when a tree entry has an
	// invalid mode or name
	ErrTreeEntryInvalid = errors.New("invalid tree entry")

	// ErrCommitInvalid represents an error thrown when parsing an invalid
	// commit object
	ErrCommitInvalid = errors.New("invalid commit")

	// ErrTagInvalid represents an error thrown when parsing an invalid
	// tag object
	ErrTagInvalid = errors.New("invalid tag")
)

// Type represents the type of an object
type Type int8

// List of all the possible object types
const (
	TypeCommit Type = 1
	TypeTree   Type = 2
	TypeBlob   Type = 3
	TypeTag    Type = 4
)

func (t Type) String() string {
	switch t {
	case TypeCommit:
		return "commit"
	case TypeTree:
		return "tree"
	case TypeBlob:
		return "blob"
	case TypeTag:
		return "tag"
	default:
		panic(fmt.Sprintf("unknown object type %d", t))
	}
}

// IsValid checks if the object type is an existing type
func (t Type) IsValid() bool {
	switch t {
	case TypeCommit,
		TypeTree,
		TypeBlob,
		TypeTag:
		return true
	default:
		return false
	}
}

// NewTypeFromString returns a Type from its string
// representation
func NewTypeFromString(t string) (Type, error) {
	switch t {
	case "commit":
		return TypeCommit, nil
	case "tree":
		return TypeTree, nil
	case "blob":
		return TypeBlob, nil
	case "tag":
		return TypeTag, nil
	default:
		return 0, ErrObjectUnknown
	}
}

// Object represents a git object. An object can be of multiple types
// but they all share similarities (same storage system, same envelope,
// etc.).
// https://git-scm.com/book/en/v2/Git-Internals-Git-Objects
type Object struct {
	id      githash.Oid
	typ     Type
	content []byte

	idProcessing sync.Once
}

// New creates a new git object of the given type
func New(typ Type, content []byte) *Object {
	o := &Object{
		typ:     typ,
		content: content,
	}
	o.ID()
	return o
}

// NewWithID creates a new git object of the given type with the given id.
// The id is trusted, not recomputed.
func NewWithID(id githash.Oid, typ Type, content []byte) *Object {
	o := &Object{
		id:      id,
		typ:     typ,
		content: content,
	}
	o.idProcessing.Do(func() {})
	return o
}

// NewFromEnvelope parses an object from its wire representation:
// the type in ascii, followed by a space, followed by the payload size
// in ascii, followed by a NULL char, followed by the payload
func NewFromEnvelope(data []byte) (*Object, error) {
	typ := readutil.ReadTo(data, ' ')
	if typ == nil {
		return nil, fmt.Errorf("could not find object type: %w", ErrHeaderMalformed)
	}
	oType, err := NewTypeFromString(string(typ))
	if err != nil {
		return nil, fmt.Errorf("unsupported type %q: %w", string(typ), err)
	}
	offset := len(typ) + 1 // +1 for the space

	size := readutil.ReadTo(data[offset:], 0)
	if size == nil {
		return nil, fmt.Errorf("could not find object size: %w", ErrHeaderMalformed)
	}
	oSize, err := strconv.Atoi(string(size))
	if err != nil || oSize < 0 {
		return nil, fmt.Errorf("invalid object size %q: %w", string(size), ErrHeaderMalformed)
	}
	offset += len(size) + 1 // +1 for the NULL char

	content := data[offset:]
	if len(content) != oSize {
		return nil, fmt.Errorf("object marked as size %d, but has %d: %w", oSize, len(content), ErrPayloadTruncated)
	}
	return New(oType, content), nil
}

// ID returns the ID of the object
func (o *Object) ID() githash.Oid {
	o.idProcessing.Do(func() {
		o.id = githash.Sum(o.Envelope())
	})
	return o.id
}

// Size returns the size of the object
func (o *Object) Size() int {
	return len(o.content)
}

// Type returns the Type for this object
func (o *Object) Type() Type {
	return o.typ
}

// Bytes returns the object's contents
func (o *Object) Bytes() []byte {
	return o.content
}

// Envelope returns the object's wire representation:
// [type] [size][NULL][content]
func (o *Object) Envelope() []byte {
	// Quick reminder that the Write* methods on bytes.Buffer never fails,
	// the error returned is always nil
	w := new(bytes.Buffer)

	// Write the type
	w.WriteString(o.Type().String())
	// add the space
	w.WriteByte(' ')
	// write the size
	w.WriteString(strconv.Itoa(o.Size()))
	// Write the NULL char
	w.WriteByte(0)
	// Write the content
	w.Write(o.Bytes())

	return w.Bytes()
}

// Compress returns the object's envelope, zlib compressed
func (o *Object) Compress() (data []byte, err error) {
	compressedContent := new(bytes.Buffer)
	zw := zlib.NewWriter(compressedContent)

	if _, err = zw.Write(o.Envelope()); err != nil {
		return nil, fmt.Errorf("could not zlib the object: %w", err)
	}
	// the buffer is only complete once the writer has been closed
	if err = zw.Close(); err != nil {
		return nil, fmt.Errorf("could not finish compressing the object: %w", err)
	}
	return compressedContent.Bytes(), nil
}

// AsBlob parses the object as Blob
func (o *Object) AsBlob() (*Blob, error) {
	return NewBlobFromObject(o)
}

// AsTree parses the object as Tree
func (o *Object) AsTree() (*Tree, error) {
	return NewTreeFromObject(o)
}

// AsCommit parses the object as Commit
func (o *Object) AsCommit() (*Commit, error) {
	return NewCommitFromObject(o)
}

// AsTag parses the object as Tag
func (o *Object) AsTag() (*Tag, error) {
	return NewTagFromObject(o)
}
