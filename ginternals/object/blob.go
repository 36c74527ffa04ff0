package object

import (
	"fmt"

	"github.com/goabstract/gitcore/ginternals/githash"
)

// Blob represents a blob object
type Blob struct {
	rawObject *Object
}

// NewBlob returns a new Blob with the given content
func NewBlob(content []byte) *Blob {
	return &Blob{
		rawObject: New(TypeBlob, content),
	}
}

// NewBlobFromObject returns a new Blob from a git Object
func NewBlobFromObject(o *Object) (*Blob, error) {
	if o.Type() != TypeBlob {
		return nil, fmt.Errorf("type %s is not a blob: %w", o.typ, ErrObjectInvalid)
	}
	return &Blob{
		rawObject: o,
	}, nil
}

// ID returns the blob's ID
func (b *Blob) ID() githash.Oid {
	return b.rawObject.ID()
}

// Bytes returns the blob's contents
func (b *Blob) Bytes() []byte {
	return b.rawObject.content
}

// BytesCopy returns a copy of blob's contents
func (b *Blob) BytesCopy() []byte {
	out := make([]byte, len(b.rawObject.content))
	copy(out, b.rawObject.content)
	return out
}

// Size returns the size of the blob
func (b *Blob) Size() int {
	return len(b.rawObject.content)
}

// ToObject returns the Blob's underlying Object
func (b *Blob) ToObject() *Object {
	return b.rawObject
}
