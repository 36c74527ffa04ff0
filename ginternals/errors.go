package ginternals

import "errors"

var (
	// ErrObjectNotFound is an error corresponding to a git object not
	// being found
	ErrObjectNotFound = errors.New("object not found")

	// ErrObjectCorrupted is an error thrown when the bytes retrieved
	// for an object don't hash back to its key
	ErrObjectCorrupted = errors.New("object corrupted")

	// ErrRefNotFound is an error thrown when trying to act on a
	// reference that doesn't exists
	ErrRefNotFound = errors.New("reference not found")

	// ErrRefExists is an error thrown when trying to act on a
	// reference that should not exist, but does
	ErrRefExists = errors.New("reference already exists")

	// ErrRefConflict is an error thrown when a compare-and-swap update
	// finds a reference that doesn't have the expected target
	ErrRefConflict = errors.New("reference changed concurrently")

	// ErrRefNameInvalid is an error thrown when the name of a reference
	// is not valid
	ErrRefNameInvalid = errors.New("reference name is not valid")

	// ErrRefInvalid is an error thrown when a reference is not valid
	ErrRefInvalid = errors.New("reference is not valid")

	// ErrRefCircular is an error thrown when a symbolic reference
	// chain loops back on itself
	ErrRefCircular = errors.New("circular symbolic reference")

	// ErrRefDepthExceeded is an error thrown when a symbolic reference
	// chain is deeper than the resolution limit
	ErrRefDepthExceeded = errors.New("symbolic reference chain too deep")

	// ErrRefLocked is an error thrown when a reference's lock cannot
	// be acquired before the timeout
	ErrRefLocked = errors.New("reference is locked")

	// ErrPackedRefInvalid is an error thrown when the packed-refs
	// file cannot be parsed properly
	ErrPackedRefInvalid = errors.New("packed-refs file is invalid")

	// ErrReflogInvalid is an error thrown when a reflog entry cannot
	// be parsed properly
	ErrReflogInvalid = errors.New("reflog entry is invalid")

	// ErrUnknownRefType is an error thrown when the type of a reference
	// is unknown
	ErrUnknownRefType = errors.New("unknown reference type")
)
