package fsbackend

import (
	"compress/zlib"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"github.com/goabstract/gitcore/backend"
	"github.com/goabstract/gitcore/ginternals"
	"github.com/goabstract/gitcore/ginternals/githash"
	"github.com/goabstract/gitcore/ginternals/object"
	"github.com/goabstract/gitcore/internal/errutil"
	"github.com/spf13/afero"
)

// looseObjectPath returns the path of a loose object.
// Loose objects are split into a fanout of directories named after
// the first 2 chars of their id:
// 99/8d9a9b5d8b377565341c16ec61ef4d67b11d9b
func (b *Backend) looseObjectPath(sha string) string {
	return filepath.Join(b.root, "objects", sha[:2], sha[2:])
}

// Object returns the object that has given oid.
// This method can be called concurrently
func (b *Backend) Object(ctx context.Context, oid githash.Oid) (*object.Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if cachedO, found := b.cache.Get(oid); found {
		if o, valid := cachedO.(*object.Object); valid {
			return o, nil
		}
	}

	o, err := b.looseObject(oid)
	if err != nil {
		return nil, err
	}
	b.cache.Add(oid, o)
	return o, nil
}

// looseObject reads the loose object matching the given oid.
// Loose objects are zlib-compressed envelopes:
// [type] [size][NULL][content]
func (b *Backend) looseObject(oid githash.Oid) (o *object.Object, err error) {
	strOid := oid.String()
	p := b.looseObjectPath(strOid)
	f, err := b.fs.Open(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("object %s: %w", strOid, ginternals.ErrObjectNotFound)
		}
		return nil, fmt.Errorf("could not open object %s at path %s: %w", strOid, p, err)
	}
	defer errutil.Close(f, &err)

	// Objects are zlib encoded
	zlibReader, err := zlib.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("could not decompress parts of object %s at path %s: %w", strOid, p, err)
	}
	defer errutil.Close(zlibReader, &err)

	buff, err := io.ReadAll(zlibReader)
	if err != nil {
		return nil, fmt.Errorf("could not read object %s at path %s: %w", strOid, p, err)
	}

	o, err = object.NewFromEnvelope(buff)
	if err != nil {
		return nil, fmt.Errorf("could not parse object %s at path %s: %w", strOid, p, err)
	}

	// the id is recomputed from the content we just read, a mismatch
	// means the file was tampered with
	if o.ID() != oid {
		return nil, fmt.Errorf("object %s hashes to %s: %w", strOid, o.ID().String(), ginternals.ErrObjectCorrupted)
	}
	return o, nil
}

// HasObject returns whether an object exists in the odb.
// This is a membership check, the payload doesn't get materialized.
// This method can be called concurrently
func (b *Backend) HasObject(ctx context.Context, oid githash.Oid) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	_, err := b.fs.Stat(b.looseObjectPath(oid.String()))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("could not check object %s: %w", oid.String(), err)
}

// WriteObject adds an object to the odb. Writing an object that
// already exists is a successful no-op.
// This method can be called concurrently, including with writers of
// the same content: the target file is content-addressed and written
// through a rename
func (b *Backend) WriteObject(ctx context.Context, o *object.Object) (githash.Oid, error) {
	if err := ctx.Err(); err != nil {
		return githash.NullOid, err
	}

	oid := o.ID()
	found, err := b.HasObject(ctx, oid)
	if err != nil {
		return githash.NullOid, err
	}
	if found {
		return oid, nil
	}

	data, err := o.Compress()
	if err != nil {
		return githash.NullOid, fmt.Errorf("could not compress object: %w", err)
	}

	sha := oid.String()
	p := b.looseObjectPath(sha)
	if err = b.writeFileAtomic(p, data); err != nil {
		return githash.NullOid, fmt.Errorf("could not persist object %s: %w", sha, err)
	}
	// git objects are read-only
	if err = b.fs.Chmod(p, 0o444); err != nil {
		return githash.NullOid, fmt.Errorf("could not set permissions of object %s: %w", sha, err)
	}

	b.cache.Add(oid, o)
	return oid, nil
}

// DeleteObject removes an object from the odb. Deleting an unknown id
// is a no-op
func (b *Backend) DeleteObject(ctx context.Context, oid githash.Oid) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.cache.Remove(oid)
	p := b.looseObjectPath(oid.String())
	if err := b.fs.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("could not delete object %s: %w", oid.String(), err)
	}
	return nil
}

// isLooseObjectDir checks if a directory name is anything between 00
// and ff
func isLooseObjectDir(name string) bool {
	if len(name) != 2 {
		return false
	}
	_, err := strconv.ParseUint(name, 16, 64)
	return err == nil
}

// WalkObjects runs the provided method on all the stored objects
func (b *Backend) WalkObjects(ctx context.Context, f backend.ObjectWalkFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	objectsPath := filepath.Join(b.root, "objects")
	err := afero.Walk(b.fs, objectsPath, func(path string, info fs.FileInfo, err error) error {
		if err != nil {
			//nolint:nilerr // in case of error we just skip the entry and move on
			return nil
		}
		if info.IsDir() {
			if path == objectsPath || isLooseObjectDir(info.Name()) {
				return nil
			}
			return filepath.SkipDir
		}

		// We're only interested in the files inside a loose object
		// directory
		prefix := filepath.Base(filepath.Dir(path))
		if !isLooseObjectDir(prefix) {
			return nil
		}

		sha := prefix + info.Name()
		oid, err := githash.NewOidFromStr(sha)
		if err != nil {
			// in-flight temporary files are not objects
			return nil
		}

		o, err := b.Object(ctx, oid)
		if err != nil {
			return err
		}
		return f(backend.ObjectInfo{
			ID:        oid,
			Type:      o.Type(),
			Size:      int64(o.Size()),
			CreatedAt: info.ModTime(),
		})
	})
	if err != nil {
		if err == backend.WalkStop { //nolint:errorlint // it's a fake error so no need to use errors.Is()
			return nil
		}
		return err
	}
	return nil
}
