package fsbackend

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/goabstract/gitcore/backend"
	"github.com/goabstract/gitcore/ginternals"
	"github.com/goabstract/gitcore/internal/errutil"
	"github.com/spf13/afero"
)

// Reference returns a stored reference from its name, without
// resolving symbolic targets.
// ginternals.ErrRefNotFound is returned if the reference doesn't exists.
// This method can be called concurrently
func (b *Backend) Reference(ctx context.Context, name string) (*ginternals.Reference, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := afero.ReadFile(b.fs, b.systemPath(name))
	if err == nil {
		return ginternals.NewReferenceFromContent(name, data)
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("could not read reference content: %w", err)
	}

	// if the reference can't be found on disk, it might be in the
	// packed-refs file
	packedRefs, err := b.parsePackedRefs()
	if err != nil {
		return nil, fmt.Errorf("couldn't load packed-refs: %w", err)
	}
	sha, ok := packedRefs[name]
	if !ok {
		return nil, fmt.Errorf(`ref "%s": %w`, name, ginternals.ErrRefNotFound)
	}
	return ginternals.NewReferenceFromContent(name, []byte(sha))
}

// parsePackedRefs parses the packed-refs file and returns a map
// refName => hex id
// https://git-scm.com/docs/git-pack-refs
func (b *Backend) parsePackedRefs() (refs map[string]string, err error) {
	refs = map[string]string{}
	p := filepath.Join(b.root, ginternals.PackedRefsFile)
	f, err := b.fs.Open(p)
	if err != nil {
		// if the file doesn't exist we just return an empty map
		if errors.Is(err, os.ErrNotExist) {
			return refs, nil
		}
		return nil, fmt.Errorf("could not open %s: %w", p, err)
	}
	defer errutil.Close(f, &err)

	sc := bufio.NewScanner(f)
	for i := 1; sc.Scan(); i++ {
		line := sc.Text()
		// we skip empty lines, comments, and annotated tag targets
		if line == "" || line[0] == '#' || line[0] == '^' {
			continue
		}
		// We expect data to have the format:
		// "oid ref-name"
		parts := strings.SplitN(line, " ", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("unexpected data line %d: %w", i, ginternals.ErrPackedRefInvalid)
		}
		refs[parts[1]] = parts[0]
	}
	if sc.Err() != nil {
		return nil, fmt.Errorf("could not parse %s: %w", p, sc.Err())
	}
	return refs, nil
}

// WriteReference writes the given reference on disk. If the
// reference already exists it will be overwritten
func (b *Backend) WriteReference(ctx context.Context, ref *ginternals.Reference) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if !ginternals.IsRefNameValid(ref.Name()) {
		return fmt.Errorf(`ref "%s": %w`, ref.Name(), ginternals.ErrRefNameInvalid)
	}
	data, err := ginternals.ContentOf(ref)
	if err != nil {
		return err
	}
	if err := b.writeFileAtomic(b.systemPath(ref.Name()), data); err != nil {
		return fmt.Errorf("could not persist reference to disk: %w", err)
	}
	return nil
}

// WriteReferenceSafe writes the given reference on disk.
// ginternals.ErrRefExists is returned if the reference already exists
func (b *Backend) WriteReferenceSafe(ctx context.Context, ref *ginternals.Reference) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if !ginternals.IsRefNameValid(ref.Name()) {
		return fmt.Errorf(`ref "%s": %w`, ref.Name(), ginternals.ErrRefNameInvalid)
	}

	// First we check if the reference is on disk
	_, err := b.fs.Stat(b.systemPath(ref.Name()))
	if !errors.Is(err, os.ErrNotExist) {
		if err != nil {
			return fmt.Errorf("could not check if reference exists on disk: %w", err)
		}
		return fmt.Errorf(`ref "%s": %w`, ref.Name(), ginternals.ErrRefExists)
	}

	// Now we check if the reference is in the packed-refs file
	refs, err := b.parsePackedRefs()
	if err != nil {
		return fmt.Errorf("could not check %s: %w", ginternals.PackedRefsFile, err)
	}
	if _, ok := refs[ref.Name()]; ok {
		return fmt.Errorf(`ref "%s": %w`, ref.Name(), ginternals.ErrRefExists)
	}

	return b.WriteReference(ctx, ref)
}

// DeleteReference removes the given reference from the disk and from
// the packed-refs file
func (b *Backend) DeleteReference(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	found := false
	err := b.fs.Remove(b.systemPath(name))
	switch {
	case err == nil:
		found = true
	case !errors.Is(err, os.ErrNotExist):
		return fmt.Errorf(`could not delete ref "%s": %w`, name, err)
	}

	inPacked, err := b.removeFromPackedRefs(name)
	if err != nil {
		return err
	}
	if !found && !inPacked {
		return fmt.Errorf(`ref "%s": %w`, name, ginternals.ErrRefNotFound)
	}
	return nil
}

// removeFromPackedRefs rewrites the packed-refs file without the
// given reference, reporting whether the reference was packed
func (b *Backend) removeFromPackedRefs(name string) (bool, error) {
	b.packMu.Lock()
	defer b.packMu.Unlock()
	if fl := b.packedRefsFlock(); fl != nil {
		if err := fl.Lock(); err != nil {
			return false, fmt.Errorf("could not lock %s: %w", ginternals.PackedRefsFile, err)
		}
		defer fl.Unlock() //nolint:errcheck // nothing to do about it
	}

	refs, err := b.parsePackedRefs()
	if err != nil {
		return false, err
	}
	if _, ok := refs[name]; !ok {
		return false, nil
	}
	delete(refs, name)
	if err := b.writePackedRefs(refs); err != nil {
		return false, err
	}
	return true, nil
}

// writePackedRefs atomically replaces the packed-refs file with the
// given set of references, sorted by name
func (b *Backend) writePackedRefs(refs map[string]string) error {
	names := make([]string, 0, len(refs))
	for name := range refs {
		names = append(names, name)
	}
	sort.Strings(names)

	buf := new(bytes.Buffer)
	buf.WriteString(ginternals.PackedRefsHeader)
	buf.WriteByte('\n')
	for _, name := range names {
		buf.WriteString(refs[name])
		buf.WriteByte(' ')
		buf.WriteString(name)
		buf.WriteByte('\n')
	}
	return b.writeFileAtomic(filepath.Join(b.root, ginternals.PackedRefsFile), buf.Bytes())
}

// looseReferences returns all the references stored as files,
// including HEAD
func (b *Backend) looseReferences() (map[string]*ginternals.Reference, error) {
	out := map[string]*ginternals.Reference{}

	refsPath := filepath.Join(b.root, "refs")
	err := afero.Walk(b.fs, refsPath, func(path string, info fs.FileInfo, err error) error {
		// if refsPath doesn't exist this will return nil and skip the
		// error, which is useful in case the repo has no references yet
		if path == refsPath {
			return nil
		}
		if err != nil {
			return fmt.Errorf("could not walk %s: %w", path, err)
		}
		if info.IsDir() {
			return nil
		}
		// in-flight lock and temporary files are not references
		if filepath.Ext(info.Name()) == ".lock" || strings.HasPrefix(info.Name(), "tmp-") {
			return nil
		}
		data, err := afero.ReadFile(b.fs, path)
		if err != nil {
			return fmt.Errorf("could not read reference at %s: %w", path, err)
		}
		relpath, err := filepath.Rel(b.root, path)
		if err != nil {
			return err //nolint:wrapcheck // the error message is already pretty descriptive
		}
		// the name of the ref is its UNIX path
		name := filepath.ToSlash(relpath)
		ref, err := ginternals.NewReferenceFromContent(name, data)
		if err != nil {
			return err
		}
		out[name] = ref
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("could not browse the refs directory: %w", err)
	}

	// Now we look for HEAD
	data, err := afero.ReadFile(b.fs, filepath.Join(b.root, ginternals.Head))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return out, nil
		}
		return nil, fmt.Errorf("could not read HEAD: %w", err)
	}
	head, err := ginternals.NewReferenceFromContent(ginternals.Head, data)
	if err != nil {
		return nil, err
	}
	out[ginternals.Head] = head
	return out, nil
}

// WalkReferences runs the provided method on all the references.
// Loose references shadow their packed counterpart
func (b *Backend) WalkReferences(ctx context.Context, f backend.RefWalkFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	packed, err := b.parsePackedRefs()
	if err != nil {
		return err
	}
	all := map[string]*ginternals.Reference{}
	for name, sha := range packed {
		ref, err := ginternals.NewReferenceFromContent(name, []byte(sha))
		if err != nil {
			return err
		}
		all[name] = ref
	}

	loose, err := b.looseReferences()
	if err != nil {
		return err
	}
	for name, ref := range loose {
		all[name] = ref
	}

	names := make([]string, 0, len(all))
	for name := range all {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if err := f(all[name]); err != nil {
			if err == backend.WalkStop { //nolint:errorlint // it's a fake error so no need to use errors.Is()
				return nil
			}
			return err
		}
	}
	return nil
}

// PackRefs consolidates all the direct, non-HEAD references into the
// packed-refs file and removes their loose files.
// Callers are expected to hold the lock of every reference being
// packed
func (b *Backend) PackRefs(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.packMu.Lock()
	defer b.packMu.Unlock()
	if fl := b.packedRefsFlock(); fl != nil {
		if err := fl.Lock(); err != nil {
			return fmt.Errorf("could not lock %s: %w", ginternals.PackedRefsFile, err)
		}
		defer fl.Unlock() //nolint:errcheck // nothing to do about it
	}

	refs, err := b.parsePackedRefs()
	if err != nil {
		return err
	}

	loose, err := b.looseReferences()
	if err != nil {
		return err
	}
	packedNow := []string{}
	for name, ref := range loose {
		// HEAD and symbolic references stay loose
		if name == ginternals.Head || ref.IsSymbolic() {
			continue
		}
		refs[name] = ref.Target().String()
		packedNow = append(packedNow, name)
	}

	if err := b.writePackedRefs(refs); err != nil {
		return err
	}

	// the loose files can now be dropped
	for _, name := range packedNow {
		if err := b.fs.Remove(b.systemPath(name)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf(`could not remove the loose file of "%s": %w`, name, err)
		}
	}
	return nil
}

// AppendReflog appends an entry to the log of the given reference
func (b *Backend) AppendReflog(ctx context.Context, name string, entry ginternals.ReflogEntry) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}

	p := filepath.Join(b.root, filepath.FromSlash(ginternals.ReflogPath(name)))
	if err = b.fs.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("could not create the log directory of %s: %w", name, err)
	}
	f, err := b.fs.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("could not open the log of %s: %w", name, err)
	}
	defer errutil.Close(f, &err)

	if _, err = f.Write(entry.Line()); err != nil {
		return fmt.Errorf("could not append to the log of %s: %w", name, err)
	}
	return nil
}

// Reflog returns the log of the given reference, oldest entry first.
// A reference without a log returns an empty slice
func (b *Backend) Reflog(ctx context.Context, name string) ([]ginternals.ReflogEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p := filepath.Join(b.root, filepath.FromSlash(ginternals.ReflogPath(name)))
	data, err := afero.ReadFile(b.fs, p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []ginternals.ReflogEntry{}, nil
		}
		return nil, fmt.Errorf("could not read the log of %s: %w", name, err)
	}
	return ginternals.ParseReflog(data)
}
