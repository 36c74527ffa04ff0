package gitcore

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/goabstract/gitcore/backend"
	"github.com/goabstract/gitcore/ginternals"
	"github.com/goabstract/gitcore/ginternals/githash"
	"github.com/goabstract/gitcore/ginternals/object"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// expectationKind lists the compare-and-swap rules of an update
type expectationKind int8

const (
	// expectNothing skips the compare-and-swap check; the reference
	// must still exist unless the update may create it
	expectNothing expectationKind = iota
	// expectAbsent requires the reference to not exist
	expectAbsent
	// expectID requires the reference to point to a given id
	expectID
)

// Expected is the compare-and-swap rule applied by UpdateReference
// and DeleteReference
type Expected struct {
	id   githash.Oid
	kind expectationKind
}

// ExpectNone skips the compare-and-swap check. An update with
// ExpectNone cannot create a reference unless Create is set
func ExpectNone() Expected {
	return Expected{kind: expectNothing}
}

// ExpectAbsent requires the reference to not exist yet
func ExpectAbsent() Expected {
	return Expected{kind: expectAbsent}
}

// ExpectID requires the reference to currently point to the given id
func ExpectID(id githash.Oid) Expected {
	return Expected{kind: expectID, id: id}
}

// UpdateRefOptions contains all the optional data used to update a
// reference
type UpdateRefOptions struct {
	// Expected is the compare-and-swap rule of the update.
	// Defaults to no check
	Expected Expected
	// Create allows the update to create the reference when it
	// doesn't exist yet
	Create bool
	// Lock is an already-held lock on the reference. When set, the
	// update runs under it and doesn't re-lock (nor releases it)
	Lock backend.RefLock
	// Who signs the reflog entry. Defaults to an "unknown" identity
	Who object.Signature
	// Reason is the message of the reflog entry
	Reason string
	// Timeout bounds the lock acquisition. 0 means no deadline
	// beyond ctx
	Timeout time.Duration
}

// DeleteRefOptions contains all the optional data used to delete a
// reference
type DeleteRefOptions struct {
	// Expected is the compare-and-swap rule of the deletion
	Expected Expected
	// Lock is an already-held lock on the reference
	Lock backend.RefLock
	// Who signs the reflog entry
	Who object.Signature
	// Reason is the message of the reflog entry
	Reason string
	// Timeout bounds the lock acquisition
	Timeout time.Duration
}

// ListRefOptions controls which references References returns
type ListRefOptions struct {
	// Pattern filters the references by name. An empty pattern
	// matches everything; a pattern ending with "/" matches a
	// namespace prefix; a pattern with glob characters goes through
	// path.Match; any other pattern matches the exact name or the
	// names under it as a namespace
	Pattern string
	// IncludeHead adds HEAD to the output
	IncludeHead bool
	// IncludeSymbolic adds the symbolic references to the output
	IncludeSymbolic bool
}

// defaultWho returns the identity used for reflog entries when the
// caller didn't provide one
func defaultWho(who object.Signature) object.Signature {
	if who.IsZero() {
		return object.NewSignature("unknown", "unknown@localhost")
	}
	return who
}

// Reference returns the reference matching the given name, without
// resolving symbolic targets
func (r *Repository) Reference(ctx context.Context, name string) (*ginternals.Reference, error) {
	if !ginternals.IsRefNameValid(name) {
		return nil, fmt.Errorf(`ref "%s": %w`, name, ginternals.ErrRefNameInvalid)
	}
	return r.dotGit.Reference(ctx, name)
}

// ResolveReference follows the symbolic chain starting at the given
// name and returns the terminal id alongside the traversed names
func (r *Repository) ResolveReference(ctx context.Context, name string) (ginternals.Resolution, error) {
	return ginternals.ResolveReference(name, func(n string) ([]byte, error) {
		ref, err := r.dotGit.Reference(ctx, n)
		if err != nil {
			return nil, err
		}
		return ginternals.ContentOf(ref)
	}, r.cfg.MaxRefDepth)
}

// lockForUpdate returns the lock to run an update under: the one the
// caller already holds, or a freshly acquired one. ownLock reports
// whether the lock must be released by the caller of lockForUpdate
func (r *Repository) lockForUpdate(ctx context.Context, name string, held backend.RefLock, timeout time.Duration) (lock backend.RefLock, ownLock bool, err error) {
	if held != nil {
		if held.Name() != name {
			return nil, false, fmt.Errorf(`lock is held for "%s", not for "%s": %w`, held.Name(), name, ginternals.ErrRefInvalid)
		}
		return held, false, nil
	}
	lock, err = r.dotGit.LockRef(ctx, name, timeout)
	if err != nil {
		return nil, false, err
	}
	return lock, true, nil
}

// checkExpected applies a compare-and-swap rule against the current
// state of a reference
func checkExpected(name string, current *ginternals.Reference, expected Expected, create bool) error {
	exists := current != nil
	switch expected.kind {
	case expectNothing:
		if !exists && !create {
			return fmt.Errorf(`ref "%s": %w`, name, ginternals.ErrRefNotFound)
		}
	case expectAbsent:
		if exists {
			return fmt.Errorf(`ref "%s": %w`, name, ginternals.ErrRefExists)
		}
	case expectID:
		if !exists {
			return fmt.Errorf(`ref "%s": %w`, name, ginternals.ErrRefNotFound)
		}
		if current.IsSymbolic() || current.Target() != expected.id {
			return fmt.Errorf(`ref "%s": %w`, name, ginternals.ErrRefConflict)
		}
	}
	return nil
}

// UpdateReference points the given reference at the given id,
// applying the compare-and-swap rule of opts.Expected. The whole
// read-modify-write runs under the reference's exclusive lock, and a
// reflog entry is appended on success
func (r *Repository) UpdateReference(ctx context.Context, name string, target githash.Oid, opts UpdateRefOptions) (ref *ginternals.Reference, err error) {
	if !ginternals.IsRefNameValid(name) {
		return nil, fmt.Errorf(`ref "%s": %w`, name, ginternals.ErrRefNameInvalid)
	}
	if target.IsZero() {
		return nil, fmt.Errorf(`target of "%s": %w`, name, githash.ErrInvalidOid)
	}

	lock, ownLock, err := r.lockForUpdate(ctx, name, opts.Lock, opts.Timeout)
	if err != nil {
		return nil, err
	}
	if ownLock {
		defer func() {
			if releaseErr := lock.Release(); releaseErr != nil && err == nil {
				err = releaseErr
			}
		}()
	}

	current, err := r.dotGit.Reference(ctx, name)
	if err != nil && !errors.Is(err, ginternals.ErrRefNotFound) {
		return nil, err
	}
	if errors.Is(err, ginternals.ErrRefNotFound) {
		current = nil
	}
	if err = checkExpected(name, current, opts.Expected, opts.Create); err != nil {
		return nil, err
	}

	ref = ginternals.NewReference(name, target)
	if err = r.dotGit.WriteReference(ctx, ref); err != nil {
		return nil, err
	}

	old := githash.NullOid
	if current != nil && !current.IsSymbolic() {
		old = current.Target()
	}
	if err = r.appendReflog(ctx, name, old, target, opts.Who, opts.Reason, "update"); err != nil {
		return nil, err
	}
	return ref, nil
}

// DeleteReference removes the given reference, applying the
// compare-and-swap rule of opts.Expected. HEAD cannot be deleted
func (r *Repository) DeleteReference(ctx context.Context, name string, opts DeleteRefOptions) (err error) {
	if !ginternals.IsRefNameValid(name) || name == ginternals.Head {
		return fmt.Errorf(`cannot delete "%s": %w`, name, ginternals.ErrRefNameInvalid)
	}

	lock, ownLock, err := r.lockForUpdate(ctx, name, opts.Lock, opts.Timeout)
	if err != nil {
		return err
	}
	if ownLock {
		defer func() {
			if releaseErr := lock.Release(); releaseErr != nil && err == nil {
				err = releaseErr
			}
		}()
	}

	current, err := r.dotGit.Reference(ctx, name)
	if err != nil {
		return err
	}
	if err = checkExpected(name, current, opts.Expected, false); err != nil {
		return err
	}

	if err = r.dotGit.DeleteReference(ctx, name); err != nil {
		return err
	}

	old := githash.NullOid
	if !current.IsSymbolic() {
		old = current.Target()
	}
	return r.appendReflog(ctx, name, old, githash.NullOid, opts.Who, opts.Reason, "delete")
}

// appendReflog appends an entry to the log of a reference, unless
// reflogs are disabled
func (r *Repository) appendReflog(ctx context.Context, name string, old, target githash.Oid, who object.Signature, reason, defaultReason string) error {
	if !r.cfg.LogAllRefUpdates {
		return nil
	}
	if reason == "" {
		reason = defaultReason
	}
	entry := ginternals.ReflogEntry{
		Old:     old,
		New:     target,
		Who:     defaultWho(who),
		Message: reason,
	}
	if err := r.dotGit.AppendReflog(ctx, name, entry); err != nil {
		return fmt.Errorf("could not append to the log of %s: %w", name, err)
	}
	return nil
}

// matchRefPattern reports whether a reference name matches the given
// pattern
func matchRefPattern(pattern, name string) bool {
	switch {
	case pattern == "":
		return true
	case strings.HasSuffix(pattern, "/"):
		return strings.HasPrefix(name, pattern)
	case strings.ContainsAny(pattern, "*?["):
		ok, err := path.Match(pattern, name)
		return err == nil && ok
	default:
		return name == pattern || strings.HasPrefix(name, pattern+"/")
	}
}

// References returns the references matching the given options,
// sorted by name. HEAD and the symbolic references are excluded by
// default
func (r *Repository) References(ctx context.Context, opts ListRefOptions) ([]*ginternals.Reference, error) {
	out := []*ginternals.Reference{}
	err := r.dotGit.WalkReferences(ctx, func(ref *ginternals.Reference) error {
		if ref.Name() == ginternals.Head && !opts.IncludeHead {
			return nil
		}
		if ref.IsSymbolic() && !opts.IncludeSymbolic {
			return nil
		}
		if !matchRefPattern(opts.Pattern, ref.Name()) {
			return nil
		}
		out = append(out, ref)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Name() < out[j].Name()
	})
	return out, nil
}

// SetSymbolicReference creates or replaces a symbolic reference.
// A reference cannot target itself
func (r *Repository) SetSymbolicReference(ctx context.Context, name, target string) (ref *ginternals.Reference, err error) {
	if !ginternals.IsRefNameValid(name) {
		return nil, fmt.Errorf(`ref "%s": %w`, name, ginternals.ErrRefNameInvalid)
	}
	if !ginternals.IsRefNameValid(target) {
		return nil, fmt.Errorf(`target "%s": %w`, target, ginternals.ErrRefNameInvalid)
	}
	if name == target {
		return nil, fmt.Errorf(`ref "%s" cannot target itself: %w`, name, ginternals.ErrRefInvalid)
	}

	lock, err := r.dotGit.LockRef(ctx, name, 0)
	if err != nil {
		return nil, err
	}
	defer func() {
		if releaseErr := lock.Release(); releaseErr != nil && err == nil {
			err = releaseErr
		}
	}()

	ref = ginternals.NewSymbolicReference(name, target)
	if err = r.dotGit.WriteReference(ctx, ref); err != nil {
		return nil, err
	}
	return ref, nil
}

// AttachHead makes HEAD symbolic to the given branch ("on branch").
// The branch may be given by its short name
func (r *Repository) AttachHead(ctx context.Context, branch string) (*ginternals.Reference, error) {
	if !strings.HasPrefix(branch, ginternals.RefsDir()+"/") {
		branch = ginternals.LocalBranchFullName(branch)
	}
	return r.SetSymbolicReference(ctx, ginternals.Head, branch)
}

// DetachHead points HEAD directly at the given commit ("detached")
func (r *Repository) DetachHead(ctx context.Context, target githash.Oid) (*ginternals.Reference, error) {
	return r.UpdateReference(ctx, ginternals.Head, target, UpdateRefOptions{
		Create: true,
		Reason: "checkout: moving to " + target.String(),
	})
}

// LockReference acquires the exclusive lock of the given reference.
// The returned lock can be passed to UpdateReference and
// DeleteReference to compose a larger transaction
func (r *Repository) LockReference(ctx context.Context, name string, timeout time.Duration) (backend.RefLock, error) {
	if !ginternals.IsRefNameValid(name) {
		return nil, fmt.Errorf(`ref "%s": %w`, name, ginternals.ErrRefNameInvalid)
	}
	return r.dotGit.LockRef(ctx, name, timeout)
}

// Reflog returns the log of the given reference, oldest entry first
func (r *Repository) Reflog(ctx context.Context, name string) ([]ginternals.ReflogEntry, error) {
	if !ginternals.IsRefNameValid(name) {
		return nil, fmt.Errorf(`ref "%s": %w`, name, ginternals.ErrRefNameInvalid)
	}
	return r.dotGit.Reflog(ctx, name)
}

// PackRefs consolidates all the direct, non-HEAD references into a
// single packed snapshot. Every reference being packed is locked for
// the duration of the operation so no update gets lost
func (r *Repository) PackRefs(ctx context.Context) (err error) {
	refs, err := r.References(ctx, ListRefOptions{})
	if err != nil {
		return err
	}

	// refs come back sorted, which gives every caller the same
	// locking order and keeps concurrent PackRefs deadlock-free
	locks := make([]backend.RefLock, 0, len(refs))
	defer func() {
		for _, l := range locks {
			err = multierr.Append(err, l.Release())
		}
	}()
	for _, ref := range refs {
		lock, lockErr := r.dotGit.LockRef(ctx, ref.Name(), 0)
		if lockErr != nil {
			return lockErr
		}
		locks = append(locks, lock)
	}

	if err = r.dotGit.PackRefs(ctx); err != nil {
		return err
	}
	r.log.Info("packed references", zap.Int("count", len(refs)))
	return nil
}
