package gitcore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/goabstract/gitcore/backend"
	"github.com/goabstract/gitcore/ginternals"
	"github.com/goabstract/gitcore/ginternals/githash"
	"github.com/goabstract/gitcore/ginternals/object"
	"go.uber.org/zap"
)

// GCOptions contains all the optional data used to run the garbage
// collector
type GCOptions struct {
	// Grace is the minimum age of an unreferenced object before it
	// may be reclaimed. Defaults to the gc grace period of the
	// repository's config
	Grace time.Duration
	// DryRun classifies the objects without deleting anything. The
	// returned stats report what a real run would have deleted
	DryRun bool
	// MaxDeletions bounds the number of deletions of a single run.
	// 0 means no bound
	MaxDeletions int
	// MaxBytes bounds the number of bytes reclaimed by a single run.
	// 0 means no bound
	MaxBytes int64
	// Now is the clock used to age the objects. Defaults to time.Now
	Now func() time.Time
}

// GCStats reports what a garbage collection run did
type GCStats struct {
	// Deleted is the number of objects removed from the odb
	Deleted int
	// BytesFreed is the total payload size of the deleted objects
	BytesFreed int64
	// Unreferenced is the number of objects not reachable from any
	// reference
	Unreferenced int
	// SkippedGrace is the number of unreferenced objects kept because
	// they are younger than the grace period
	SkippedGrace int
	// SkippedCap is the number of unreferenced objects kept because a
	// deletion cap was reached
	SkippedCap int
	// TotalScanned is the number of objects examined
	TotalScanned int
	// Reachable is the number of objects reachable from the
	// references
	Reachable int
	// Duration is how long the run took
	Duration time.Duration
}

// GC removes the objects that are not reachable from any reference
// and older than the grace period.
// The grace period is the only protection of in-flight writers: no
// global lock is taken, and an object written during the run may be
// reclaimed if it passed the age check unreferenced. Since writes are
// idempotent, callers simply re-put in that case.
// Individual deletion failures are logged and skipped, the run keeps
// going
func (r *Repository) GC(ctx context.Context, opts GCOptions) (GCStats, error) {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	grace := opts.Grace
	if grace == 0 {
		grace = r.cfg.GCGracePeriod
	}
	start := now()

	stats := GCStats{}
	reachable, err := r.markReachable(ctx)
	if err != nil {
		return stats, err
	}
	stats.Reachable = len(reachable)

	threshold := start.Add(-grace)
	err = r.dotGit.WalkObjects(ctx, func(info backend.ObjectInfo) error {
		stats.TotalScanned++
		if _, ok := reachable[info.ID]; ok {
			return nil
		}
		stats.Unreferenced++

		if info.CreatedAt.After(threshold) {
			stats.SkippedGrace++
			return nil
		}
		if opts.MaxDeletions > 0 && stats.Deleted >= opts.MaxDeletions {
			stats.SkippedCap++
			return nil
		}
		if opts.MaxBytes > 0 && stats.BytesFreed+info.Size > opts.MaxBytes {
			stats.SkippedCap++
			return nil
		}

		if !opts.DryRun {
			if err := r.dotGit.DeleteObject(ctx, info.ID); err != nil {
				r.log.Warn("could not delete object",
					zap.String("oid", info.ID.String()),
					zap.Error(err))
				return nil
			}
		}
		stats.Deleted++
		stats.BytesFreed += info.Size
		return nil
	})
	if err != nil {
		return stats, err
	}

	stats.Duration = now().Sub(start)
	r.log.Info("garbage collection done",
		zap.Int("deleted", stats.Deleted),
		zap.String("bytes_freed", humanize.Bytes(uint64(stats.BytesFreed))),
		zap.Int("unreferenced", stats.Unreferenced),
		zap.Int("skipped_grace", stats.SkippedGrace),
		zap.Int("skipped_cap", stats.SkippedCap),
		zap.Int("total_scanned", stats.TotalScanned),
		zap.Int("reachable", stats.Reachable),
		zap.Bool("dry_run", opts.DryRun),
		zap.Duration("duration", stats.Duration))
	return stats, nil
}

// markReachable returns the set of objects reachable from the
// references: every reference is resolved, then the object graph is
// walked down commit→tree→blob, tag→target
func (r *Repository) markReachable(ctx context.Context) (map[githash.Oid]struct{}, error) {
	roots := []githash.Oid{}
	err := r.dotGit.WalkReferences(ctx, func(ref *ginternals.Reference) error {
		if ref.IsSymbolic() {
			// symbolic references get resolved; a broken chain doesn't
			// root anything
			res, err := r.ResolveReference(ctx, ref.Name())
			if err != nil {
				r.log.Warn("skipping unresolvable reference",
					zap.String("ref", ref.Name()),
					zap.Error(err))
				return nil
			}
			roots = append(roots, res.ID)
			return nil
		}
		roots = append(roots, ref.Target())
		return nil
	})
	if err != nil {
		return nil, err
	}

	visited := map[githash.Oid]struct{}{}
	for _, root := range roots {
		if err := r.markObject(ctx, root, visited); err != nil {
			return nil, err
		}
	}
	return visited, nil
}

// markObject adds the given object and everything reachable from it
// to the visited set. The walk is iterative and cycle-safe
func (r *Repository) markObject(ctx context.Context, start githash.Oid, visited map[githash.Oid]struct{}) error {
	queue := []githash.Oid{start}
	for len(queue) > 0 {
		oid := queue[0]
		queue = queue[1:]
		if oid.IsZero() {
			continue
		}
		if _, ok := visited[oid]; ok {
			continue
		}

		o, err := r.dotGit.Object(ctx, oid)
		if err != nil {
			// a reference may point to an object that was never
			// written, the walk stops there
			if errors.Is(err, ginternals.ErrObjectNotFound) {
				continue
			}
			return fmt.Errorf("could not mark %s: %w", oid.String(), err)
		}
		visited[oid] = struct{}{}

		switch o.Type() {
		case object.TypeCommit:
			c, err := o.AsCommit()
			if err != nil {
				return err
			}
			queue = append(queue, c.TreeID())
			queue = append(queue, c.ParentIDs()...)
		case object.TypeTree:
			t, err := o.AsTree()
			if err != nil {
				return err
			}
			for _, e := range t.Entries() {
				// gitlinks target another repository, there's nothing
				// to keep alive here
				if e.Mode == object.ModeGitLink {
					continue
				}
				queue = append(queue, e.ID)
			}
		case object.TypeTag:
			t, err := o.AsTag()
			if err != nil {
				return err
			}
			queue = append(queue, t.Target())
		case object.TypeBlob:
			// leaf
		}
	}
	return nil
}
