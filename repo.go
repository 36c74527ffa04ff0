// Package gitcore implements the engine of a git repository: a
// content-addressed object store, an atomic reference manager, a
// commit-graph query layer, a structural tree differ, and a
// mark-and-sweep garbage collector.
// Storage is pluggable through the backend.Backend interface
package gitcore

import (
	"context"
	"errors"
	"fmt"

	"github.com/goabstract/gitcore/backend"
	"github.com/goabstract/gitcore/backend/fsbackend"
	"github.com/goabstract/gitcore/ginternals"
	"github.com/goabstract/gitcore/ginternals/config"
	"github.com/goabstract/gitcore/ginternals/githash"
	"github.com/goabstract/gitcore/ginternals/object"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// List of errors returned by the Repository struct
var (
	ErrRepositoryNotExist = errors.New("repository does not exist")
)

// Repository represents a git repository: the odb, the references,
// and the queries that run over them
type Repository struct {
	dotGit backend.Backend
	cfg    *config.Config
	log    *zap.Logger
}

// Options contains all the optional data used to initialize or open
// a repository
type Options struct {
	// GitBackend represents the underlying backend to use to interact
	// with the odb and the references.
	// By default the filesystem will be used
	GitBackend backend.Backend
	// Config holds the settings of the repository.
	// Defaults to the content of the config file of the repository,
	// or to default values
	Config *config.Config
	// Logger receives the internal logs of the engine.
	// Defaults to a nop logger
	Logger *zap.Logger
}

// InitRepository initializes a new repository at the given path
func InitRepository(ctx context.Context, repoPath string) (*Repository, error) {
	return InitRepositoryWithOptions(ctx, repoPath, Options{})
}

// InitRepositoryWithOptions initializes a new repository at the given
// path using the provided options.
// Initializing an existing repository is safe and won't overwrite
// what's already there
func InitRepositoryWithOptions(ctx context.Context, repoPath string, opts Options) (*Repository, error) {
	r, err := newRepository(repoPath, opts)
	if err != nil {
		return nil, err
	}
	if err := r.dotGit.Init(ctx, r.cfg.DefaultBranch); err != nil {
		return nil, err
	}
	return r, nil
}

// OpenRepository opens an existing repository at the given path.
// ErrRepositoryNotExist is returned if the repository isn't
// initialized
func OpenRepository(ctx context.Context, repoPath string) (*Repository, error) {
	return OpenRepositoryWithOptions(ctx, repoPath, Options{})
}

// OpenRepositoryWithOptions opens an existing repository at the given
// path using the provided options
func OpenRepositoryWithOptions(ctx context.Context, repoPath string, opts Options) (*Repository, error) {
	r, err := newRepository(repoPath, opts)
	if err != nil {
		return nil, err
	}

	// every initialized repository has a HEAD
	if _, err := r.dotGit.Reference(ctx, ginternals.Head); err != nil {
		if errors.Is(err, ginternals.ErrRefNotFound) {
			return nil, ErrRepositoryNotExist
		}
		return nil, err
	}
	return r, nil
}

func newRepository(repoPath string, opts Options) (*Repository, error) {
	cfg := opts.Config
	if cfg == nil {
		var err error
		cfg, err = config.LoadConfig(afero.NewOsFs(), repoPath)
		if err != nil {
			return nil, err
		}
	}

	b := opts.GitBackend
	if b == nil {
		b = fsbackend.New(cfg.FS, cfg.GitDirPath)
	}

	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	return &Repository{
		dotGit: b,
		cfg:    cfg,
		log:    log,
	}, nil
}

// Config returns the configuration of the repository
func (r *Repository) Config() *config.Config {
	return r.cfg
}

// Close frees the resources used by the repository
func (r *Repository) Close() error {
	return r.dotGit.Close()
}

// Object returns the object matching the given id
func (r *Repository) Object(ctx context.Context, oid githash.Oid) (*object.Object, error) {
	return r.dotGit.Object(ctx, oid)
}

// HasObject returns whether an object exists in the odb
func (r *Repository) HasObject(ctx context.Context, oid githash.Oid) (bool, error) {
	return r.dotGit.HasObject(ctx, oid)
}

// typedObject returns the object matching the given id, enforcing
// its type
func (r *Repository) typedObject(ctx context.Context, oid githash.Oid, typ object.Type) (*object.Object, error) {
	o, err := r.dotGit.Object(ctx, oid)
	if err != nil {
		return nil, err
	}
	if o.Type() != typ {
		return nil, fmt.Errorf("object %s is a %s, not a %s: %w", oid.String(), o.Type(), typ, object.ErrObjectInvalid)
	}
	return o, nil
}

// Blob returns the blob matching the given id
func (r *Repository) Blob(ctx context.Context, oid githash.Oid) (*object.Blob, error) {
	o, err := r.typedObject(ctx, oid, object.TypeBlob)
	if err != nil {
		return nil, err
	}
	return o.AsBlob()
}

// Tree returns the tree matching the given id
func (r *Repository) Tree(ctx context.Context, oid githash.Oid) (*object.Tree, error) {
	o, err := r.typedObject(ctx, oid, object.TypeTree)
	if err != nil {
		return nil, err
	}
	return o.AsTree()
}

// Commit returns the commit matching the given id
func (r *Repository) Commit(ctx context.Context, oid githash.Oid) (*object.Commit, error) {
	o, err := r.typedObject(ctx, oid, object.TypeCommit)
	if err != nil {
		return nil, err
	}
	return o.AsCommit()
}

// Tag returns the annotated tag matching the given id
func (r *Repository) Tag(ctx context.Context, oid githash.Oid) (*object.Tag, error) {
	o, err := r.typedObject(ctx, oid, object.TypeTag)
	if err != nil {
		return nil, err
	}
	return o.AsTag()
}

// WriteBlob writes a new blob with the given content to the odb
func (r *Repository) WriteBlob(ctx context.Context, data []byte) (*object.Blob, error) {
	b := object.NewBlob(data)
	if _, err := r.dotGit.WriteObject(ctx, b.ToObject()); err != nil {
		return nil, fmt.Errorf("could not write the blob to the odb: %w", err)
	}
	return b, nil
}

// WriteTree writes a new tree with the given entries to the odb.
// The entries get validated and sorted in canonical order
func (r *Repository) WriteTree(ctx context.Context, entries []object.TreeEntry) (*object.Tree, error) {
	t, err := object.NewTree(entries)
	if err != nil {
		return nil, err
	}
	if _, err := r.dotGit.WriteObject(ctx, t.ToObject()); err != nil {
		return nil, fmt.Errorf("could not write the tree to the odb: %w", err)
	}
	return t, nil
}

// WriteCommit writes a new commit to the odb
func (r *Repository) WriteCommit(ctx context.Context, treeID githash.Oid, author object.Signature, opts *object.CommitOptions) (*object.Commit, error) {
	if opts == nil {
		opts = &object.CommitOptions{}
	}
	c := object.NewCommit(treeID, author, opts)
	if _, err := r.dotGit.WriteObject(ctx, c.ToObject()); err != nil {
		return nil, fmt.Errorf("could not write the commit to the odb: %w", err)
	}
	return c, nil
}

// WriteTag writes a new annotated tag object to the odb.
// The reference under refs/tags/ is not created, this is up to the
// caller
func (r *Repository) WriteTag(ctx context.Context, params *object.TagParams) (*object.Tag, error) {
	t := object.NewTag(params)
	if _, err := r.dotGit.WriteObject(ctx, t.ToObject()); err != nil {
		return nil, fmt.Errorf("could not write the tag to the odb: %w", err)
	}
	return t, nil
}
