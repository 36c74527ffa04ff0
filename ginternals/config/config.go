// Package config contains structs to interact with the configuration
// of a repository
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/goabstract/gitcore/ginternals"
	"github.com/goabstract/gitcore/internal/errutil"
	"github.com/spf13/afero"
	"gopkg.in/ini.v1"
)

// config file sections and keys
const (
	sectionCore            = "core"
	keyLogAllRefUpdates    = "logallrefupdates"
	keyRepoFormatVersion   = "repositoryformatversion"
	sectionInit            = "init"
	keyInitDefaultBranch   = "defaultBranch"
	sectionGC              = "gc"
	keyGCPruneExpire       = "pruneExpire"
	localConfigFileName    = "config"
	defaultGCGracePeriod   = 14 * 24 * time.Hour
)

// Config represents the configuration of a repository: the paths the
// engine works with plus the values held in the repository's config
// file.
//
// If you decide to create a Config by yourself, make sure to set
// correct values everywhere
type Config struct {
	// FS represents the file system implementation used to look for
	// files and directories
	FS afero.Fs

	// GitDirPath represents the path to the repository directory
	GitDirPath string
	// ObjectDirPath represents the path to the objects directory.
	// Defaults to $(GitDirPath)/objects
	ObjectDirPath string
	// LocalConfig represents the config file to load.
	// Defaults to $(GitDirPath)/config
	LocalConfig string

	// DefaultBranch is the name of the branch HEAD points to when a
	// repository is initialized
	DefaultBranch string
	// LogAllRefUpdates controls whether reference updates get a
	// reflog entry
	LogAllRefUpdates bool
	// MaxRefDepth bounds the length of a symbolic reference chain
	// during resolution
	MaxRefDepth int
	// GCGracePeriod is the minimum age of an unreferenced object
	// before the garbage collector may reclaim it
	GCGracePeriod time.Duration
}

// NewDefault returns a Config with default values for the given
// repository path, without reading any file
func NewDefault(fs afero.Fs, gitDirPath string) *Config {
	return &Config{
		FS:               fs,
		GitDirPath:       gitDirPath,
		ObjectDirPath:    filepath.Join(gitDirPath, "objects"),
		LocalConfig:      filepath.Join(gitDirPath, localConfigFileName),
		DefaultBranch:    ginternals.Master,
		LogAllRefUpdates: true,
		MaxRefDepth:      ginternals.DefaultMaxRefDepth,
		GCGracePeriod:    defaultGCGracePeriod,
	}
}

// LoadConfig returns a Config for the given repository path, merged
// with the values of its config file (if any)
func LoadConfig(fs afero.Fs, gitDirPath string) (cfg *Config, err error) {
	cfg = NewDefault(fs, gitDirPath)

	f, err := fs.Open(cfg.LocalConfig)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("could not open %s: %w", cfg.LocalConfig, err)
	}
	defer errutil.Close(f, &err)

	file, err := ini.Load(f)
	if err != nil {
		return nil, fmt.Errorf("could not parse %s: %w", cfg.LocalConfig, err)
	}

	core := file.Section(sectionCore)
	if core.HasKey(keyLogAllRefUpdates) {
		cfg.LogAllRefUpdates = core.Key(keyLogAllRefUpdates).MustBool(true)
	}
	if branch := file.Section(sectionInit).Key(keyInitDefaultBranch).String(); branch != "" {
		cfg.DefaultBranch = branch
	}
	if expire := file.Section(sectionGC).Key(keyGCPruneExpire).String(); expire != "" {
		grace, err := time.ParseDuration(expire)
		if err != nil {
			return nil, fmt.Errorf("invalid %s.%s %q: %w", sectionGC, keyGCPruneExpire, expire, err)
		}
		cfg.GCGracePeriod = grace
	}
	return cfg, nil
}

// Save persists the config values to the repository's config file
func (c *Config) Save() (err error) {
	file := ini.Empty()
	core, err := file.NewSection(sectionCore)
	if err != nil {
		return fmt.Errorf("could not create section %s: %w", sectionCore, err)
	}
	core.Key(keyRepoFormatVersion).SetValue("0")
	core.Key(keyLogAllRefUpdates).SetValue(fmt.Sprintf("%t", c.LogAllRefUpdates))

	if c.DefaultBranch != ginternals.Master {
		file.Section(sectionInit).Key(keyInitDefaultBranch).SetValue(c.DefaultBranch)
	}
	if c.GCGracePeriod != defaultGCGracePeriod {
		file.Section(sectionGC).Key(keyGCPruneExpire).SetValue(c.GCGracePeriod.String())
	}

	f, err := c.FS.OpenFile(c.LocalConfig, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("could not open %s: %w", c.LocalConfig, err)
	}
	defer errutil.Close(f, &err)

	if _, err = file.WriteTo(f); err != nil {
		return fmt.Errorf("could not write %s: %w", c.LocalConfig, err)
	}
	return nil
}
