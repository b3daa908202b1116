package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/driftlab/driftsync/internal/utils"
)

var (
	home, _           = os.UserHomeDir()
	DefaultWorkDir    = filepath.Join(home, ".driftsync")
	DefaultConfigPath = filepath.Join(home, ".driftsync", "config.yaml")
)

// Config is one invocation's settings, assembled from flags, environment,
// and the optional config file.
type Config struct {
	Path1 string `mapstructure:"-"`
	Path2 string `mapstructure:"-"`

	RclonePath   string   `mapstructure:"rclone_path"`
	RcloneConfig string   `mapstructure:"rclone_config"`
	Retries      int      `mapstructure:"retries"`
	WorkDir      string   `mapstructure:"work_dir"`
	Excludes     []string `mapstructure:"excludes"`
	Checksum     bool     `mapstructure:"checksum"`
	DryRun       bool     `mapstructure:"-"`
}

func (c *Config) Validate() error {
	if c.Path1 == "" || c.Path2 == "" {
		return errors.New("both paths are required")
	}
	if c.Retries < 1 {
		return fmt.Errorf("retries must be at least 1, got %d", c.Retries)
	}
	if c.WorkDir == "" {
		c.WorkDir = DefaultWorkDir
	}
	return nil
}

// ResolveWorkDir expands and creates the working directory that holds the
// state databases and lock files.
func (c *Config) ResolveWorkDir() error {
	resolved, err := utils.ResolvePath(c.WorkDir)
	if err != nil {
		return fmt.Errorf("cannot use working directory %q: %w", c.WorkDir, err)
	}
	if err := utils.EnsureDir(resolved); err != nil {
		return fmt.Errorf("cannot use working directory %q: %w", resolved, err)
	}
	c.WorkDir = resolved
	return nil
}
