// Package rclone adapts the external rclone executable to the engine's
// transfer capability: enumerate a root, copy a file, delete a file. The
// engine treats it as a black box returning structured success or failure
// per invocation.
package rclone

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/input-output-hk/catalyst-forge-libs/executor"

	"github.com/driftlab/driftsync/internal/sync"
	"github.com/driftlab/driftsync/internal/utils"
)

// rclone's documented exit code for fatal errors, where a retry would
// certainly fail (auth, misconfiguration).
const rcloneExitFatal = 7

var (
	// ErrExecutableNotFound means the rclone binary cannot be located.
	ErrExecutableNotFound = errors.New("cannot find rclone executable")

	// ErrConfigUnusable means rclone's configuration file is missing,
	// malformed, or unreadable.
	ErrConfigUnusable = errors.New("cannot use rclone configuration file")

	// ErrInvalidPath means a path cannot be used by rclone.
	ErrInvalidPath = errors.New("invalid path")
)

// Client drives the rclone executable. It implements sync.Transferer.
type Client struct {
	bin        string
	configFile string
	retries    int
	retryDelay time.Duration
	checksum   bool
}

type Option func(*Client)

// WithBinary overrides the rclone executable path.
func WithBinary(path string) Option {
	return func(c *Client) {
		if path != "" {
			c.bin = path
		}
	}
}

// WithConfigFile passes --config to every invocation.
func WithConfigFile(path string) Option {
	return func(c *Client) {
		c.configFile = path
	}
}

// WithRetries sets the number of attempts for listings.
func WithRetries(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.retries = n
		}
	}
}

// WithChecksum includes content hashes in listings so they serve as
// fingerprints; without it size and modtime substitute.
func WithChecksum(enabled bool) Option {
	return func(c *Client) {
		c.checksum = enabled
	}
}

func New(opts ...Option) *Client {
	c := &Client{
		bin:        "rclone",
		retries:    1,
		retryDelay: time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Locate resolves the rclone executable on PATH (or verifies the configured
// binary exists).
func (c *Client) Locate() (string, error) {
	path, err := exec.LookPath(c.bin)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrExecutableNotFound, c.bin)
	}
	return path, nil
}

// ConfigFile asks rclone where its configuration lives and verifies the file
// is actually usable.
func (c *Client) ConfigFile(ctx context.Context) (string, error) {
	result, err := c.run(ctx, nil, "config", "file")
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrConfigUnusable, err)
	}

	// Output is "Configuration file is stored at:\n<path>\n".
	_, path, found := strings.Cut(result.Stdout, "\n")
	if !found {
		return "", fmt.Errorf("%w: unexpected output %q", ErrConfigUnusable, result.Stdout)
	}
	path = strings.TrimSpace(path)

	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return "", fmt.Errorf("%w: %q does not exist", ErrConfigUnusable, path)
	}
	return path, nil
}

// ListRemotes returns the names of the remotes configured in rclone, without
// the trailing colon.
func (c *Client) ListRemotes(ctx context.Context) ([]string, error) {
	result, err := c.run(ctx, nil, "listremotes")
	if err != nil {
		return nil, fmt.Errorf("list remotes: %w", err)
	}

	var remotes []string
	for _, line := range strings.Split(result.Stdout, "\n") {
		line = strings.TrimSpace(line)
		if name, ok := strings.CutSuffix(line, ":"); ok && name != "" {
			remotes = append(remotes, name)
		}
	}
	return remotes, nil
}

// IsRemote reports whether path names an rclone remote rather than a local
// path. A colon in the first segment marks a remote, unless that segment
// contains a slash (rclone's rule for local files with colons in the name).
func IsRemote(path string) bool {
	head, _, found := strings.Cut(path, ":")
	return found && !strings.Contains(head, "/")
}

// ResolvePath validates and normalizes one side of the pair. Local paths are
// expanded, absolutized, and created if missing. Remote paths are checked
// against the configured remotes and created via rclone mkdir.
func (c *Client) ResolvePath(ctx context.Context, path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("%w: empty path", ErrInvalidPath)
	}

	if IsRemote(path) {
		name, _, _ := strings.Cut(path, ":")
		remotes, err := c.ListRemotes(ctx)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidPath, err)
		}
		known := false
		for _, remote := range remotes {
			if remote == name {
				known = true
				break
			}
		}
		if !known {
			return "", fmt.Errorf("%w: remote %q was not found", ErrInvalidPath, name)
		}
		if _, err := c.run(ctx, nil, "mkdir", path); err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidPath, err)
		}
		return path, nil
	}

	resolved, err := utils.ResolvePath(path)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidPath, err)
	}
	if err := utils.EnsureDir(resolved); err != nil {
		return "", fmt.Errorf("%w: cannot create %q: %v", ErrInvalidPath, resolved, err)
	}
	return resolved, nil
}

// List enumerates every file under root. Listings are retried; a failure
// after all attempts fails the whole snapshot.
func (c *Client) List(ctx context.Context, root string) (sync.Snapshot, error) {
	format := "pts"
	if c.checksum {
		format = "ptsh"
	}

	opts := []executor.Option{executor.SilentMode()}
	if c.retries > 1 {
		opts = append(opts, executor.WithRetry(c.retries-1, c.retryDelay))
	}

	result, err := c.run(ctx, opts, "lsf", "-R", "--files-only", "--format", format, root)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", root, err)
	}

	snapshot, err := parseLsf(result.Stdout, c.checksum)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", root, err)
	}
	slog.Debug("listed root", "root", root, "files", len(snapshot))
	return snapshot, nil
}

// Copy transfers srcRoot/rel to dstRoot/rel preserving modification times.
func (c *Client) Copy(ctx context.Context, srcRoot, dstRoot, rel string) error {
	_, err := c.run(ctx, nil, "copyto", joinRoot(srcRoot, rel), joinRoot(dstRoot, rel))
	if err != nil {
		return fmt.Errorf("copy %s: %w", rel, err)
	}
	return nil
}

// Delete removes root/rel.
func (c *Client) Delete(ctx context.Context, root, rel string) error {
	_, err := c.run(ctx, nil, "deletefile", joinRoot(root, rel))
	if err != nil {
		return fmt.Errorf("delete %s: %w", rel, err)
	}
	return nil
}

// run invokes rclone with the shared flags and classifies failures.
func (c *Client) run(ctx context.Context, opts []executor.Option, args ...string) (*executor.Result, error) {
	if c.configFile != "" {
		args = append(args, "--config", c.configFile)
	}

	result, err := executor.New(c.bin, args...).Execute(ctx, opts...)
	if err != nil {
		werr := fmt.Errorf("rclone %s: %w: %s", args[0], err, firstLine(result))
		if isFatalResult(result) {
			return result, &sync.FatalTransferError{Err: werr}
		}
		return result, werr
	}
	return result, nil
}

// isFatalResult classifies connectivity-fatal failures: rclone's fatal exit
// class plus authentication errors surfaced in stderr.
func isFatalResult(result *executor.Result) bool {
	if result == nil {
		return false
	}
	if result.ExitCode == rcloneExitFatal {
		return true
	}
	stderr := strings.ToLower(result.Stderr)
	return strings.Contains(stderr, "401 unauthorized") ||
		strings.Contains(stderr, "403 forbidden") ||
		strings.Contains(stderr, "couldn't connect")
}

func firstLine(result *executor.Result) string {
	if result == nil {
		return ""
	}
	line, _, _ := strings.Cut(strings.TrimSpace(result.Stderr), "\n")
	return line
}

// joinRoot appends a slash-normalized relative path to a root. A bare remote
// root like "gdrive:" needs no separator.
func joinRoot(root, rel string) string {
	if strings.HasSuffix(root, ":") || strings.HasSuffix(root, "/") {
		return root + rel
	}
	return root + "/" + rel
}
