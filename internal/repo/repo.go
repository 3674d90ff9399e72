// Package repo resolves repository references and produces temporary
// working copies that are removed when the audit finishes.
package repo

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/gitsight/go-vcsurl"
	"github.com/go-git/go-git/v5"
	"github.com/hashicorp/go-hclog"
)

var ErrClone = errors.New("repository clone failed")

// ErrLocalNotAllowed is returned for directories and file:// URLs when the
// cloner only accepts remote repositories.
var ErrLocalNotAllowed = fmt.Errorf("%w: local repositories are not allowed", ErrClone)

// Source is a normalised repository reference.
type Source struct {
	// CloneURL is what git is pointed at; LocalDir is set instead when the
	// reference is an existing directory on disk.
	CloneURL string
	LocalDir string
	Name     string
}

// Normalize accepts https/ssh VCS URLs, owner/repo shorthand for GitHub,
// file:// URLs and existing local directories.
func Normalize(raw string) (Source, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Source{}, fmt.Errorf("%w: repository url required", ErrClone)
	}
	if st, err := os.Stat(raw); err == nil && st.IsDir() {
		abs, _ := filepath.Abs(raw)
		return Source{LocalDir: abs, Name: filepath.Base(abs)}, nil
	}
	if strings.HasPrefix(raw, "file://") {
		u, err := url.Parse(raw)
		if err != nil {
			return Source{}, fmt.Errorf("%w: invalid url: %w", ErrClone, err)
		}
		return Source{CloneURL: raw, Name: path.Base(strings.TrimSuffix(u.Path, ".git"))}, nil
	}
	if owner, name, ok := splitOwnerRepo(raw); ok && !strings.Contains(raw, ":") && strings.Count(raw, "/") == 1 {
		return Source{CloneURL: fmt.Sprintf("https://github.com/%s/%s.git", owner, name), Name: name}, nil
	}

	info, err := vcsurl.Parse(raw)
	if err != nil {
		return Source{}, fmt.Errorf("%w: parse %q: %w", ErrClone, raw, err)
	}
	if strings.HasPrefix(raw, "git@") || strings.HasPrefix(raw, "ssh://") {
		return Source{CloneURL: raw, Name: info.Name}, nil
	}
	owner, name, ok := splitOwnerRepo(info.FullName)
	if !ok {
		return Source{}, fmt.Errorf("%w: invalid repository url %q", ErrClone, raw)
	}
	if err := validateRepoDirName(name); err != nil {
		return Source{}, err
	}
	return Source{CloneURL: fmt.Sprintf("https://%s/%s/%s.git", info.Host, owner, name), Name: name}, nil
}

func splitOwnerRepo(repoPath string) (owner, repo string, ok bool) {
	repoPath = strings.Trim(strings.TrimSuffix(strings.TrimSpace(repoPath), ".git"), "/")
	parts := strings.Split(repoPath, "/")
	if len(parts) < 2 {
		return "", "", false
	}
	owner = strings.TrimSpace(parts[len(parts)-2])
	repo = strings.TrimSpace(parts[len(parts)-1])
	if owner == "" || repo == "" {
		return "", "", false
	}
	return owner, repo, true
}

func validateRepoDirName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" || name == "." || name == ".." {
		return fmt.Errorf("%w: invalid repository name %q", ErrClone, name)
	}
	if strings.ContainsAny(name, `/\`) || path.Clean(name) != name {
		return fmt.Errorf("%w: repository name must be a single path segment", ErrClone)
	}
	return nil
}

// Checkout is a working copy ready to be scanned.
type Checkout struct {
	Dir    string
	Name   string
	remove bool
}

// Cleanup removes a temporary clone. It is a no-op for local directories.
func (c *Checkout) Cleanup() error {
	if c == nil || !c.remove || c.Dir == "" {
		return nil
	}
	return RemoveAll(c.Dir)
}

type Cloner struct {
	Depth   int
	TempDir string
	Timeout time.Duration
	Logger  hclog.Logger

	// AllowLocal accepts existing directories (used in place) and file://
	// URLs. Leave it off when the reference comes from a remote caller.
	AllowLocal bool
}

func NewCloner(logger hclog.Logger) *Cloner {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Cloner{Depth: 1, Timeout: 10 * time.Minute, Logger: logger}
}

// Clone fetches raw into a fresh temp directory. On failure the directory
// is removed before returning. Local references are refused unless
// AllowLocal is set.
func (c *Cloner) Clone(ctx context.Context, raw string) (*Checkout, error) {
	src, err := Normalize(raw)
	if err != nil {
		return nil, err
	}
	if !c.AllowLocal && (src.LocalDir != "" || strings.HasPrefix(src.CloneURL, "file://")) {
		return nil, ErrLocalNotAllowed
	}
	if src.LocalDir != "" {
		c.Logger.Debug("using local directory", "dir", src.LocalDir)
		return &Checkout{Dir: src.LocalDir, Name: src.Name}, nil
	}

	dir, err := os.MkdirTemp(c.TempDir, "guardian-"+src.Name+"-")
	if err != nil {
		return nil, fmt.Errorf("%w: temp dir: %w", ErrClone, err)
	}
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}
	opts := &git.CloneOptions{URL: src.CloneURL}
	if c.Depth > 0 && !strings.HasPrefix(src.CloneURL, "file://") {
		opts.Depth = c.Depth
	}
	c.Logger.Info("cloning repository", "url", src.CloneURL, "dir", dir)
	if _, err := git.PlainCloneContext(ctx, dir, false, opts); err != nil {
		if rmErr := RemoveAll(dir); rmErr != nil {
			c.Logger.Warn("failed to remove partial clone", "dir", dir, "error", rmErr)
		}
		return nil, fmt.Errorf("%w: %s: %w", ErrClone, src.CloneURL, err)
	}
	return &Checkout{Dir: dir, Name: src.Name, remove: true}, nil
}

// RemoveAll deletes dir. If the first attempt fails (typically read-only
// git pack files), write permission is restored on every entry and the
// removal is retried once.
func RemoveAll(dir string) error {
	err := os.RemoveAll(dir)
	if err == nil {
		return nil
	}
	_ = filepath.WalkDir(dir, func(p string, d fs.DirEntry, werr error) error {
		if werr != nil {
			return nil
		}
		mode := os.FileMode(0o600)
		if d.IsDir() {
			mode = 0o700
		}
		_ = os.Chmod(p, mode)
		return nil
	})
	if err2 := os.RemoveAll(dir); err2 != nil {
		return fmt.Errorf("remove %s: %w", dir, err2)
	}
	return nil
}
