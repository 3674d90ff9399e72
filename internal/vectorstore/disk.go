package vectorstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"guardian/internal/embed"
)

const (
	diskDataFile = "passages.json"
	diskLockFile = ".lock"
)

// DiskStore persists passages under a directory. Only one process may have
// a directory open at a time; the lock file enforces that.
type DiskStore struct {
	*MemoryStore
	dir string

	mu     sync.Mutex
	locked bool
}

// OpenDisk opens (or creates) the store at dir. A held lock or an
// unreadable data file yields an error wrapping ErrStoreUnavailable.
// A lock left by a process that no longer runs is taken over.
func OpenDisk(dir string, emb embed.Embedder) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create %s: %w", ErrStoreUnavailable, dir, err)
	}
	lock := filepath.Join(dir, diskLockFile)
	if err := acquireLock(dir, lock); err != nil {
		return nil, err
	}

	s := &DiskStore{MemoryStore: NewMemory(emb), dir: dir, locked: true}
	entries, err := readEntries(filepath.Join(dir, diskDataFile))
	if err != nil {
		_ = os.Remove(lock)
		return nil, err
	}
	s.restore(entries)
	return s, nil
}

// acquireLock creates the lock file holding our pid.
func acquireLock(dir, lock string) error {
	for attempt := 0; ; attempt++ {
		f, err := os.OpenFile(lock, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			_, _ = f.WriteString(strconv.Itoa(os.Getpid()))
			return f.Close()
		}
		if !errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("%w: lock %s: %w", ErrStoreUnavailable, dir, err)
		}
		if attempt > 0 || !removeStaleLock(lock) {
			return fmt.Errorf("%w: %s is locked by another process", ErrStoreUnavailable, dir)
		}
	}
}

// removeStaleLock deletes lock when the pid it names is no longer running.
// An empty or unreadable lock counts as held: its owner may still be
// writing the pid.
func removeStaleLock(lock string) bool {
	raw, err := os.ReadFile(lock)
	if err != nil {
		return false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil || pid <= 0 || pid == os.Getpid() || processAlive(pid) {
		return false
	}
	again, err := os.ReadFile(lock)
	if err != nil || string(again) != string(raw) {
		return false
	}
	return os.Remove(lock) == nil
}

// OpenDiskWithRetry retries OpenDisk on contention with exponential backoff.
func OpenDiskWithRetry(ctx context.Context, dir string, emb embed.Embedder, attempts int, base time.Duration) (*DiskStore, error) {
	if attempts < 1 {
		attempts = 1
	}
	var last error
	for i := 0; i < attempts; i++ {
		s, err := OpenDisk(dir, emb)
		if err == nil {
			return s, nil
		}
		last = err
		if !errors.Is(err, ErrStoreUnavailable) || i == attempts-1 {
			break
		}
		t := time.NewTimer(base * time.Duration(1<<i))
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}
	return nil, last
}

func readEntries(path string) ([]entry, error) {
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", ErrStoreUnavailable, path, err)
	}
	var entries []entry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("%w: corrupted %s: %w", ErrStoreUnavailable, path, err)
	}
	return entries, nil
}

func (s *DiskStore) Dir() string { return s.dir }

func (s *DiskStore) Add(ctx context.Context, docs []Document) (AddStats, error) {
	stats, err := s.MemoryStore.Add(ctx, docs)
	if err != nil || stats.Added == 0 {
		return stats, err
	}
	return stats, s.flush()
}

func (s *DiskStore) flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, err := json.Marshal(s.snapshot())
	if err != nil {
		return err
	}
	tmp := filepath.Join(s.dir, diskDataFile+".tmp")
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	return os.Rename(tmp, filepath.Join(s.dir, diskDataFile))
}

// Close releases the directory lock.
func (s *DiskStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.locked {
		return nil
	}
	s.locked = false
	_ = s.MemoryStore.Close()
	if err := os.Remove(filepath.Join(s.dir, diskLockFile)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// DiskInfo describes a persisted store without opening it.
type DiskInfo struct {
	Path      string  `json:"path"`
	Exists    bool    `json:"exists"`
	Locked    bool    `json:"locked"`
	SizeBytes int64   `json:"size_bytes"`
	SizeMB    float64 `json:"size_mb"`
}

func Info(dir string) (DiskInfo, error) {
	info := DiskInfo{Path: dir}
	st, err := os.Stat(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return info, nil
	}
	if err != nil {
		return info, err
	}
	if !st.IsDir() {
		return info, fmt.Errorf("%s is not a directory", dir)
	}
	info.Exists = true
	if _, err := os.Stat(filepath.Join(dir, diskLockFile)); err == nil {
		info.Locked = true
	}
	err = filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		info.SizeBytes += fi.Size()
		return nil
	})
	info.SizeMB = float64(info.SizeBytes) / (1024 * 1024)
	return info, err
}

// ResetDisk deletes the store directory, retrying on failure. If it still
// cannot be removed, the directory is renamed to <dir>_backup_<unix> and
// that path is returned.
func ResetDisk(dir string, attempts int, delay time.Duration) (string, error) {
	if attempts < 1 {
		attempts = 1
	}
	if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	var last error
	for i := 0; i < attempts; i++ {
		if last = os.RemoveAll(dir); last == nil {
			return "", nil
		}
		if i < attempts-1 {
			time.Sleep(delay)
		}
	}
	backup := fmt.Sprintf("%s_backup_%d", dir, time.Now().Unix())
	if err := os.Rename(dir, backup); err != nil {
		return "", fmt.Errorf("%w: remove %s: %w; rename: %w", ErrStoreUnavailable, dir, last, err)
	}
	return backup, nil
}
