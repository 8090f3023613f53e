// Package audiostore persists synthesized and recorded audio on the
// local filesystem and hands out URLs the carrier can fetch. Temp files
// live for the duration of a call; cache files are permanent.
package audiostore

import (
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	tempDir  = "temp"
	cacheDir = "cache"

	// Files whose URL was handed out within this window are never
	// purged, regardless of age.
	issueGuard = time.Minute
)

// Stats reports the current file counts per tier.
type Stats struct {
	TempCount  int `json:"temp_count"`
	CacheCount int `json:"cache_count"`
}

// PutResult is the handle returned for a stored blob.
type PutResult struct {
	URL string
	ID  string
}

// Store is a local filesystem audio store serving files under
// {baseURL}/audio/…. Writes are atomic (temp file + rename) so a URL is
// never returned before the blob is durable.
type Store struct {
	dir     string
	baseURL string
	log     zerolog.Logger

	mu     sync.Mutex
	issued map[string]time.Time // relative path → last URL grant
}

func New(dir, baseURL string, log zerolog.Logger) (*Store, error) {
	for _, sub := range []string{tempDir, cacheDir} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("mkdir %s: %w", sub, err)
		}
	}
	return &Store{
		dir:     dir,
		baseURL: baseURL,
		log:     log,
		issued:  make(map[string]time.Time),
	}, nil
}

// Dir returns the store root, for static file serving.
func (s *Store) Dir() string { return s.dir }

// Put stores a per-call blob and returns its public URL. kind names the
// purpose (greeting, response, recording) and becomes part of the file
// name for debuggability.
func (s *Store) Put(callID string, data []byte, kind string) (PutResult, error) {
	id := uuid.NewString()
	name := fmt.Sprintf("%s-%s-%s%s", kind, callID, id[:8], sniffExt(data))
	rel := filepath.Join(tempDir, name)

	if err := s.writeAtomic(rel, data); err != nil {
		return PutResult{}, err
	}

	s.markIssued(rel)
	return PutResult{URL: s.urlFor(rel), ID: id}, nil
}

// PutCached stores a permanent cache blob under the given key.
func (s *Store) PutCached(key string, data []byte) (string, error) {
	rel := filepath.Join(cacheDir, key+sniffExt(data))
	if err := s.writeAtomic(rel, data); err != nil {
		return "", err
	}
	s.markIssued(rel)
	return s.urlFor(rel), nil
}

// CachedURL returns the URL for a cached key, or "" when absent.
func (s *Store) CachedURL(key string) string {
	for _, ext := range []string{".mp3", ".wav"} {
		rel := filepath.Join(cacheDir, key+ext)
		if _, err := os.Stat(filepath.Join(s.dir, rel)); err == nil {
			s.markIssued(rel)
			return s.urlFor(rel)
		}
	}
	return ""
}

// PurgeOlderThan removes temp files older than the retention. Cache
// files are never touched, and neither is any file whose URL was handed
// out within the last minute.
func (s *Store) PurgeOlderThan(retention time.Duration) (int, error) {
	cutoff := time.Now().Add(-retention)
	root := filepath.Join(s.dir, tempDir)

	var removed int
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		if !info.ModTime().Before(cutoff) {
			return nil
		}
		rel, relErr := filepath.Rel(s.dir, path)
		if relErr != nil {
			return nil
		}
		if s.recentlyIssued(rel) {
			return nil
		}
		if rmErr := os.Remove(path); rmErr == nil {
			removed++
			s.forget(rel)
		}
		return nil
	})
	if removed > 0 {
		s.log.Debug().Int("removed", removed).Msg("temp audio purged")
	}
	return removed, err
}

// Stats counts files per tier.
func (s *Store) Stats() Stats {
	return Stats{
		TempCount:  countFiles(filepath.Join(s.dir, tempDir)),
		CacheCount: countFiles(filepath.Join(s.dir, cacheDir)),
	}
}

func (s *Store) writeAtomic(rel string, data []byte) error {
	path := filepath.Join(s.dir, rel)
	dir := filepath.Dir(path)

	tmp, err := os.CreateTemp(dir, ".audio-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}

func (s *Store) urlFor(rel string) string {
	return s.baseURL + "/audio/" + filepath.ToSlash(rel)
}

func (s *Store) markIssued(rel string) {
	s.mu.Lock()
	s.issued[rel] = time.Now()
	s.mu.Unlock()
}

func (s *Store) recentlyIssued(rel string) bool {
	s.mu.Lock()
	t, ok := s.issued[rel]
	s.mu.Unlock()
	return ok && time.Since(t) < issueGuard
}

func (s *Store) forget(rel string) {
	s.mu.Lock()
	delete(s.issued, rel)
	s.mu.Unlock()
}

// sniffExt picks a file extension from the blob's magic bytes.
func sniffExt(data []byte) string {
	if bytes.HasPrefix(data, []byte("RIFF")) {
		return ".wav"
	}
	return ".mp3"
}

func countFiles(dir string) int {
	n := 0
	filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err == nil && !d.IsDir() {
			n++
		}
		return nil
	})
	return n
}
