package expr

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
)

const lockFileName = ".stateflow.lock"

// Cache persists compiled programs on disk, keyed by choice name and content
// hash. Artifacts are JSON-serialized statement trees written atomically
// (temp file + rename); a directory-level flock serializes save+GC across
// processes. Layout:
//
//	<dir>/<safe(choice)>_<hash[:8]>.json   serialized Program
//	<dir>/<safe(choice)>_metadata.json     hash, cache_file, jsonpath_params, created_at
type Cache struct {
	dir string
}

type cacheMetadata struct {
	Hash           string            `json:"hash"`
	ChoiceName     string            `json:"choice_name"`
	CacheFile      string            `json:"cache_file"`
	JSONPathParams map[string]string `json:"jsonpath_params"`
	CreatedAt      string            `json:"created_at"`
}

// NewCache creates a Cache rooted at dir. The directory is created lazily on
// the first Save.
func NewCache(dir string) *Cache {
	return &Cache{dir: dir}
}

// Dir returns the cache root directory.
func (c *Cache) Dir() string { return c.dir }

// Load returns the cached program for a choice if the stored metadata hash
// matches and the artifact file exists. A stale or missing entry returns
// ErrCacheMiss; a present but unreadable artifact returns the underlying
// error.
func (c *Cache) Load(choiceName, hash string) (*Program, error) {
	meta, err := c.readMetadata(choiceName)
	if err != nil {
		return nil, err
	}
	if meta.Hash != hash {
		return nil, fmt.Errorf("%w: %s: hash changed", ErrCacheMiss, choiceName)
	}

	artifact := c.artifactPath(choiceName, hash)
	data, err := os.ReadFile(artifact)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s: artifact missing", ErrCacheMiss, choiceName)
		}
		return nil, fmt.Errorf("read artifact %s: %w", artifact, err)
	}

	var program Program
	if err := json.Unmarshal(data, &program); err != nil {
		return nil, fmt.Errorf("decode artifact %s: %w", artifact, err)
	}
	if program.Params == nil {
		program.Params = meta.JSONPathParams
	}
	if err := program.bind(); err != nil {
		return nil, err
	}
	return &program, nil
}

// Save writes the program artifact and its metadata, then garbage-collects
// prior artifacts for the same choice whose hash prefix differs. The whole
// sequence runs under the cache directory lock, so concurrent compilers for
// the same choice serialize; same-hash writers are idempotent.
func (c *Cache) Save(program *Program, hash string) (string, error) {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return "", fmt.Errorf("create cache dir: %w", err)
	}

	lock := flock.New(filepath.Join(c.dir, lockFileName))
	if err := lock.Lock(); err != nil {
		return "", fmt.Errorf("lock cache dir: %w", err)
	}
	defer lock.Unlock()

	artifact := c.artifactPath(program.ChoiceName, hash)

	data, err := json.MarshalIndent(program, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode artifact: %w", err)
	}
	if err := c.writeAtomic(artifact, data); err != nil {
		return "", err
	}

	meta := cacheMetadata{
		Hash:           hash,
		ChoiceName:     program.ChoiceName,
		CacheFile:      artifact,
		JSONPathParams: program.Params,
		CreatedAt:      time.Now().UTC().Format(time.RFC3339),
	}
	metaData, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode metadata: %w", err)
	}
	if err := c.writeAtomic(c.metadataPath(program.ChoiceName), metaData); err != nil {
		return "", err
	}

	c.collectGarbage(program.ChoiceName, hash)

	return artifact, nil
}

func (c *Cache) readMetadata(choiceName string) (*cacheMetadata, error) {
	data, err := os.ReadFile(c.metadataPath(choiceName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s: no metadata", ErrCacheMiss, choiceName)
		}
		return nil, fmt.Errorf("read metadata: %w", err)
	}

	var meta cacheMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("%w: %s: corrupt metadata", ErrCacheMiss, choiceName)
	}
	return &meta, nil
}

// collectGarbage removes artifacts for the same choice with a different
// hash prefix. Only files shaped exactly like this choice's artifacts
// (safe name, one underscore, eight hex digits) qualify: another choice
// whose safe name merely starts with the same prefix, and every metadata
// file, stay untouched. Best-effort: removal errors leave stragglers for
// the next successful save.
func (c *Cache) collectGarbage(choiceName, currentHash string) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return
	}

	prefix := safeName(choiceName) + "_"
	keep := filepath.Base(c.artifactPath(choiceName, currentHash))

	for _, entry := range entries {
		name := entry.Name()
		if name == keep || !strings.HasPrefix(name, prefix) {
			continue
		}
		if !isArtifactSuffix(strings.TrimPrefix(name, prefix)) {
			continue
		}
		os.Remove(filepath.Join(c.dir, name))
	}
}

// isArtifactSuffix reports whether rest is "<8 hex digits>.json", the tail
// of an artifact filename after the choice prefix.
func isArtifactSuffix(rest string) bool {
	const suffix = ".json"
	if len(rest) != 8+len(suffix) || !strings.HasSuffix(rest, suffix) {
		return false
	}
	for i := 0; i < 8; i++ {
		c := rest[i]
		if c >= '0' && c <= '9' || c >= 'a' && c <= 'f' {
			continue
		}
		return false
	}
	return true
}

func (c *Cache) writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(c.dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func (c *Cache) artifactPath(choiceName, hash string) string {
	return filepath.Join(c.dir, fmt.Sprintf("%s_%s.json", safeName(choiceName), hashPrefix(hash)))
}

func (c *Cache) metadataPath(choiceName string) string {
	return filepath.Join(c.dir, safeName(choiceName)+"_metadata.json")
}

func hashPrefix(hash string) string {
	if len(hash) > 8 {
		return hash[:8]
	}
	return hash
}

// safeName maps a choice name to a filesystem-safe identifier.
func safeName(name string) string {
	out := make([]byte, len(name))
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '_' {
			out[i] = c
		} else {
			out[i] = '_'
		}
	}
	return string(out)
}
