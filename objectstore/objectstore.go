// Package objectstore implements the local content-addressed blob store of
// spec section 4.4: blobs are laid out under
// <base>/<condition|"general">/<patient>/v<version>.bin and addressed by
// their SHA-256 digest.
package objectstore

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Store is a directory-rooted blob store.
type Store struct {
	baseDir string
}

// Open ensures baseDir exists and returns a Store rooted at it.
func Open(baseDir string) (*Store, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("objectstore: mkdir %s: %w", baseDir, err)
	}
	return &Store{baseDir: baseDir}, nil
}

// Put writes blob for (patientID, version) under the given condition
// (empty/"" normalizes to "general", matching spec section 4.4), and
// returns the path it was written to plus the blob's SHA-256 hex digest.
func (s *Store) Put(patientID string, version int, blob []byte, condition string) (path string, digest string, err error) {
	cond := normalizeCondition(condition)
	dir := filepath.Join(s.baseDir, cond, patientID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", fmt.Errorf("objectstore: mkdir %s: %w", dir, err)
	}
	p := filepath.Join(dir, fmt.Sprintf("v%d.bin", version))
	if err := os.WriteFile(p, blob, 0o600); err != nil {
		return "", "", fmt.Errorf("objectstore: write %s: %w", p, err)
	}
	return p, Hash(blob), nil
}

// Get reads back the blob at path. path must resolve inside the store's
// base directory; the directory-scoped safe-join (adapted from the
// teacher's node.readFileFromDir) rejects any attempt to escape it, so a
// corrupted or malicious ledger blob_path can never read outside the
// object store.
func (s *Store) Get(path string) ([]byte, error) {
	rel, err := filepath.Rel(s.baseDir, path)
	if err != nil {
		return nil, fmt.Errorf("objectstore: path %q not under base: %w", path, err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return nil, fmt.Errorf("objectstore: path %q escapes base directory", path)
	}
	dir := filepath.Join(s.baseDir, filepath.Dir(rel))
	name := filepath.Base(rel)
	return readFileFromDir(dir, name)
}

// Hash returns the SHA-256 hex digest of blob.
func Hash(blob []byte) string {
	sum := sha256.Sum256(blob)
	return hex.EncodeToString(sum[:])
}

func normalizeCondition(condition string) string {
	if condition == "" {
		return "general"
	}
	return condition
}

// readFileFromDir reads name from dir, rejecting any name that is not a
// plain path component (no traversal, no absolute paths), adapted from
// the teacher's node/safeio.go.
func readFileFromDir(dir, name string) ([]byte, error) {
	if name == "" || name == "." || name == ".." || filepath.Base(name) != name {
		return nil, fmt.Errorf("objectstore: invalid file name %q", name)
	}
	return fs.ReadFile(os.DirFS(dir), name)
}
