package store

import (
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/zeebo/xxh3"

	"github.com/DeusData/phplens/internal/types"
)

// Hash returns the content hash used to validate cached metadata.
func Hash(content []byte) string {
	sum := xxh3.Hash128(content).Bytes()
	return hex.EncodeToString(sum[:])
}

// CachedFile is one row of the files table.
type CachedFile struct {
	Path      string
	Hash      string
	Metadata  *types.FileMetadata
	IndexedAt string
}

// PutFile stores the metadata of path under its content hash.
func (s *Store) PutFile(path, hash string, meta *types.FileMetadata) error {
	data, err := meta.Encode()
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	_, err = s.q.Exec(`
		INSERT INTO files (path, hash, metadata, indexed_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET hash=excluded.hash, metadata=excluded.metadata, indexed_at=excluded.indexed_at`,
		path, hash, string(data), Now())
	if err != nil {
		return fmt.Errorf("put file %s: %w", path, err)
	}
	return nil
}

// GetFile returns the cached row for path, or nil when there is none.
func (s *Store) GetFile(path string) (*CachedFile, error) {
	var (
		f    CachedFile
		data string
	)
	err := s.q.QueryRow("SELECT path, hash, metadata, indexed_at FROM files WHERE path=?", path).
		Scan(&f.Path, &f.Hash, &data, &f.IndexedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get file %s: %w", path, err)
	}
	meta, err := types.DecodeMetadata([]byte(data))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	f.Metadata = meta
	return &f, nil
}

// Lookup returns cached metadata for path when its hash still matches.
func (s *Store) Lookup(path, hash string) (*types.FileMetadata, bool) {
	f, err := s.GetFile(path)
	if err != nil || f == nil || f.Hash != hash {
		return nil, false
	}
	return f.Metadata, true
}

// DeleteFile removes the cached row for path.
func (s *Store) DeleteFile(path string) error {
	_, err := s.q.Exec("DELETE FROM files WHERE path=?", path)
	return err
}

// FileHashes returns path → hash for every cached file.
func (s *Store) FileHashes() (map[string]string, error) {
	rows, err := s.q.Query("SELECT path, hash FROM files")
	if err != nil {
		return nil, fmt.Errorf("file hashes: %w", err)
	}
	defer rows.Close()
	result := make(map[string]string)
	for rows.Next() {
		var path, hash string
		if err := rows.Scan(&path, &hash); err != nil {
			return nil, err
		}
		result[path] = hash
	}
	return result, rows.Err()
}

// Prune deletes cached rows whose path is not in keep.
func (s *Store) Prune(keep map[string]bool) (int, error) {
	hashes, err := s.FileHashes()
	if err != nil {
		return 0, err
	}
	n := 0
	err = s.WithTransaction(func(tx *Store) error {
		for path := range hashes {
			if keep[path] {
				continue
			}
			if err := tx.DeleteFile(path); err != nil {
				return err
			}
			n++
		}
		return nil
	})
	return n, err
}

// Workspace is an indexed workspace root.
type Workspace struct {
	Root      string
	IndexedAt string
	FileCount int
}

// UpsertWorkspace records a completed workspace index.
func (s *Store) UpsertWorkspace(root string, fileCount int) error {
	_, err := s.q.Exec(`
		INSERT INTO workspaces (root, indexed_at, file_count) VALUES (?, ?, ?)
		ON CONFLICT(root) DO UPDATE SET indexed_at=excluded.indexed_at, file_count=excluded.file_count`,
		root, Now(), fileCount)
	return err
}

// GetWorkspace returns the workspace record for root, or nil.
func (s *Store) GetWorkspace(root string) (*Workspace, error) {
	var w Workspace
	err := s.q.QueryRow("SELECT root, indexed_at, file_count FROM workspaces WHERE root=?", root).
		Scan(&w.Root, &w.IndexedAt, &w.FileCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}
