// Package store keeps decoded-and-validated bytecode blocks in a sqlite
// database, content addressed by the SHA-256 of their encoding.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/tliron/commonlog"
	_ "modernc.org/sqlite"

	"github.com/vgxbj/Kagami/blockfile"
	"github.com/vgxbj/Kagami/vm"
)

// ErrBlockNotFound indicates the requested digest is not stored.
var ErrBlockNotFound = errors.New("block not found")

var schema = []string{
	`CREATE TABLE IF NOT EXISTS blocks (
		digest     TEXT PRIMARY KEY,
		name       TEXT NOT NULL,
		data       BLOB NOT NULL,
		created_at INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS scripts (
		path     TEXT PRIMARY KEY,
		size     INTEGER NOT NULL,
		mod_time INTEGER NOT NULL,
		digest   TEXT NOT NULL
	)`,
}

// BlockStore is a sqlite-backed block cache. It implements
// blockfile.Cache.
type BlockStore struct {
	db   *sql.DB
	path string
	mu   sync.Mutex
	log  commonlog.Logger
}

var _ blockfile.Cache = (*BlockStore)(nil)

// Open opens or creates the store at path. ":memory:" gives a private
// in-memory store.
func Open(path string) (*BlockStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("creating store directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// one connection keeps ":memory:" a single database
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("creating tables: %w", err)
		}
	}
	return &BlockStore{db: db, path: path, log: commonlog.GetLogger("kagami.store")}, nil
}

// Path returns the database path.
func (s *BlockStore) Path() string { return s.path }

// Close closes the database connection.
func (s *BlockStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Put stores b and returns its digest. Storing the same block twice is a
// no-op.
func (s *BlockStore) Put(b *vm.Block) (string, error) {
	data, err := blockfile.Marshal(b)
	if err != nil {
		return "", err
	}
	digest := blockfile.Digest(data)

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.Exec(`INSERT OR IGNORE INTO blocks (digest, name, data, created_at) VALUES (?, ?, ?, ?)`,
		digest, b.Name, data, time.Now().Unix())
	if err != nil {
		return "", fmt.Errorf("saving block %s: %w", b.Name, err)
	}
	return digest, nil
}

// Get returns the block stored under digest.
func (s *BlockStore) Get(digest string) (*vm.Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.get(digest)
}

func (s *BlockStore) get(digest string) (*vm.Block, error) {
	var data []byte
	err := s.db.QueryRow(`SELECT data FROM blocks WHERE digest = ?`, digest).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBlockNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading block %s: %w", digest, err)
	}
	if got := blockfile.Digest(data); got != digest {
		return nil, fmt.Errorf("block %s is corrupt (digest %s)", digest, got)
	}
	return blockfile.Unmarshal(data)
}

// Has reports whether digest is stored.
func (s *BlockStore) Has(digest string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM blocks WHERE digest = ?`, digest).Scan(&n)
	return err == nil && n > 0
}

// Lookup implements blockfile.Cache.
func (s *BlockStore) Lookup(path string, size, modTime int64) (*vm.Block, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var digest string
	err := s.db.QueryRow(`SELECT digest FROM scripts WHERE path = ? AND size = ? AND mod_time = ?`,
		path, size, modTime).Scan(&digest)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.log.Warningf("lookup %s: %s", path, err)
		}
		return nil, false
	}
	b, err := s.get(digest)
	if err != nil {
		s.log.Warningf("lookup %s: %s", path, err)
		return nil, false
	}
	return b, true
}

// Save implements blockfile.Cache.
func (s *BlockStore) Save(path string, size, modTime int64, b *vm.Block) error {
	digest, err := s.Put(b)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.Exec(`INSERT OR REPLACE INTO scripts (path, size, mod_time, digest) VALUES (?, ?, ?, ?)`,
		path, size, modTime, digest)
	if err != nil {
		return fmt.Errorf("recording %s: %w", path, err)
	}
	return nil
}

// Stats returns the number of stored blocks and recorded script files.
func (s *BlockStore) Stats() (blocks, scripts int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err = s.db.QueryRow(`SELECT COUNT(*) FROM blocks`).Scan(&blocks); err != nil {
		return 0, 0, err
	}
	if err = s.db.QueryRow(`SELECT COUNT(*) FROM scripts`).Scan(&scripts); err != nil {
		return 0, 0, err
	}
	return blocks, scripts, nil
}

// Prune deletes blocks no script file refers to and returns how many were
// removed.
func (s *BlockStore) Prune() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.Exec(`DELETE FROM blocks WHERE digest NOT IN (SELECT digest FROM scripts)`)
	if err != nil {
		return 0, fmt.Errorf("pruning blocks: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.log.Infof("pruned %d block(s)", n)
	}
	return n, nil
}
