// Package cache stores compiled modules in SQLite, keyed by the digest of
// the KIR source they were compiled from.
package cache

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

	"github.com/chazu/kryon/compiler/hash"
	"github.com/chazu/kryon/vm"
)

var log = commonlog.GetLogger("kryon.cache")

// ErrNotFound indicates no module is cached for a source digest.
var ErrNotFound = errors.New("module not cached")

// Entry is one cached compilation.
type Entry struct {
	Source  hash.Digest
	Program hash.Digest // structural hash of the compiled program
	Debug   bool
	Module  []byte // serialized module
	Created time.Time
}

// Cache handles SQLite storage for compiled modules.
type Cache struct {
	db     *sql.DB
	dbPath string
	mu     sync.Mutex
}

// Open opens (creating if needed) the cache database at dbPath.
func Open(dbPath string) (*Cache, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating cache dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Set busy timeout for concurrent access
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS modules (
		source  TEXT NOT NULL,
		debug   INTEGER NOT NULL,
		program TEXT NOT NULL,
		module  BLOB NOT NULL,
		created INTEGER NOT NULL,
		PRIMARY KEY (source, debug)
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating table: %w", err)
	}

	return &Cache{db: db, dbPath: dbPath}, nil
}

// Path returns the database path.
func (c *Cache) Path() string { return c.dbPath }

// Close closes the database connection.
func (c *Cache) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Put stores a compiled module, replacing any entry for the same source and
// debug flag.
func (c *Cache) Put(source hash.Digest, program hash.Digest, m *vm.Module) error {
	data, err := m.MarshalBinary()
	if err != nil {
		return fmt.Errorf("serializing module: %w", err)
	}
	debug := m.Header.Flags&vm.FlagDebug != 0

	c.mu.Lock()
	defer c.mu.Unlock()

	_, err = c.db.Exec(
		"INSERT OR REPLACE INTO modules (source, debug, program, module, created) VALUES (?, ?, ?, ?, ?)",
		source.String(), debug, program.String(), data, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("saving module: %w", err)
	}
	log.Debugf("stored %s (%d bytes)", source.Short(), len(data))
	return nil
}

// Lookup returns the raw entry for source, or ErrNotFound.
func (c *Cache) Lookup(source hash.Digest, debug bool) (*Entry, error) {
	var (
		program string
		data    []byte
		created int64
	)
	err := c.db.QueryRow(
		"SELECT program, module, created FROM modules WHERE source = ? AND debug = ?",
		source.String(), debug,
	).Scan(&program, &data, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Debugf("miss %s", source.Short())
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying module: %w", err)
	}

	e := &Entry{
		Source:  source,
		Debug:   debug,
		Module:  data,
		Created: time.Unix(created, 0),
	}
	if e.Program, err = hash.ParseDigest(program); err != nil {
		return nil, fmt.Errorf("corrupt cache entry %s: %w", source.Short(), err)
	}
	log.Debugf("hit %s", source.Short())
	return e, nil
}

// Get returns the decoded module cached for source. An entry that no longer
// decodes is dropped and reported as ErrNotFound.
func (c *Cache) Get(source hash.Digest, debug bool) (*vm.Module, error) {
	e, err := c.Lookup(source, debug)
	if err != nil {
		return nil, err
	}
	m, err := vm.UnmarshalModule(e.Module)
	if err != nil {
		log.Warningf("dropping unreadable entry %s: %s", source.Short(), err)
		if derr := c.Delete(source); derr != nil {
			return nil, derr
		}
		return nil, ErrNotFound
	}
	return m, nil
}

// Delete removes every entry for source.
func (c *Cache) Delete(source hash.Digest) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.db.Exec("DELETE FROM modules WHERE source = ?", source.String()); err != nil {
		return fmt.Errorf("deleting module: %w", err)
	}
	return nil
}

// Len returns the number of cached entries.
func (c *Cache) Len() (int, error) {
	var n int
	if err := c.db.QueryRow("SELECT COUNT(*) FROM modules").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting modules: %w", err)
	}
	return n, nil
}

// Prune removes entries created before cutoff and returns how many went.
func (c *Cache) Prune(cutoff time.Time) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	res, err := c.db.Exec("DELETE FROM modules WHERE created < ?", cutoff.Unix())
	if err != nil {
		return 0, fmt.Errorf("pruning modules: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}
