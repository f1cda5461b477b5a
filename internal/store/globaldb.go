package store

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

type globalRecord struct {
	CellID uint32 `json:"cell_id"`
}

// GlobalDatabase holds fleet-wide persisted state shared by all bots.
// Concurrent writers race benignly: last writer wins.
type GlobalDatabase struct {
	mu   sync.Mutex
	path string
	rec  globalRecord
}

// LoadGlobalDatabase reads the shared database file, creating an empty
// record when the file does not exist yet.
func LoadGlobalDatabase(path string) (*GlobalDatabase, error) {
	db := &GlobalDatabase{path: path}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return db, nil
		}
		return nil, fmt.Errorf("reading global database %s: %w", path, err)
	}

	if err := json.Unmarshal(data, &db.rec); err != nil {
		return nil, fmt.Errorf("parsing global database %s: %w", path, err)
	}
	return db, nil
}

// CellID returns the last observed server-cell hint, 0 when unknown.
func (db *GlobalDatabase) CellID() uint32 {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.rec.CellID
}

// SetCellID stores the server-cell hint and persists immediately.
func (db *GlobalDatabase) SetCellID(id uint32) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.rec.CellID == id {
		return nil
	}
	db.rec.CellID = id
	return db.persistLocked()
}

func (db *GlobalDatabase) persistLocked() error {
	data, err := json.MarshalIndent(&db.rec, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding global database: %w", err)
	}
	if err := writeFileAtomic(db.path, data, 0o600); err != nil {
		return fmt.Errorf("persisting global database: %w", err)
	}
	return nil
}
