package titles

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"tools.zach/dev/chatbubble/internal/atomicfile"
)

// ///////////////////////////////////////////////
// Store
// ///////////////////////////////////////////////

// Store is the file-backed set of title records.
//
// Reads take a shared lock and return copies. Updates are serialized and
// written to disk before they return.
type Store struct {
	// path is the JSON file backing the store.
	path string
	// defaultTitle is used for records first created by a color update.
	defaultTitle string

	// mu guards records and lastSaved.
	mu sync.RWMutex
	// records maps user id to title record.
	records map[string]Record
	// lastSaved is the content of the most recent write, used to tell our
	// own writes apart from external edits.
	lastSaved []byte
}

// Open loads the store at path. A missing or empty file yields an empty
// store. A file that is not valid JSON is moved aside to path.corrupted and
// the store starts empty; the returned error is nil in that case.
func Open(path, defaultTitle string) (*Store, error) {
	if defaultTitle == "" {
		defaultTitle = DefaultTitle
	}
	records, data, err := readRecords(path)
	if err != nil {
		return nil, err
	}
	return &Store{path: path, defaultTitle: defaultTitle, records: records, lastSaved: data}, nil
}

// readRecords reads and decodes the file at path, recovering from a
// corrupted file by backing it up.
func readRecords(path string) (map[string]Record, []byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]Record{}, nil, nil
		}
		return nil, nil, fmt.Errorf("read titles file: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return map[string]Record{}, data, nil
	}

	records := map[string]Record{}
	if err := json.Unmarshal(data, &records); err != nil {
		recoverCorrupted(path, err)
		return map[string]Record{}, nil, nil
	}
	return records, data, nil
}

// recoverCorrupted moves a corrupted titles file aside so the next save
// starts clean while keeping the original for inspection.
func recoverCorrupted(path string, parseErr error) {
	backupPath := path + ".corrupted"
	if err := os.Rename(path, backupPath); err != nil {
		slog.Error("corrupted titles file could not be backed up", "path", path, "error", err)
		return
	}
	slog.Error("corrupted titles file backed up, starting empty", "path", path, "backup", backupPath, "error", parseErr)
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// Lookup returns a copy of the record for userID.
func (s *Store) Lookup(userID string) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[userID]
	if !ok {
		return Record{}, false
	}
	return r.clone(), true
}

// Snapshot returns a copy of every record.
func (s *Store) Snapshot() Map {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(Map, len(s.records))
	for id, r := range s.records {
		out[id] = r.clone()
	}
	return out
}

// Len returns the number of records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// SetColor sets the badge color of userID and saves the store.
func (s *Store) SetColor(userID, color string) (Record, error) {
	return s.update(userID, FieldColor, color)
}

// SetTitle sets the badge text of userID and saves the store.
func (s *Store) SetTitle(userID, title string) (Record, error) {
	return s.update(userID, FieldTitle, title)
}

// SetNote sets the display-name override of userID and saves the store.
func (s *Store) SetNote(userID, note string) (Record, error) {
	return s.update(userID, FieldNote, note)
}

// update applies one field update and persists the result. The in-memory
// record changes even if the save fails, matching what the next save writes.
func (s *Store) update(userID string, field Field, value string) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var existing *Record
	if r, ok := s.records[userID]; ok {
		existing = &r
	}
	rec := ApplyUpdate(existing, field, value, s.defaultTitle)
	s.records[userID] = rec

	if err := s.saveLocked(); err != nil {
		return rec.clone(), fmt.Errorf("save after %s update: %w", field, err)
	}
	slog.Debug("title record updated", "user", userID, "field", field.String())
	return rec.clone(), nil
}

// Save writes the store to disk.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked()
}

// saveLocked encodes and atomically writes the records. s.mu must be held.
func (s *Store) saveLocked() error {
	data, err := encodeRecords(s.records)
	if err != nil {
		return err
	}
	if err := atomicfile.Write(s.path, data, 0o644); err != nil {
		return fmt.Errorf("write titles file: %w", err)
	}
	s.lastSaved = data
	return nil
}

// encodeRecords renders records as indented JSON without HTML escaping so
// non-ASCII titles stay readable.
func encodeRecords(records map[string]Record) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(records); err != nil {
		return nil, fmt.Errorf("encode titles: %w", err)
	}
	return buf.Bytes(), nil
}

// Reload re-reads the backing file if it differs from the last write.
// It reports whether the in-memory records changed. The read happens under
// the write lock so a concurrent update cannot be replaced by older content.
func (s *Store) Reload() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("read titles file: %w", err)
	}
	if bytes.Equal(data, s.lastSaved) {
		return false, nil
	}
	records := map[string]Record{}
	if len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, &records); err != nil {
			// Likely a partial write by an editor; keep the current records.
			return false, fmt.Errorf("parse titles file: %w", err)
		}
	}
	s.records = records
	s.lastSaved = data
	return true, nil
}

// ///////////////////////////////////////////////
// Map
// ///////////////////////////////////////////////

// Map is an in-memory set of title records keyed by user id.
type Map map[string]Record

// Lookup returns the record for userID.
func (m Map) Lookup(userID string) (Record, bool) {
	r, ok := m[userID]
	return r, ok
}
