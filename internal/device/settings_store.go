package device

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"go.etcd.io/bbolt"
)

const (
	storeDirPermissions  = 0750
	storeFilePermissions = 0600
	storeOpenTimeout     = 5 * time.Second
)

var settingsBucket = []byte("settings")

// SettingsSnapshot is the last settings envelope a device reported.
type SettingsSnapshot struct {
	Settings
	Topic      string    `json:"topic"`
	ReceivedAt time.Time `json:"receivedAt"`
}

// SettingsStore keeps the latest SettingsSnapshot per device in a bbolt file.
//
// Thread Safety: safe for concurrent use; bbolt serialises writers.
type SettingsStore struct {
	db *bbolt.DB

	mu     sync.RWMutex
	closed bool
}

// OpenSettingsStore opens (creating if needed) the bbolt file at path.
func OpenSettingsStore(path string) (*SettingsStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), storeDirPermissions); err != nil {
		return nil, fmt.Errorf("creating settings store directory: %w", err)
	}

	db, err := bbolt.Open(path, storeFilePermissions, &bbolt.Options{Timeout: storeOpenTimeout})
	if err != nil {
		return nil, fmt.Errorf("opening settings store: %w", err)
	}

	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(settingsBucket)
		return err
	}); err != nil {
		db.Close() //nolint:errcheck // best effort cleanup on error path
		return nil, fmt.Errorf("creating settings bucket: %w", err)
	}

	return &SettingsStore{db: db}, nil
}

func settingsKey(deviceID int) []byte {
	return []byte(strconv.Itoa(deviceID))
}

// Put replaces the snapshot for snap.DeviceID.
func (s *SettingsStore) Put(snap SettingsSnapshot) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encoding settings snapshot: %w", err)
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(settingsBucket).Put(settingsKey(snap.DeviceID), data)
	})
}

// Get returns the snapshot for deviceID, or ErrSettingsNotFound.
func (s *SettingsStore) Get(deviceID int) (*SettingsSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}

	var snap *SettingsSnapshot
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(settingsBucket).Get(settingsKey(deviceID))
		if data == nil {
			return ErrSettingsNotFound
		}
		// data is only valid inside the transaction; decoding copies it.
		snap = &SettingsSnapshot{}
		return json.Unmarshal(data, snap)
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// List returns every stored snapshot, ordered by the key's byte order.
func (s *SettingsStore) List() ([]SettingsSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}

	snaps := []SettingsSnapshot{}
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(settingsBucket).ForEach(func(_, v []byte) error {
			var snap SettingsSnapshot
			if err := json.Unmarshal(v, &snap); err != nil {
				return fmt.Errorf("decoding settings snapshot: %w", err)
			}
			snaps = append(snaps, snap)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return snaps, nil
}

// Close closes the bbolt file. Safe to call twice.
func (s *SettingsStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
