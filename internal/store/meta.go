package store

import (
	"fmt"
	"time"

	"github.com/mschirtzinger/tasksync/internal/schema"
)

// ReadSyncMetadata returns the last sync metadata, or nil before the first
// successful sync.
func (s *Store) ReadSyncMetadata() (*schema.SyncMetadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var meta schema.SyncMetadata
	ok, err := readJSON(s.conn, KeySyncMeta, &meta)
	if err != nil || !ok {
		return nil, err
	}
	return &meta, nil
}

// WriteSyncMetadata replaces the stored sync metadata.
func (s *Store) WriteSyncMetadata(meta *schema.SyncMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.update(func(q querier) error {
		return s.writeJSON(q, KeySyncMeta, meta)
	})
}

// MigrationStatus reports whether migration already completed on this device
// and when.
func (s *Store) MigrationStatus() (bool, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var done bool
	if _, err := readJSON(s.conn, KeyMigrationComplete, &done); err != nil {
		return false, time.Time{}, err
	}
	if !done {
		return false, time.Time{}, nil
	}

	var at time.Time
	if _, err := readJSON(s.conn, KeyMigrationCompletedAt, &at); err != nil {
		return true, time.Time{}, err
	}
	return true, at, nil
}

// MarkMigrationComplete persists the completion flag and timestamp together.
func (s *Store) MarkMigrationComplete(at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.update(func(q querier) error {
		if err := s.writeJSON(q, KeyMigrationCompletedAt, at.UTC()); err != nil {
			return err
		}
		if err := s.writeJSON(q, KeyMigrationComplete, true); err != nil {
			return fmt.Errorf("failed to persist migration flag: %w", err)
		}
		return nil
	})
}

// Session returns the persisted remote session, or nil if none.
func (s *Store) Session() (*schema.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var sess schema.Session
	ok, err := readJSON(s.conn, KeySession, &sess)
	if err != nil || !ok {
		return nil, err
	}
	return &sess, nil
}

// SaveSession persists sess; a nil session clears the stored one.
func (s *Store) SaveSession(sess *schema.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.update(func(q querier) error {
		if sess == nil {
			return deleteKey(q, KeySession)
		}
		return s.writeJSON(q, KeySession, sess)
	})
}
