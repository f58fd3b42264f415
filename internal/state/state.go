package state

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/hoopsfinance/dashboard-auth/internal/models"
	bolt "go.etcd.io/bbolt"
)

const (
	// stateDirPerm is the permission mode for the database directory.
	stateDirPerm = fs.FileMode(0o700)

	// stateFilePerm is the permission mode for the session database file.
	stateFilePerm = fs.FileMode(0o600)

	// stateOpenTimeout is the maximum time to wait for the bolt database lock.
	stateOpenTimeout = 5 * time.Second
)

var sessionsBucket = []byte("sessions")

// sessionKey returns the SHA-256 hex digest of a session id. Used as the
// bbolt key so a copy of the database does not reveal live session ids.
func sessionKey(id string) []byte {
	h := sha256.Sum256([]byte(id))
	dst := make([]byte, hex.EncodedLen(len(h)))
	hex.Encode(dst, h[:])

	return dst
}

// State wraps a bbolt database holding established sessions.
type State struct {
	db  *bolt.DB
	now func() time.Time
}

// LoadAt opens a session database at the given path, creating it if it
// does not exist.
func LoadAt(path string) (*State, error) {
	if err := os.MkdirAll(filepath.Dir(path), stateDirPerm); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}

	db, err := bolt.Open(path, stateFilePerm, &bolt.Options{Timeout: stateOpenTimeout})
	if err != nil {
		return nil, fmt.Errorf("opening state db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(sessionsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing state db: %w", err)
	}

	return &State{db: db, now: time.Now}, nil
}

// Close closes the database.
func (s *State) Close() error {
	return s.db.Close()
}

// SaveSession persists a session, replacing any record with the same id.
func (s *State) SaveSession(_ context.Context, sess *models.Session) error {
	if sess.ID == "" {
		return fmt.Errorf("session id is required for persistence")
	}

	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encoding session: %w", err)
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(sessionsBucket).Put(sessionKey(sess.ID), data)
	})
}

// Session returns the session with the given id, or nil if none exists.
// Expired sessions are returned as-is; callers check Expired.
func (s *State) Session(_ context.Context, id string) (*models.Session, error) {
	var sess *models.Session

	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(sessionsBucket).Get(sessionKey(id))
		if v == nil {
			return nil
		}

		sess = &models.Session{}

		return json.Unmarshal(v, sess)
	})
	if err != nil {
		return nil, fmt.Errorf("reading session: %w", err)
	}

	return sess, nil
}

// DeleteSession removes a session. Deleting a missing session is not an
// error.
func (s *State) DeleteSession(_ context.Context, id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(sessionsBucket).Delete(sessionKey(id))
	})
}

// PruneSessions deletes every expired session and returns how many were
// removed. Records that fail to decode are removed as well.
func (s *State) PruneSessions(_ context.Context) (int, error) {
	now := s.now()
	removed := 0

	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(sessionsBucket)

		var stale [][]byte

		err := b.ForEach(func(k, v []byte) error {
			var sess models.Session
			if err := json.Unmarshal(v, &sess); err != nil || sess.Expired(now) {
				stale = append(stale, append([]byte(nil), k...))
			}

			return nil
		})
		if err != nil {
			return err
		}

		// Deleting inside ForEach invalidates the cursor.
		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return err
			}
		}

		removed = len(stale)

		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("pruning sessions: %w", err)
	}

	return removed, nil
}

// SessionCount returns the number of stored sessions, expired or not.
func (s *State) SessionCount() int {
	n := 0

	_ = s.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(sessionsBucket).Stats().KeyN
		return nil
	})

	return n
}
