// Package storage owns the transient session directories holding
// credential and key material for in-flight pairing requests.
package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pairforge/agent/internal/models"
)

// CredentialFileName is the primary credential file inside a session
// directory. Auxiliary key-store files written by the protocol gateway
// live alongside it and are removed with the directory.
const CredentialFileName = "creds.json"

// Store reads and removes session directories. One Store is shared by
// all requests; it holds no per-session state.
type Store struct {
	removeAttempts int
	removeBackoff  time.Duration

	// removeFn is the recursive delete primitive; tests substitute it
	// to exercise the retry path.
	removeFn func(path string) error
}

// NewStore returns a store whose retried cleanup makes removeAttempts
// passes with linearly increasing backoff (backoff, 2*backoff, ...).
func NewStore(removeAttempts int, removeBackoff time.Duration) *Store {

	if removeAttempts < 1 {
		removeAttempts = 1
	}

	return &Store{
		removeAttempts: removeAttempts,
		removeBackoff:  removeBackoff,
		removeFn:       os.RemoveAll,
	}
}

// Exists reports whether path is present on disk.
func (s *Store) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Remove deletes path recursively. Removing an absent path is a no-op
// and returns false with no error, so redundant cleanup calls across
// overlapping code paths stay safe.
func (s *Store) Remove(path string) (bool, error) {

	if !s.Exists(path) {
		return false, nil
	}

	if err := s.removeFn(path); err != nil {
		return false, fmt.Errorf("%w: removing %s: %s", models.ErrStorage, path, err.Error())
	}

	return true, nil
}

// Cleanup removes dir with bounded retries. A leftover directory is a
// recoverable nuisance, not a fatal condition: failures are logged and
// swallowed, and the last attempt's success is reported to the caller.
func (s *Store) Cleanup(ctx context.Context, dir string) bool {

	for attempt := 1; attempt <= s.removeAttempts; attempt++ {

		removed, err := s.Remove(dir)

		if err == nil {
			if removed {
				logrus.WithFields(logrus.Fields{
					"dir": dir,
				}).Debugln("Session directory cleaned up")
			}
			return true
		}

		logrus.WithError(err).WithFields(logrus.Fields{
			"dir":     dir,
			"attempt": attempt,
		}).Warnln("Session directory cleanup attempt failed")

		if attempt < s.removeAttempts {
			select {
			case <-time.After(time.Duration(attempt) * s.removeBackoff):
			case <-ctx.Done():
				return false
			}
		}
	}

	logrus.WithFields(logrus.Fields{
		"dir":      dir,
		"attempts": s.removeAttempts,
	}).Errorln("Giving up on session directory cleanup")

	return false
}

// Prepare resets dir for a new pairing attempt: any stale directory
// from an abandoned prior attempt is purged first (last writer wins),
// then a fresh empty directory is created.
func (s *Store) Prepare(ctx context.Context, dir string) error {

	if s.Exists(dir) {
		logrus.WithFields(logrus.Fields{
			"dir": dir,
		}).Infoln("Purging stale session directory")
		s.Cleanup(ctx, dir)
	}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("%w: creating %s: %s", models.ErrStorage, dir, err.Error())
	}

	return nil
}

// ReadCredentialFile returns the credential bundle for dir.
func (s *Store) ReadCredentialFile(dir string) ([]byte, error) {

	path := filepath.Join(dir, CredentialFileName)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %s", models.ErrStorage, path, err.Error())
	}

	if len(data) == 0 {
		return nil, fmt.Errorf("%w: credential file %s is empty", models.ErrStorage, path)
	}

	return data, nil
}

// WriteCredentialFile persists updated key material into dir. Called
// whenever the protocol session reports a credentials update.
func (s *Store) WriteCredentialFile(dir string, data []byte) error {

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("%w: creating %s: %s", models.ErrStorage, dir, err.Error())
	}

	path := filepath.Join(dir, CredentialFileName)

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("%w: writing %s: %s", models.ErrStorage, path, err.Error())
	}

	return nil
}
