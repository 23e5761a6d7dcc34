// Package janitor sweeps the pairing storage path for session
// directories abandoned by a crashed or killed request. The normal
// lifecycle removes its own directory; the janitor is the backstop that
// keeps leaked credential material from surviving a dead process.
package janitor

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/sirupsen/logrus"

	"github.com/pairforge/agent/internal/storage"
)

type Janitor struct {
	store     *storage.Store
	basePath  string
	maxAge    time.Duration
	scheduler *gocron.Scheduler
}

func New(store *storage.Store, basePath string, maxAge time.Duration) *Janitor {
	return &Janitor{
		store:    store,
		basePath: basePath,
		maxAge:   maxAge,
	}
}

// Start begins periodic sweeps at the given interval.
func (j *Janitor) Start(interval time.Duration) {

	j.scheduler = gocron.NewScheduler(time.UTC)

	_, err := j.scheduler.Every(interval).Do(func() {
		j.Sweep(context.Background())
	})
	if err != nil {
		logrus.WithError(err).Errorln("Failed to schedule session directory sweep")
		return
	}

	j.scheduler.StartAsync()

	logrus.WithFields(logrus.Fields{
		"path":     j.basePath,
		"interval": interval.String(),
		"maxAge":   j.maxAge.String(),
	}).Infoln("Session directory janitor started")
}

// Stop halts scheduled sweeps.
func (j *Janitor) Stop() {
	if j.scheduler != nil {
		j.scheduler.Stop()
	}
}

// Sweep removes every session directory under the base path whose last
// modification is older than maxAge. Returns how many were removed.
func (j *Janitor) Sweep(ctx context.Context) int {

	entries, err := os.ReadDir(j.basePath)
	if err != nil {
		if !os.IsNotExist(err) {
			logrus.WithError(err).Warnln("Failed to scan session storage path")
		}
		return 0
	}

	cutoff := time.Now().Add(-j.maxAge)
	removed := 0

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		if info.ModTime().After(cutoff) {
			continue
		}

		dir := filepath.Join(j.basePath, entry.Name())

		logrus.WithFields(logrus.Fields{
			"dir": dir,
			"age": time.Since(info.ModTime()).Round(time.Second).String(),
		}).Warnln("Removing abandoned session directory")

		if j.store.Cleanup(ctx, dir) {
			removed++
		}
	}

	return removed
}
