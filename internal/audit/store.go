// Package audit keeps a local ledger of pairing attempts. Everything
// after the pairing code is returned happens out of sight of the HTTP
// caller, so the ledger is how operators answer "what happened to that
// request". Credential material is never written here.
package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/pairforge/agent/internal/models"
)

// Attempt is the persisted form of one pairing attempt.
type Attempt struct {
	ID         uint   `gorm:"primaryKey"`
	RequestID  string `gorm:"uniqueIndex;size:36"`
	Number     string `gorm:"index;size:20"`
	CodeIssued bool
	Outcome    string `gorm:"size:32"`
	Delivered  bool
	Reconnects int
	StartedAt  time.Time
	FinishedAt time.Time
	CreatedAt  time.Time
}

// Store wraps the sqlite ledger.
type Store struct {
	db *gorm.DB
}

// Open opens (and migrates) the ledger at path.
func Open(path string) (*Store, error) {

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open audit database: %w", err)
	}

	if err := db.AutoMigrate(&Attempt{}); err != nil {
		return nil, fmt.Errorf("failed to migrate audit schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Record persists one attempt summary.
func (s *Store) Record(ctx context.Context, record models.AttemptRecord) error {

	attempt := Attempt{
		RequestID:  record.RequestID,
		Number:     record.Number,
		CodeIssued: record.CodeIssued,
		Outcome:    record.Outcome,
		Delivered:  record.Delivered,
		Reconnects: record.Reconnects,
		StartedAt:  record.StartedAt,
		FinishedAt: record.FinishedAt,
	}

	if err := s.db.WithContext(ctx).Create(&attempt).Error; err != nil {
		return fmt.Errorf("failed to record attempt: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"requestId": record.RequestID,
		"outcome":   record.Outcome,
	}).Debugln("Attempt recorded")

	return nil
}

// Recent returns the most recent attempts, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Attempt, error) {

	if limit <= 0 {
		limit = 50
	}

	var attempts []Attempt
	err := s.db.WithContext(ctx).
		Order("id desc").
		Limit(limit).
		Find(&attempts).Error

	if err != nil {
		return nil, fmt.Errorf("failed to list attempts: %w", err)
	}

	return attempts, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {

	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
