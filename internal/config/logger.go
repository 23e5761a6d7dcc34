package config

import (
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/pairforge/agent/internal/models"
)

// pairLogger is a logrus hook keeping a ring buffer of recent events.
// Delivery and cleanup failures happen after the HTTP response has been
// written, so this buffer is the main way to observe them.
type pairLogger struct {
	sessionUID  uuid.UUID
	eventBuffer []*models.LogEntry
	maxSize     int
	currentPos  int
	isFull      bool
	mu          sync.RWMutex
}

func NewPairLogger() *pairLogger {
	return &pairLogger{
		sessionUID:  uuid.New(),
		eventBuffer: make([]*models.LogEntry, 1000),
		maxSize:     1000,
	}
}

func (p *pairLogger) Fire(entry *logrus.Entry) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.eventBuffer[p.currentPos] = models.NewLogEntry(entry)
	p.currentPos = (p.currentPos + 1) % p.maxSize

	if p.currentPos == 0 {
		p.isFull = true
	}

	return nil
}

func (p *pairLogger) Levels() []logrus.Level {
	return []logrus.Level{
		logrus.PanicLevel,
		logrus.FatalLevel,
		logrus.ErrorLevel,
		logrus.WarnLevel,
		logrus.InfoLevel,
	}
}

func (p *pairLogger) SessionUID() uuid.UUID {
	return p.sessionUID
}

// GetEvents returns the buffered events in chronological order.
func (p *pairLogger) GetEvents() []*models.LogEntry {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if !p.isFull {
		result := make([]*models.LogEntry, p.currentPos)
		copy(result, p.eventBuffer[:p.currentPos])
		return result
	}

	result := make([]*models.LogEntry, p.maxSize)
	copy(result, p.eventBuffer[p.currentPos:])
	copy(result[p.maxSize-p.currentPos:], p.eventBuffer[:p.currentPos])
	return result
}

func (p *pairLogger) GetRecentEvents(count int) []*models.LogEntry {
	events := p.GetEvents()
	if len(events) <= count {
		return events
	}
	return events[len(events)-count:]
}
