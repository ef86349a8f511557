// Package tally keeps per-day check-in counts fed by the event queue.
package tally

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"asistencia/internal/queue"
)

const dateLayout = "2006-01-02"

// Summary is the tally for one UTC day.
type Summary struct {
	Date     string `json:"date"`
	CheckIns int64  `json:"check_ins"`
	Students int64  `json:"students"`
}

// Store records check-ins and reports daily summaries.
type Store interface {
	Add(ctx context.Context, evt queue.AttendanceRecorded) error
	Summary(ctx context.Context, day time.Time) (Summary, error)
}

// DateKey formats the UTC day of t.
func DateKey(t time.Time) string {
	return t.UTC().Format(dateLayout)
}

// ParseDate parses a YYYY-MM-DD day.
func ParseDate(s string) (time.Time, error) {
	return time.ParseInLocation(dateLayout, s, time.UTC)
}

// Run consumes attendance events until msgs closes.
func Run(ctx context.Context, msgs <-chan queue.Message, store Store, logger *zap.Logger) {
	for msg := range msgs {
		if msg.Type != queue.TypeAttendanceRecorded {
			continue
		}
		evt, err := queue.DecodeAttendanceRecorded(msg)
		if err != nil {
			logger.Warn("decode event failed", zap.Error(err))
			continue
		}
		if err := store.Add(ctx, evt); err != nil {
			logger.Error("tally update failed", zap.String("record_id", evt.RecordID), zap.Error(err))
			continue
		}
		logger.Debug("tally updated", zap.String("record_id", evt.RecordID), zap.String("date", DateKey(evt.CheckInTime)))
	}
}

// Memory is an in-process Store for dev/testing.
type Memory struct {
	mu   sync.Mutex
	days map[string]*memDay
}

type memDay struct {
	checkIns int64
	students map[string]struct{}
}

func NewMemory() *Memory {
	return &Memory{days: make(map[string]*memDay)}
}

func (m *Memory) Add(_ context.Context, evt queue.AttendanceRecorded) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := DateKey(evt.CheckInTime)
	d, ok := m.days[key]
	if !ok {
		d = &memDay{students: make(map[string]struct{})}
		m.days[key] = d
	}
	d.checkIns++
	d.students[evt.StudentKey] = struct{}{}
	return nil
}

func (m *Memory) Summary(_ context.Context, day time.Time) (Summary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := DateKey(day)
	s := Summary{Date: key}
	if d, ok := m.days[key]; ok {
		s.CheckIns = d.checkIns
		s.Students = int64(len(d.students))
	}
	return s, nil
}
