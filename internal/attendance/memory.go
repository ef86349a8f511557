package attendance

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-process table store for dev/testing. It enforces
// the same unique student_id and student foreign key as the schema.
type MemoryStore struct {
	mu       sync.RWMutex
	students []Student
	records  []Record
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{now: time.Now}
}

func (m *MemoryStore) ListStudents(_ context.Context, f StudentFilter) ([]Student, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var res []Student
	for _, s := range m.students {
		if (f.ID == "" || s.ID == f.ID) && (f.StudentID == "" || s.StudentID == f.StudentID) {
			res = append(res, s)
		}
	}
	return truncate(res, f.Limit), nil
}

func (m *MemoryStore) InsertStudent(ctx context.Context, s Student) (Student, error) {
	out, err := m.InsertStudents(ctx, []Student{s})
	if err != nil {
		return Student{}, err
	}
	return out[0], nil
}

// InsertStudents adds every row or none.
func (m *MemoryStore) InsertStudents(_ context.Context, in []Student) ([]Student, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mark := len(m.students)
	out := make([]Student, 0, len(in))
	for _, s := range in {
		s, err := m.insertStudentLocked(s)
		if err != nil {
			m.students = m.students[:mark]
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func (m *MemoryStore) insertStudentLocked(s Student) (Student, error) {
	for _, existing := range m.students {
		if existing.StudentID == s.StudentID {
			return Student{}, ErrDuplicate
		}
	}
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	s.CreatedAt = m.now().UTC()
	m.students = append(m.students, s)
	return s, nil
}

func (m *MemoryStore) ListRecords(_ context.Context, f RecordFilter) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var res []Record
	for _, r := range m.records {
		if f.ID != "" && r.ID != f.ID {
			continue
		}
		if f.StudentKey != "" && r.StudentKey != f.StudentKey {
			continue
		}
		if !f.From.IsZero() && r.CheckInTime.Before(f.From) {
			continue
		}
		if !f.Before.IsZero() && !r.CheckInTime.Before(f.Before) {
			continue
		}
		res = append(res, r)
	}
	return truncate(res, f.Limit), nil
}

func (m *MemoryStore) InsertRecord(ctx context.Context, r Record) (Record, error) {
	out, err := m.InsertRecords(ctx, []Record{r})
	if err != nil {
		return Record{}, err
	}
	return out[0], nil
}

// InsertRecords adds every row or none.
func (m *MemoryStore) InsertRecords(_ context.Context, in []Record) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mark := len(m.records)
	out := make([]Record, 0, len(in))
	for _, r := range in {
		r, err := m.insertRecordLocked(r)
		if err != nil {
			m.records = m.records[:mark]
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func (m *MemoryStore) insertRecordLocked(r Record) (Record, error) {
	known := false
	for _, s := range m.students {
		if s.ID == r.StudentKey {
			known = true
			break
		}
	}
	if !known {
		return Record{}, ErrUnknownStudent
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CheckInTime.IsZero() {
		r.CheckInTime = m.now()
	}
	r.CheckInTime = r.CheckInTime.UTC()
	r.CreatedAt = m.now().UTC()
	m.records = append(m.records, r)
	return r, nil
}

func (m *MemoryStore) FindStudent(ctx context.Context, studentID string) (Student, error) {
	res, _ := m.ListStudents(ctx, StudentFilter{StudentID: studentID, Limit: 1})
	if len(res) == 0 {
		return Student{}, ErrNoRows
	}
	return res[0], nil
}

func (m *MemoryStore) CreateStudent(ctx context.Context, name, studentID string) (Student, error) {
	return m.InsertStudent(ctx, Student{Name: name, StudentID: studentID})
}

func (m *MemoryStore) FindAttendanceBetween(ctx context.Context, studentKey string, from, before time.Time) (Record, error) {
	res, _ := m.ListRecords(ctx, RecordFilter{StudentKey: studentKey, From: from, Before: before, Limit: 1})
	if len(res) == 0 {
		return Record{}, ErrNoRows
	}
	return res[0], nil
}

func (m *MemoryStore) CreateAttendance(ctx context.Context, studentKey string, at time.Time) (Record, error) {
	return m.InsertRecord(ctx, Record{StudentKey: studentKey, CheckInTime: at})
}

func truncate[T any](rows []T, limit int) []T {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if len(rows) > limit {
		return rows[:limit]
	}
	return rows
}
