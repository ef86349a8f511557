package attendance

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMemoryStore_Constraints(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()

	s, err := m.CreateStudent(ctx, "Juan Pérez García", "20123456")
	require.NoError(t, err)
	_, err = m.CreateStudent(ctx, "Otro Nombre Aquí", "20123456")
	assert.ErrorIs(t, err, ErrDuplicate)

	_, err = m.CreateAttendance(ctx, "no-such-key", time.Now())
	assert.ErrorIs(t, err, ErrUnknownStudent)

	_, err = m.CreateAttendance(ctx, s.ID, time.Now())
	require.NoError(t, err)
}

func TestMemoryStore_BatchIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	s, err := m.CreateStudent(ctx, "Juan Pérez García", "20123456")
	require.NoError(t, err)

	_, err = m.InsertStudents(ctx, []Student{
		{Name: "Ana López Ruiz", StudentID: "20999999"},
		{Name: "Otro Nombre Aquí", StudentID: "20123456"},
	})
	assert.ErrorIs(t, err, ErrDuplicate)
	_, err = m.FindStudent(ctx, "20999999")
	assert.ErrorIs(t, err, ErrNoRows)

	// a duplicate inside the batch itself is rejected too
	_, err = m.InsertStudents(ctx, []Student{
		{Name: "Ana López Ruiz", StudentID: "20888888"},
		{Name: "Ana López Ruiz", StudentID: "20888888"},
	})
	assert.ErrorIs(t, err, ErrDuplicate)
	_, err = m.FindStudent(ctx, "20888888")
	assert.ErrorIs(t, err, ErrNoRows)

	_, err = m.InsertRecords(ctx, []Record{{StudentKey: s.ID}, {StudentKey: "no-such-key"}})
	assert.ErrorIs(t, err, ErrUnknownStudent)
	recs, err := m.ListRecords(ctx, RecordFilter{})
	require.NoError(t, err)
	assert.Empty(t, recs)

	out, err := m.InsertStudents(ctx, []Student{
		{Name: "Ana López Ruiz", StudentID: "20777777"},
		{Name: "Luis Mora Díaz", StudentID: "20666666"},
	})
	require.NoError(t, err)
	assert.Len(t, out, 2)
}

func TestMemoryStore_RangeIsHalfOpen(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	s, err := m.CreateStudent(ctx, "Juan Pérez García", "20123456")
	require.NoError(t, err)

	start, end := DayBounds(time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC))
	_, err = m.CreateAttendance(ctx, s.ID, end)
	require.NoError(t, err)

	_, err = m.FindAttendanceBetween(ctx, s.ID, start, end)
	assert.ErrorIs(t, err, ErrNoRows)

	_, err = m.CreateAttendance(ctx, s.ID, start)
	require.NoError(t, err)
	rec, err := m.FindAttendanceBetween(ctx, s.ID, start, end)
	require.NoError(t, err)
	assert.Equal(t, start, rec.CheckInTime)
}

// Concurrent first submissions race between lookup and insert. The
// unique student_id makes one of them fail at student creation; the
// student row is never duplicated.
func TestService_ConcurrentFirstSubmissions(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	svc := NewService(m, WithLogger(zap.NewNop()))

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = svc.Submit(ctx, "Juan Pérez García", "20123456", "")
		}(i)
	}
	wg.Wait()

	students, _ := m.ListStudents(ctx, StudentFilter{})
	assert.Len(t, students, 1)
	records, _ := m.ListRecords(ctx, RecordFilter{})
	assert.GreaterOrEqual(t, len(records), 1)

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		}
	}
	assert.Equal(t, len(records), succeeded)
}
