package remote_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"asistencia/internal/apperror"
	"asistencia/internal/attendance"
	"asistencia/internal/auth"
	"asistencia/internal/remote"
	"asistencia/internal/tableapi"
)

const (
	signingKey = "remote-test-key"
	issuer     = "asistencia"
)

func newServer(t *testing.T) (*httptest.Server, *attendance.MemoryStore, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	store := attendance.NewMemoryStore()
	reg := prometheus.NewRegistry()
	h := tableapi.NewHandler(store, nil, nil, tableapi.NewMetrics(reg), zap.NewNop())
	r, err := tableapi.NewRouter(tableapi.RouterConfig{SigningKey: signingKey, Issuer: issuer, Gatherer: reg}, h)
	require.NoError(t, err)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	key, err := auth.Issue(auth.RoleAnon, issuer, signingKey, 0)
	require.NoError(t, err)
	return srv, store, key
}

func TestClient_FindStudent_NoRows(t *testing.T) {
	srv, _, key := newServer(t)
	c := remote.New(srv.URL, key, 5*time.Second)

	_, err := c.FindStudent(context.Background(), "20123456")
	assert.ErrorIs(t, err, attendance.ErrNoRows)
}

func TestClient_CreateAndFindStudent(t *testing.T) {
	srv, _, key := newServer(t)
	c := remote.New(srv.URL+"/", key, 5*time.Second)
	ctx := context.Background()

	created, err := c.CreateStudent(ctx, "Juan Pérez García", "20123456")
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)

	found, err := c.FindStudent(ctx, "20123456")
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)
	assert.Equal(t, "Juan Pérez García", found.Name)

	_, err = c.CreateStudent(ctx, "Juan Pérez García", "20123456")
	var apiErr *remote.Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusConflict, apiErr.Status)
	assert.Equal(t, tableapi.CodeUniqueViolate, apiErr.Code)
}

func TestClient_CreateStudent_Invalid(t *testing.T) {
	srv, _, key := newServer(t)
	c := remote.New(srv.URL, key, 5*time.Second)

	_, err := c.CreateStudent(context.Background(), "Juan", "30123456")
	var apiErr *remote.Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
}

func TestClient_AttendanceRange(t *testing.T) {
	srv, _, key := newServer(t)
	c := remote.New(srv.URL, key, 5*time.Second)
	ctx := context.Background()

	s, err := c.CreateStudent(ctx, "Juan Pérez García", "20123456")
	require.NoError(t, err)

	at := time.Date(2025, 3, 10, 23, 59, 59, 999_000_000, time.UTC)
	rec, err := c.CreateAttendance(ctx, s.ID, at)
	require.NoError(t, err)
	assert.True(t, at.Equal(rec.CheckInTime))

	start, end := attendance.DayBounds(at)
	found, err := c.FindAttendanceBetween(ctx, s.ID, start, end)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, found.ID)

	start, end = attendance.DayBounds(at.Add(time.Millisecond))
	_, err = c.FindAttendanceBetween(ctx, s.ID, start, end)
	assert.ErrorIs(t, err, attendance.ErrNoRows)
}

func TestService_OverHTTP(t *testing.T) {
	srv, store, key := newServer(t)
	now := time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC)
	svc := attendance.NewService(remote.New(srv.URL, key, 5*time.Second),
		attendance.WithClock(func() time.Time { return now }),
		attendance.WithLogger(zap.NewNop()))
	ctx := context.Background()

	require.NoError(t, svc.Submit(ctx, "Juan Pérez García", "20123456", "09:30:00"))
	err := svc.Submit(ctx, "Juan Pérez García", "20123456", "09:31:00")
	assert.ErrorIs(t, err, attendance.ErrAlreadyCheckedIn)

	students, _ := store.ListStudents(ctx, attendance.StudentFilter{})
	records, _ := store.ListRecords(ctx, attendance.RecordFilter{})
	assert.Len(t, students, 1)
	assert.Len(t, records, 1)

	now = time.Date(2025, 3, 11, 0, 0, 0, 0, time.UTC)
	require.NoError(t, svc.Submit(ctx, "Juan Pérez García", "20123456", "00:00:00"))
	records, _ = store.ListRecords(ctx, attendance.RecordFilter{})
	assert.Len(t, records, 2)
}

func TestService_OverHTTP_BadKey(t *testing.T) {
	srv, _, _ := newServer(t)
	svc := attendance.NewService(remote.New(srv.URL, "not-a-key", 5*time.Second), attendance.WithLogger(zap.NewNop()))

	err := svc.Submit(context.Background(), "Juan Pérez García", "20123456", "")
	require.Error(t, err)
	assert.Equal(t, apperror.CodeStudentLookup, apperror.CodeOf(err))
	var apiErr *remote.Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
}

func TestClient_Unreachable(t *testing.T) {
	srv, _, key := newServer(t)
	url := srv.URL
	srv.Close()

	_, err := remote.New(url, key, time.Second).FindStudent(context.Background(), "20123456")
	require.Error(t, err)
	assert.False(t, errors.Is(err, attendance.ErrNoRows))
}
