package tableapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"asistencia/internal/attendance"
	"asistencia/internal/auth"
	"asistencia/internal/queue"
	"asistencia/internal/tally"
)

const (
	testKey    = "tableapi-test-key"
	testIssuer = "asistencia"
)

type fixture struct {
	router  *gin.Engine
	store   *attendance.MemoryStore
	events  *queue.InMemory
	tally   *tally.Memory
	metrics *Metrics
	anon    string
	service string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	f := &fixture{
		store:  attendance.NewMemoryStore(),
		events: queue.NewInMemory(16),
		tally:  tally.NewMemory(),
	}
	reg := prometheus.NewRegistry()
	f.metrics = NewMetrics(reg)
	h := NewHandler(f.store, f.events, f.tally, f.metrics, zap.NewNop())
	r, err := NewRouter(RouterConfig{
		SigningKey: testKey,
		Issuer:     testIssuer,
		Gatherer:   reg,
		Health:     func(context.Context) map[string]bool { return map[string]bool{"db": true} },
	}, h)
	require.NoError(t, err)
	f.router = r

	f.anon, err = auth.Issue(auth.RoleAnon, testIssuer, testKey, 0)
	require.NoError(t, err)
	f.service, err = auth.Issue(auth.RoleService, testIssuer, testKey, 0)
	require.NoError(t, err)
	return f
}

func (f *fixture) do(method, target, key, body string, headers ...string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	if key != "" {
		req.Header.Set("apikey", key)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestStudents_SingleObjectSemantics(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodGet, "/rest/v1/students?student_id=eq.20123456", f.anon, "", "Accept", SingleObjectMIME)
	assert.Equal(t, http.StatusNotAcceptable, w.Code)
	var apiErr APIError
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &apiErr))
	assert.Equal(t, CodeNoSingleRow, apiErr.Code)

	w = f.do(http.MethodGet, "/rest/v1/students?student_id=eq.20123456", f.anon, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())

	w = f.do(http.MethodPost, "/rest/v1/students", f.anon, `{"name":"Juan Pérez García","student_id":"20123456"}`,
		"Prefer", "return=representation", "Accept", SingleObjectMIME)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created attendance.Student
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, "20123456", created.StudentID)

	w = f.do(http.MethodGet, "/rest/v1/students?student_id=eq.20123456&select=id", f.anon, "", "Accept", SingleObjectMIME)
	assert.Equal(t, http.StatusOK, w.Code)
	var found attendance.Student
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &found))
	assert.Equal(t, created.ID, found.ID)
}

func TestStudents_InsertWithoutRepresentation(t *testing.T) {
	f := newFixture(t)
	w := f.do(http.MethodPost, "/rest/v1/students", f.anon, `[{"name":"Juan Pérez García","student_id":"20123456"}]`)
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Empty(t, w.Body.String())

	w = f.do(http.MethodPost, "/rest/v1/students", f.anon, `[{"name":"Juan Pérez García","student_id":"20123456"}]`)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), CodeUniqueViolate)
}

func TestStudents_InsertValidation(t *testing.T) {
	f := newFixture(t)
	tests := []string{
		`{"name":"Juan","student_id":"20123456"}`,
		`{"name":"Juan Pérez García","student_id":"2012345a"}`,
		`{"student_id":"20123456"}`,
		`not json`,
	}
	for _, body := range tests {
		w := f.do(http.MethodPost, "/rest/v1/students", f.anon, body)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
	}
}

func TestRecords_InsertPublishesAndCounts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s, err := f.store.CreateStudent(ctx, "Juan Pérez García", "20123456")
	require.NoError(t, err)

	w := f.do(http.MethodPost, "/rest/v1/attendance_records", f.anon,
		`[{"student_id":"`+s.ID+`","check_in_time":"2025-03-10T08:00:00.000Z"}]`,
		"Prefer", "return=representation")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var recs []attendance.Record
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &recs))
	require.Len(t, recs, 1)
	assert.Equal(t, s.ID, recs[0].StudentKey)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.CheckIns))

	msgs, err := f.events.Consume(ctx)
	require.NoError(t, err)
	select {
	case msg := <-msgs:
		evt, err := queue.DecodeAttendanceRecorded(msg)
		require.NoError(t, err)
		assert.Equal(t, recs[0].ID, evt.RecordID)
	case <-time.After(time.Second):
		t.Fatal("no event published")
	}
}

func TestStudents_BatchInsertIsAtomic(t *testing.T) {
	f := newFixture(t)
	w := f.do(http.MethodPost, "/rest/v1/students", f.anon, `{"name":"Juan Pérez García","student_id":"20123456"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	w = f.do(http.MethodPost, "/rest/v1/students", f.anon,
		`[{"name":"Ana López Ruiz","student_id":"20999999"},{"name":"Luis Mora Díaz","student_id":"20123456"}]`)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = f.do(http.MethodGet, "/rest/v1/students?student_id=eq.20999999", f.anon, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestRecords_BatchInsertIsAtomic(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s, err := f.store.CreateStudent(ctx, "Juan Pérez García", "20123456")
	require.NoError(t, err)

	w := f.do(http.MethodPost, "/rest/v1/attendance_records", f.anon,
		`[{"student_id":"`+s.ID+`"},{"student_id":"7d3c6a4e-2b1f-4e4c-9a77-1a2b3c4d5e6f"}]`)
	assert.Equal(t, http.StatusConflict, w.Code)

	recs, err := f.store.ListRecords(ctx, attendance.RecordFilter{})
	require.NoError(t, err)
	assert.Empty(t, recs)
	assert.Equal(t, 0.0, testutil.ToFloat64(f.metrics.CheckIns))
}

func TestRecords_UnknownStudent(t *testing.T) {
	f := newFixture(t)
	w := f.do(http.MethodPost, "/rest/v1/attendance_records", f.anon, `{"student_id":"7d3c6a4e-2b1f-4e4c-9a77-1a2b3c4d5e6f"}`)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), CodeForeignKey)
}

func TestRecords_RangeFilter(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s, err := f.store.CreateStudent(ctx, "Juan Pérez García", "20123456")
	require.NoError(t, err)
	_, err = f.store.CreateAttendance(ctx, s.ID, time.Date(2025, 3, 10, 23, 59, 59, 999_000_000, time.UTC))
	require.NoError(t, err)

	w := f.do(http.MethodGet, "/rest/v1/attendance_records?student_id=eq."+s.ID+
		"&check_in_time=gte.2025-03-10&check_in_time=lt.2025-03-11T00:00:00.000Z", f.anon, "")
	require.Equal(t, http.StatusOK, w.Code)
	var recs []attendance.Record
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &recs))
	assert.Len(t, recs, 1)

	w = f.do(http.MethodGet, "/rest/v1/attendance_records?student_id=eq."+s.ID+
		"&check_in_time=gte.2025-03-11T00:00:00.000Z&check_in_time=lt.2025-03-12T00:00:00.000Z", f.anon, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestFilters_Rejected(t *testing.T) {
	f := newFixture(t)
	for _, target := range []string{
		"/rest/v1/students?student_id=like.2012*",
		"/rest/v1/students?email=eq.x",
		"/rest/v1/students?limit=-1",
		"/rest/v1/attendance_records?check_in_time=gte.yesterday",
		"/rest/v1/attendance_records?check_in_time=20250310",
		"/rest/v1/attendance_records?student_id=eq.20123456",
		"/rest/v1/attendance_records?id=eq.not-a-uuid",
		"/rest/v1/students?id=eq.42",
	} {
		w := f.do(http.MethodGet, target, f.anon, "")
		assert.Equal(t, http.StatusBadRequest, w.Code, target)
		assert.Contains(t, w.Body.String(), CodeBadFilter, target)
	}
}

func TestAuthRequired(t *testing.T) {
	f := newFixture(t)
	w := f.do(http.MethodGet, "/rest/v1/students", "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSummary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	day := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	require.NoError(t, f.tally.Add(ctx, queue.AttendanceRecorded{RecordID: "r1", StudentKey: "a", CheckInTime: day}))

	w := f.do(http.MethodGet, "/v1/summary?date=2025-03-10", f.anon, "")
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.do(http.MethodGet, "/v1/summary?date=2025-03-10", f.service, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"date":"2025-03-10","check_ins":1,"students":1}`, w.Body.String())

	w = f.do(http.MethodGet, "/v1/summary?date=03-10-2025", f.service, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

type failingTables struct{ *attendance.MemoryStore }

func (failingTables) ListStudents(context.Context, attendance.StudentFilter) ([]attendance.Student, error) {
	return nil, errors.New("connection reset")
}

type invalidValueTables struct{ *attendance.MemoryStore }

func (invalidValueTables) ListRecords(context.Context, attendance.RecordFilter) ([]attendance.Record, error) {
	return nil, attendance.ErrInvalidValue
}

func TestStoreInvalidValue(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewHandler(invalidValueTables{attendance.NewMemoryStore()}, nil, nil, nil, zap.NewNop())
	r, err := NewRouter(RouterConfig{SigningKey: testKey, Issuer: testIssuer}, h)
	require.NoError(t, err)
	key, err := auth.Issue(auth.RoleAnon, testIssuer, testKey, 0)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/rest/v1/attendance_records", nil)
	req.Header.Set("apikey", key)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), CodeInvalidText)
}

func TestStoreFailure(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewHandler(failingTables{attendance.NewMemoryStore()}, nil, nil, nil, zap.NewNop())
	r, err := NewRouter(RouterConfig{SigningKey: testKey, Issuer: testIssuer}, h)
	require.NoError(t, err)
	key, err := auth.Issue(auth.RoleAnon, testIssuer, testKey, 0)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/rest/v1/students", nil)
	req.Header.Set("apikey", key)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), CodeInternal)
}

func TestRateLimitIgnoresForwardedFor(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewHandler(attendance.NewMemoryStore(), nil, nil, nil, zap.NewNop())
	r, err := NewRouter(RouterConfig{SigningKey: testKey, Issuer: testIssuer, RateLimitPerMin: 1}, h)
	require.NoError(t, err)

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		req.RemoteAddr = "10.0.0.1:40000"
		req.Header.Set("X-Forwarded-For", "192.0.2."+strconv.Itoa(i+1))
		req.Header.Set("apikey", "garbage-"+strconv.Itoa(i))
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusTooManyRequests, http.StatusTooManyRequests}, codes)
}

func TestHealthAndMetrics(t *testing.T) {
	f := newFixture(t)
	w := f.do(http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","db":true}`, w.Body.String())

	f.do(http.MethodGet, "/rest/v1/students", f.anon, "")
	w = f.do(http.MethodGet, "/metrics", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "asistencia_table_requests_total")
}
