// Package tableapi serves the students and attendance_records tables
// over HTTP with PostgREST-style filters.
package tableapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"go.uber.org/zap"

	"asistencia/internal/attendance"
	"asistencia/internal/queue"
	"asistencia/internal/tally"
)

const (
	// SingleObjectMIME asks for exactly one row as a JSON object.
	SingleObjectMIME = "application/vnd.pgrst.object+json"

	CodeNoSingleRow   = "PGRST116"
	CodeBadFilter     = "PGRST100"
	CodeBadBody       = "PGRST102"
	CodeUniqueViolate = "23505"
	CodeForeignKey    = "23503"
	CodeInvalidText   = "22P02"
	CodeInternal      = "XX000"

	maxBodyBytes = 64 << 10
)

// Tables is the storage the handler serves. Batch inserts store every
// row or none.
type Tables interface {
	ListStudents(ctx context.Context, f attendance.StudentFilter) ([]attendance.Student, error)
	InsertStudents(ctx context.Context, in []attendance.Student) ([]attendance.Student, error)
	ListRecords(ctx context.Context, f attendance.RecordFilter) ([]attendance.Record, error)
	InsertRecords(ctx context.Context, in []attendance.Record) ([]attendance.Record, error)
}

// APIError is the error body, shaped like PostgREST's.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
	Hint    string `json:"hint,omitempty"`
}

type Handler struct {
	tables  Tables
	events  queue.Queue
	tally   tally.Store
	metrics *Metrics
	logger  *zap.Logger
	now     func() time.Time
}

// NewHandler wires the handler. events and summaries may be nil.
func NewHandler(tables Tables, events queue.Queue, summaries tally.Store, metrics *Metrics, logger ...*zap.Logger) *Handler {
	l := zap.L().Named("tableapi")
	if len(logger) > 0 && logger[0] != nil {
		l = logger[0]
	}
	return &Handler{tables: tables, events: events, tally: summaries, metrics: metrics, logger: l, now: time.Now}
}

type studentRow struct {
	Name      string `json:"name" binding:"required,fullname"`
	StudentID string `json:"student_id" binding:"required,studentid"`
}

type recordRow struct {
	StudentKey  string     `json:"student_id" binding:"required,uuid"`
	CheckInTime *time.Time `json:"check_in_time"`
}

func (h *Handler) ListStudents(c *gin.Context) {
	defer h.observe(c, "students", "select")()
	f, err := parseStudentFilter(c.Request.URL.Query())
	if err != nil {
		h.fail(c, http.StatusBadRequest, APIError{Code: CodeBadFilter, Message: err.Error()})
		return
	}
	rows, err := h.tables.ListStudents(c.Request.Context(), f)
	if err != nil {
		h.storeError(c, "list students", err)
		return
	}
	respondRows(c, http.StatusOK, rows)
}

func (h *Handler) InsertStudents(c *gin.Context) {
	defer h.observe(c, "students", "insert")()
	var in []studentRow
	if !h.bindRows(c, &in) {
		return
	}
	rows := make([]attendance.Student, 0, len(in))
	for _, row := range in {
		rows = append(rows, attendance.Student{Name: row.Name, StudentID: row.StudentID})
	}
	out, err := h.tables.InsertStudents(c.Request.Context(), rows)
	if err != nil {
		h.storeError(c, "insert students", err)
		return
	}
	for _, s := range out {
		h.logger.Info("student created", zap.String("student_id", s.StudentID), zap.String("id", s.ID))
	}
	respondInserted(c, out)
}

func (h *Handler) ListRecords(c *gin.Context) {
	defer h.observe(c, "attendance_records", "select")()
	f, err := parseRecordFilter(c.Request.URL.Query())
	if err != nil {
		h.fail(c, http.StatusBadRequest, APIError{Code: CodeBadFilter, Message: err.Error()})
		return
	}
	rows, err := h.tables.ListRecords(c.Request.Context(), f)
	if err != nil {
		h.storeError(c, "list attendance records", err)
		return
	}
	respondRows(c, http.StatusOK, rows)
}

func (h *Handler) InsertRecords(c *gin.Context) {
	defer h.observe(c, "attendance_records", "insert")()
	var in []recordRow
	if !h.bindRows(c, &in) {
		return
	}
	rows := make([]attendance.Record, 0, len(in))
	now := h.now().UTC()
	for _, row := range in {
		rec := attendance.Record{StudentKey: row.StudentKey, CheckInTime: now}
		if row.CheckInTime != nil {
			rec.CheckInTime = row.CheckInTime.UTC()
		}
		rows = append(rows, rec)
	}
	out, err := h.tables.InsertRecords(c.Request.Context(), rows)
	if err != nil {
		h.storeError(c, "insert attendance records", err)
		return
	}
	for _, rec := range out {
		if h.metrics != nil {
			h.metrics.CheckIns.Inc()
		}
		h.publish(c.Request.Context(), rec)
	}
	respondInserted(c, out)
}

// Summary returns the check-in tally for ?date=YYYY-MM-DD (default today).
func (h *Handler) Summary(c *gin.Context) {
	if h.tally == nil {
		c.JSON(http.StatusServiceUnavailable, APIError{Code: CodeInternal, Message: "summaries not configured"})
		return
	}
	day := h.now().UTC()
	if v := c.Query("date"); v != "" {
		d, err := tally.ParseDate(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, APIError{Code: CodeBadFilter, Message: "date must be YYYY-MM-DD"})
			return
		}
		day = d
	}
	s, err := h.tally.Summary(c.Request.Context(), day)
	if err != nil {
		h.logger.Error("summary failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, APIError{Code: CodeInternal, Message: "summary unavailable"})
		return
	}
	c.JSON(http.StatusOK, s)
}

func (h *Handler) publish(ctx context.Context, rec attendance.Record) {
	if h.events == nil {
		return
	}
	err := queue.PublishAttendanceRecorded(ctx, h.events, queue.AttendanceRecorded{
		RecordID:    rec.ID,
		StudentKey:  rec.StudentKey,
		CheckInTime: rec.CheckInTime,
	})
	if err != nil {
		h.logger.Warn("queue publish failed", zap.String("record_id", rec.ID), zap.Error(err))
	}
}

// bindRows decodes a JSON object or array of objects into dst and
// validates every row.
func (h *Handler) bindRows(c *gin.Context, dst any) bool {
	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes))
	if err != nil {
		h.fail(c, http.StatusBadRequest, APIError{Code: CodeBadBody, Message: "could not read body"})
		return false
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '{' {
		raw = append(append([]byte{'['}, raw...), ']')
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		h.fail(c, http.StatusBadRequest, APIError{Code: CodeBadBody, Message: "invalid JSON body", Details: err.Error()})
		return false
	}
	if err := binding.Validator.ValidateStruct(dst); err != nil {
		h.fail(c, http.StatusBadRequest, APIError{Code: CodeBadBody, Message: "invalid row", Details: err.Error()})
		return false
	}
	return true
}

func respondInserted[T any](c *gin.Context, rows []T) {
	if !strings.Contains(c.GetHeader("Prefer"), "return=representation") {
		c.Status(http.StatusCreated)
		return
	}
	respondRows(c, http.StatusCreated, rows)
}

// respondRows writes rows as an array, or as a single object when the
// caller asked for SingleObjectMIME.
func respondRows[T any](c *gin.Context, status int, rows []T) {
	if !strings.Contains(c.GetHeader("Accept"), SingleObjectMIME) {
		if rows == nil {
			rows = []T{}
		}
		c.JSON(status, rows)
		return
	}
	if len(rows) != 1 {
		c.JSON(http.StatusNotAcceptable, APIError{
			Code:    CodeNoSingleRow,
			Message: "JSON object requested, multiple (or no) rows returned",
			Details: "The result contains " + strconv.Itoa(len(rows)) + " rows",
		})
		return
	}
	c.Header("Content-Type", SingleObjectMIME+"; charset=utf-8")
	c.Status(status)
	_ = json.NewEncoder(c.Writer).Encode(rows[0])
}

func (h *Handler) storeError(c *gin.Context, op string, err error) {
	switch {
	case errors.Is(err, attendance.ErrDuplicate):
		h.fail(c, http.StatusConflict, APIError{Code: CodeUniqueViolate, Message: "duplicate key value violates unique constraint"})
	case errors.Is(err, attendance.ErrUnknownStudent):
		h.fail(c, http.StatusConflict, APIError{Code: CodeForeignKey, Message: "insert violates foreign key constraint"})
	case errors.Is(err, attendance.ErrInvalidValue):
		h.fail(c, http.StatusBadRequest, APIError{Code: CodeInvalidText, Message: "invalid input syntax"})
	default:
		h.logger.Error(op+" failed", zap.Error(err))
		h.fail(c, http.StatusInternalServerError, APIError{Code: CodeInternal, Message: "internal error"})
	}
}

func (h *Handler) fail(c *gin.Context, status int, body APIError) {
	c.AbortWithStatusJSON(status, body)
}

func (h *Handler) observe(c *gin.Context, table, op string) func() {
	start := time.Now()
	return func() {
		if h.metrics == nil {
			return
		}
		h.metrics.Duration.WithLabelValues(table, op).Observe(time.Since(start).Seconds())
		h.metrics.Requests.WithLabelValues(table, op, strconv.Itoa(c.Writer.Status())).Inc()
	}
}
