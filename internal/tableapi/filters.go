package tableapi

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"asistencia/internal/attendance"
)

// filterError is reported to callers as PGRST100.
type filterError struct{ msg string }

func (e *filterError) Error() string { return e.msg }

func badFilter(format string, args ...any) error {
	return &filterError{msg: fmt.Sprintf(format, args...)}
}

// operand splits "op.value" and checks op against allowed.
func operand(column, raw string, allowed ...string) (string, string, error) {
	op, val, ok := strings.Cut(raw, ".")
	if !ok {
		return "", "", badFilter("failed to parse filter (%s=%s)", column, raw)
	}
	for _, a := range allowed {
		if op == a {
			return op, val, nil
		}
	}
	return "", "", badFilter("unsupported operator %q on column %s", op, column)
}

func parseLimit(q url.Values) (int, error) {
	v := q.Get("limit")
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, badFilter("invalid limit %q", v)
	}
	return n, nil
}

func parseStudentFilter(q url.Values) (attendance.StudentFilter, error) {
	var f attendance.StudentFilter
	for column, values := range q {
		switch column {
		case "select", "limit":
		case "id", "student_id":
			for _, raw := range values {
				_, val, err := operand(column, raw, "eq")
				if err != nil {
					return f, err
				}
				if column == "id" {
					if err := checkUUID(column, val); err != nil {
						return f, err
					}
					f.ID = val
				} else {
					f.StudentID = val
				}
			}
		default:
			return f, badFilter("unknown column %s on students", column)
		}
	}
	limit, err := parseLimit(q)
	f.Limit = limit
	return f, err
}

func parseRecordFilter(q url.Values) (attendance.RecordFilter, error) {
	var f attendance.RecordFilter
	for column, values := range q {
		switch column {
		case "select", "limit":
		case "id", "student_id":
			for _, raw := range values {
				_, val, err := operand(column, raw, "eq")
				if err != nil {
					return f, err
				}
				if err := checkUUID(column, val); err != nil {
					return f, err
				}
				if column == "id" {
					f.ID = val
				} else {
					f.StudentKey = val
				}
			}
		case "check_in_time":
			for _, raw := range values {
				op, val, err := operand(column, raw, "gte", "lt")
				if err != nil {
					return f, err
				}
				ts, err := parseTimestamp(val)
				if err != nil {
					return f, badFilter("invalid timestamp %q", val)
				}
				if op == "gte" {
					f.From = ts
				} else {
					f.Before = ts
				}
			}
		default:
			return f, badFilter("unknown column %s on attendance_records", column)
		}
	}
	limit, err := parseLimit(q)
	f.Limit = limit
	return f, err
}

// checkUUID rejects values the uuid columns cannot hold.
func checkUUID(column, val string) error {
	if _, err := uuid.Parse(val); err != nil {
		return badFilter("invalid uuid %q for column %s", val, column)
	}
	return nil
}

// parseTimestamp accepts RFC 3339 instants and bare dates (UTC midnight).
func parseTimestamp(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}
	return time.ParseInLocation("2006-01-02", s, time.UTC)
}
