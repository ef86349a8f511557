package attendance

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgInvalidText         = "22P02"
	defaultListLimit      = 100
)

// Repository persists students and attendance records in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// ListStudents returns students matching f, oldest first.
func (r *Repository) ListStudents(ctx context.Context, f StudentFilter) ([]Student, error) {
	q := &query{}
	if f.ID != "" {
		q.where("id = ", f.ID)
	}
	if f.StudentID != "" {
		q.where("student_id = ", f.StudentID)
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, student_id, created_at FROM students`+q.clause()+` ORDER BY created_at, id`+q.limit(f.Limit),
		q.args...)
	if err != nil {
		return nil, mapPgError(err)
	}
	defer rows.Close()
	var res []Student
	for rows.Next() {
		var s Student
		if err := rows.Scan(&s.ID, &s.Name, &s.StudentID, &s.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	if err := rows.Err(); err != nil {
		return nil, mapPgError(err)
	}
	return res, nil
}

// InsertStudent writes a new student. A taken student_id returns
// ErrDuplicate.
func (r *Repository) InsertStudent(ctx context.Context, s Student) (Student, error) {
	return insertStudent(ctx, r.db, s)
}

// InsertStudents writes all rows in one transaction.
func (r *Repository) InsertStudents(ctx context.Context, in []Student) ([]Student, error) {
	out := make([]Student, 0, len(in))
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		for _, s := range in {
			s, err := insertStudent(ctx, tx, s)
			if err != nil {
				return err
			}
			out = append(out, s)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func insertStudent(ctx context.Context, db queryRower, s Student) (Student, error) {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	row := db.QueryRowContext(ctx, `
		INSERT INTO students (id, name, student_id)
		VALUES ($1, $2, $3)
		RETURNING created_at
	`, s.ID, s.Name, s.StudentID)
	if err := row.Scan(&s.CreatedAt); err != nil {
		return Student{}, mapPgError(err)
	}
	return s, nil
}

// ListRecords returns attendance records matching f, oldest check-in first.
func (r *Repository) ListRecords(ctx context.Context, f RecordFilter) ([]Record, error) {
	q := &query{}
	if f.ID != "" {
		q.where("id = ", f.ID)
	}
	if f.StudentKey != "" {
		q.where("student_id = ", f.StudentKey)
	}
	if !f.From.IsZero() {
		q.where("check_in_time >= ", f.From.UTC())
	}
	if !f.Before.IsZero() {
		q.where("check_in_time < ", f.Before.UTC())
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, student_id, check_in_time, created_at FROM attendance_records`+q.clause()+` ORDER BY check_in_time, id`+q.limit(f.Limit),
		q.args...)
	if err != nil {
		return nil, mapPgError(err)
	}
	defer rows.Close()
	var res []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.StudentKey, &rec.CheckInTime, &rec.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, mapPgError(err)
	}
	return res, nil
}

// InsertRecord writes a new attendance record. A missing student row
// returns ErrUnknownStudent.
func (r *Repository) InsertRecord(ctx context.Context, rec Record) (Record, error) {
	return insertRecord(ctx, r.db, rec)
}

// InsertRecords writes all rows in one transaction.
func (r *Repository) InsertRecords(ctx context.Context, in []Record) ([]Record, error) {
	out := make([]Record, 0, len(in))
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		for _, rec := range in {
			rec, err := insertRecord(ctx, tx, rec)
			if err != nil {
				return err
			}
			out = append(out, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func insertRecord(ctx context.Context, db queryRower, rec Record) (Record, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CheckInTime.IsZero() {
		rec.CheckInTime = time.Now().UTC()
	}
	row := db.QueryRowContext(ctx, `
		INSERT INTO attendance_records (id, student_id, check_in_time)
		VALUES ($1, $2, $3)
		RETURNING created_at
	`, rec.ID, rec.StudentKey, rec.CheckInTime.UTC())
	if err := row.Scan(&rec.CreatedAt); err != nil {
		return Record{}, mapPgError(err)
	}
	return rec, nil
}

// queryRower is satisfied by *sql.DB and *sql.Tx.
type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (r *Repository) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// FindStudent implements Remote.
func (r *Repository) FindStudent(ctx context.Context, studentID string) (Student, error) {
	res, err := r.ListStudents(ctx, StudentFilter{StudentID: studentID, Limit: 1})
	if err != nil {
		return Student{}, err
	}
	if len(res) == 0 {
		return Student{}, ErrNoRows
	}
	return res[0], nil
}

// CreateStudent implements Remote.
func (r *Repository) CreateStudent(ctx context.Context, name, studentID string) (Student, error) {
	return r.InsertStudent(ctx, Student{Name: name, StudentID: studentID})
}

// FindAttendanceBetween implements Remote.
func (r *Repository) FindAttendanceBetween(ctx context.Context, studentKey string, from, before time.Time) (Record, error) {
	res, err := r.ListRecords(ctx, RecordFilter{StudentKey: studentKey, From: from, Before: before, Limit: 1})
	if err != nil {
		return Record{}, err
	}
	if len(res) == 0 {
		return Record{}, ErrNoRows
	}
	return res[0], nil
}

// CreateAttendance implements Remote.
func (r *Repository) CreateAttendance(ctx context.Context, studentKey string, at time.Time) (Record, error) {
	return r.InsertRecord(ctx, Record{StudentKey: studentKey, CheckInTime: at})
}

func mapPgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return errors.Join(ErrDuplicate, err)
		case pgForeignKeyViolation:
			return errors.Join(ErrUnknownStudent, err)
		case pgInvalidText:
			return errors.Join(ErrInvalidValue, err)
		}
	}
	return err
}

// query accumulates AND-ed equality/range clauses with positional args.
type query struct {
	clauses []string
	args    []any
}

func (q *query) where(expr string, arg any) {
	q.args = append(q.args, arg)
	q.clauses = append(q.clauses, expr+"$"+strconv.Itoa(len(q.args)))
}

func (q *query) clause() string {
	if len(q.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(q.clauses, " AND ")
}

func (q *query) limit(n int) string {
	if n <= 0 {
		n = defaultListLimit
	}
	return " LIMIT " + strconv.Itoa(n)
}
