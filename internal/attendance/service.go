package attendance

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"asistencia/internal/apperror"
)

// Remote is the table contract the submission routine runs against.
// FindStudent and FindAttendanceBetween return ErrNoRows on a miss.
type Remote interface {
	FindStudent(ctx context.Context, studentID string) (Student, error)
	CreateStudent(ctx context.Context, name, studentID string) (Student, error)
	FindAttendanceBetween(ctx context.Context, studentKey string, from, before time.Time) (Record, error)
	CreateAttendance(ctx context.Context, studentKey string, at time.Time) (Record, error)
}

// Submitter performs one check-in.
type Submitter interface {
	Submit(ctx context.Context, name, studentID, displayTime string) error
}

// Service runs the daily check-in against a Remote.
//
// The lookup, same-day check and inserts are separate round trips, not
// one transaction. Two concurrent first submissions for a student can
// both miss the lookup (the unique student_id column makes the loser
// fail with MsgStudentCreate), and two concurrent submissions on the
// same day can both miss the same-day check and insert two records.
type Service struct {
	remote Remote
	now    func() time.Time
	logger *zap.Logger
}

type Option func(*Service)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// NewService creates a service backed by a remote table store.
func NewService(remote Remote, opts ...Option) *Service {
	s := &Service{
		remote: remote,
		now:    time.Now,
		logger: zap.L().Named("attendance"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit records today's attendance for studentID, creating the student
// row on first use. displayTime is only logged. The clock is read once:
// the same instant picks the day checked and is stored as check_in_time. A second submission on the same UTC day returns
// ErrAlreadyCheckedIn; remote failures come back as *apperror.AppError
// naming the stage that failed.
func (s *Service) Submit(ctx context.Context, name, studentID, displayTime string) error {
	l := s.logger.With(zap.String("student_id", studentID), zap.String("display_time", displayTime))

	student, err := s.remote.FindStudent(ctx, studentID)
	switch {
	case errors.Is(err, ErrNoRows):
		student, err = s.remote.CreateStudent(ctx, name, studentID)
		if err != nil {
			l.Error("error creating student", zap.Error(err))
			return stageError(err, apperror.CodeStudentCreate, MsgStudentCreate)
		}
		l.Info("student created", zap.String("student_key", student.ID))
	case err != nil:
		l.Error("error fetching student", zap.Error(err))
		return stageError(err, apperror.CodeStudentLookup, MsgStudentLookup)
	}

	now := s.now().UTC()
	start, end := DayBounds(now)
	existing, err := s.remote.FindAttendanceBetween(ctx, student.ID, start, end)
	switch {
	case err == nil:
		l.Info("attendance already recorded", zap.String("record_id", existing.ID))
		return ErrAlreadyCheckedIn
	case !errors.Is(err, ErrNoRows):
		l.Error("error checking attendance", zap.Error(err))
		return stageError(err, apperror.CodeAttendanceCheck, MsgAttendanceCheck)
	}

	rec, err := s.remote.CreateAttendance(ctx, student.ID, now)
	if err != nil {
		l.Error("error submitting attendance", zap.Error(err))
		return stageError(err, apperror.CodeAttendanceSubmit, MsgAttendanceSubmit)
	}
	l.Info("attendance recorded", zap.String("record_id", rec.ID), zap.Time("check_in_time", rec.CheckInTime))
	return nil
}
