package attendance

import (
	"errors"
	"net/http"

	"asistencia/internal/apperror"
)

// ErrNoRows is returned by a Remote when a single-row select matches
// nothing. It is a branch, not a failure.
var ErrNoRows = errors.New("attendance: no rows")

// ErrDuplicate reports a unique constraint violation in the store.
var ErrDuplicate = errors.New("attendance: duplicate key")

// ErrUnknownStudent reports an attendance insert for a student key that
// does not exist.
var ErrUnknownStudent = errors.New("attendance: unknown student")

// ErrInvalidValue reports a filter or column value the store cannot
// parse, such as a malformed UUID.
var ErrInvalidValue = errors.New("attendance: invalid value")

const (
	MsgStudentLookup    = "Error al buscar estudiante"
	MsgStudentCreate    = "Error al registrar estudiante"
	MsgAttendanceCheck  = "Error al verificar asistencia"
	MsgAttendanceSubmit = "Error al registrar asistencia"
	MsgAlreadyCheckedIn = "Ya registraste tu asistencia hoy"
	MsgInFlight         = "Ya hay un registro de asistencia en curso"

	// MsgNetwork is shown when an error carries no message of its own.
	MsgNetwork = "No se pudo registrar la asistencia. Verifica tu conexión."
)

var (
	ErrAlreadyCheckedIn   = apperror.New(apperror.CodeAlreadyCheckedIn, MsgAlreadyCheckedIn, http.StatusConflict)
	ErrSubmissionInFlight = apperror.New(apperror.CodeInFlight, MsgInFlight, http.StatusConflict)
)

func stageError(err error, code, msg string) error {
	return apperror.Wrap(err, code, msg, http.StatusBadGateway)
}
