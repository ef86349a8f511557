// Package client is the check-in command line: registration, profile
// and attendance submission for the student using this device.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"asistencia/internal/apperror"
	"asistencia/internal/attendance"
	"asistencia/internal/session"
	"asistencia/internal/validate"
)

const (
	MsgSaveFailed   = "Error al guardar los datos. Por favor intenta de nuevo."
	MsgCheckedIn    = "¡Asistencia registrada!"
	MsgLoggedOut    = "Sesión cerrada"
	MsgConfirmLeave = "¿Estás seguro que deseas cerrar tu sesión? Necesitarás volver a registrarte."

	displayLayout = "15:04:05"
)

var (
	ErrNotRegistered     = apperror.New(apperror.CodeNotFound, "Regístrate para comenzar a tomar asistencia", http.StatusNotFound)
	ErrAlreadyRegistered = apperror.New(apperror.CodeConflict, "Ya hay un estudiante registrado en este dispositivo. Usa \"edit\" para actualizar tu información.", http.StatusConflict)
)

// FormError carries the per-field messages of a rejected form.
type FormError struct {
	Fields validate.FieldErrors
}

func (e *FormError) Error() string {
	var lines []string
	if e.Fields.Name != nil {
		lines = append(lines, "Nombre: "+e.Fields.Name.Error())
	}
	if e.Fields.StudentID != nil {
		lines = append(lines, "Matrícula: "+e.Fields.StudentID.Error())
	}
	return strings.Join(lines, "\n")
}

// Message is the text shown to the student for err.
func Message(err error) string {
	var fe *FormError
	if errors.As(err, &fe) {
		return fe.Error()
	}
	return apperror.Message(err, err.Error())
}

// App holds the client state for one process.
type App struct {
	session *session.Manager
	submit  attendance.Submitter
	out     io.Writer
	now     func() time.Time
	logger  *zap.Logger
}

func NewApp(sess *session.Manager, submit attendance.Submitter, out io.Writer, logger *zap.Logger) *App {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &App{session: sess, submit: submit, out: out, now: time.Now, logger: logger}
}

func (a *App) load(ctx context.Context) {
	if !a.session.Ready() {
		a.session.Load(ctx)
	}
}

// Register saves a new profile. Input is filtered the way the form
// fields filter keystrokes before validation.
func (a *App) Register(ctx context.Context, name, studentID string) error {
	a.load(ctx)
	if a.session.IsRegistered() {
		return ErrAlreadyRegistered
	}
	if err := a.save(ctx, name, studentID, false); err != nil {
		return err
	}
	u, _ := a.session.User()
	fmt.Fprintf(a.out, "Bienvenido, %s (%s)\n", u.Name, u.StudentID)
	return nil
}

// Edit updates the saved profile. Empty arguments keep the current value.
func (a *App) Edit(ctx context.Context, name, studentID string) error {
	a.load(ctx)
	u, ok := a.session.User()
	if !ok {
		return ErrNotRegistered
	}
	if name == "" {
		name = u.Name
	}
	if studentID == "" {
		studentID = u.StudentID
	}
	if err := a.save(ctx, name, studentID, true); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Perfil actualizado")
	return nil
}

func (a *App) save(ctx context.Context, name, studentID string, editing bool) error {
	name = validate.SanitizeName(name)
	studentID = validate.SanitizeStudentID(studentID)
	if fe := validate.Form(ctx, name, studentID, editing, a.session); !fe.OK() {
		return &FormError{Fields: fe}
	}
	if err := a.session.Register(ctx, validate.NormalizeName(name), studentID); err != nil {
		a.logger.Error("save profile failed", zap.Error(err))
		return apperror.Wrap(err, apperror.CodeInternalError, MsgSaveFailed, http.StatusInternalServerError)
	}
	return nil
}

// WhoAmI prints the saved profile.
func (a *App) WhoAmI(ctx context.Context) error {
	a.load(ctx)
	u, ok := a.session.User()
	if !ok {
		return ErrNotRegistered
	}
	fmt.Fprintf(a.out, "Nombre: %s\nMatrícula: %s\n", u.Name, u.StudentID)
	return nil
}

// CheckIn records today's attendance for the saved profile.
func (a *App) CheckIn(ctx context.Context) error {
	a.load(ctx)
	u, ok := a.session.User()
	if !ok {
		return ErrNotRegistered
	}
	display := a.now().Format(displayLayout)
	err := a.submit.Submit(ctx, u.Name, u.StudentID, display)
	if err != nil {
		var appErr *apperror.AppError
		if !errors.As(err, &appErr) {
			return apperror.Wrap(err, apperror.CodeServiceUnavailable, attendance.MsgNetwork, http.StatusServiceUnavailable)
		}
		return err
	}
	fmt.Fprintf(a.out, "%s %s\n", MsgCheckedIn, display)
	return nil
}

// Logout forgets the saved profile. The registered ID history stays.
func (a *App) Logout(ctx context.Context) error {
	a.load(ctx)
	if !a.session.IsRegistered() {
		return ErrNotRegistered
	}
	if err := a.session.Logout(ctx); err != nil {
		a.logger.Error("logout failed", zap.Error(err))
		return apperror.Wrap(err, apperror.CodeInternalError, MsgSaveFailed, http.StatusInternalServerError)
	}
	fmt.Fprintln(a.out, MsgLoggedOut)
	return nil
}
