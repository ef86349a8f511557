package validate

import "context"

// FieldErrors maps a form field to the message shown next to it.
type FieldErrors struct {
	Name      error
	StudentID error
}

// OK reports whether no field failed.
func (f FieldErrors) OK() bool {
	return f.Name == nil && f.StudentID == nil
}

// IDChecker answers whether a student ID was already used to register
// on this device.
type IDChecker interface {
	IsStudentIDTaken(ctx context.Context, studentID string) bool
}

// Form validates a registration form. The device duplicate check only
// runs for new registrations with a well-formed ID; edits skip it.
func Form(ctx context.Context, name, studentID string, editing bool, ids IDChecker) FieldErrors {
	var fe FieldErrors
	fe.Name = Name(name)
	fe.StudentID = StudentID(studentID)
	if fe.StudentID == nil && !editing && ids != nil && ids.IsStudentIDTaken(ctx, studentID) {
		fe.StudentID = ErrIDTaken
	}
	return fe
}
