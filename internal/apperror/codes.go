package apperror

const (
	// Client errors (4xx)
	CodeInvalidInput     = "INVALID_INPUT"
	CodeUnauthorized     = "UNAUTHORIZED"
	CodeNotFound         = "NOT_FOUND"
	CodeConflict         = "CONFLICT"
	CodeAlreadyCheckedIn = "ALREADY_CHECKED_IN"
	CodeIDTaken          = "STUDENT_ID_TAKEN"
	CodeInFlight         = "SUBMISSION_IN_FLIGHT"

	// Remote stage failures
	CodeStudentLookup    = "STUDENT_LOOKUP_FAILED"
	CodeStudentCreate    = "STUDENT_CREATE_FAILED"
	CodeAttendanceCheck  = "ATTENDANCE_CHECK_FAILED"
	CodeAttendanceSubmit = "ATTENDANCE_SUBMIT_FAILED"

	// Server errors (5xx)
	CodeInternalError      = "INTERNAL_ERROR"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
)
