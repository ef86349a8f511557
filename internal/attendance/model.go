package attendance

import "time"

// Student is a row of the students table. StudentID is the matrícula;
// ID is the opaque key attendance records point at.
type Student struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	StudentID string    `json:"student_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Record is a row of the attendance_records table.
type Record struct {
	ID          string    `json:"id"`
	StudentKey  string    `json:"student_id"`
	CheckInTime time.Time `json:"check_in_time"`
	CreatedAt   time.Time `json:"created_at"`
}

// StudentFilter selects students by equality. Empty fields match all.
type StudentFilter struct {
	ID        string
	StudentID string
	Limit     int
}

// RecordFilter selects attendance records. From is inclusive and
// Before exclusive; zero values are ignored.
type RecordFilter struct {
	ID         string
	StudentKey string
	From       time.Time
	Before     time.Time
	Limit      int
}

// DayBounds returns the UTC calendar day containing t as [start, end).
func DayBounds(t time.Time) (time.Time, time.Time) {
	u := t.UTC()
	start := time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 0, 1)
}
