package queue

import (
	"context"
	"encoding/json"
	"time"
)

// TypeAttendanceRecorded is published after an attendance row is stored.
const TypeAttendanceRecorded = "attendance.recorded"

// AttendanceRecorded is the body of a TypeAttendanceRecorded message.
type AttendanceRecorded struct {
	RecordID    string    `json:"record_id"`
	StudentKey  string    `json:"student_key"`
	CheckInTime time.Time `json:"check_in_time"`
}

// PublishAttendanceRecorded encodes evt and publishes it on q.
func PublishAttendanceRecorded(ctx context.Context, q Queue, evt AttendanceRecorded) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	return q.Publish(ctx, Message{Type: TypeAttendanceRecorded, Body: body})
}

// DecodeAttendanceRecorded parses a TypeAttendanceRecorded body.
func DecodeAttendanceRecorded(msg Message) (AttendanceRecorded, error) {
	var evt AttendanceRecorded
	err := json.Unmarshal(msg.Body, &evt)
	return evt, err
}
