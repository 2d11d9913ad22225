package models

import "time"

// LocationRecord is an immutable geotagged position reported by a student.
type LocationRecord struct {
	ID         string    `db:"id" json:"id"`
	StudentID  string    `db:"student_id" json:"studentId"`
	Latitude   float64   `db:"latitude" json:"latitude"`
	Longitude  float64   `db:"longitude" json:"longitude"`
	Accuracy   *float64  `db:"accuracy" json:"accuracy,omitempty"`
	RecordedAt time.Time `db:"recorded_at" json:"timestamp"`
}

// LocationFilter narrows a student's location history.
type LocationFilter struct {
	StudentID string
	From      *time.Time
	To        *time.Time
	Limit     int
	Offset    int
}
