package dto

import "time"

// RecordLocationRequest carries a raw position from the browser geolocation API.
type RecordLocationRequest struct {
	Latitude  *float64 `json:"latitude" validate:"required"`
	Longitude *float64 `json:"longitude" validate:"required"`
	Accuracy  *float64 `json:"accuracy"`
}

// LocationHistoryQuery selects a window of a student's history.
type LocationHistoryQuery struct {
	StudentID string
	From      *time.Time
	To        *time.Time
	Limit     int
	Offset    int
}
