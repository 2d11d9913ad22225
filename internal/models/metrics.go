package models

import "time"

// SystemMetrics summarises in-process counters for the admin metrics endpoint.
type SystemMetrics struct {
	RequestsTotal            uint64    `json:"requestsTotal"`
	AverageRequestDurationMs float64   `json:"averageRequestDurationMs"`
	CacheHits                uint64    `json:"cacheHits"`
	CacheMisses              uint64    `json:"cacheMisses"`
	CacheHitRatio            float64   `json:"cacheHitRatio"`
	PunchesSubmitted         uint64    `json:"punchesSubmitted"`
	PunchesDecided           uint64    `json:"punchesDecided"`
	OTPsIssued               uint64    `json:"otpsIssued"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generatedAt"`
}
