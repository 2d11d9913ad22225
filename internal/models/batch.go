package models

import "time"

// Batch groups students under a mentor and the site they attend.
type Batch struct {
	ID            string    `db:"id" json:"id"`
	Name          string    `db:"name" json:"name"`
	MentorID      string    `db:"mentor_id" json:"mentorId"`
	SiteLatitude  float64   `db:"site_latitude" json:"siteLatitude"`
	SiteLongitude float64   `db:"site_longitude" json:"siteLongitude"`
	CreatedAt     time.Time `db:"created_at" json:"createdAt"`
}
