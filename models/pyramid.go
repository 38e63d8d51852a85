package models

import "time"

type Pyramid struct {
	ID        int       `json:"id"`
	Name      string    `json:"name"`
	RowCount  int       `json:"row_count"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`

	Positions []*Position `json:"positions,omitempty"`
	Teams     []*Team     `json:"teams,omitempty"`
}
