package models

import "time"

// PositionHistory is one append-only ledger entry. A nil MatchID marks a
// systemic or administrative move. A nil NewRow means the team left the
// ladder; a nil OldRow means it was freshly inserted.
type PositionHistory struct {
	ID             int       `json:"id"`
	PyramidID      int       `json:"pyramid_id"`
	MatchID        *int      `json:"match_id,omitempty"`
	TeamID         int       `json:"team_id"`
	AffectedTeamID *int      `json:"affected_team_id,omitempty"`
	OldRow         *int      `json:"old_row,omitempty"`
	OldCol         *int      `json:"old_col,omitempty"`
	NewRow         *int      `json:"new_row,omitempty"`
	NewCol         *int      `json:"new_col,omitempty"`
	AffectedOldRow *int      `json:"affected_old_row,omitempty"`
	AffectedOldCol *int      `json:"affected_old_col,omitempty"`
	AffectedNewRow *int      `json:"affected_new_row,omitempty"`
	AffectedNewCol *int      `json:"affected_new_col,omitempty"`
	EffectiveDate  time.Time `json:"effective_date"`
}
