package models

import "time"

type MatchStatus string

const (
	MatchStatusPending   MatchStatus = "pending"
	MatchStatusAccepted  MatchStatus = "accepted"
	MatchStatusPlayed    MatchStatus = "played"
	MatchStatusRejected  MatchStatus = "rejected"
	MatchStatusCancelled MatchStatus = "cancelled"
)

// IsTerminal reports whether no further transition is possible.
func (s MatchStatus) IsTerminal() bool {
	return s == MatchStatusPlayed || s == MatchStatusRejected || s == MatchStatusCancelled
}

// CanTransitionTo encodes the forward-only match lifecycle.
func (s MatchStatus) CanTransitionTo(next MatchStatus) bool {
	switch s {
	case MatchStatusPending:
		return next == MatchStatusAccepted || next == MatchStatusRejected || next == MatchStatusCancelled
	case MatchStatusAccepted:
		return next == MatchStatusPlayed || next == MatchStatusCancelled
	default:
		return false
	}
}

type Match struct {
	ID               int         `json:"id"`
	PyramidID        int         `json:"pyramid_id"`
	ChallengerTeamID int         `json:"challenger_team_id"`
	DefenderTeamID   int         `json:"defender_team_id"`
	Status           MatchStatus `json:"status"`
	WinnerTeamID     *int        `json:"winner_team_id,omitempty"`
	CreatedAt        time.Time   `json:"created_at"`
	UpdatedAt        time.Time   `json:"updated_at"`
}

// Involves reports whether teamID is the challenger or the defender.
func (m *Match) Involves(teamID int) bool {
	return m.ChallengerTeamID == teamID || m.DefenderTeamID == teamID
}

// Opponent returns the other participant, or 0 if teamID does not play.
func (m *Match) Opponent(teamID int) int {
	switch teamID {
	case m.ChallengerTeamID:
		return m.DefenderTeamID
	case m.DefenderTeamID:
		return m.ChallengerTeamID
	default:
		return 0
	}
}
