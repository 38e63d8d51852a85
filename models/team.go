package models

import "time"

type TeamStatus string

const (
	TeamStatusWinner TeamStatus = "winner"
	TeamStatusLoser  TeamStatus = "loser"
	TeamStatusIdle   TeamStatus = "idle"
	TeamStatusRisky  TeamStatus = "risky"
)

type LastResult string

const (
	LastResultUp     LastResult = "up"
	LastResultDown   LastResult = "down"
	LastResultStayed LastResult = "stayed"
	LastResultNone   LastResult = "none"
)

// Team is a pair of players. Ladder statistics are kept on the team row.
type Team struct {
	ID             int        `json:"id" db:"id"`
	Player1ID      *int       `json:"player1_id,omitempty" db:"player1_id"`
	Player2ID      *int       `json:"player2_id,omitempty" db:"player2_id"`
	CategoryID     *int       `json:"category_id,omitempty" db:"category_id"`
	Wins           int        `json:"wins" db:"wins"`
	Losses         int        `json:"losses" db:"losses"`
	WinningStreak  int        `json:"winning_streak" db:"winning_streak"`
	LosingStreak   int        `json:"losing_streak" db:"losing_streak"`
	Status         TeamStatus `json:"status" db:"status"`
	LastResult     LastResult `json:"last_result" db:"last_result"`
	Defendable     bool       `json:"defendable" db:"defendable"`
	AmountRejected int        `json:"amount_rejected" db:"amount_rejected"`
	UpdatedAt      time.Time  `json:"updated_at" db:"updated_at"`

	Members []User `json:"members,omitempty" db:"-"`
}

// HasMember reports whether userID occupies one of the two player slots.
func (t *Team) HasMember(userID int) bool {
	return (t.Player1ID != nil && *t.Player1ID == userID) ||
		(t.Player2ID != nil && *t.Player2ID == userID)
}

// TeamSnapshot is the view of a team handed to notification transports.
type TeamSnapshot struct {
	TeamID  int    `json:"team_id"`
	Members []User `json:"members"`
}

// DisplayName joins member names, e.g. "Ana / Luis".
func (s TeamSnapshot) DisplayName() string {
	name := ""
	for i, m := range s.Members {
		if i > 0 {
			name += " / "
		}
		name += m.Name
	}
	return name
}
