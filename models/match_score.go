package models

import "time"

// MatchScore is the per-set result sheet of an accepted match. Games are
// indexed by set. A nil agreement flag means the team has not answered the
// current version of the sheet.
type MatchScore struct {
	MatchID           int       `json:"match_id"`
	SetsPlayed        int       `json:"sets_played"`
	ChallengerGames   []int     `json:"challenger_games"`
	DefenderGames     []int     `json:"defender_games"`
	ChallengerAgreed  *bool     `json:"challenger_agreed"`
	DefenderAgreed    *bool     `json:"defender_agreed"`
	SubmittedByTeamID int       `json:"submitted_by_team_id"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Submitted reports whether games are recorded for every set.
func (s *MatchScore) Submitted() bool {
	return s.SetsPlayed > 0 && len(s.ChallengerGames) == s.SetsPlayed && len(s.DefenderGames) == s.SetsPlayed
}

// Agreed reports whether both teams signed off the submitted sheet.
func (s *MatchScore) Agreed() bool {
	return s.Submitted() &&
		s.ChallengerAgreed != nil && *s.ChallengerAgreed &&
		s.DefenderAgreed != nil && *s.DefenderAgreed
}

// SetsWon counts the sets each side took. Drawn sets count for nobody.
func (s *MatchScore) SetsWon() (challenger, defender int) {
	for i := 0; i < len(s.ChallengerGames) && i < len(s.DefenderGames); i++ {
		switch {
		case s.ChallengerGames[i] > s.DefenderGames[i]:
			challenger++
		case s.DefenderGames[i] > s.ChallengerGames[i]:
			defender++
		}
	}
	return challenger, defender
}

// WinnerOf returns the team the sheet names as winner of m, or 0 when the
// sheet is level.
func (s *MatchScore) WinnerOf(m *Match) int {
	c, d := s.SetsWon()
	switch {
	case c > d:
		return m.ChallengerTeamID
	case d > c:
		return m.DefenderTeamID
	default:
		return 0
	}
}
