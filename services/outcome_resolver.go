package services

import (
	"context"

	"github.com/Dosada05/pyramid-ladder/config"
	"github.com/Dosada05/pyramid-ladder/models"
	"github.com/Dosada05/pyramid-ladder/pyramid"
	"github.com/Dosada05/pyramid-ladder/repositories"
)

// Resolution describes what a played match did to the ladder.
type Resolution struct {
	MatchID      int          `json:"match_id"`
	WinnerTeamID int          `json:"winner_team_id"`
	LoserTeamID  int          `json:"loser_team_id"`
	Swapped      bool         `json:"swapped"`
	WinnerFrom   pyramid.Cell `json:"winner_from"`
	WinnerTo     pyramid.Cell `json:"winner_to"`
	LoserFrom    pyramid.Cell `json:"loser_from"`
	LoserTo      pyramid.Cell `json:"loser_to"`
	Cellared     bool         `json:"cellared"`
	// CellarPartner is the team that left the cellar, if any.
	CellarPartner *int  `json:"cellar_partner,omitempty"`
	Cancelled     []int `json:"cancelled_match_ids"`

	cancelledMatches []*models.Match
}

// resolveOutcome applies a played result. Teams must already be locked by
// the caller and the match must be accepted.
func (e *Engine) resolveOutcome(ctx context.Context, exec repositories.SQLExecutor, p *models.Pyramid, match *models.Match, winnerID int, teams map[int]*models.Team) (*Resolution, error) {
	if !match.Involves(winnerID) {
		return nil, ErrInvalidWinner
	}
	loserID := match.Opponent(winnerID)
	winner, loser := teams[winnerID], teams[loserID]

	winnerPos, err := e.positionOf(ctx, exec, match.PyramidID, winnerID)
	if err != nil {
		return nil, err
	}
	loserPos, err := e.positionOf(ctx, exec, match.PyramidID, loserID)
	if err != nil {
		return nil, err
	}

	res := &Resolution{
		MatchID:      match.ID,
		WinnerTeamID: winnerID,
		LoserTeamID:  loserID,
		WinnerFrom:   pyramid.CellOf(winnerPos),
		LoserFrom:    pyramid.CellOf(loserPos),
	}
	res.WinnerTo, res.LoserTo = res.WinnerFrom, res.LoserFrom

	if pyramid.ShouldSwap(res.WinnerFrom, res.LoserFrom) {
		if _, err := e.relocate(ctx, exec, winnerPos, res.LoserFrom, intPtr(match.ID)); err != nil {
			return nil, err
		}
		res.Swapped = true
		res.WinnerTo, res.LoserTo = res.LoserFrom, res.WinnerFrom
		winner.LastResult = models.LastResultUp
		loser.LastResult = models.LastResultDown
		e.metrics.Swap("match")
	} else {
		winner.LastResult = models.LastResultStayed
		loser.LastResult = models.LastResultStayed
	}

	winner.Wins++
	winner.WinningStreak++
	winner.LosingStreak = 0
	winner.Status = models.TeamStatusWinner
	loser.Losses++
	loser.LosingStreak++
	loser.WinningStreak = 0
	loser.Status = models.TeamStatusLoser
	for _, t := range []*models.Team{winner, loser} {
		t.Defendable = false
		t.AmountRejected = 0
	}
	if err := e.saveTeams(ctx, exec, winner, loser); err != nil {
		return nil, err
	}

	if err := e.setStatus(ctx, exec, match, models.MatchStatusPlayed, intPtr(winnerID)); err != nil {
		return nil, err
	}

	affected := []int{winnerID, loserID}
	cascade := func(ids []int) error {
		cancelled, err := e.invalidateMatches(ctx, exec, match.PyramidID, ids)
		res.cancelledMatches = append(res.cancelledMatches, cancelled...)
		return err
	}

	switch e.rules.CellarRule {
	case config.CellarRuleBeforeCascade:
		partner, err := e.applyCellarRule(ctx, exec, p, match, loser, res)
		if err != nil {
			return nil, err
		}
		if partner != nil {
			affected = append(affected, *partner)
		}
		if err := cascade(affected); err != nil {
			return nil, err
		}
	case config.CellarRuleAfterCascade:
		if err := cascade(affected); err != nil {
			return nil, err
		}
		partner, err := e.applyCellarRule(ctx, exec, p, match, loser, res)
		if err != nil {
			return nil, err
		}
		if res.Cellared {
			again := []int{loserID}
			if partner != nil {
				again = append(again, *partner)
			}
			if err := cascade(again); err != nil {
				return nil, err
			}
		}
	default:
		if err := cascade(affected); err != nil {
			return nil, err
		}
	}

	for _, m := range res.cancelledMatches {
		res.Cancelled = append(res.Cancelled, m.ID)
	}
	return res, nil
}

// applyCellarRule sends a loser on a long losing streak straight to the
// cellar cell below the triangle. The previous cellar holder, if any, takes
// the loser's cell. It returns that team's id.
func (e *Engine) applyCellarRule(ctx context.Context, exec repositories.SQLExecutor, p *models.Pyramid, match *models.Match, loser *models.Team, res *Resolution) (*int, error) {
	if loser.LosingStreak < e.rules.CellarStreak {
		return nil, nil
	}
	cellar := pyramid.CellarCell(p.RowCount)
	if res.LoserTo == cellar {
		return nil, nil
	}

	loserPos := &models.Position{PyramidID: p.ID, TeamID: loser.ID, Row: res.LoserTo.Row, Col: res.LoserTo.Col}
	occupant, err := e.relocate(ctx, exec, loserPos, cellar, intPtr(match.ID))
	if err != nil {
		return nil, err
	}

	loser.LastResult = models.LastResultDown
	if err := e.saveTeams(ctx, exec, loser); err != nil {
		return nil, err
	}
	res.Cellared = true
	res.LoserTo = cellar
	e.metrics.Swap("cellar")

	if occupant == nil {
		return nil, nil
	}
	partners, err := e.lockTeams(ctx, exec, occupant.TeamID)
	if err != nil {
		return nil, err
	}
	partner := partners[occupant.TeamID]
	partner.LastResult = models.LastResultUp
	if err := e.saveTeams(ctx, exec, partner); err != nil {
		return nil, err
	}
	res.CellarPartner = intPtr(occupant.TeamID)
	return res.CellarPartner, nil
}
