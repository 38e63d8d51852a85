package services

import (
	"context"
	"errors"
	"log/slog"

	"github.com/Dosada05/pyramid-ladder/models"
	"github.com/Dosada05/pyramid-ladder/notifications"
	"github.com/Dosada05/pyramid-ladder/repositories"
)

const maxSets = 5

// ScoreService keeps the result sheet of an accepted match. Once both teams
// agree on it, Complete must name the winner the sheet shows.
type ScoreService interface {
	Start(ctx context.Context, userID, matchID, sets int) (*models.MatchScore, error)
	Submit(ctx context.Context, userID, matchID int, challengerGames, defenderGames []int) (*models.MatchScore, error)
	Agree(ctx context.Context, userID, matchID int, agreed bool) (*models.MatchScore, error)
	Get(ctx context.Context, matchID int) (*models.MatchScore, error)
}

type scoreService struct {
	*Engine
}

func NewScoreService(engine *Engine) ScoreService {
	return &scoreService{Engine: engine}
}

func (s *scoreService) Start(ctx context.Context, userID, matchID, sets int) (*models.MatchScore, error) {
	if sets < 1 || sets > maxSets {
		return nil, ErrInvalidSetCount
	}
	var match *models.Match
	var score *models.MatchScore
	err := s.run(ctx, "score-start", func(exec repositories.SQLExecutor) error {
		var team int
		var err error
		match, team, err = s.scorableMatch(ctx, exec, userID, matchID)
		if err != nil {
			return err
		}
		score = &models.MatchScore{MatchID: match.ID, SetsPlayed: sets, SubmittedByTeamID: team}
		err = s.store.Scores.Create(ctx, exec, score)
		if errors.Is(err, repositories.ErrScoreExists) {
			return ErrScoringStarted
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("scoring started", slog.Int("match_id", match.ID), slog.Int("sets", sets))
	s.publish(ctx, []outboxEvent{matchEvent(notifications.KindScore, match).with("step", "started")})
	return score, nil
}

// Submit replaces the games on the sheet. The submitting team agrees with
// what it sent; the other team has to answer again.
func (s *scoreService) Submit(ctx context.Context, userID, matchID int, challengerGames, defenderGames []int) (*models.MatchScore, error) {
	var match *models.Match
	var score *models.MatchScore
	err := s.run(ctx, "score-submit", func(exec repositories.SQLExecutor) error {
		var team int
		var err error
		match, team, err = s.scorableMatch(ctx, exec, userID, matchID)
		if err != nil {
			return err
		}
		if score, err = s.lockScore(ctx, exec, matchID); err != nil {
			return err
		}
		if len(challengerGames) != score.SetsPlayed || len(defenderGames) != score.SetsPlayed {
			return ErrSetCountMismatch
		}
		for i := range challengerGames {
			if challengerGames[i] < 0 || defenderGames[i] < 0 || challengerGames[i] == defenderGames[i] {
				return ErrInvalidGames
			}
		}

		score.ChallengerGames = append([]int(nil), challengerGames...)
		score.DefenderGames = append([]int(nil), defenderGames...)
		score.SubmittedByTeamID = team
		agreed := true
		if team == match.ChallengerTeamID {
			score.ChallengerAgreed, score.DefenderAgreed = &agreed, nil
		} else {
			score.ChallengerAgreed, score.DefenderAgreed = nil, &agreed
		}
		if score.WinnerOf(match) == 0 {
			return ErrInvalidGames
		}
		return s.store.Scores.Update(ctx, exec, score)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("score submitted", slog.Int("match_id", match.ID), slog.Int("team_id", score.SubmittedByTeamID))
	s.publish(ctx, []outboxEvent{matchEvent(notifications.KindScore, match).with("step", "submitted")})
	return score, nil
}

// Agree records the acting team's answer to the current sheet.
func (s *scoreService) Agree(ctx context.Context, userID, matchID int, agreed bool) (*models.MatchScore, error) {
	var match *models.Match
	var score *models.MatchScore
	err := s.run(ctx, "score-agree", func(exec repositories.SQLExecutor) error {
		var team int
		var err error
		match, team, err = s.scorableMatch(ctx, exec, userID, matchID)
		if err != nil {
			return err
		}
		if score, err = s.lockScore(ctx, exec, matchID); err != nil {
			return err
		}
		if !score.Submitted() {
			return ErrScoreNotSubmitted
		}
		if team == match.ChallengerTeamID {
			score.ChallengerAgreed = &agreed
		} else {
			score.DefenderAgreed = &agreed
		}
		return s.store.Scores.Update(ctx, exec, score)
	})
	if err != nil {
		return nil, err
	}

	step := "disputed"
	if score.Agreed() {
		step = "agreed"
	}
	s.logger.Info("score answered", slog.Int("match_id", match.ID), slog.String("step", step))
	s.publish(ctx, []outboxEvent{matchEvent(notifications.KindScore, match).with("step", step)})
	return score, nil
}

func (s *scoreService) Get(ctx context.Context, matchID int) (*models.MatchScore, error) {
	score, err := s.store.Scores.GetByMatch(ctx, nil, matchID)
	if err != nil {
		if errors.Is(err, repositories.ErrScoreNotFound) {
			return nil, ErrScoreNotStarted
		}
		return nil, storageFailure("get score", err)
	}
	return score, nil
}

// scorableMatch locks an accepted match and returns the side the user plays.
func (s *scoreService) scorableMatch(ctx context.Context, exec repositories.SQLExecutor, userID, matchID int) (*models.Match, int, error) {
	match, err := s.loadMatchForUpdate(ctx, exec, matchID)
	if err != nil {
		return nil, 0, err
	}
	userTeams, err := s.userTeams(ctx, exec, userID)
	if err != nil {
		return nil, 0, err
	}
	team, ok := actingTeam(match, userTeams)
	if !ok {
		return nil, 0, ErrNotParticipant
	}
	if match.Status != models.MatchStatusAccepted {
		return nil, 0, ErrMatchNotAccepted
	}
	return match, team, nil
}

func (s *scoreService) lockScore(ctx context.Context, exec repositories.SQLExecutor, matchID int) (*models.MatchScore, error) {
	score, err := s.store.Scores.GetForUpdate(ctx, exec, matchID)
	if errors.Is(err, repositories.ErrScoreNotFound) {
		return nil, ErrScoreNotStarted
	}
	return score, err
}

// checkScoreSheet holds back Complete while a started sheet is unsettled.
// Matches nobody scored complete on the reported winner alone.
func (e *Engine) checkScoreSheet(ctx context.Context, exec repositories.SQLExecutor, match *models.Match, winnerTeamID int) error {
	score, err := e.store.Scores.GetForUpdate(ctx, exec, match.ID)
	switch {
	case errors.Is(err, repositories.ErrScoreNotFound):
		return nil
	case err != nil:
		return err
	case !score.Agreed():
		return ErrScoreNotAgreed
	case score.WinnerOf(match) != winnerTeamID:
		return ErrWinnerContradictsScore
	}
	return nil
}
