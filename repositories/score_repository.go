package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Dosada05/pyramid-ladder/models"
	"github.com/lib/pq"
)

var (
	ErrScoreNotFound = errors.New("match score not found")
	ErrScoreExists   = errors.New("match score already exists")
)

type ScoreRepository interface {
	Create(ctx context.Context, exec SQLExecutor, score *models.MatchScore) error
	GetByMatch(ctx context.Context, exec SQLExecutor, matchID int) (*models.MatchScore, error)
	// GetForUpdate loads a sheet and row-locks it for the current transaction.
	GetForUpdate(ctx context.Context, exec SQLExecutor, matchID int) (*models.MatchScore, error)
	Update(ctx context.Context, exec SQLExecutor, score *models.MatchScore) error
}

type postgresScoreRepository struct {
	db *sql.DB
}

func NewPostgresScoreRepository(db *sql.DB) ScoreRepository {
	return &postgresScoreRepository{db: db}
}

func (r *postgresScoreRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

const scoreColumns = `match_id, sets_played, challenger_games, defender_games, challenger_agreed, defender_agreed, submitted_by_team_id, created_at, updated_at`

func (r *postgresScoreRepository) Create(ctx context.Context, exec SQLExecutor, score *models.MatchScore) error {
	query := `
		INSERT INTO match_scores (match_id, sets_played, submitted_by_team_id)
		VALUES ($1, $2, $3)
		RETURNING created_at, updated_at`

	err := r.getExecutor(exec).QueryRowContext(ctx, query, score.MatchID, score.SetsPlayed, score.SubmittedByTeamID).
		Scan(&score.CreatedAt, &score.UpdatedAt)
	if err != nil {
		if code, constraint, ok := pqConstraint(err); ok && code == pqUniqueViolation && constraint == "match_scores_pkey" {
			return ErrScoreExists
		}
		return fmt.Errorf("create score for match %d: %w", score.MatchID, err)
	}
	return nil
}

func (r *postgresScoreRepository) GetByMatch(ctx context.Context, exec SQLExecutor, matchID int) (*models.MatchScore, error) {
	return r.getOne(ctx, exec, `SELECT `+scoreColumns+` FROM match_scores WHERE match_id = $1`, matchID)
}

func (r *postgresScoreRepository) GetForUpdate(ctx context.Context, exec SQLExecutor, matchID int) (*models.MatchScore, error) {
	return r.getOne(ctx, exec, `SELECT `+scoreColumns+` FROM match_scores WHERE match_id = $1 FOR UPDATE`, matchID)
}

func (r *postgresScoreRepository) getOne(ctx context.Context, exec SQLExecutor, query string, matchID int) (*models.MatchScore, error) {
	score, err := scanScore(r.getExecutor(exec).QueryRowContext(ctx, query, matchID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrScoreNotFound
		}
		return nil, err
	}
	return score, nil
}

func (r *postgresScoreRepository) Update(ctx context.Context, exec SQLExecutor, score *models.MatchScore) error {
	query := `
		UPDATE match_scores
		SET challenger_games = $1, defender_games = $2,
		    challenger_agreed = $3, defender_agreed = $4,
		    submitted_by_team_id = $5, updated_at = NOW()
		WHERE match_id = $6`

	result, err := r.getExecutor(exec).ExecContext(ctx, query,
		pq.Array(int64s(score.ChallengerGames)), pq.Array(int64s(score.DefenderGames)),
		score.ChallengerAgreed, score.DefenderAgreed,
		score.SubmittedByTeamID, score.MatchID,
	)
	if err != nil {
		return fmt.Errorf("update score for match %d: %w", score.MatchID, err)
	}
	return checkAffectedRows(result, ErrScoreNotFound)
}

func scanScore(row rowScanner) (*models.MatchScore, error) {
	s := &models.MatchScore{}
	var challenger, defender pq.Int64Array
	var challengerAgreed, defenderAgreed sql.NullBool
	err := row.Scan(&s.MatchID, &s.SetsPlayed, &challenger, &defender,
		&challengerAgreed, &defenderAgreed, &s.SubmittedByTeamID, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	s.ChallengerGames = ints(challenger)
	s.DefenderGames = ints(defender)
	s.ChallengerAgreed = nullBoolPtr(challengerAgreed)
	s.DefenderAgreed = nullBoolPtr(defenderAgreed)
	return s, nil
}

func ints(values []int64) []int {
	out := make([]int, len(values))
	for i, v := range values {
		out[i] = int(v)
	}
	return out
}

func nullBoolPtr(v sql.NullBool) *bool {
	if !v.Valid {
		return nil
	}
	b := v.Bool
	return &b
}
