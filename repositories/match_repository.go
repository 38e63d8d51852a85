package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Dosada05/pyramid-ladder/models"
	"github.com/lib/pq"
)

var (
	ErrMatchNotFound    = errors.New("match not found")
	ErrMatchTeamInvalid = errors.New("match references an unknown team or pyramid")
)

// MatchFilter narrows ListByPyramid. Zero values mean "any".
type MatchFilter struct {
	TeamIDs  []int
	Statuses []models.MatchStatus
	Limit    int
}

type MatchRepository interface {
	Create(ctx context.Context, exec SQLExecutor, match *models.Match) error
	GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Match, error)
	// GetForUpdate loads a match and row-locks it for the current transaction.
	GetForUpdate(ctx context.Context, exec SQLExecutor, id int) (*models.Match, error)
	UpdateStatus(ctx context.Context, exec SQLExecutor, id int, status models.MatchStatus, winnerTeamID *int) error
	ListByPyramid(ctx context.Context, exec SQLExecutor, pyramidID int, filter MatchFilter) ([]*models.Match, error)
	// ListByTeams spans every pyramid and row-locks what it returns.
	ListByTeams(ctx context.Context, exec SQLExecutor, teamIDs []int, statuses []models.MatchStatus) ([]*models.Match, error)
	ListExpiredPending(ctx context.Context, exec SQLExecutor, defenderTeamID int, createdBefore time.Time) ([]*models.Match, error)
	CountPlayedSince(ctx context.Context, exec SQLExecutor, teamID int, since time.Time) (int, error)
	CountPlayedByTeam(ctx context.Context, exec SQLExecutor, pyramidID int, from, to time.Time) (map[int]int, error)
}

type postgresMatchRepository struct {
	db *sql.DB
}

func NewPostgresMatchRepository(db *sql.DB) MatchRepository {
	return &postgresMatchRepository{db: db}
}

func (r *postgresMatchRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

const matchColumns = `id, pyramid_id, challenger_team_id, defender_team_id, status, winner_team_id, created_at, updated_at`

func (r *postgresMatchRepository) Create(ctx context.Context, exec SQLExecutor, match *models.Match) error {
	query := `
		INSERT INTO matches (pyramid_id, challenger_team_id, defender_team_id, status)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at`

	err := r.getExecutor(exec).QueryRowContext(ctx, query,
		match.PyramidID, match.ChallengerTeamID, match.DefenderTeamID, match.Status,
	).Scan(&match.ID, &match.CreatedAt, &match.UpdatedAt)
	if err != nil {
		if code, _, ok := pqConstraint(err); ok && code == pqForeignKeyViolation {
			return ErrMatchTeamInvalid
		}
		return fmt.Errorf("create match: %w", err)
	}
	return nil
}

func (r *postgresMatchRepository) GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Match, error) {
	return r.getOne(ctx, exec, `SELECT `+matchColumns+` FROM matches WHERE id = $1`, id)
}

func (r *postgresMatchRepository) GetForUpdate(ctx context.Context, exec SQLExecutor, id int) (*models.Match, error) {
	return r.getOne(ctx, exec, `SELECT `+matchColumns+` FROM matches WHERE id = $1 FOR UPDATE`, id)
}

func (r *postgresMatchRepository) getOne(ctx context.Context, exec SQLExecutor, query string, id int) (*models.Match, error) {
	match, err := scanMatch(r.getExecutor(exec).QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMatchNotFound
		}
		return nil, err
	}
	return match, nil
}

func (r *postgresMatchRepository) UpdateStatus(ctx context.Context, exec SQLExecutor, id int, status models.MatchStatus, winnerTeamID *int) error {
	query := `UPDATE matches SET status = $1, winner_team_id = $2, updated_at = NOW() WHERE id = $3`

	result, err := r.getExecutor(exec).ExecContext(ctx, query, status, winnerTeamID, id)
	if err != nil {
		return fmt.Errorf("update match %d: %w", id, err)
	}
	return checkAffectedRows(result, ErrMatchNotFound)
}

func (r *postgresMatchRepository) ListByPyramid(ctx context.Context, exec SQLExecutor, pyramidID int, filter MatchFilter) ([]*models.Match, error) {
	var queryBuilder strings.Builder
	queryBuilder.WriteString(`SELECT ` + matchColumns + ` FROM matches WHERE pyramid_id = $1`)

	args := []interface{}{pyramidID}
	placeholderIndex := 2

	if len(filter.TeamIDs) > 0 {
		p := "$" + strconv.Itoa(placeholderIndex)
		queryBuilder.WriteString(" AND (challenger_team_id = ANY(" + p + ") OR defender_team_id = ANY(" + p + "))")
		args = append(args, pq.Array(int64s(filter.TeamIDs)))
		placeholderIndex++
	}

	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			statuses[i] = string(s)
		}
		queryBuilder.WriteString(" AND status = ANY($")
		queryBuilder.WriteString(strconv.Itoa(placeholderIndex))
		queryBuilder.WriteString(")")
		args = append(args, pq.Array(statuses))
		placeholderIndex++
	}

	queryBuilder.WriteString(" ORDER BY created_at DESC, id DESC")

	if filter.Limit > 0 {
		queryBuilder.WriteString(" LIMIT $")
		queryBuilder.WriteString(strconv.Itoa(placeholderIndex))
		args = append(args, filter.Limit)
	}

	return r.list(ctx, exec, queryBuilder.String(), args...)
}

func (r *postgresMatchRepository) ListByTeams(ctx context.Context, exec SQLExecutor, teamIDs []int, statuses []models.MatchStatus) ([]*models.Match, error) {
	if len(teamIDs) == 0 {
		return []*models.Match{}, nil
	}
	names := make([]string, len(statuses))
	for i, s := range statuses {
		names[i] = string(s)
	}
	query := `
		SELECT ` + matchColumns + `
		FROM matches
		WHERE (challenger_team_id = ANY($1) OR defender_team_id = ANY($1))
		  AND (cardinality($2::text[]) = 0 OR status = ANY($2))
		ORDER BY pyramid_id, created_at, id
		FOR UPDATE`
	return r.list(ctx, exec, query, pq.Array(int64s(teamIDs)), pq.Array(names))
}

func (r *postgresMatchRepository) ListExpiredPending(ctx context.Context, exec SQLExecutor, defenderTeamID int, createdBefore time.Time) ([]*models.Match, error) {
	query := `
		SELECT ` + matchColumns + `
		FROM matches
		WHERE defender_team_id = $1 AND status = $2 AND created_at < $3
		ORDER BY pyramid_id, created_at
		FOR UPDATE`
	return r.list(ctx, exec, query, defenderTeamID, models.MatchStatusPending, createdBefore)
}

func (r *postgresMatchRepository) list(ctx context.Context, exec SQLExecutor, query string, args ...interface{}) ([]*models.Match, error) {
	rows, err := r.getExecutor(exec).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	matches := make([]*models.Match, 0)
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, err
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

// CountPlayedSince counts played matches of a team, in any pyramid, that
// finished at or after since.
func (r *postgresMatchRepository) CountPlayedSince(ctx context.Context, exec SQLExecutor, teamID int, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM matches
		WHERE status = $1 AND (challenger_team_id = $2 OR defender_team_id = $2) AND updated_at >= $3`

	var n int
	if err := r.getExecutor(exec).QueryRowContext(ctx, query, models.MatchStatusPlayed, teamID, since).Scan(&n); err != nil {
		return 0, fmt.Errorf("count played matches for team %d: %w", teamID, err)
	}
	return n, nil
}

// CountPlayedByTeam counts played matches per team within [from, to).
func (r *postgresMatchRepository) CountPlayedByTeam(ctx context.Context, exec SQLExecutor, pyramidID int, from, to time.Time) (map[int]int, error) {
	query := `
		SELECT team_id, COUNT(*)
		FROM (
			SELECT challenger_team_id AS team_id FROM matches
			WHERE pyramid_id = $1 AND status = $2 AND updated_at >= $3 AND updated_at < $4
			UNION ALL
			SELECT defender_team_id FROM matches
			WHERE pyramid_id = $1 AND status = $2 AND updated_at >= $3 AND updated_at < $4
		) played
		GROUP BY team_id`

	rows, err := r.getExecutor(exec).QueryContext(ctx, query, pyramidID, models.MatchStatusPlayed, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[int]int)
	for rows.Next() {
		var teamID, n int
		if err := rows.Scan(&teamID, &n); err != nil {
			return nil, err
		}
		counts[teamID] = n
	}
	return counts, rows.Err()
}

func scanMatch(row rowScanner) (*models.Match, error) {
	m := &models.Match{}
	var winner sql.NullInt64
	err := row.Scan(&m.ID, &m.PyramidID, &m.ChallengerTeamID, &m.DefenderTeamID, &m.Status, &winner, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	m.WinnerTeamID = nullIntPtr(winner)
	return m, nil
}
