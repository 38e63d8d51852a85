package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Dosada05/pyramid-ladder/models"
	"github.com/lib/pq"
)

var ErrTeamNotFound = errors.New("team not found")

type TeamRepository interface {
	GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Team, error)
	// LockMany loads the given teams and row-locks them in id order.
	LockMany(ctx context.Context, exec SQLExecutor, ids []int) (map[int]*models.Team, error)
	ListByIDs(ctx context.Context, exec SQLExecutor, ids []int) ([]*models.Team, error)
	ListIDsByUser(ctx context.Context, exec SQLExecutor, userID int) ([]int, error)
	UpdateLadderState(ctx context.Context, exec SQLExecutor, team *models.Team) error
	ListMembers(ctx context.Context, exec SQLExecutor, teamID int) ([]models.User, error)
}

type postgresTeamRepository struct {
	db *sql.DB
}

func NewPostgresTeamRepository(db *sql.DB) TeamRepository {
	return &postgresTeamRepository{db: db}
}

func (r *postgresTeamRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

const teamColumns = `id, player1_id, player2_id, category_id, wins, losses, winning_streak, losing_streak,
		status, last_result, defendable, amount_rejected, updated_at`

func (r *postgresTeamRepository) GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Team, error) {
	query := `SELECT ` + teamColumns + ` FROM teams WHERE id = $1`

	team, err := scanTeam(r.getExecutor(exec).QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTeamNotFound
		}
		return nil, err
	}
	return team, nil
}

func (r *postgresTeamRepository) LockMany(ctx context.Context, exec SQLExecutor, ids []int) (map[int]*models.Team, error) {
	query := `SELECT ` + teamColumns + ` FROM teams WHERE id = ANY($1) ORDER BY id FOR UPDATE`

	rows, err := r.getExecutor(exec).QueryContext(ctx, query, pq.Array(int64s(ids)))
	if err != nil {
		return nil, fmt.Errorf("lock teams %v: %w", ids, err)
	}
	defer rows.Close()

	teams := make(map[int]*models.Team, len(ids))
	for rows.Next() {
		t, err := scanTeam(rows)
		if err != nil {
			return nil, err
		}
		teams[t.ID] = t
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, id := range ids {
		if _, ok := teams[id]; !ok {
			return nil, fmt.Errorf("%w: id %d", ErrTeamNotFound, id)
		}
	}
	return teams, nil
}

func (r *postgresTeamRepository) ListByIDs(ctx context.Context, exec SQLExecutor, ids []int) ([]*models.Team, error) {
	query := `SELECT ` + teamColumns + ` FROM teams WHERE id = ANY($1) ORDER BY id`

	rows, err := r.getExecutor(exec).QueryContext(ctx, query, pq.Array(int64s(ids)))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	teams := make([]*models.Team, 0, len(ids))
	for rows.Next() {
		t, err := scanTeam(rows)
		if err != nil {
			return nil, err
		}
		teams = append(teams, t)
	}
	return teams, rows.Err()
}

func (r *postgresTeamRepository) ListIDsByUser(ctx context.Context, exec SQLExecutor, userID int) ([]int, error) {
	query := `SELECT id FROM teams WHERE player1_id = $1 OR player2_id = $1 ORDER BY id`

	rows, err := r.getExecutor(exec).QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make([]int, 0, 2)
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *postgresTeamRepository) UpdateLadderState(ctx context.Context, exec SQLExecutor, team *models.Team) error {
	query := `
		UPDATE teams
		SET wins = $1, losses = $2, winning_streak = $3, losing_streak = $4, status = $5,
			last_result = $6, defendable = $7, amount_rejected = $8, updated_at = NOW()
		WHERE id = $9
		RETURNING updated_at`

	err := r.getExecutor(exec).QueryRowContext(ctx, query,
		team.Wins, team.Losses, team.WinningStreak, team.LosingStreak, team.Status,
		team.LastResult, team.Defendable, team.AmountRejected, team.ID,
	).Scan(&team.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrTeamNotFound
		}
		return fmt.Errorf("update team %d: %w", team.ID, err)
	}
	return nil
}

func (r *postgresTeamRepository) ListMembers(ctx context.Context, exec SQLExecutor, teamID int) ([]models.User, error) {
	query := `
		SELECT u.id, u.name, u.email
		FROM teams t
		JOIN users u ON u.id IN (t.player1_id, t.player2_id)
		WHERE t.id = $1
		ORDER BY u.id`

	rows, err := r.getExecutor(exec).QueryContext(ctx, query, teamID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	members := make([]models.User, 0, 2)
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.Name, &u.Email); err != nil {
			return nil, err
		}
		members = append(members, u)
	}
	return members, rows.Err()
}

func scanTeam(row rowScanner) (*models.Team, error) {
	t := &models.Team{}
	var player1, player2, category sql.NullInt64
	err := row.Scan(
		&t.ID, &player1, &player2, &category,
		&t.Wins, &t.Losses, &t.WinningStreak, &t.LosingStreak,
		&t.Status, &t.LastResult, &t.Defendable, &t.AmountRejected, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	t.Player1ID = nullIntPtr(player1)
	t.Player2ID = nullIntPtr(player2)
	t.CategoryID = nullIntPtr(category)
	return t, nil
}

func nullIntPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	i := int(v.Int64)
	return &i
}
