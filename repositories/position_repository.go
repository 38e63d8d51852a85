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
	ErrPositionNotFound  = errors.New("position not found")
	ErrPositionCellTaken = errors.New("pyramid cell is already occupied")
	ErrPositionTeamTaken = errors.New("team already holds a position in this pyramid")
)

type PositionRepository interface {
	GetByTeam(ctx context.Context, exec SQLExecutor, pyramidID, teamID int) (*models.Position, error)
	GetByCell(ctx context.Context, exec SQLExecutor, pyramidID, row, col int) (*models.Position, error)
	ListByPyramid(ctx context.Context, exec SQLExecutor, pyramidID int) ([]*models.Position, error)
	ListByTeams(ctx context.Context, exec SQLExecutor, pyramidID int, teamIDs []int) ([]*models.Position, error)
	Insert(ctx context.Context, exec SQLExecutor, position *models.Position) error
	Move(ctx context.Context, exec SQLExecutor, pyramidID, teamID, row, col int) error
	Delete(ctx context.Context, exec SQLExecutor, pyramidID, teamID int) error
}

type postgresPositionRepository struct {
	db *sql.DB
}

func NewPostgresPositionRepository(db *sql.DB) PositionRepository {
	return &postgresPositionRepository{db: db}
}

func (r *postgresPositionRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

func (r *postgresPositionRepository) GetByTeam(ctx context.Context, exec SQLExecutor, pyramidID, teamID int) (*models.Position, error) {
	query := `SELECT pyramid_id, team_id, row, col FROM positions WHERE pyramid_id = $1 AND team_id = $2 FOR UPDATE`
	return r.getOne(ctx, exec, query, pyramidID, teamID)
}

func (r *postgresPositionRepository) GetByCell(ctx context.Context, exec SQLExecutor, pyramidID, row, col int) (*models.Position, error) {
	query := `SELECT pyramid_id, team_id, row, col FROM positions WHERE pyramid_id = $1 AND row = $2 AND col = $3 FOR UPDATE`
	return r.getOne(ctx, exec, query, pyramidID, row, col)
}

func (r *postgresPositionRepository) getOne(ctx context.Context, exec SQLExecutor, query string, args ...interface{}) (*models.Position, error) {
	p := &models.Position{}
	err := r.getExecutor(exec).QueryRowContext(ctx, query, args...).Scan(&p.PyramidID, &p.TeamID, &p.Row, &p.Col)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPositionNotFound
		}
		return nil, err
	}
	return p, nil
}

func (r *postgresPositionRepository) ListByPyramid(ctx context.Context, exec SQLExecutor, pyramidID int) ([]*models.Position, error) {
	query := `SELECT pyramid_id, team_id, row, col FROM positions WHERE pyramid_id = $1 ORDER BY row, col`
	return r.list(ctx, exec, query, pyramidID)
}

func (r *postgresPositionRepository) ListByTeams(ctx context.Context, exec SQLExecutor, pyramidID int, teamIDs []int) ([]*models.Position, error) {
	query := `SELECT pyramid_id, team_id, row, col FROM positions WHERE pyramid_id = $1 AND team_id = ANY($2) ORDER BY row, col`
	return r.list(ctx, exec, query, pyramidID, pq.Array(int64s(teamIDs)))
}

func (r *postgresPositionRepository) list(ctx context.Context, exec SQLExecutor, query string, args ...interface{}) ([]*models.Position, error) {
	rows, err := r.getExecutor(exec).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	positions := make([]*models.Position, 0)
	for rows.Next() {
		p := &models.Position{}
		if err := rows.Scan(&p.PyramidID, &p.TeamID, &p.Row, &p.Col); err != nil {
			return nil, err
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

func (r *postgresPositionRepository) Insert(ctx context.Context, exec SQLExecutor, position *models.Position) error {
	query := `INSERT INTO positions (pyramid_id, team_id, row, col) VALUES ($1, $2, $3, $4)`

	_, err := r.getExecutor(exec).ExecContext(ctx, query, position.PyramidID, position.TeamID, position.Row, position.Col)
	return r.handlePositionError(err)
}

func (r *postgresPositionRepository) Move(ctx context.Context, exec SQLExecutor, pyramidID, teamID, row, col int) error {
	query := `UPDATE positions SET row = $1, col = $2 WHERE pyramid_id = $3 AND team_id = $4`

	result, err := r.getExecutor(exec).ExecContext(ctx, query, row, col, pyramidID, teamID)
	if err != nil {
		return r.handlePositionError(err)
	}
	return checkAffectedRows(result, ErrPositionNotFound)
}

func (r *postgresPositionRepository) Delete(ctx context.Context, exec SQLExecutor, pyramidID, teamID int) error {
	query := `DELETE FROM positions WHERE pyramid_id = $1 AND team_id = $2`

	result, err := r.getExecutor(exec).ExecContext(ctx, query, pyramidID, teamID)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrPositionNotFound)
}

func (r *postgresPositionRepository) handlePositionError(err error) error {
	if err == nil {
		return nil
	}
	if code, constraint, ok := pqConstraint(err); ok && code == pqUniqueViolation {
		switch constraint {
		case "positions_pyramid_cell_key":
			return ErrPositionCellTaken
		case "positions_pyramid_team_key":
			return ErrPositionTeamTaken
		}
	}
	return fmt.Errorf("position write: %w", err)
}
