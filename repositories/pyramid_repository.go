package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Dosada05/pyramid-ladder/models"
)

var (
	ErrPyramidNotFound     = errors.New("pyramid not found")
	ErrPyramidNameConflict = errors.New("pyramid name already exists")
)

type PyramidRepository interface {
	Create(ctx context.Context, exec SQLExecutor, pyramid *models.Pyramid) error
	GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Pyramid, error)
	ListActive(ctx context.Context, exec SQLExecutor) ([]*models.Pyramid, error)
	// Update writes name, row_count and active of an existing pyramid.
	Update(ctx context.Context, exec SQLExecutor, pyramid *models.Pyramid) error
}

type postgresPyramidRepository struct {
	db *sql.DB
}

func NewPostgresPyramidRepository(db *sql.DB) PyramidRepository {
	return &postgresPyramidRepository{db: db}
}

func (r *postgresPyramidRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

func (r *postgresPyramidRepository) Create(ctx context.Context, exec SQLExecutor, pyramid *models.Pyramid) error {
	query := `
		INSERT INTO pyramids (name, row_count, active)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`

	err := r.getExecutor(exec).QueryRowContext(ctx, query, pyramid.Name, pyramid.RowCount, pyramid.Active).
		Scan(&pyramid.ID, &pyramid.CreatedAt)
	if err != nil {
		if code, constraint, ok := pqConstraint(err); ok && code == pqUniqueViolation && constraint == "pyramids_name_key" {
			return ErrPyramidNameConflict
		}
		return fmt.Errorf("create pyramid: %w", err)
	}
	return nil
}

func (r *postgresPyramidRepository) GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Pyramid, error) {
	query := `SELECT id, name, row_count, active, created_at FROM pyramids WHERE id = $1`

	pyramid, err := scanPyramid(r.getExecutor(exec).QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPyramidNotFound
		}
		return nil, err
	}
	return pyramid, nil
}

func (r *postgresPyramidRepository) ListActive(ctx context.Context, exec SQLExecutor) ([]*models.Pyramid, error) {
	query := `SELECT id, name, row_count, active, created_at FROM pyramids WHERE active ORDER BY id`

	rows, err := r.getExecutor(exec).QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	pyramids := make([]*models.Pyramid, 0)
	for rows.Next() {
		p, err := scanPyramid(rows)
		if err != nil {
			return nil, err
		}
		pyramids = append(pyramids, p)
	}
	return pyramids, rows.Err()
}

func (r *postgresPyramidRepository) Update(ctx context.Context, exec SQLExecutor, pyramid *models.Pyramid) error {
	query := `UPDATE pyramids SET name = $1, row_count = $2, active = $3 WHERE id = $4`

	result, err := r.getExecutor(exec).ExecContext(ctx, query, pyramid.Name, pyramid.RowCount, pyramid.Active, pyramid.ID)
	if err != nil {
		if code, constraint, ok := pqConstraint(err); ok && code == pqUniqueViolation && constraint == "pyramids_name_key" {
			return ErrPyramidNameConflict
		}
		return fmt.Errorf("update pyramid %d: %w", pyramid.ID, err)
	}
	return checkAffectedRows(result, ErrPyramidNotFound)
}

func scanPyramid(row rowScanner) (*models.Pyramid, error) {
	p := &models.Pyramid{}
	if err := row.Scan(&p.ID, &p.Name, &p.RowCount, &p.Active, &p.CreatedAt); err != nil {
		return nil, err
	}
	return p, nil
}
