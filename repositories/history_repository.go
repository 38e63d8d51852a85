package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Dosada05/pyramid-ladder/models"
)

// HistoryFilter narrows ListByPyramid. Zero values mean "any".
type HistoryFilter struct {
	Until  *time.Time
	TeamID *int
	Limit  int
}

// HistoryRepository is insert-only: the ledger is never edited.
type HistoryRepository interface {
	Append(ctx context.Context, exec SQLExecutor, entry *models.PositionHistory) error
	// ListByPyramid returns entries oldest first. With a Limit it returns
	// the newest Limit entries, newest first.
	ListByPyramid(ctx context.Context, exec SQLExecutor, pyramidID int, filter HistoryFilter) ([]*models.PositionHistory, error)
}

type postgresHistoryRepository struct {
	db *sql.DB
}

func NewPostgresHistoryRepository(db *sql.DB) HistoryRepository {
	return &postgresHistoryRepository{db: db}
}

func (r *postgresHistoryRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

const historyColumns = `id, pyramid_id, match_id, team_id, affected_team_id,
		old_row, old_col, new_row, new_col,
		affected_old_row, affected_old_col, affected_new_row, affected_new_col, effective_date`

func (r *postgresHistoryRepository) Append(ctx context.Context, exec SQLExecutor, e *models.PositionHistory) error {
	query := `
		INSERT INTO position_history
			(pyramid_id, match_id, team_id, affected_team_id, old_row, old_col, new_row, new_col,
			 affected_old_row, affected_old_col, affected_new_row, affected_new_col, effective_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id`

	if e.EffectiveDate.IsZero() {
		e.EffectiveDate = time.Now().UTC()
	}
	err := r.getExecutor(exec).QueryRowContext(ctx, query,
		e.PyramidID, e.MatchID, e.TeamID, e.AffectedTeamID,
		e.OldRow, e.OldCol, e.NewRow, e.NewCol,
		e.AffectedOldRow, e.AffectedOldCol, e.AffectedNewRow, e.AffectedNewCol,
		e.EffectiveDate,
	).Scan(&e.ID)
	if err != nil {
		return fmt.Errorf("append position history for team %d: %w", e.TeamID, err)
	}
	return nil
}

func (r *postgresHistoryRepository) ListByPyramid(ctx context.Context, exec SQLExecutor, pyramidID int, filter HistoryFilter) ([]*models.PositionHistory, error) {
	var queryBuilder strings.Builder
	queryBuilder.WriteString(`SELECT ` + historyColumns + ` FROM position_history WHERE pyramid_id = $1`)

	args := []interface{}{pyramidID}
	placeholderIndex := 2

	if filter.Until != nil {
		queryBuilder.WriteString(" AND effective_date <= $")
		queryBuilder.WriteString(strconv.Itoa(placeholderIndex))
		args = append(args, *filter.Until)
		placeholderIndex++
	}

	if filter.TeamID != nil {
		p := "$" + strconv.Itoa(placeholderIndex)
		queryBuilder.WriteString(" AND (team_id = " + p + " OR affected_team_id = " + p + ")")
		args = append(args, *filter.TeamID)
		placeholderIndex++
	}

	if filter.Limit > 0 {
		queryBuilder.WriteString(" ORDER BY effective_date DESC, id DESC LIMIT $")
		queryBuilder.WriteString(strconv.Itoa(placeholderIndex))
		args = append(args, filter.Limit)
	} else {
		queryBuilder.WriteString(" ORDER BY effective_date, id")
	}

	rows, err := r.getExecutor(exec).QueryContext(ctx, queryBuilder.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]*models.PositionHistory, 0)
	for rows.Next() {
		e, err := scanHistory(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func scanHistory(row rowScanner) (*models.PositionHistory, error) {
	e := &models.PositionHistory{}
	var matchID, affected, oldRow, oldCol, newRow, newCol, aOldRow, aOldCol, aNewRow, aNewCol sql.NullInt64
	err := row.Scan(
		&e.ID, &e.PyramidID, &matchID, &e.TeamID, &affected,
		&oldRow, &oldCol, &newRow, &newCol,
		&aOldRow, &aOldCol, &aNewRow, &aNewCol, &e.EffectiveDate,
	)
	if err != nil {
		return nil, err
	}
	e.MatchID = nullIntPtr(matchID)
	e.AffectedTeamID = nullIntPtr(affected)
	e.OldRow, e.OldCol = nullIntPtr(oldRow), nullIntPtr(oldCol)
	e.NewRow, e.NewCol = nullIntPtr(newRow), nullIntPtr(newCol)
	e.AffectedOldRow, e.AffectedOldCol = nullIntPtr(aOldRow), nullIntPtr(aOldCol)
	e.AffectedNewRow, e.AffectedNewCol = nullIntPtr(aNewRow), nullIntPtr(aNewCol)
	return e, nil
}
