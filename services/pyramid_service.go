package services

import (
	"context"
	"errors"
	"time"

	"github.com/Dosada05/pyramid-ladder/models"
	"github.com/Dosada05/pyramid-ladder/pyramid"
	"github.com/Dosada05/pyramid-ladder/repositories"
	"golang.org/x/sync/errgroup"
)

// PyramidView is a pyramid with its current layout, best cell first.
type PyramidView struct {
	*models.Pyramid
	Standings []pyramid.Standing `json:"standings"`
}

type PyramidService interface {
	GetPyramid(ctx context.Context, pyramidID int) (*PyramidView, error)
	ListActive(ctx context.Context) ([]*models.Pyramid, error)
	ListHistory(ctx context.Context, pyramidID int, teamID *int, limit int) ([]*models.PositionHistory, error)
	ReconstructAt(ctx context.Context, pyramidID int, ts time.Time) ([]pyramid.Standing, error)
}

type pyramidService struct {
	store Store
}

func NewPyramidService(store Store) PyramidService {
	return &pyramidService{store: store}
}

func (s *pyramidService) GetPyramid(ctx context.Context, pyramidID int) (*PyramidView, error) {
	var p *models.Pyramid
	var positions []*models.Position

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		p, err = s.store.Pyramids.GetByID(gCtx, nil, pyramidID)
		return err
	})
	g.Go(func() error {
		var err error
		positions, err = s.store.Positions.ListByPyramid(gCtx, nil, pyramidID)
		return err
	})
	if err := g.Wait(); err != nil {
		if errors.Is(err, repositories.ErrPyramidNotFound) {
			return nil, ErrPyramidNotFound
		}
		return nil, storageFailure("get pyramid", err)
	}

	ids := make([]int, 0, len(positions))
	cells := make(map[int]pyramid.Cell, len(positions))
	for _, pos := range positions {
		ids = append(ids, pos.TeamID)
		cells[pos.TeamID] = pyramid.CellOf(pos)
	}
	if len(ids) > 0 {
		teams, err := s.store.Teams.ListByIDs(ctx, nil, ids)
		if err != nil {
			return nil, storageFailure("get pyramid teams", err)
		}
		p.Teams = teams
	}
	p.Positions = positions
	return &PyramidView{Pyramid: p, Standings: pyramid.Standings(cells)}, nil
}

func (s *pyramidService) ListActive(ctx context.Context) ([]*models.Pyramid, error) {
	pyramids, err := s.store.Pyramids.ListActive(ctx, nil)
	if err != nil {
		return nil, storageFailure("list pyramids", err)
	}
	return pyramids, nil
}

// ListHistory returns ledger entries touching the pyramid, or one team of it.
// A positive limit keeps the newest entries, newest first.
func (s *pyramidService) ListHistory(ctx context.Context, pyramidID int, teamID *int, limit int) ([]*models.PositionHistory, error) {
	if err := s.ensurePyramid(ctx, pyramidID); err != nil {
		return nil, err
	}
	entries, err := s.store.History.ListByPyramid(ctx, nil, pyramidID, repositories.HistoryFilter{TeamID: teamID, Limit: limit})
	if err != nil {
		return nil, storageFailure("list history", err)
	}
	return entries, nil
}

// ReconstructAt replays the ledger up to ts.
func (s *pyramidService) ReconstructAt(ctx context.Context, pyramidID int, ts time.Time) ([]pyramid.Standing, error) {
	if err := s.ensurePyramid(ctx, pyramidID); err != nil {
		return nil, err
	}
	entries, err := s.store.History.ListByPyramid(ctx, nil, pyramidID, repositories.HistoryFilter{Until: &ts})
	if err != nil {
		return nil, storageFailure("reconstruct ladder", err)
	}
	return pyramid.Standings(pyramid.Reconstruct(entries, ts)), nil
}

func (s *pyramidService) ensurePyramid(ctx context.Context, pyramidID int) error {
	_, err := s.store.Pyramids.GetByID(ctx, nil, pyramidID)
	if errors.Is(err, repositories.ErrPyramidNotFound) {
		return ErrPyramidNotFound
	}
	return storageFailure("get pyramid", err)
}
