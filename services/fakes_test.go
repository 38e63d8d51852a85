package services

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"testing"
	"time"

	"github.com/Dosada05/pyramid-ladder/config"
	"github.com/Dosada05/pyramid-ladder/models"
	"github.com/Dosada05/pyramid-ladder/notifications"
	"github.com/Dosada05/pyramid-ladder/pyramid"
	"github.com/Dosada05/pyramid-ladder/repositories"
	"github.com/stretchr/testify/require"
)

type posKey struct{ pyramidID, teamID int }

// memState is the whole in-memory database. WithinTx snapshots it and puts
// the snapshot back when the callback fails.
type memState struct {
	pyramids  map[int]*models.Pyramid
	teams     map[int]*models.Team
	members   map[int][]models.User
	positions map[posKey]*models.Position
	matches   map[int]*models.Match
	history   []*models.PositionHistory
	scores    map[int]*models.MatchScore
	nextID    int
}

func (s *memState) clone() *memState {
	c := &memState{
		pyramids:  make(map[int]*models.Pyramid, len(s.pyramids)),
		teams:     make(map[int]*models.Team, len(s.teams)),
		members:   s.members,
		positions: make(map[posKey]*models.Position, len(s.positions)),
		matches:   make(map[int]*models.Match, len(s.matches)),
		history:   append([]*models.PositionHistory(nil), s.history...),
		scores:    make(map[int]*models.MatchScore, len(s.scores)),
		nextID:    s.nextID,
	}
	for k, v := range s.pyramids {
		cp := *v
		c.pyramids[k] = &cp
	}
	for k, v := range s.teams {
		cp := *v
		c.teams[k] = &cp
	}
	for k, v := range s.positions {
		cp := *v
		c.positions[k] = &cp
	}
	for k, v := range s.matches {
		cp := *v
		c.matches[k] = &cp
	}
	for k, v := range s.scores {
		c.scores[k] = copyScore(v)
	}
	return c
}

func (s *memState) id() int {
	s.nextID++
	return s.nextID
}

type memDB struct {
	state   *memState
	now     func() time.Time
	failOn  string
	appends int
}

func newMemDB(now func() time.Time) *memDB {
	return &memDB{
		state: &memState{
			pyramids:  map[int]*models.Pyramid{},
			teams:     map[int]*models.Team{},
			members:   map[int][]models.User{},
			positions: map[posKey]*models.Position{},
			matches:   map[int]*models.Match{},
			scores:    map[int]*models.MatchScore{},
		},
		now: now,
	}
}

var errInjected = errors.New("connection reset by peer")

func (db *memDB) fail(op string) error {
	if db.failOn == op {
		return errInjected
	}
	return nil
}

func (db *memDB) WithinTx(_ context.Context, fn func(exec repositories.SQLExecutor) error) error {
	saved := db.state.clone()
	if err := fn(nil); err != nil {
		db.state = saved
		return err
	}
	return nil
}

type memPyramids struct{ db *memDB }

func (r memPyramids) Create(_ context.Context, _ repositories.SQLExecutor, p *models.Pyramid) error {
	for _, other := range r.db.state.pyramids {
		if other.Name == p.Name {
			return repositories.ErrPyramidNameConflict
		}
	}
	p.ID = r.db.state.id()
	p.CreatedAt = r.db.now()
	cp := *p
	r.db.state.pyramids[p.ID] = &cp
	return nil
}

func (r memPyramids) GetByID(_ context.Context, _ repositories.SQLExecutor, id int) (*models.Pyramid, error) {
	p, ok := r.db.state.pyramids[id]
	if !ok {
		return nil, repositories.ErrPyramidNotFound
	}
	cp := *p
	return &cp, nil
}

func (r memPyramids) ListActive(_ context.Context, _ repositories.SQLExecutor) ([]*models.Pyramid, error) {
	var out []*models.Pyramid
	for _, p := range r.db.state.pyramids {
		if p.Active {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r memPyramids) Update(_ context.Context, _ repositories.SQLExecutor, p *models.Pyramid) error {
	stored, ok := r.db.state.pyramids[p.ID]
	if !ok {
		return repositories.ErrPyramidNotFound
	}
	for _, other := range r.db.state.pyramids {
		if other.ID != p.ID && other.Name == p.Name {
			return repositories.ErrPyramidNameConflict
		}
	}
	stored.Name, stored.RowCount, stored.Active = p.Name, p.RowCount, p.Active
	return nil
}

type memTeams struct{ db *memDB }

func (r memTeams) GetByID(_ context.Context, _ repositories.SQLExecutor, id int) (*models.Team, error) {
	t, ok := r.db.state.teams[id]
	if !ok {
		return nil, repositories.ErrTeamNotFound
	}
	cp := *t
	return &cp, nil
}

func (r memTeams) LockMany(ctx context.Context, exec repositories.SQLExecutor, ids []int) (map[int]*models.Team, error) {
	out := make(map[int]*models.Team, len(ids))
	for _, id := range ids {
		t, err := r.GetByID(ctx, exec, id)
		if err != nil {
			return nil, err
		}
		out[id] = t
	}
	return out, nil
}

func (r memTeams) ListByIDs(ctx context.Context, exec repositories.SQLExecutor, ids []int) ([]*models.Team, error) {
	var out []*models.Team
	for _, id := range ids {
		if t, err := r.GetByID(ctx, exec, id); err == nil {
			out = append(out, t)
		}
	}
	return out, nil
}

func (r memTeams) ListIDsByUser(_ context.Context, _ repositories.SQLExecutor, userID int) ([]int, error) {
	var ids []int
	for id, t := range r.db.state.teams {
		if t.HasMember(userID) {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)
	return ids, nil
}

func (r memTeams) UpdateLadderState(_ context.Context, _ repositories.SQLExecutor, t *models.Team) error {
	if err := r.db.fail("UpdateLadderState"); err != nil {
		return err
	}
	if _, ok := r.db.state.teams[t.ID]; !ok {
		return repositories.ErrTeamNotFound
	}
	t.UpdatedAt = r.db.now()
	cp := *t
	r.db.state.teams[t.ID] = &cp
	return nil
}

func (r memTeams) ListMembers(_ context.Context, _ repositories.SQLExecutor, teamID int) ([]models.User, error) {
	return r.db.state.members[teamID], nil
}

type memPositions struct{ db *memDB }

func (r memPositions) GetByTeam(_ context.Context, _ repositories.SQLExecutor, pyramidID, teamID int) (*models.Position, error) {
	p, ok := r.db.state.positions[posKey{pyramidID, teamID}]
	if !ok {
		return nil, repositories.ErrPositionNotFound
	}
	cp := *p
	return &cp, nil
}

func (r memPositions) GetByCell(_ context.Context, _ repositories.SQLExecutor, pyramidID, row, col int) (*models.Position, error) {
	for _, p := range r.db.state.positions {
		if p.PyramidID == pyramidID && p.Row == row && p.Col == col {
			cp := *p
			return &cp, nil
		}
	}
	return nil, repositories.ErrPositionNotFound
}

func (r memPositions) ListByPyramid(_ context.Context, _ repositories.SQLExecutor, pyramidID int) ([]*models.Position, error) {
	var out []*models.Position
	for _, p := range r.db.state.positions {
		if p.PyramidID == pyramidID {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return pyramid.CellOf(out[i]).Better(pyramid.CellOf(out[j]))
	})
	return out, nil
}

func (r memPositions) ListByTeams(ctx context.Context, exec repositories.SQLExecutor, pyramidID int, teamIDs []int) ([]*models.Position, error) {
	var out []*models.Position
	for _, id := range teamIDs {
		if p, err := r.GetByTeam(ctx, exec, pyramidID, id); err == nil {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r memPositions) cellTaken(pyramidID, teamID, row, col int) bool {
	for _, p := range r.db.state.positions {
		if p.PyramidID == pyramidID && p.TeamID != teamID && p.Row == row && p.Col == col {
			return true
		}
	}
	return false
}

func (r memPositions) Insert(_ context.Context, _ repositories.SQLExecutor, p *models.Position) error {
	key := posKey{p.PyramidID, p.TeamID}
	if _, ok := r.db.state.positions[key]; ok {
		return repositories.ErrPositionTeamTaken
	}
	if r.cellTaken(p.PyramidID, p.TeamID, p.Row, p.Col) {
		return repositories.ErrPositionCellTaken
	}
	cp := *p
	r.db.state.positions[key] = &cp
	return nil
}

// Move enforces the unique cell constraint after every statement, like the
// database does.
func (r memPositions) Move(_ context.Context, _ repositories.SQLExecutor, pyramidID, teamID, row, col int) error {
	if err := r.db.fail("Move"); err != nil {
		return err
	}
	p, ok := r.db.state.positions[posKey{pyramidID, teamID}]
	if !ok {
		return repositories.ErrPositionNotFound
	}
	if r.cellTaken(pyramidID, teamID, row, col) {
		return repositories.ErrPositionCellTaken
	}
	p.Row, p.Col = row, col
	return nil
}

func (r memPositions) Delete(_ context.Context, _ repositories.SQLExecutor, pyramidID, teamID int) error {
	key := posKey{pyramidID, teamID}
	if _, ok := r.db.state.positions[key]; !ok {
		return repositories.ErrPositionNotFound
	}
	delete(r.db.state.positions, key)
	return nil
}

type memMatches struct{ db *memDB }

func (r memMatches) Create(_ context.Context, _ repositories.SQLExecutor, m *models.Match) error {
	m.ID = r.db.state.id()
	m.CreatedAt = r.db.now()
	m.UpdatedAt = m.CreatedAt
	cp := *m
	r.db.state.matches[m.ID] = &cp
	return nil
}

func (r memMatches) GetByID(_ context.Context, _ repositories.SQLExecutor, id int) (*models.Match, error) {
	m, ok := r.db.state.matches[id]
	if !ok {
		return nil, repositories.ErrMatchNotFound
	}
	cp := *m
	return &cp, nil
}

func (r memMatches) GetForUpdate(ctx context.Context, exec repositories.SQLExecutor, id int) (*models.Match, error) {
	return r.GetByID(ctx, exec, id)
}

func (r memMatches) UpdateStatus(_ context.Context, _ repositories.SQLExecutor, id int, status models.MatchStatus, winner *int) error {
	if err := r.db.fail("UpdateStatus"); err != nil {
		return err
	}
	m, ok := r.db.state.matches[id]
	if !ok {
		return repositories.ErrMatchNotFound
	}
	m.Status = status
	m.WinnerTeamID = winner
	m.UpdatedAt = r.db.now()
	return nil
}

func (r memMatches) sorted() []*models.Match {
	out := make([]*models.Match, 0, len(r.db.state.matches))
	for _, m := range r.db.state.matches {
		cp := *m
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r memMatches) ListByPyramid(_ context.Context, _ repositories.SQLExecutor, pyramidID int, f repositories.MatchFilter) ([]*models.Match, error) {
	var out []*models.Match
	for _, m := range r.sorted() {
		if m.PyramidID != pyramidID {
			continue
		}
		if len(f.Statuses) > 0 && !containsStatus(f.Statuses, m.Status) {
			continue
		}
		if len(f.TeamIDs) > 0 && !containsInt(f.TeamIDs, m.ChallengerTeamID) && !containsInt(f.TeamIDs, m.DefenderTeamID) {
			continue
		}
		out = append(out, m)
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out, nil
}

func (r memMatches) ListByTeams(_ context.Context, _ repositories.SQLExecutor, teamIDs []int, statuses []models.MatchStatus) ([]*models.Match, error) {
	var out []*models.Match
	for _, m := range r.sorted() {
		if len(statuses) > 0 && !containsStatus(statuses, m.Status) {
			continue
		}
		if containsInt(teamIDs, m.ChallengerTeamID) || containsInt(teamIDs, m.DefenderTeamID) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r memMatches) ListExpiredPending(_ context.Context, _ repositories.SQLExecutor, defender int, before time.Time) ([]*models.Match, error) {
	var out []*models.Match
	for _, m := range r.sorted() {
		if m.Status == models.MatchStatusPending && m.DefenderTeamID == defender && m.CreatedAt.Before(before) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r memMatches) CountPlayedSince(_ context.Context, _ repositories.SQLExecutor, teamID int, since time.Time) (int, error) {
	n := 0
	for _, m := range r.db.state.matches {
		if m.Status == models.MatchStatusPlayed && m.Involves(teamID) && !m.UpdatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (r memMatches) CountPlayedByTeam(_ context.Context, _ repositories.SQLExecutor, pyramidID int, from, to time.Time) (map[int]int, error) {
	out := map[int]int{}
	for _, m := range r.db.state.matches {
		if m.PyramidID != pyramidID || m.Status != models.MatchStatusPlayed {
			continue
		}
		if m.UpdatedAt.Before(from) || !m.UpdatedAt.Before(to) {
			continue
		}
		out[m.ChallengerTeamID]++
		out[m.DefenderTeamID]++
	}
	return out, nil
}

type memScores struct{ db *memDB }

func copyScore(v *models.MatchScore) *models.MatchScore {
	cp := *v
	cp.ChallengerGames = append([]int(nil), v.ChallengerGames...)
	cp.DefenderGames = append([]int(nil), v.DefenderGames...)
	if v.ChallengerAgreed != nil {
		b := *v.ChallengerAgreed
		cp.ChallengerAgreed = &b
	}
	if v.DefenderAgreed != nil {
		b := *v.DefenderAgreed
		cp.DefenderAgreed = &b
	}
	return &cp
}

func (r memScores) Create(_ context.Context, _ repositories.SQLExecutor, sc *models.MatchScore) error {
	if _, ok := r.db.state.scores[sc.MatchID]; ok {
		return repositories.ErrScoreExists
	}
	sc.CreatedAt = r.db.now()
	sc.UpdatedAt = sc.CreatedAt
	r.db.state.scores[sc.MatchID] = copyScore(sc)
	return nil
}

func (r memScores) GetByMatch(_ context.Context, _ repositories.SQLExecutor, matchID int) (*models.MatchScore, error) {
	sc, ok := r.db.state.scores[matchID]
	if !ok {
		return nil, repositories.ErrScoreNotFound
	}
	return copyScore(sc), nil
}

func (r memScores) GetForUpdate(ctx context.Context, exec repositories.SQLExecutor, matchID int) (*models.MatchScore, error) {
	return r.GetByMatch(ctx, exec, matchID)
}

func (r memScores) Update(_ context.Context, _ repositories.SQLExecutor, sc *models.MatchScore) error {
	if _, ok := r.db.state.scores[sc.MatchID]; !ok {
		return repositories.ErrScoreNotFound
	}
	sc.UpdatedAt = r.db.now()
	r.db.state.scores[sc.MatchID] = copyScore(sc)
	return nil
}

// memHistory has no way to change an entry once appended.
type memHistory struct{ db *memDB }

func (r memHistory) Append(_ context.Context, _ repositories.SQLExecutor, e *models.PositionHistory) error {
	e.ID = r.db.state.id()
	if e.EffectiveDate.IsZero() {
		e.EffectiveDate = r.db.now()
	}
	cp := *e
	r.db.state.history = append(r.db.state.history, &cp)
	r.db.appends++
	return nil
}

func (r memHistory) ListByPyramid(_ context.Context, _ repositories.SQLExecutor, pyramidID int, f repositories.HistoryFilter) ([]*models.PositionHistory, error) {
	var out []*models.PositionHistory
	for _, e := range r.db.state.history {
		if e.PyramidID != pyramidID {
			continue
		}
		if f.Until != nil && e.EffectiveDate.After(*f.Until) {
			continue
		}
		if f.TeamID != nil && e.TeamID != *f.TeamID && (e.AffectedTeamID == nil || *e.AffectedTeamID != *f.TeamID) {
			continue
		}
		cp := *e
		out = append(out, &cp)
	}
	if f.Limit > 0 {
		sort.SliceStable(out, func(i, j int) bool {
			if !out[i].EffectiveDate.Equal(out[j].EffectiveDate) {
				return out[i].EffectiveDate.After(out[j].EffectiveDate)
			}
			return out[i].ID > out[j].ID
		})
		if len(out) > f.Limit {
			out = out[:f.Limit]
		}
	}
	return out, nil
}

func containsStatus(list []models.MatchStatus, s models.MatchStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// ladderEnv wires every service to one in-memory database and a pinned clock.
type ladderEnv struct {
	t         *testing.T
	db        *memDB
	now       time.Time
	pyramidID int
	events    []notifications.Event

	engine     *Engine
	matches    MatchService
	sweeper    ExpirationService
	risky      RiskyService
	placements PositionService
	scores     ScoreService
	pyramids   PyramidService
}

// Wednesday noon, so "this week" started two and a half days ago.
var testNow = time.Date(2025, 3, 12, 12, 0, 0, 0, time.UTC)

func newLadderEnv(t *testing.T, rowCount int, tweak ...func(*config.Ladder)) *ladderEnv {
	t.Helper()
	env := &ladderEnv{t: t, now: testNow}
	clock := func() time.Time { return env.now }
	env.db = newMemDB(clock)

	rules := config.Ladder{
		ExpiryWindow:  48 * time.Hour,
		CellarRule:    config.CellarRuleOff,
		CellarStreak:  3,
		RiskyInterval: time.Hour,
		Location:      time.UTC,
	}
	for _, fn := range tweak {
		fn(&rules)
	}

	store := Store{
		Tx:        env.db,
		Pyramids:  memPyramids{env.db},
		Teams:     memTeams{env.db},
		Positions: memPositions{env.db},
		Matches:   memMatches{env.db},
		History:   memHistory{env.db},
		Scores:    memScores{env.db},
	}
	notifier := notifications.NotifierFunc(func(_ context.Context, ev notifications.Event) error {
		env.events = append(env.events, ev)
		return nil
	})
	env.engine = NewEngine(store, rules, nil, notifier, slog.New(slog.DiscardHandler)).WithClock(clock)
	env.matches = NewMatchService(env.engine)
	env.sweeper = NewExpirationService(env.engine)
	env.risky = NewRiskyService(env.engine)
	env.placements = NewPositionService(env.engine)
	env.scores = NewScoreService(env.engine)
	env.pyramids = NewPyramidService(store)

	p := &models.Pyramid{Name: "Liga", RowCount: rowCount, Active: true}
	require.NoError(t, store.Pyramids.Create(context.Background(), nil, p))
	env.pyramidID = p.ID
	return env
}

// userOf is the first player of a team created by addTeam.
func userOf(teamID int) int { return teamID * 100 }

// addTeam creates a team whose two players are userOf(id) and userOf(id)+1,
// and seats it at (row, col) when row > 0.
func (e *ladderEnv) addTeam(row, col int) int {
	e.t.Helper()
	st := e.db.state
	id := st.id()
	p1, p2 := userOf(id), userOf(id)+1
	st.teams[id] = &models.Team{
		ID: id, Player1ID: &p1, Player2ID: &p2,
		Status: models.TeamStatusIdle, LastResult: models.LastResultNone,
	}
	st.members[id] = []models.User{
		{ID: p1, Name: "Jugador A", Email: "a@example.com"},
		{ID: p2, Name: "Jugador B", Email: "b@example.com"},
	}
	if row > 0 {
		st.positions[posKey{e.pyramidID, id}] = &models.Position{PyramidID: e.pyramidID, TeamID: id, Row: row, Col: col}
	}
	return id
}

// seedMatch stores a match directly, bypassing the create checks.
func (e *ladderEnv) seedMatch(challenger, defender int, status models.MatchStatus, createdAt time.Time) int {
	st := e.db.state
	id := st.id()
	st.matches[id] = &models.Match{
		ID: id, PyramidID: e.pyramidID,
		ChallengerTeamID: challenger, DefenderTeamID: defender,
		Status: status, CreatedAt: createdAt, UpdatedAt: createdAt,
	}
	return id
}

// seedPlayed records a finished match at playedAt.
func (e *ladderEnv) seedPlayed(a, b int, playedAt time.Time) {
	id := e.seedMatch(a, b, models.MatchStatusPlayed, playedAt.Add(-time.Hour))
	m := e.db.state.matches[id]
	m.WinnerTeamID = intPtr(a)
	m.UpdatedAt = playedAt
}

func (e *ladderEnv) team(id int) *models.Team {
	cp := *e.db.state.teams[id]
	return &cp
}

func (e *ladderEnv) match(id int) *models.Match {
	cp := *e.db.state.matches[id]
	return &cp
}

func (e *ladderEnv) cell(teamID int) (pyramid.Cell, bool) {
	p, ok := e.db.state.positions[posKey{e.pyramidID, teamID}]
	if !ok {
		return pyramid.Cell{}, false
	}
	return pyramid.CellOf(p), true
}

func (e *ladderEnv) requireCell(teamID, row, col int) {
	e.t.Helper()
	c, ok := e.cell(teamID)
	require.True(e.t, ok, "team %d has no position", teamID)
	require.Equal(e.t, pyramid.Cell{Row: row, Col: col}, c, "team %d", teamID)
}

// requireLayout checks one team per cell and one cell per team.
func (e *ladderEnv) requireLayout() {
	e.t.Helper()
	positions, err := memPositions{e.db}.ListByPyramid(context.Background(), nil, e.pyramidID)
	require.NoError(e.t, err)
	require.NoError(e.t, pyramid.ValidateLayout(positions, e.db.state.pyramids[e.pyramidID].RowCount))
}

func (e *ladderEnv) eventKinds() []notifications.Kind {
	kinds := make([]notifications.Kind, 0, len(e.events))
	for _, ev := range e.events {
		kinds = append(kinds, ev.Kind)
	}
	return kinds
}
