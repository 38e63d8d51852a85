package handlers

import (
	"log/slog"
	"net/http"

	"github.com/Dosada05/pyramid-ladder/services"
)

// ScoreHandler serves the result sheet of an accepted match.
type ScoreHandler struct {
	scoreService services.ScoreService
	logger       *slog.Logger
}

func NewScoreHandler(ss services.ScoreService, logger *slog.Logger) *ScoreHandler {
	return &ScoreHandler{
		scoreService: ss,
		logger:       logger,
	}
}

type startScoreInput struct {
	Sets int `json:"sets" validate:"required,gte=1,lte=5"`
}

type submitScoreInput struct {
	ChallengerGames []int `json:"challenger_games" validate:"required,min=1,max=5,dive,gte=0,lte=99"`
	DefenderGames   []int `json:"defender_games" validate:"required,min=1,max=5,dive,gte=0,lte=99"`
}

type agreeScoreInput struct {
	Agreed *bool `json:"agreed" validate:"required"`
}

func (h *ScoreHandler) GetScore(w http.ResponseWriter, r *http.Request) {
	matchID, err := getIDFromURL(r, "matchID")
	if err != nil {
		badRequestResponse(w, r, h.logger, err)
		return
	}
	score, err := h.scoreService.Get(r.Context(), matchID)
	if err != nil {
		serviceErrorResponse(w, r, h.logger, err)
		return
	}
	okResponse(w, r, h.logger, http.StatusOK, "score", score)
}

func (h *ScoreHandler) StartScoring(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r, h.logger)
	if !ok {
		return
	}
	matchID, err := getIDFromURL(r, "matchID")
	if err != nil {
		badRequestResponse(w, r, h.logger, err)
		return
	}
	var input startScoreInput
	if !readValidJSON(w, r, h.logger, &input) {
		return
	}

	score, err := h.scoreService.Start(r.Context(), userID, matchID, input.Sets)
	if err != nil {
		serviceErrorResponse(w, r, h.logger, err)
		return
	}
	okResponse(w, r, h.logger, http.StatusCreated, "score", score)
}

func (h *ScoreHandler) SubmitScore(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r, h.logger)
	if !ok {
		return
	}
	matchID, err := getIDFromURL(r, "matchID")
	if err != nil {
		badRequestResponse(w, r, h.logger, err)
		return
	}
	var input submitScoreInput
	if !readValidJSON(w, r, h.logger, &input) {
		return
	}

	score, err := h.scoreService.Submit(r.Context(), userID, matchID, input.ChallengerGames, input.DefenderGames)
	if err != nil {
		serviceErrorResponse(w, r, h.logger, err)
		return
	}
	okResponse(w, r, h.logger, http.StatusOK, "score", score)
}

func (h *ScoreHandler) AgreeScore(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r, h.logger)
	if !ok {
		return
	}
	matchID, err := getIDFromURL(r, "matchID")
	if err != nil {
		badRequestResponse(w, r, h.logger, err)
		return
	}
	var input agreeScoreInput
	if !readValidJSON(w, r, h.logger, &input) {
		return
	}

	score, err := h.scoreService.Agree(r.Context(), userID, matchID, *input.Agreed)
	if err != nil {
		serviceErrorResponse(w, r, h.logger, err)
		return
	}
	okResponse(w, r, h.logger, http.StatusOK, "score", score)
}
