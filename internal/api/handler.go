// Package api provides HTTP handlers for the ARISE CTF API.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/arisectf/arise-server/internal/auth"
	"github.com/arisectf/arise-server/internal/domain"
	"github.com/arisectf/arise-server/internal/errs"
	"github.com/arisectf/arise-server/internal/game"
	"github.com/arisectf/arise-server/internal/rank"
	"github.com/go-chi/chi/v5"
)

// Submission feedback shown verbatim by clients.
const (
	msgCorrect       = "Correct flag! Points awarded."
	msgWrong         = "Incorrect flag. Try again."
	msgAlreadySolved = "Challenge already solved."
)

// Handler serves the challenge, scoring and auth endpoints.
type Handler struct {
	game             *game.Service
	auth             *auth.Service
	hub              *LiveHub
	leaderboardLimit int
}

// NewHandler creates a new Handler with common dependencies.
func NewHandler(gameSvc *game.Service, authSvc *auth.Service, hub *LiveHub, leaderboardLimit int) *Handler {
	return &Handler{
		game:             gameSvc,
		auth:             authSvc,
		hub:              hub,
		leaderboardLimit: leaderboardLimit,
	}
}

// RegisterRoutes registers all API routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Post("/register", h.Register)
		r.Post("/login", h.Login)
		r.Get("/me", h.Me)
		r.Get("/challenges", h.ListChallenges)
		r.Get("/challenge_details", h.ChallengeDetails)
		r.Post("/unlock_hint", h.UnlockHint)
		r.Post("/submit_flag", h.SubmitFlag)
		r.Get("/leaderboard", h.Leaderboard)
	})
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// writeError maps service errors onto the HTTP error taxonomy.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errs.ErrNotFound):
		Error(w, http.StatusNotFound, err.Error())
	case errors.Is(err, errs.ErrValidation):
		Error(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, errs.ErrAlreadyExists):
		Error(w, http.StatusConflict, "username or email already exists")
	case errors.Is(err, errs.ErrUnauthorized):
		Error(w, http.StatusUnauthorized, "invalid credentials")
	default:
		Error(w, http.StatusInternalServerError, "internal server error")
	}
}

// userPayload is the client-facing user object. Rank is derived from the
// score at serialization time, never read from storage.
type userPayload struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Guild    string `json:"guild,omitempty"`
	Score    int    `json:"score"`
	Rank     string `json:"rank"`
}

func userToPayload(u *domain.User) userPayload {
	return userPayload{
		ID:       u.ID,
		Username: u.Username,
		Email:    u.Email,
		Guild:    u.Guild,
		Score:    u.Score,
		Rank:     string(rank.ForScore(u.Score)),
	}
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Contact  string `json:"contact"`
	Password string `json:"password"`
	Guild    string `json:"guild"`
}

// Register handles POST /api/register.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, token, err := h.auth.Register(r.Context(), auth.RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		Contact:  req.Contact,
		Password: req.Password,
		Guild:    req.Guild,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	h.broadcastLeaderboard(r)

	JSON(w, http.StatusCreated, map[string]any{
		"message": "Registration successful",
		"user":    userToPayload(user),
		"token":   token,
	})
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login handles POST /api/login. The username field also accepts an
// email address or contact number.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, token, err := h.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	JSON(w, http.StatusOK, map[string]any{
		"message": "Login successful",
		"user":    userToPayload(user),
		"token":   token,
	})
}

// Me handles GET /api/me. It returns the authoritative user state for
// the bearer token, so clients can refresh their mirrored session blob.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		Error(w, http.StatusUnauthorized, "missing bearer token")
		return
	}

	user, err := h.auth.Authenticate(r.Context(), token)
	if err != nil {
		writeError(w, err)
		return
	}

	JSON(w, http.StatusOK, userToPayload(user))
}

func queryID(r *http.Request, key string) (int64, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, errs.ErrValidation
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, errs.ErrValidation
	}
	return id, nil
}

// ListChallenges handles GET /api/challenges?user_id=.
// Descriptions are always inline; hints appear once unlocked.
func (h *Handler) ListChallenges(w http.ResponseWriter, r *http.Request) {
	userID, err := queryID(r, "user_id")
	if err != nil {
		Error(w, http.StatusBadRequest, "user_id is required")
		return
	}

	views, err := h.game.ListChallenges(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}

	JSON(w, http.StatusOK, views)
}

// ChallengeDetails handles GET /api/challenge_details?user_id=&challenge_id=.
// Compatibility read for clients that fetch descriptions lazily.
func (h *Handler) ChallengeDetails(w http.ResponseWriter, r *http.Request) {
	userID, err := queryID(r, "user_id")
	if err != nil {
		Error(w, http.StatusBadRequest, "user_id is required")
		return
	}
	challengeID, err := queryID(r, "challenge_id")
	if err != nil {
		Error(w, http.StatusBadRequest, "challenge_id is required")
		return
	}

	details, err := h.game.GetChallengeDetails(r.Context(), userID, challengeID)
	if err != nil {
		writeError(w, err)
		return
	}

	JSON(w, http.StatusOK, details)
}

type pairRequest struct {
	UserID      int64 `json:"user_id"`
	ChallengeID int64 `json:"challenge_id"`
}

// UnlockHint handles POST /api/unlock_hint.
func (h *Handler) UnlockHint(w http.ResponseWriter, r *http.Request) {
	var req pairRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID <= 0 || req.ChallengeID <= 0 {
		Error(w, http.StatusBadRequest, "user_id and challenge_id are required")
		return
	}

	result, err := h.game.UnlockHint(r.Context(), req.UserID, req.ChallengeID)
	if err != nil {
		writeError(w, err)
		return
	}

	if result.Deducted > 0 {
		h.broadcastLeaderboard(r)
	}

	JSON(w, http.StatusOK, map[string]any{
		"hint":           result.Hint,
		"check_deducted": result.Deducted,
		"new_score":      result.NewScore,
		"new_rank":       result.NewRank,
	})
}

type submitFlagRequest struct {
	UserID      int64  `json:"user_id"`
	ChallengeID int64  `json:"challenge_id"`
	Flag        string `json:"flag"`
}

// submitFlagResponse carries the discriminated submission outcome.
// new_score/new_rank are present only when the state is authoritative
// (correct or already-solved), never on a wrong guess.
type submitFlagResponse struct {
	Correct  bool       `json:"correct"`
	Message  string     `json:"message"`
	NewScore *int       `json:"new_score,omitempty"`
	NewRank  *rank.Tier `json:"new_rank,omitempty"`
}

// SubmitFlag handles POST /api/submit_flag.
func (h *Handler) SubmitFlag(w http.ResponseWriter, r *http.Request) {
	var req submitFlagRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID <= 0 || req.ChallengeID <= 0 {
		Error(w, http.StatusBadRequest, "user_id and challenge_id are required")
		return
	}

	result, err := h.game.SubmitFlag(r.Context(), req.UserID, req.ChallengeID, req.Flag)
	if err != nil {
		writeError(w, err)
		return
	}

	var resp submitFlagResponse
	switch result.Outcome {
	case game.OutcomeCorrect:
		resp = submitFlagResponse{
			Correct:  true,
			Message:  msgCorrect,
			NewScore: &result.NewScore,
			NewRank:  &result.NewRank,
		}
		h.broadcastLeaderboard(r)
	case game.OutcomeAlreadySolved:
		resp = submitFlagResponse{
			Correct:  false,
			Message:  msgAlreadySolved,
			NewScore: &result.NewScore,
			NewRank:  &result.NewRank,
		}
	default:
		resp = submitFlagResponse{Correct: false, Message: msgWrong}
	}

	JSON(w, http.StatusOK, resp)
}

// Leaderboard handles GET /api/leaderboard. The canonical shape is a
// bare ordered array.
func (h *Handler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	entries, err := h.game.Leaderboard(r.Context(), h.leaderboardLimit)
	if err != nil {
		writeError(w, err)
		return
	}

	JSON(w, http.StatusOK, entries)
}

// broadcastLeaderboard pushes a fresh snapshot to live subscribers.
func (h *Handler) broadcastLeaderboard(r *http.Request) {
	if h.hub == nil {
		return
	}
	entries, err := h.game.Leaderboard(r.Context(), h.leaderboardLimit)
	if err != nil {
		return
	}
	h.hub.Broadcast(entries)
}
