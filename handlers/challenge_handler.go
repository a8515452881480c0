package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"habitQuestAPI/middleware"
	"habitQuestAPI/services"

	"github.com/google/uuid"
)

type ChallengeHandler struct {
	challengeService *services.ChallengeService
	userService      *services.UserService
}

func NewChallengeHandler(challengeService *services.ChallengeService, userService *services.UserService) *ChallengeHandler {
	return &ChallengeHandler{challengeService: challengeService, userService: userService}
}

// GetChallenges lists open challenges; the service runs the lazy lifecycle
// sweep before answering.
func (h *ChallengeHandler) GetChallenges(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	userID, ok := h.resolveUserID(ctx, w, r)
	if !ok {
		return
	}

	challenges, err := h.challengeService.GetChallenges(ctx, userID)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to get challenges")
		return
	}

	respondWithJSON(w, http.StatusOK, challenges)
}

func (h *ChallengeHandler) JoinChallenge(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	userID, ok := h.resolveUserID(ctx, w, r)
	if !ok {
		return
	}

	var req struct {
		ChallengeID string `json:"challengeId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ChallengeID == "" {
		respondWithError(w, http.StatusBadRequest, "challengeId is required")
		return
	}
	challengeID, err := parseUUID(req.ChallengeID)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid challenge id")
		return
	}

	if err := h.challengeService.JoinChallenge(ctx, userID, challengeID); err != nil {
		if strings.Contains(err.Error(), "not found") {
			respondWithError(w, http.StatusNotFound, err.Error())
			return
		}
		if strings.Contains(err.Error(), "not open") {
			respondWithError(w, http.StatusConflict, err.Error())
			return
		}
		respondWithError(w, http.StatusInternalServerError, "Failed to join challenge")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{"message": "Joined challenge"})
}

func (h *ChallengeHandler) LeaveChallenge(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	userID, ok := h.resolveUserID(ctx, w, r)
	if !ok {
		return
	}

	var req struct {
		ChallengeID string `json:"challengeId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ChallengeID == "" {
		respondWithError(w, http.StatusBadRequest, "challengeId is required")
		return
	}
	challengeID, err := parseUUID(req.ChallengeID)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid challenge id")
		return
	}

	if err := h.challengeService.LeaveChallenge(ctx, userID, challengeID); err != nil {
		if strings.Contains(err.Error(), "no active participation") {
			respondWithError(w, http.StatusNotFound, err.Error())
			return
		}
		respondWithError(w, http.StatusInternalServerError, "Failed to leave challenge")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{"message": "Left challenge"})
}

func (h *ChallengeHandler) resolveUserID(ctx context.Context, w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	clerkID, authed := middleware.GetClerkID(ctx)
	if !authed {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return uuid.Nil, false
	}

	u, err := h.userService.GetUserByClerkID(ctx, clerkID)
	if err != nil {
		respondWithError(w, http.StatusNotFound, "User not found")
		return uuid.Nil, false
	}

	return u.ID, true
}
