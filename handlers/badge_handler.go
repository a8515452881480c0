package handlers

import (
	"context"
	"net/http"
	"time"

	"habitQuestAPI/middleware"
	"habitQuestAPI/services"
)

type BadgeHandler struct {
	badgeService *services.BadgeService
	userService  *services.UserService
}

func NewBadgeHandler(badgeService *services.BadgeService, userService *services.UserService) *BadgeHandler {
	return &BadgeHandler{badgeService: badgeService, userService: userService}
}

// GetBadges returns the catalog grouped by category with the caller's
// progress and earned/in-progress counts.
func (h *BadgeHandler) GetBadges(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	clerkID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	u, err := h.userService.GetUserByClerkID(ctx, clerkID)
	if err != nil {
		respondWithError(w, http.StatusNotFound, "User not found")
		return
	}
	grouped, counts, err := h.badgeService.GetBadges(ctx, u.ID)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to get badges")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]any{
		"categories": grouped,
		"counts":     counts,
	})
}
