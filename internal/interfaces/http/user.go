package http

import (
	"net/http"

	"moneta/internal/domain/user"
	"moneta/internal/shared/middleware"
)

type UserHandler struct {
	userRepo user.Repository
	linkRepo user.LinkRepository
}

func NewUserHandler(userRepo user.Repository, linkRepo user.LinkRepository) *UserHandler {
	return &UserHandler{userRepo: userRepo, linkRepo: linkRepo}
}

type MeResponse struct {
	User  *user.User       `json:"user"`
	Links []*user.BankLink `json:"links"`
}

// HandleMe returns the authenticated user's profile and bank links
func (h *UserHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID, ok := r.Context().Value(middleware.UserIDKey).(int64)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	userModel, err := h.userRepo.GetByID(r.Context(), userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if userModel == nil {
		writeDomainError(w, user.ErrUserNotFound)
		return
	}

	links, err := h.linkRepo.ListByUserID(r.Context(), userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if links == nil {
		links = []*user.BankLink{}
	}

	writeJSON(w, http.StatusOK, MeResponse{User: userModel, Links: links})
}
