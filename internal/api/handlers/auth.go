package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/hugh/schoolyard/internal/api/dto"
	"github.com/hugh/schoolyard/internal/api/middleware"
	"github.com/hugh/schoolyard/internal/auth"
	"github.com/hugh/schoolyard/internal/database/models"
)

type AuthHandler struct {
	authService *auth.Service
}

func NewAuthHandler(authService *auth.Service) *AuthHandler {
	return &AuthHandler{authService: authService}
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req dto.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request body"})
		return
	}

	if errs := req.Validate(); len(errs) > 0 {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Validation failed", Details: errs})
		return
	}

	resp, err := h.authService.Login(r.Context(), auth.LoginInput{
		Email:     req.Email,
		Password:  req.Password,
		UserAgent: r.UserAgent(),
		IP:        middleware.ClientIP(r),
	})

	if err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidCredentials):
			// Deliberately indistinguishable from an unknown address.
			writeJSON(w, http.StatusUnauthorized, dto.ErrorResponse{Error: "Invalid credentials"})
		case errors.Is(err, auth.ErrAccountSuspended):
			writeJSON(w, http.StatusLocked, dto.ErrorResponse{Error: "Account is not active"})
		case errors.Is(err, auth.ErrNoActiveMembership):
			writeJSON(w, http.StatusForbidden, dto.ErrorResponse{Error: "No active school membership"})
		default:
			writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Login failed"})
		}
		return
	}

	writeJSON(w, http.StatusOK, dto.AuthResponse{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		User:         userToDTO(resp.User, nil),
	})
}

func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req dto.RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request body"})
		return
	}

	if errs := req.Validate(); len(errs) > 0 {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Validation failed", Details: errs})
		return
	}

	resp, err := h.authService.Refresh(r.Context(), req.RefreshToken, r.UserAgent(), middleware.ClientIP(r))
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrExpiredRefreshToken), errors.Is(err, auth.ErrRevokedRefreshToken):
			writeJSON(w, http.StatusUnauthorized, dto.ErrorResponse{Error: "Invalid refresh token"})
		case errors.Is(err, auth.ErrAccountSuspended):
			writeJSON(w, http.StatusLocked, dto.ErrorResponse{Error: "Account is not active"})
		case errors.Is(err, auth.ErrNoActiveMembership):
			writeJSON(w, http.StatusForbidden, dto.ErrorResponse{Error: "No active school membership"})
		default:
			writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Refresh failed"})
		}
		return
	}

	writeJSON(w, http.StatusOK, dto.TokenResponse{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
	})
}

func (h *AuthHandler) SwitchSchool(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetClaims(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, dto.ErrorResponse{Error: "Unauthorized"})
		return
	}

	var req dto.SwitchSchoolRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request body"})
		return
	}

	if errs := req.Validate(); len(errs) > 0 {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Validation failed", Details: errs})
		return
	}

	schoolID, err := uuid.Parse(req.SchoolID)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid school id"})
		return
	}

	token, err := h.authService.SwitchSchool(r.Context(), claims, schoolID, req.RefreshToken)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrNotAMember), errors.Is(err, auth.ErrMembershipSuspended):
			// Uniform response: do not reveal whether a membership
			// exists at the target school.
			writeJSON(w, http.StatusForbidden, dto.ErrorResponse{Error: "Forbidden"})
		case errors.Is(err, auth.ErrAccountSuspended):
			writeJSON(w, http.StatusLocked, dto.ErrorResponse{Error: "Account is not active"})
		default:
			writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Switch failed"})
		}
		return
	}

	writeJSON(w, http.StatusOK, dto.TokenResponse{AccessToken: token})
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	var req dto.LogoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RefreshToken == "" {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Refresh token is required"})
		return
	}

	if err := h.authService.Logout(r.Context(), req.RefreshToken); err != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Logout failed"})
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func userToDTO(user *models.User, activeSchoolID *uuid.UUID) dto.UserDTO {
	out := dto.UserDTO{
		ID:           user.ID.String(),
		Email:        user.Email,
		Name:         user.Name,
		PlatformRole: string(user.PlatformRole),
		Status:       string(user.Status),
	}
	if user.PrimarySchoolID != nil {
		out.PrimarySchoolID = user.PrimarySchoolID.String()
	}
	if activeSchoolID != nil {
		out.ActiveSchoolID = activeSchoolID.String()
	}
	for _, m := range user.Memberships {
		mDTO := dto.MembershipDTO{
			SchoolID:          m.SchoolID.String(),
			Role:              string(m.Role),
			Permissions:       []string(m.Permissions),
			Status:            string(m.Status),
			PermissionVersion: m.PermissionVersion,
		}
		if m.School != nil {
			mDTO.SchoolName = m.School.Name
		}
		out.Memberships = append(out.Memberships, mDTO)
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
