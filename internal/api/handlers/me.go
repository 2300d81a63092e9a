package handlers

import (
	"net/http"

	"github.com/hugh/schoolyard/internal/api/dto"
	"github.com/hugh/schoolyard/internal/api/middleware"
	"github.com/hugh/schoolyard/internal/identity"
)

// MeHandler serves the consolidated user plus their active membership; the
// UI renders role-gated components from it.
type MeHandler struct {
	identity *identity.Store
}

func NewMeHandler(identityStore *identity.Store) *MeHandler {
	return &MeHandler{identity: identityStore}
}

func (h *MeHandler) Me(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetClaims(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, dto.ErrorResponse{Error: "Unauthorized"})
		return
	}

	user, err := h.identity.GetUser(r.Context(), claims.UserID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: "User not found"})
		return
	}

	out := userToDTO(user, claims.SchoolID)

	// Role-specific details are decrypted only for the active membership.
	if claims.SchoolID != nil {
		if m := user.MembershipFor(*claims.SchoolID); m != nil {
			if details, err := h.identity.MembershipDetails(m); err == nil {
				for i := range out.Memberships {
					if out.Memberships[i].SchoolID == m.SchoolID.String() {
						out.Memberships[i].Details = details
					}
				}
			}
		}
	}

	writeJSON(w, http.StatusOK, out)
}
