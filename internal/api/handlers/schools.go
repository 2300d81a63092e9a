package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/hugh/schoolyard/internal/api/dto"
	"github.com/hugh/schoolyard/internal/api/middleware"
	"github.com/hugh/schoolyard/internal/authz"
	"github.com/hugh/schoolyard/internal/database/models"
	"github.com/hugh/schoolyard/internal/identity"
	"github.com/hugh/schoolyard/internal/tenant"
)

// SchoolHandler covers tenant administration: registering schools, domain
// and plan changes, and membership management. School creation and domain
// changes are platform-admin operations; member management is also open to
// school staff holding memberships.manage.
type SchoolHandler struct {
	identity     *identity.Store
	resolver     *tenant.Resolver
	evaluator    *authz.Evaluator
	platformHost string
}

func NewSchoolHandler(identityStore *identity.Store, resolver *tenant.Resolver, evaluator *authz.Evaluator, platformHost string) *SchoolHandler {
	return &SchoolHandler{
		identity:     identityStore,
		resolver:     resolver,
		evaluator:    evaluator,
		platformHost: platformHost,
	}
}

func (h *SchoolHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateSchoolRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request body"})
		return
	}

	if errs := req.Validate(); len(errs) > 0 {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Validation failed", Details: errs})
		return
	}

	school := models.School{
		Name:             req.Name,
		Subdomain:        req.Subdomain,
		Status:           models.StatusActive,
		SubscriptionTier: req.SubscriptionTier,
		FeatureFlags:     models.FlagMap(req.FeatureFlags),
	}
	if school.SubscriptionTier == "" {
		school.SubscriptionTier = "free"
	}
	if req.CustomDomain != "" {
		school.CustomDomain = &req.CustomDomain
	}

	if err := h.identity.CreateSchool(r.Context(), &school); err != nil {
		writeJSON(w, http.StatusConflict, dto.ErrorResponse{Error: "School could not be created"})
		return
	}

	writeJSON(w, http.StatusCreated, schoolToDTO(&school))
}

func (h *SchoolHandler) UpdateDomains(w http.ResponseWriter, r *http.Request) {
	schoolID, ok := pathUUID(w, r, "schoolID")
	if !ok {
		return
	}

	var req dto.UpdateDomainsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request body"})
		return
	}

	if errs := req.Validate(); len(errs) > 0 {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Validation failed", Details: errs})
		return
	}

	staleHosts, err := h.identity.UpdateSchoolDomains(r.Context(), schoolID, req.Subdomain, req.CustomDomain, h.platformHost)
	if err != nil {
		if errors.Is(err, identity.ErrSchoolNotFound) {
			writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: "School not found"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Domain update failed"})
		return
	}

	h.resolver.Invalidate(staleHosts...)

	writeJSON(w, http.StatusOK, dto.SuccessResponse{Message: "Domains updated"})
}

func (h *SchoolHandler) UpdatePlan(w http.ResponseWriter, r *http.Request) {
	schoolID, ok := pathUUID(w, r, "schoolID")
	if !ok {
		return
	}

	var req dto.UpdatePlanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request body"})
		return
	}

	if errs := req.Validate(); len(errs) > 0 {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Validation failed", Details: errs})
		return
	}

	if err := h.identity.UpdateSchoolPlan(r.Context(), schoolID, req.SubscriptionTier, req.FeatureFlags); err != nil {
		if errors.Is(err, identity.ErrSchoolNotFound) {
			writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: "School not found"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Plan update failed"})
		return
	}

	// The resolver caches tier and flags per host; evict them as well.
	if school, err := h.identity.GetSchool(r.Context(), schoolID); err == nil {
		h.resolver.Invalidate(school.Hosts(h.platformHost)...)
	}

	writeJSON(w, http.StatusOK, dto.SuccessResponse{Message: "Plan updated"})
}

func (h *SchoolHandler) InviteMember(w http.ResponseWriter, r *http.Request) {
	schoolID, ok := pathUUID(w, r, "schoolID")
	if !ok {
		return
	}
	if !h.authorizeManage(w, r, schoolID) {
		return
	}

	var req dto.InviteMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request body"})
		return
	}

	if errs := req.Validate(); len(errs) > 0 {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Validation failed", Details: errs})
		return
	}

	membership, err := h.identity.InviteMember(r.Context(), identity.InviteInput{
		SchoolID:    schoolID,
		Email:       req.Email,
		Name:        req.Name,
		Role:        models.SchoolRole(req.Role),
		Permissions: req.Permissions,
		Details:     req.Details,
	})
	if err != nil {
		if errors.Is(err, identity.ErrAlreadyMember) {
			writeJSON(w, http.StatusConflict, dto.ErrorResponse{Error: "User is already a member"})
			return
		}
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invite failed"})
		return
	}

	writeJSON(w, http.StatusCreated, dto.MembershipDTO{
		SchoolID:          membership.SchoolID.String(),
		Role:              string(membership.Role),
		Permissions:       []string(membership.Permissions),
		Status:            string(membership.Status),
		PermissionVersion: membership.PermissionVersion,
	})
}

func (h *SchoolHandler) UpdateMember(w http.ResponseWriter, r *http.Request) {
	schoolID, ok := pathUUID(w, r, "schoolID")
	if !ok {
		return
	}
	userID, ok := pathUUID(w, r, "userID")
	if !ok {
		return
	}
	if !h.authorizeManage(w, r, schoolID) {
		return
	}

	var req dto.UpdateMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request body"})
		return
	}

	if errs := req.Validate(); len(errs) > 0 {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Validation failed", Details: errs})
		return
	}

	if req.Role != nil || req.Permissions != nil {
		var roleUpdate *models.SchoolRole
		if req.Role != nil {
			role := models.SchoolRole(*req.Role)
			roleUpdate = &role
		}
		if _, err := h.identity.UpdateMembership(r.Context(), userID, schoolID, identity.UpdateInput{
			Role:        roleUpdate,
			Permissions: req.Permissions,
		}); err != nil {
			writeMembershipError(w, err)
			return
		}
	}

	if req.Status != nil {
		if err := h.identity.SetMembershipStatus(r.Context(), userID, schoolID, models.Status(*req.Status)); err != nil {
			writeMembershipError(w, err)
			return
		}
	}

	membership, err := h.identity.FindMembership(r.Context(), userID, schoolID)
	if err != nil {
		writeMembershipError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.MembershipDTO{
		SchoolID:          membership.SchoolID.String(),
		Role:              string(membership.Role),
		Permissions:       []string(membership.Permissions),
		Status:            string(membership.Status),
		PermissionVersion: membership.PermissionVersion,
	})
}

func (h *SchoolHandler) ArchiveMember(w http.ResponseWriter, r *http.Request) {
	schoolID, ok := pathUUID(w, r, "schoolID")
	if !ok {
		return
	}
	userID, ok := pathUUID(w, r, "userID")
	if !ok {
		return
	}
	if !h.authorizeManage(w, r, schoolID) {
		return
	}

	if err := h.identity.ArchiveMembership(r.Context(), userID, schoolID); err != nil {
		writeMembershipError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// authorizeManage runs the evaluator for memberships.manage against the
// school in the path. Platform super admins pass via the bypass; school
// staff need an active-school token matching the path.
func (h *SchoolHandler) authorizeManage(w http.ResponseWriter, r *http.Request, schoolID uuid.UUID) bool {
	claims := middleware.GetClaims(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, dto.ErrorResponse{Error: "Unauthorized"})
		return false
	}

	decision := h.evaluator.Authorize(r.Context(), claims, authz.ActionMembershipsManage, schoolID)
	if !decision.Allowed {
		if decision.Retryable() {
			writeJSON(w, http.StatusServiceUnavailable, dto.ErrorResponse{Error: "Authorization temporarily unavailable"})
			return false
		}
		writeJSON(w, http.StatusForbidden, dto.ErrorResponse{Error: "Forbidden"})
		return false
	}
	return true
}

func writeMembershipError(w http.ResponseWriter, err error) {
	if errors.Is(err, identity.ErrMembershipNotFound) {
		writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: "Membership not found"})
		return
	}
	writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Membership update failed"})
}

func pathUUID(w http.ResponseWriter, r *http.Request, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid " + param})
		return uuid.Nil, false
	}
	return id, true
}

func schoolToDTO(school *models.School) dto.SchoolDTO {
	out := dto.SchoolDTO{
		ID:               school.ID.String(),
		Name:             school.Name,
		Subdomain:        school.Subdomain,
		Status:           string(school.Status),
		SubscriptionTier: school.SubscriptionTier,
		FeatureFlags:     map[string]bool(school.FeatureFlags),
	}
	if school.CustomDomain != nil {
		out.CustomDomain = *school.CustomDomain
	}
	return out
}
