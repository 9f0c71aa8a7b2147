package authzhttp

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-erp/meridian/internal/authz"
	"github.com/meridian-erp/meridian/internal/platform/httpx"
)

// Handler serves the administrative and decision API.
type Handler struct {
	logger   *slog.Logger
	ac       *authz.AccessControl
	validate *validator.Validate
}

// NewHandler builds a Handler.
func NewHandler(logger *slog.Logger, ac *authz.AccessControl) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:   logger,
		ac:       ac,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

type delegationRequest struct {
	FromUserID string     `json:"from_user_id" validate:"required"`
	ToUserID   string     `json:"to_user_id" validate:"required"`
	Actions    []string   `json:"actions" validate:"required,min=1,dive,required"`
	Resource   string     `json:"resource"`
	ExpiresAt  *time.Time `json:"expires_at"`
}

func (h *Handler) addDelegation(w http.ResponseWriter, r *http.Request) {
	var req delegationRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	d := authz.Delegation{
		FromUserID: req.FromUserID,
		ToUserID:   req.ToUserID,
		Actions:    req.Actions,
		Resource:   req.Resource,
	}
	if req.ExpiresAt != nil {
		d.ExpiresAt = *req.ExpiresAt
	}
	added, err := h.ac.AddDelegation(r.Context(), d)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, added)
}

func (h *Handler) removeDelegation(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	from := query.Get("from")
	to := query.Get("to")
	if from == "" || to == "" {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "from and to are required")
		return
	}
	var resource *string
	if query.Has("resource") {
		value := query.Get("resource")
		resource = &value
	}
	removed := h.ac.RemoveDelegation(r.Context(), from, to, resource)
	httpx.JSON(w, http.StatusOK, map[string]int{"removed": removed})
}

func (h *Handler) listDelegations(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := authz.DelegationFilter{
		FromUserID: query.Get("from"),
		ToUserID:   query.Get("to"),
	}
	if query.Has("resource") {
		value := query.Get("resource")
		filter.Resource = &value
	}
	delegations := h.ac.ListDelegations(filter)
	if delegations == nil {
		delegations = []authz.Delegation{}
	}
	httpx.JSON(w, http.StatusOK, delegations)
}

type groupRequest struct {
	Name    string   `json:"name" validate:"required"`
	Members []string `json:"members"`
	Roles   []string `json:"roles"`
}

func (h *Handler) addGroup(w http.ResponseWriter, r *http.Request) {
	var req groupRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	group, err := h.ac.AddGroup(r.Context(), authz.UserGroup{Name: req.Name, Members: req.Members, Roles: req.Roles})
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, group)
}

type groupPatchRequest struct {
	Name  *string  `json:"name"`
	Roles []string `json:"roles"`
}

func (h *Handler) updateGroup(w http.ResponseWriter, r *http.Request) {
	var req groupPatchRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	group, err := h.ac.UpdateGroup(r.Context(), chi.URLParam(r, "id"), authz.GroupPatch{Name: req.Name, Roles: req.Roles})
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, group)
}

func (h *Handler) removeGroup(w http.ResponseWriter, r *http.Request) {
	if err := h.ac.RemoveGroup(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.respondDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listGroups(w http.ResponseWriter, r *http.Request) {
	groups := h.ac.ListGroups()
	if groups == nil {
		groups = []authz.UserGroup{}
	}
	httpx.JSON(w, http.StatusOK, groups)
}

func (h *Handler) addMember(w http.ResponseWriter, r *http.Request) {
	err := h.ac.AddUserToGroup(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "userID"))
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) removeMember(w http.ResponseWriter, r *http.Request) {
	err := h.ac.RemoveUserFromGroup(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "userID"))
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type aclRequest struct {
	UserID    string     `json:"user_id" validate:"required"`
	Resource  string     `json:"resource" validate:"required"`
	Actions   []string   `json:"actions" validate:"required,min=1,dive,required"`
	ExpiresAt *time.Time `json:"expires_at"`
}

func (h *Handler) setACL(w http.ResponseWriter, r *http.Request) {
	var req aclRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	entry := authz.ACLEntry{UserID: req.UserID, Resource: req.Resource, Actions: req.Actions}
	if req.ExpiresAt != nil {
		entry.ExpiresAt = *req.ExpiresAt
	}
	set, err := h.ac.SetACL(r.Context(), entry)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, set)
}

func (h *Handler) removeACL(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	userID := query.Get("user")
	resource := query.Get("resource")
	if userID == "" || resource == "" {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "user and resource are required")
		return
	}
	removed := h.ac.RemoveACL(r.Context(), userID, resource)
	httpx.JSON(w, http.StatusOK, map[string]bool{"removed": removed})
}

func (h *Handler) listACLs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	entries := h.ac.ListACLs(authz.ACLFilter{UserID: query.Get("user"), Resource: query.Get("resource")})
	if entries == nil {
		entries = []authz.ACLEntry{}
	}
	httpx.JSON(w, http.StatusOK, entries)
}

type checkRequest struct {
	UserID      string         `json:"user_id" validate:"required"`
	Roles       []string       `json:"roles"`
	Action      string         `json:"action" validate:"required"`
	Resource    string         `json:"resource"`
	Location    string         `json:"location"`
	CurrentTime *time.Time     `json:"current_time"`
	Attributes  map[string]any `json:"attributes"`
}

// check runs one evaluation for a collaborator service and returns the
// decision trace. The trace is audit material; callers must act on the
// boolean only.
func (h *Handler) check(w http.ResponseWriter, r *http.Request) {
	var req checkRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	env := authz.Context{Location: req.Location, Attributes: req.Attributes}
	if req.CurrentTime != nil {
		env.CurrentTime = *req.CurrentTime
	}
	user := authz.User{ID: req.UserID, Roles: req.Roles}
	decision := h.ac.Explain(r.Context(), user, req.Action, req.Resource, env)
	httpx.JSON(w, http.StatusOK, decision)
}

func (h *Handler) respondDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, authz.ErrValidation):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, authz.ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	default:
		h.logger.Error("authz admin", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
