// Package authzhttp exposes the access-control engine over HTTP: the
// administrative mutations for delegations, groups and ACL entries,
// and a decision endpoint for collaborator services.
package authzhttp

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/meridian-erp/meridian/internal/authz"
)

const checkRateLimit = 300
const checkRateWindow = time.Minute

// MountRoutes registers the API under the given router. Every route is
// itself authorized through the engine: the resolved principal needs
// the matching authz.* action.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	guard := authz.Middleware{AC: h.ac, Logger: h.logger}

	r.Group(func(gr chi.Router) {
		gr.Use(guard.Require(authz.ActionDelegationsManage, nil))
		gr.Post("/delegations", h.addDelegation)
		gr.Delete("/delegations", h.removeDelegation)
	})
	r.Group(func(gr chi.Router) {
		gr.Use(guard.Require(authz.ActionDelegationsView, nil))
		gr.Get("/delegations", h.listDelegations)
	})

	r.Group(func(gr chi.Router) {
		gr.Use(guard.Require(authz.ActionGroupsManage, nil))
		gr.Post("/groups", h.addGroup)
		gr.Patch("/groups/{id}", h.updateGroup)
		gr.Delete("/groups/{id}", h.removeGroup)
		gr.Put("/groups/{id}/members/{userID}", h.addMember)
		gr.Delete("/groups/{id}/members/{userID}", h.removeMember)
	})
	r.Group(func(gr chi.Router) {
		gr.Use(guard.Require(authz.ActionGroupsView, nil))
		gr.Get("/groups", h.listGroups)
	})

	r.Group(func(gr chi.Router) {
		gr.Use(guard.Require(authz.ActionACLManage, nil))
		gr.Put("/acl", h.setACL)
		gr.Delete("/acl", h.removeACL)
	})
	r.Group(func(gr chi.Router) {
		gr.Use(guard.Require(authz.ActionACLView, nil))
		gr.Get("/acl", h.listACLs)
	})

	limiter := httprate.Limit(checkRateLimit, checkRateWindow,
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
		}),
	)
	r.Group(func(gr chi.Router) {
		gr.Use(limiter, guard.Require(authz.ActionCheck, nil))
		gr.Post("/check", h.check)
	})
}
