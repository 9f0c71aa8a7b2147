package authz

import (
	"log/slog"
	"net/http"
)

// ResourceFunc derives the protected resource identifier from the
// request, typically from a route parameter.
type ResourceFunc func(r *http.Request) string

// StaticResource returns a ResourceFunc for a fixed resource.
func StaticResource(resource string) ResourceFunc {
	return func(*http.Request) string { return resource }
}

// Middleware wires authorization checks into HTTP handlers. Collaborator
// services mount it in front of protected routes; a deny surfaces as 403.
type Middleware struct {
	AC     *AccessControl
	Logger *slog.Logger
}

// Require ensures the principal resolved upstream may perform the
// action on the resource derived from the request. A missing principal
// denies outright.
func (m Middleware) Require(action string, resource ResourceFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := UserFromContext(r.Context())
			if !ok {
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			var res string
			if resource != nil {
				res = resource(r)
			}
			env := Context{Location: r.Header.Get("X-Client-Location")}
			if m.AC.Can(r.Context(), user, action, res, env) {
				next.ServeHTTP(w, r)
				return
			}
			if m.Logger != nil {
				m.Logger.Info("authorization denied",
					slog.String("user", user.ID),
					slog.String("action", action),
					slog.String("resource", res),
				)
			}
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		})
	}
}
