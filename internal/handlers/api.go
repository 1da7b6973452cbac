// Package handlers exposes the client-facing HTTP surface: the terminal
// WebSocket endpoint and the audit query endpoints.
package handlers

import (
	"net/http"

	"github.com/shellgate/bastion/internal/audit"
	"github.com/shellgate/bastion/internal/session"
)

// API bundles the handlers' collaborators. Constructed once in main and
// shared by all requests.
type API struct {
	Supervisor *session.Supervisor
	Audit      *audit.Auditor
}

func NewAPI(sup *session.Supervisor, auditor *audit.Auditor) *API {
	return &API{Supervisor: sup, Audit: auditor}
}

// Health reports liveness and the live session count.
func (api *API) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "ok",
		"sessions": api.Supervisor.Count(),
	})
}
