package handlers

import (
	"net/http"
	"strconv"

	"github.com/shellgate/bastion/internal/audit"
)

// CommandLogs lists recorded commands, newest first, filterable by operator
// and host.
func (api *API) CommandLogs(w http.ResponseWriter, r *http.Request) {
	entries, total, err := api.Audit.QueryCommands(queryOptions(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to query command logs")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"entries": entries,
		"total":   total,
	})
}

// AlertLogs lists fired alert occurrences, newest first.
func (api *API) AlertLogs(w http.ResponseWriter, r *http.Request) {
	entries, total, err := api.Audit.QueryAlerts(queryOptions(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to query alert logs")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"entries": entries,
		"total":   total,
	})
}

func queryOptions(r *http.Request) audit.QueryOptions {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	return audit.QueryOptions{
		Username: q.Get("username"),
		HostName: q.Get("hostname"),
		Limit:    limit,
		Offset:   offset,
	}
}
