package handlers

import (
	"net/http"

	"server/internal/sqlinline"
)

// Health reports liveness plus a shallow database check, so the load balancer
// stops routing when the pool is gone.
func (a *App) Health(w http.ResponseWriter, r *http.Request) {
	var one int
	if err := a.SQL.QueryRow(r.Context(), sqlinline.QHealthcheck).Scan(&one); err != nil {
		a.error(w, http.StatusServiceUnavailable, "unavailable", "database unreachable")
		return
	}
	a.json(w, http.StatusOK, map[string]string{"status": "ok"})
}
