package api

import (
	"net/http"

	"github.com/nvrengine/core/clipindex"
	"github.com/nvrengine/core/objectindex"
	"github.com/nvrengine/core/responsedb"
	"github.com/nvrengine/core/supervisor"
)

// HealthHandler reports Supervisor liveness and store reachability.
type HealthHandler struct {
	Sup     *supervisor.Supervisor
	Clips   *clipindex.ClipIndex
	Objects *objectindex.ObjectIndex
	DB      *responsedb.ResponseDB
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	checks := map[string]string{}

	if _, err := h.Clips.GetFilesBetween("__healthcheck__", 0, 0); err != nil {
		checks["clipIndex"] = "unreachable: " + err.Error()
		status = "degraded"
	} else {
		checks["clipIndex"] = "ok"
	}

	if _, err := h.Objects.GetObjectRangesBetweenTimes(0, 0); err != nil {
		checks["objectIndex"] = "unreachable: " + err.Error()
		status = "degraded"
	} else {
		checks["objectIndex"] = "ok"
	}

	if _, err := h.DB.AreResponsesPending("email"); err != nil {
		checks["responseDB"] = "unreachable: " + err.Error()
		status = "degraded"
	} else {
		checks["responseDB"] = "ok"
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":          status,
		"checks":          checks,
		"lastLivenessMs":  h.Sup.LastLivenessMs(),
		"senderProtocols": h.Sup.SenderProtocols(),
	})
}
