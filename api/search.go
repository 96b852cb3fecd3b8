package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/nvrengine/core/objectindex"
	"github.com/nvrengine/core/search"
)

// SearchHandler exposes the batch rule query as an
// HTTP endpoint for the GUI.
type SearchHandler struct {
	engine *search.Engine
}

func NewSearchHandler(engine *search.Engine) *SearchHandler {
	return &SearchHandler{engine: engine}
}

// ruleSearchRequest is the wire shape of a batch rule query.
type ruleSearchRequest struct {
	Cameras []string `json:"cameras"`
	Targets []struct {
		Type   string `json:"type"`
		Action string `json:"action"`
	} `json:"targets"`
	MinHeight int                 `json:"minHeight"`
	Region    *objectindex.Region `json:"region,omitempty"`

	MidnightMs     int64 `json:"midnightMs"`
	NextMidnightMs int64 `json:"nextMidnightMs"`
	IsToday        bool  `json:"isToday"`

	PlayOffsetMs           int64 `json:"playOffsetMs"`
	PreservePlayOffset     bool  `json:"preservePlayOffset"`
	StartOffsetMs          int64 `json:"startOffsetMs"`
	StopOffsetMs           int64 `json:"stopOffsetMs"`
	ShouldCombineClips     bool  `json:"shouldCombineClips"`
	SpatiallyAware         bool  `json:"spatiallyAware"`
	OverrideMergeThreshold *int  `json:"overrideMergeThreshold,omitempty"`
}

// Search runs a batch rule query and returns matching clips per camera.
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	var req ruleSearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Cameras) == 0 {
		writeError(w, http.StatusBadRequest, "cameras is required")
		return
	}

	targets := make([]objectindex.Target, 0, len(req.Targets))
	for _, t := range req.Targets {
		targets = append(targets, objectindex.Target{Type: t.Type, Action: t.Action})
	}

	sreq := search.Request{
		Cameras: req.Cameras,
		Query:   objectindex.Query{Targets: targets, MinHeight: req.MinHeight, Region: req.Region},
		Opts: search.Options{
			PlayOffsetMs:           req.PlayOffsetMs,
			PreservePlayOffset:     req.PreservePlayOffset,
			StartOffsetMs:          req.StartOffsetMs,
			StopOffsetMs:           req.StopOffsetMs,
			ShouldCombineClips:     req.ShouldCombineClips,
			SpatiallyAware:         req.SpatiallyAware,
			OverrideMergeThreshold: req.OverrideMergeThreshold,
		},
		MidnightMs:     req.MidnightMs,
		NextMidnightMs: req.NextMidnightMs,
		IsToday:        req.IsToday,
		NowMs:          time.Now().UnixMilli(),
	}

	results, err := h.engine.Search(r.Context(), sreq)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "search failed: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, results)
}
