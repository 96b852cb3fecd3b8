package api

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/nvrengine/core/capture"
	"github.com/nvrengine/core/clipindex"
	"github.com/nvrengine/core/models"
	"github.com/nvrengine/core/objectindex"
	"github.com/nvrengine/core/responsedb"
	"github.com/nvrengine/core/search"
	"github.com/nvrengine/core/supervisor"
)

func newTestRouter(t *testing.T) (*clipindex.ClipIndex, *objectindex.ObjectIndex, *supervisor.Supervisor) {
	t.Helper()
	clips, err := clipindex.Open(":memory:", zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { clips.Close() })

	objects, err := objectindex.Open(":memory:", zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { objects.Close() })

	db, err := responsedb.Open(":memory:", zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	sup := supervisor.New(zerolog.Nop(), supervisor.Config{}, supervisor.Deps{
		Clips:   clips,
		Objects: objects,
		DB:      db,
		Flush:   capture.NoopFlush,
	})

	return clips, objects, sup
}

func TestHealthHandlerReportsOK(t *testing.T) {
	clips, objects, sup := newTestRouter(t)
	db, err := responsedb.Open(":memory:", zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	router := NewRouter(Handlers{
		Search:   NewSearchHandler(&search.Engine{Clips: clips, Objects: objects, Flush: capture.NoopFlush}),
		Messages: NewMessagesHandler(sup),
		Health:   &HealthHandler{Sup: sup, Clips: clips, Objects: objects, DB: db},
	})

	req := httptest.NewRequest("GET", "/api/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "ok", body["status"])
}

func TestSearchHandlerRequiresCameras(t *testing.T) {
	clips, objects, sup := newTestRouter(t)
	router := NewRouter(Handlers{
		Search:   NewSearchHandler(&search.Engine{Clips: clips, Objects: objects, Flush: capture.NoopFlush}),
		Messages: NewMessagesHandler(sup),
		Health:   &HealthHandler{Sup: sup, Clips: clips, Objects: objects},
	})

	req := httptest.NewRequest("POST", "/api/search", bytes.NewReader([]byte(`{}`)))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, 400, rec.Code)
}

func TestSearchHandlerReturnsResultsFromEngine(t *testing.T) {
	clips, objects, sup := newTestRouter(t)
	require.NoError(t, clips.AddClip("a.mp4", "front", 0, 5000, "", "", models.NonCache, 640, 480))
	uid, err := objects.AddObject(0, "person", "front")
	require.NoError(t, err)
	require.NoError(t, objects.AddFrame(uid, 1, 500, objectindex.BBox{X1: 0, Y1: 0, X2: 10, Y2: 10}, "person", ""))

	router := NewRouter(Handlers{
		Search:   NewSearchHandler(&search.Engine{Clips: clips, Objects: objects, Flush: capture.NoopFlush}),
		Messages: NewMessagesHandler(sup),
		Health:   &HealthHandler{Sup: sup, Clips: clips, Objects: objects},
	})

	payload := map[string]any{
		"cameras":        []string{"front"},
		"midnightMs":     0,
		"nextMidnightMs": 5000,
		"targets":        []map[string]string{{"type": "person", "action": "any"}},
	}
	body, err := json.Marshal(payload)
	require.NoError(t, err)

	req := httptest.NewRequest("POST", "/api/search", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)
	var results map[string][]models.MatchingClip
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &results))
	require.Contains(t, results, "front")
}

func TestMessagesHandlerRejectsUnrecognizedKind(t *testing.T) {
	clips, objects, sup := newTestRouter(t)
	router := NewRouter(Handlers{
		Search:   NewSearchHandler(&search.Engine{Clips: clips, Objects: objects, Flush: capture.NoopFlush}),
		Messages: NewMessagesHandler(sup),
		Health:   &HealthHandler{Sup: sup, Clips: clips, Objects: objects},
	})

	req := httptest.NewRequest("POST", "/api/messages", bytes.NewReader([]byte(`{"kind":"Bogus"}`)))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, 400, rec.Code)
}

func TestMessagesHandlerAcceptsSetDebugConfig(t *testing.T) {
	clips, objects, sup := newTestRouter(t)
	router := NewRouter(Handlers{
		Search:   NewSearchHandler(&search.Engine{Clips: clips, Objects: objects, Flush: capture.NoopFlush}),
		Messages: NewMessagesHandler(sup),
		Health:   &HealthHandler{Sup: sup, Clips: clips, Objects: objects},
	})

	req := httptest.NewRequest("POST", "/api/messages", bytes.NewReader([]byte(`{"kind":"SetDebugConfig","debug":{"verbose":"true"}}`)))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, 202, rec.Code)
}
