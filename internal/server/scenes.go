package server

import (
	"encoding/json"
	"net/http"

	"arstudio/internal/core"

	"github.com/gorilla/mux"
)

// Scenes live in their own collection keyed by activity_id, so scene
// writes never contend with the activity document itself.

func (s *Server) handleListScenes(w http.ResponseWriter, r *http.Request) {
	orgID, ok := s.requireOrg(w, r)
	if !ok {
		return
	}
	activityID := mux.Vars(r)["activityId"]
	activity, err := s.loadOrgActivity(r, orgID, activityID)
	if err != nil {
		s.internalError(w, "list scenes", err)
		return
	}
	if activity == nil {
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}
	cursor, err := s.collection("scenes").Find(r.Context(), core.Where(map[string]any{
		"activity_id": activityID,
		"orgId":       orgID,
	}))
	if err != nil {
		s.internalError(w, "list scenes", err)
		return
	}
	scenes, err := cursor.All(r.Context())
	if err != nil {
		s.internalError(w, "list scenes", err)
		return
	}
	s.respondJSON(w, http.StatusOK, scenes)
}

func (s *Server) handleCreateScene(w http.ResponseWriter, r *http.Request) {
	orgID, ok := s.requireOrg(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	activityID := mux.Vars(r)["activityId"]
	activity, err := s.loadOrgActivity(r, orgID, activityID)
	if err != nil {
		s.internalError(w, "create scene", err)
		return
	}
	if activity == nil {
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}

	var body map[string]any
	if r.Body != nil {
		// An empty body creates a scene with defaults.
		_ = json.NewDecoder(r.Body).Decode(&body)
	}
	if body == nil {
		body = map[string]any{}
	}

	// New scenes append to the activity's sequence.
	cursor, err := s.collection("scenes").Find(ctx, core.Where(map[string]any{
		"activity_id": activityID,
		"orgId":       orgID,
	}))
	if err != nil {
		s.internalError(w, "create scene", err)
		return
	}
	existing, err := cursor.All(ctx)
	if err != nil {
		s.internalError(w, "create scene", err)
		return
	}

	scene := core.Document(body)
	delete(scene, "id")
	scene["activity_id"] = activityID
	scene["orgId"] = orgID
	scene["order"] = len(existing) + 1
	if _, hasElements := scene["elements"]; !hasElements {
		scene["elements"] = []any{}
	}
	id, err := s.collection("scenes").InsertOne(ctx, scene)
	if err != nil {
		s.internalError(w, "create scene", err)
		return
	}
	scene["id"] = id
	s.respondJSON(w, http.StatusCreated, scene)
}

type sceneOrderRequest struct {
	Scenes []struct {
		ID    string `json:"id"`
		Order int    `json:"order"`
	} `json:"scenes"`
}

// handleReorderScenes rewrites the order field of each named scene.
func (s *Server) handleReorderScenes(w http.ResponseWriter, r *http.Request) {
	orgID, ok := s.requireOrg(w, r)
	if !ok {
		return
	}
	activityID := mux.Vars(r)["activityId"]
	activity, err := s.loadOrgActivity(r, orgID, activityID)
	if err != nil {
		s.internalError(w, "reorder scenes", err)
		return
	}
	if activity == nil {
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}
	var body sceneOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || len(body.Scenes) == 0 {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	for _, entry := range body.Scenes {
		if _, err := s.collection("scenes").UpdateOne(r.Context(),
			core.Filter{ID: entry.ID, Eq: map[string]any{"activity_id": activityID, "orgId": orgID}},
			core.Update{Set: map[string]any{"order": entry.Order}},
		); err != nil {
			s.internalError(w, "reorder scenes", err)
			return
		}
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// loadOrgScene enforces both activity and org ownership on a scene lookup.
func (s *Server) loadOrgScene(r *http.Request, orgID, activityID, sceneID string) (core.Document, error) {
	doc, err := s.collection("scenes").FindOne(r.Context(), core.ByID(sceneID))
	if err != nil {
		return nil, err
	}
	if doc == nil || doc["orgId"] != orgID || doc["activity_id"] != activityID {
		return nil, nil
	}
	return doc, nil
}

func (s *Server) handleGetScene(w http.ResponseWriter, r *http.Request) {
	orgID, ok := s.requireOrg(w, r)
	if !ok {
		return
	}
	vars := mux.Vars(r)
	scene, err := s.loadOrgScene(r, orgID, vars["activityId"], vars["sceneId"])
	if err != nil {
		s.internalError(w, "get scene", err)
		return
	}
	if scene == nil {
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}
	s.respondJSON(w, http.StatusOK, scene)
}

func (s *Server) handleUpdateScene(w http.ResponseWriter, r *http.Request) {
	orgID, ok := s.requireOrg(w, r)
	if !ok {
		return
	}
	vars := mux.Vars(r)
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	// Ownership fields are server-controlled.
	delete(body, "id")
	delete(body, "orgId")
	delete(body, "activity_id")

	scene, err := s.loadOrgScene(r, orgID, vars["activityId"], vars["sceneId"])
	if err != nil {
		s.internalError(w, "update scene", err)
		return
	}
	if scene == nil {
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}
	res, err := s.collection("scenes").UpdateOne(r.Context(), core.ByID(vars["sceneId"]), core.Update{Set: body})
	if err != nil {
		s.internalError(w, "update scene", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"matched": res.Matched, "modified": res.Modified})
}

func (s *Server) handleDeleteScene(w http.ResponseWriter, r *http.Request) {
	orgID, ok := s.requireOrg(w, r)
	if !ok {
		return
	}
	vars := mux.Vars(r)
	scene, err := s.loadOrgScene(r, orgID, vars["activityId"], vars["sceneId"])
	if err != nil {
		s.internalError(w, "delete scene", err)
		return
	}
	if scene == nil {
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}
	if _, err := s.collection("scenes").DeleteOne(r.Context(), core.ByID(vars["sceneId"])); err != nil {
		s.internalError(w, "delete scene", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"deleted": 1})
}

// handleGetSceneConfiguration returns the AR viewer configuration for a
// scene, lazily creating a neutral one on first access. The org can come
// from the query string so unauthenticated viewers can load a shared scene.
func (s *Server) handleGetSceneConfiguration(w http.ResponseWriter, r *http.Request) {
	orgID := s.sceneConfigOrg(r)
	if orgID == "" {
		http.Error(w, "orgId is required", http.StatusBadRequest)
		return
	}
	ctx := r.Context()
	sceneID := mux.Vars(r)["sceneId"]

	config, err := s.collection("scenes_configuration").FindOne(ctx, core.Where(map[string]any{
		"scene_id": sceneID,
		"orgId":    orgID,
	}))
	if err != nil {
		s.internalError(w, "get scene configuration", err)
		return
	}
	if config == nil {
		config = core.Document{
			"scene_id": sceneID,
			"orgId":    orgID,
			"objects":  []any{},
		}
		id, err := s.collection("scenes_configuration").InsertOne(ctx, config)
		if err != nil {
			s.internalError(w, "get scene configuration", err)
			return
		}
		config["id"] = id
	}
	s.respondJSON(w, http.StatusOK, config)
}

func (s *Server) handleUpdateSceneConfiguration(w http.ResponseWriter, r *http.Request) {
	orgID := s.sceneConfigOrg(r)
	if orgID == "" {
		http.Error(w, "orgId is required", http.StatusBadRequest)
		return
	}
	ctx := r.Context()
	sceneID := mux.Vars(r)["sceneId"]

	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	delete(body, "id")
	delete(body, "orgId")
	delete(body, "scene_id")

	existing, err := s.collection("scenes_configuration").FindOne(ctx, core.Where(map[string]any{
		"scene_id": sceneID,
		"orgId":    orgID,
	}))
	if err != nil {
		s.internalError(w, "update scene configuration", err)
		return
	}
	if existing == nil {
		config := core.Document(body)
		config["scene_id"] = sceneID
		config["orgId"] = orgID
		id, err := s.collection("scenes_configuration").InsertOne(ctx, config)
		if err != nil {
			s.internalError(w, "update scene configuration", err)
			return
		}
		config["id"] = id
		s.respondJSON(w, http.StatusOK, config)
		return
	}
	if _, err := s.collection("scenes_configuration").UpdateOne(ctx, core.ByID(existing.ID()), core.Update{Set: body}); err != nil {
		s.internalError(w, "update scene configuration", err)
		return
	}
	updated := existing.Clone()
	for k, v := range body {
		updated[k] = v
	}
	s.respondJSON(w, http.StatusOK, updated)
}

// sceneConfigOrg resolves the org from the query string first, then the
// request's own identity.
func (s *Server) sceneConfigOrg(r *http.Request) string {
	if orgID := r.URL.Query().Get("orgId"); orgID != "" {
		return orgID
	}
	orgID, err := s.orgs.OrgID(r)
	if err != nil {
		return ""
	}
	return orgID
}
