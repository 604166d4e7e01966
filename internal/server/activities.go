package server

import (
	"encoding/json"
	"net/http"

	"arstudio/internal/core"

	"github.com/gorilla/mux"
)

func (s *Server) handleListActivities(w http.ResponseWriter, r *http.Request) {
	orgID, ok := s.requireOrg(w, r)
	if !ok {
		return
	}
	cursor, err := s.collection("activities").Find(r.Context(), core.Where(map[string]any{"orgId": orgID}))
	if err != nil {
		s.internalError(w, "list activities", err)
		return
	}
	docs, err := cursor.All(r.Context())
	if err != nil {
		s.internalError(w, "list activities", err)
		return
	}
	s.respondJSON(w, http.StatusOK, docs)
}

func (s *Server) handleCreateActivity(w http.ResponseWriter, r *http.Request) {
	orgID, ok := s.requireOrg(w, r)
	if !ok {
		return
	}
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	doc := core.Document(body)
	doc["orgId"] = orgID
	id, err := s.collection("activities").InsertOne(r.Context(), doc)
	if err != nil {
		s.internalError(w, "create activity", err)
		return
	}
	doc["id"] = id
	s.respondJSON(w, http.StatusCreated, doc)
}

// loadOrgActivity fetches an activity and enforces org ownership. A miss or
// an org mismatch both come back as nil so callers answer 404 uniformly.
func (s *Server) loadOrgActivity(r *http.Request, orgID, activityID string) (core.Document, error) {
	doc, err := s.collection("activities").FindOne(r.Context(), core.ByID(activityID))
	if err != nil {
		return nil, err
	}
	if doc == nil || doc["orgId"] != orgID {
		return nil, nil
	}
	return doc, nil
}

func (s *Server) handleGetActivity(w http.ResponseWriter, r *http.Request) {
	orgID, ok := s.requireOrg(w, r)
	if !ok {
		return
	}
	doc, err := s.loadOrgActivity(r, orgID, mux.Vars(r)["activityId"])
	if err != nil {
		s.internalError(w, "get activity", err)
		return
	}
	if doc == nil {
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}
	s.respondJSON(w, http.StatusOK, doc)
}

func (s *Server) handleUpdateActivity(w http.ResponseWriter, r *http.Request) {
	orgID, ok := s.requireOrg(w, r)
	if !ok {
		return
	}
	activityID := mux.Vars(r)["activityId"]
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	// Ownership fields are server-controlled.
	delete(body, "id")
	delete(body, "orgId")

	doc, err := s.loadOrgActivity(r, orgID, activityID)
	if err != nil {
		s.internalError(w, "update activity", err)
		return
	}
	if doc == nil {
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}
	res, err := s.collection("activities").UpdateOne(r.Context(), core.ByID(activityID), core.Update{Set: body})
	if err != nil {
		s.internalError(w, "update activity", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"matched": res.Matched, "modified": res.Modified})
}

func (s *Server) handleDeleteActivity(w http.ResponseWriter, r *http.Request) {
	orgID, ok := s.requireOrg(w, r)
	if !ok {
		return
	}
	activityID := mux.Vars(r)["activityId"]
	doc, err := s.loadOrgActivity(r, orgID, activityID)
	if err != nil {
		s.internalError(w, "delete activity", err)
		return
	}
	if doc == nil {
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}
	if _, err := s.collection("activities").DeleteOne(r.Context(), core.ByID(activityID)); err != nil {
		s.internalError(w, "delete activity", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"deleted": 1})
}

func (s *Server) handleIssueRAGToken(w http.ResponseWriter, r *http.Request) {
	orgID, ok := s.requireOrg(w, r)
	if !ok {
		return
	}
	if s.tokens == nil {
		http.Error(w, "Token issuing not configured", http.StatusServiceUnavailable)
		return
	}
	activityID := mux.Vars(r)["activityId"]
	doc, err := s.loadOrgActivity(r, orgID, activityID)
	if err != nil {
		s.internalError(w, "issue rag token", err)
		return
	}
	if doc == nil {
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}
	token, err := s.tokens.Issue(activityID)
	if err != nil {
		s.internalError(w, "issue rag token", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"token": token})
}
