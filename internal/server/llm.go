package server

import (
	"net/http"
	"strings"

	"arstudio/internal/core"
)

// handleLLMDocuments serves retrieval pipelines. Authentication is a bearer
// token scoped to a single activity, not an org session, so the handler
// bypasses the OrgResolver entirely.
func (s *Server) handleLLMDocuments(w http.ResponseWriter, r *http.Request) {
	if s.tokens == nil {
		http.Error(w, "Token issuing not configured", http.StatusServiceUnavailable)
		return
	}
	auth := r.Header.Get("Authorization")
	raw, found := strings.CutPrefix(auth, "Bearer ")
	if !found || raw == "" {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	claims := s.tokens.Verify(raw)
	if claims == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	ctx := r.Context()
	ids, err := s.client.Relations().DocumentsByActivity(ctx, claims.ActivityID)
	if err != nil {
		s.internalError(w, "llm documents", err)
		return
	}
	type llmDocument struct {
		ID          string `json:"id"`
		Filename    string `json:"filename"`
		ContentType string `json:"contentType"`
		URL         string `json:"url"`
	}
	out := make([]llmDocument, 0, len(ids))
	for _, id := range ids {
		doc, err := s.collection("documents").FindOne(ctx, core.ByID(id))
		if err != nil || doc == nil {
			continue
		}
		key, _ := doc["objectKey"].(string)
		if key == "" {
			continue
		}
		url, err := s.objects.SignedURL(ctx, key, signedURLTTL)
		if err != nil {
			s.logger.Warn("signing llm document url failed", "id", id, "error", err)
			continue
		}
		filename, _ := doc["filename"].(string)
		contentType, _ := doc["contentType"].(string)
		out = append(out, llmDocument{ID: id, Filename: filename, ContentType: contentType, URL: url})
	}
	s.respondJSON(w, http.StatusOK, out)
}

// handleDiagnosis reports which backend is live and whether the base
// collections answer queries. It requires no auth so orchestration probes
// can hit it.
func (s *Server) handleDiagnosis(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	collections := map[string]bool{}
	for _, name := range []string{"activities", "documents", "assets"} {
		cursor, err := s.collection(name).Find(ctx, core.Filter{})
		if err != nil {
			collections[name] = false
			continue
		}
		_, err = cursor.All(ctx)
		collections[name] = err == nil
	}
	body := map[string]any{
		"backend":     s.client.Backend().String(),
		"collections": collections,
		"time":        s.clock.Now().UnixMilli(),
	}
	if db := s.client.DB(); db != nil {
		var links int64
		if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM activity_documents").Scan(&links); err == nil {
			body["links"] = links
		}
	}
	s.respondJSON(w, http.StatusOK, body)
}
