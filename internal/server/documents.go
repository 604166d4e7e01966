package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"arstudio/internal/core"

	"github.com/gorilla/mux"
)

// maxUploadBytes caps document uploads at 100 MiB.
const maxUploadBytes = 100 << 20

const signedURLTTL = 15 * time.Minute

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	orgID, ok := s.requireOrg(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	if activityID := r.URL.Query().Get("activityId"); activityID != "" {
		activity, err := s.loadOrgActivity(r, orgID, activityID)
		if err != nil {
			s.internalError(w, "list documents", err)
			return
		}
		if activity == nil {
			http.Error(w, "Not Found", http.StatusNotFound)
			return
		}
		ids, err := s.client.Relations().DocumentsByActivity(ctx, activityID)
		if err != nil {
			s.internalError(w, "list documents", err)
			return
		}
		docs := make([]core.Document, 0, len(ids))
		for _, id := range ids {
			doc, err := s.collection("documents").FindOne(ctx, core.ByID(id))
			if err != nil {
				s.internalError(w, "list documents", err)
				return
			}
			if doc != nil {
				docs = append(docs, doc)
			}
		}
		s.respondJSON(w, http.StatusOK, docs)
		return
	}

	cursor, err := s.collection("documents").Find(ctx, core.Where(map[string]any{"orgId": orgID}))
	if err != nil {
		s.internalError(w, "list documents", err)
		return
	}
	docs, err := cursor.All(ctx)
	if err != nil {
		s.internalError(w, "list documents", err)
		return
	}
	s.respondJSON(w, http.StatusOK, docs)
}

// handleUploadDocument accepts a multipart form with a "file" part and an
// optional "activityId" field. The metadata row is created first so the
// object key can carry the document id; a failed byte upload rolls the row
// back.
func (s *Server) handleUploadDocument(w http.ResponseWriter, r *http.Request) {
	orgID, ok := s.requireOrg(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	doc := core.Document{
		"orgId":       orgID,
		"filename":    header.Filename,
		"contentType": contentType,
		"size":        header.Size,
	}
	id, err := s.collection("documents").InsertOne(ctx, doc)
	if err != nil {
		s.internalError(w, "upload document", err)
		return
	}
	doc["id"] = id
	key := objectKey(orgID, id)
	if err := s.objects.Upload(ctx, key, file, header.Size, contentType); err != nil {
		// Roll back the metadata row so the listing never shows a document
		// whose bytes were lost.
		if _, derr := s.collection("documents").DeleteOne(ctx, core.ByID(id)); derr != nil {
			s.logger.Error("orphaned document row after failed upload", "id", id, "error", derr)
		}
		s.internalError(w, "upload document", err)
		return
	}
	if _, err := s.collection("documents").UpdateOne(ctx, core.ByID(id), core.Update{
		Set: map[string]any{"objectKey": key},
	}); err != nil {
		s.logger.Error("recording object key failed", "id", id, "error", err)
	}
	doc["objectKey"] = key

	if activityID := r.FormValue("activityId"); activityID != "" {
		if err := s.client.Relations().Link(ctx, id, activityID); err != nil {
			s.logger.Warn("linking uploaded document failed", "activityId", activityID, "documentId", id, "error", err)
		}
	}
	s.respondJSON(w, http.StatusCreated, doc)
}

// loadOrgDocument mirrors loadOrgActivity for the documents collection.
func (s *Server) loadOrgDocument(r *http.Request, orgID, documentID string) (core.Document, error) {
	doc, err := s.collection("documents").FindOne(r.Context(), core.ByID(documentID))
	if err != nil {
		return nil, err
	}
	if doc == nil || doc["orgId"] != orgID {
		return nil, nil
	}
	return doc, nil
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	orgID, ok := s.requireOrg(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	documentID := mux.Vars(r)["documentId"]
	doc, err := s.loadOrgDocument(r, orgID, documentID)
	if err != nil {
		s.internalError(w, "delete document", err)
		return
	}
	if doc == nil {
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}
	// Unlink from every activity first so stale references never survive
	// the row. On sqlite the FK cascade covers this; mongo needs the pulls.
	activityIDs, err := s.client.Relations().ActivitiesByDocument(ctx, documentID)
	if err == nil {
		for _, activityID := range activityIDs {
			if uerr := s.client.Relations().Unlink(ctx, documentID, activityID); uerr != nil {
				s.logger.Warn("unlink during delete failed", "activityId", activityID, "documentId", documentID, "error", uerr)
			}
		}
	}
	if key, _ := doc["objectKey"].(string); key != "" {
		if err := s.objects.Delete(ctx, key); err != nil {
			s.logger.Warn("object deletion failed", "key", key, "error", err)
		}
	}
	if _, err := s.collection("documents").DeleteOne(ctx, core.ByID(documentID)); err != nil {
		s.internalError(w, "delete document", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"deleted": 1})
}

func (s *Server) handleDocumentAccess(w http.ResponseWriter, r *http.Request) {
	orgID, ok := s.requireOrg(w, r)
	if !ok {
		return
	}
	doc, err := s.loadOrgDocument(r, orgID, mux.Vars(r)["documentId"])
	if err != nil {
		s.internalError(w, "document access", err)
		return
	}
	if doc == nil {
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}
	key, _ := doc["objectKey"].(string)
	if key == "" {
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}
	url, err := s.objects.SignedURL(r.Context(), key, signedURLTTL)
	if err != nil {
		s.internalError(w, "document access", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"url": url})
}

type linkRequest struct {
	ActivityID string `json:"activityId"`
}

func (s *Server) handleLinkDocument(w http.ResponseWriter, r *http.Request) {
	s.handleLinkChange(w, r, true)
}

func (s *Server) handleUnlinkDocument(w http.ResponseWriter, r *http.Request) {
	s.handleLinkChange(w, r, false)
}

func (s *Server) handleLinkChange(w http.ResponseWriter, r *http.Request, link bool) {
	orgID, ok := s.requireOrg(w, r)
	if !ok {
		return
	}
	documentID := mux.Vars(r)["documentId"]
	var body linkRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.ActivityID == "" {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	doc, err := s.loadOrgDocument(r, orgID, documentID)
	if err != nil {
		s.internalError(w, "link document", err)
		return
	}
	activity, aerr := s.loadOrgActivity(r, orgID, body.ActivityID)
	if aerr != nil {
		s.internalError(w, "link document", aerr)
		return
	}
	if doc == nil || activity == nil {
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}
	if link {
		err = s.client.Relations().Link(r.Context(), documentID, body.ActivityID)
	} else {
		err = s.client.Relations().Unlink(r.Context(), documentID, body.ActivityID)
	}
	if err != nil {
		s.internalError(w, "link document", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func objectKey(orgID, documentID string) string {
	return fmt.Sprintf("documents/%s/%s", orgID, documentID)
}
