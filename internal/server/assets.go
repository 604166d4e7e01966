package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"arstudio/internal/core"

	"github.com/gorilla/mux"
)

// The asset library presents uploaded assets and RAG documents as one
// list, so the read side spans both collections.

const (
	assetTypeImage    = "Images"
	assetType3D       = "3D Objects"
	assetTypeDocument = "RAG Documents"
)

// classifyAsset buckets a file into the library categories by content type
// and extension.
func classifyAsset(filename, contentType string) string {
	if strings.HasPrefix(contentType, "image/") {
		return assetTypeImage
	}
	for _, ext := range []string{".obj", ".fbx", ".gltf", ".glb"} {
		if strings.HasSuffix(strings.ToLower(filename), ext) {
			return assetType3D
		}
	}
	return assetTypeDocument
}

// assetFromDocument presents a RAG document row in the asset list shape.
func assetFromDocument(doc core.Document) core.Document {
	return core.Document{
		"id":        doc.ID(),
		"name":      doc["filename"],
		"type":      assetTypeDocument,
		"size":      doc["size"],
		"objectKey": doc["objectKey"],
	}
}

func (s *Server) handleListAssets(w http.ResponseWriter, r *http.Request) {
	orgID, ok := s.requireOrg(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	assetCursor, err := s.collection("assets").Find(ctx, core.Where(map[string]any{"orgId": orgID}))
	if err != nil {
		s.internalError(w, "list assets", err)
		return
	}
	assets, err := assetCursor.All(ctx)
	if err != nil {
		s.internalError(w, "list assets", err)
		return
	}
	docCursor, err := s.collection("documents").Find(ctx, core.Where(map[string]any{"orgId": orgID}))
	if err != nil {
		s.internalError(w, "list assets", err)
		return
	}
	docs, err := docCursor.All(ctx)
	if err != nil {
		s.internalError(w, "list assets", err)
		return
	}
	combined := make([]core.Document, 0, len(assets)+len(docs))
	combined = append(combined, assets...)
	for _, doc := range docs {
		combined = append(combined, assetFromDocument(doc))
	}
	s.respondJSON(w, http.StatusOK, combined)
}

func (s *Server) handleUploadAsset(w http.ResponseWriter, r *http.Request) {
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

	asset := core.Document{
		"orgId":       orgID,
		"name":        header.Filename,
		"type":        classifyAsset(header.Filename, contentType),
		"contentType": contentType,
		"size":        header.Size,
	}
	id, err := s.collection("assets").InsertOne(ctx, asset)
	if err != nil {
		s.internalError(w, "upload asset", err)
		return
	}
	asset["id"] = id
	key := assetObjectKey(orgID, id)
	if err := s.objects.Upload(ctx, key, file, header.Size, contentType); err != nil {
		if _, derr := s.collection("assets").DeleteOne(ctx, core.ByID(id)); derr != nil {
			s.logger.Error("orphaned asset row after failed upload", "id", id, "error", derr)
		}
		s.internalError(w, "upload asset", err)
		return
	}
	if _, err := s.collection("assets").UpdateOne(ctx, core.ByID(id), core.Update{
		Set: map[string]any{"objectKey": key},
	}); err != nil {
		s.logger.Error("recording object key failed", "id", id, "error", err)
	}
	asset["objectKey"] = key
	s.respondJSON(w, http.StatusCreated, asset)
}

// loadOrgAsset resolves an identifier against the documents collection
// first, then assets, mirroring how the combined listing is built. The
// returned kind names the owning collection, or "" on a miss.
func (s *Server) loadOrgAsset(r *http.Request, orgID, assetID string) (core.Document, string, error) {
	doc, err := s.loadOrgDocument(r, orgID, assetID)
	if err != nil {
		return nil, "", err
	}
	if doc != nil {
		return doc, "documents", nil
	}
	asset, err := s.collection("assets").FindOne(r.Context(), core.ByID(assetID))
	if err != nil {
		return nil, "", err
	}
	if asset == nil || asset["orgId"] != orgID {
		return nil, "", nil
	}
	return asset, "assets", nil
}

func (s *Server) handleAssetAccess(w http.ResponseWriter, r *http.Request) {
	orgID, ok := s.requireOrg(w, r)
	if !ok {
		return
	}
	asset, _, err := s.loadOrgAsset(r, orgID, mux.Vars(r)["assetId"])
	if err != nil {
		s.internalError(w, "asset access", err)
		return
	}
	if asset == nil {
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}
	key, _ := asset["objectKey"].(string)
	if key == "" {
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}
	url, err := s.objects.SignedURL(r.Context(), key, signedURLTTL)
	if err != nil {
		s.internalError(w, "asset access", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"url": url})
}

type assetRenameRequest struct {
	Name string `json:"name"`
}

// handleRenameAsset renames either an asset or a document; documents keep
// their filename field in sync so both views show the new name.
func (s *Server) handleRenameAsset(w http.ResponseWriter, r *http.Request) {
	orgID, ok := s.requireOrg(w, r)
	if !ok {
		return
	}
	assetID := mux.Vars(r)["assetId"]
	var body assetRenameRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || strings.TrimSpace(body.Name) == "" {
		http.Error(w, "Name is required", http.StatusBadRequest)
		return
	}
	asset, kind, err := s.loadOrgAsset(r, orgID, assetID)
	if err != nil {
		s.internalError(w, "rename asset", err)
		return
	}
	if asset == nil {
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}
	set := map[string]any{"name": body.Name}
	if kind == "documents" {
		set["filename"] = body.Name
	}
	if _, err := s.collection(kind).UpdateOne(r.Context(), core.ByID(assetID), core.Update{Set: set}); err != nil {
		s.internalError(w, "rename asset", err)
		return
	}
	updated := asset.Clone()
	for k, v := range set {
		updated[k] = v
	}
	s.respondJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteAsset(w http.ResponseWriter, r *http.Request) {
	orgID, ok := s.requireOrg(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	assetID := mux.Vars(r)["assetId"]
	asset, kind, err := s.loadOrgAsset(r, orgID, assetID)
	if err != nil {
		s.internalError(w, "delete asset", err)
		return
	}
	if asset == nil {
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}
	if key, _ := asset["objectKey"].(string); key != "" {
		if err := s.objects.Delete(ctx, key); err != nil {
			s.logger.Warn("object deletion failed", "key", key, "error", err)
		}
	}
	if _, err := s.collection(kind).DeleteOne(ctx, core.ByID(assetID)); err != nil {
		s.internalError(w, "delete asset", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"deleted": 1})
}

func assetObjectKey(orgID, assetID string) string {
	return "assets/" + orgID + "/" + assetID
}
