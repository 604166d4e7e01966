// Package server exposes the HTTP API: thin route handlers gluing the
// store facade, relations manager, object store, pairing codes and RAG
// tokens together. Handlers translate store-layer nil results into 404s
// and keep read paths alive even when storage misbehaves.
package server

import (
	"encoding/json"
	"net/http"

	"arstudio/internal/core"
	"arstudio/internal/objstore"
	"arstudio/internal/pairing"
	"arstudio/internal/store"
	"arstudio/internal/tokens"

	"github.com/gorilla/mux"
)

// OrgResolver yields the current organization identifier for a request.
// The real authentication/session middleware lives outside this service;
// this interface is its seam.
type OrgResolver interface {
	OrgID(r *http.Request) (string, error)
}

// HeaderOrgResolver trusts an X-Org-ID header, for self-hosted mode and
// tests where an upstream proxy has already authenticated the request.
type HeaderOrgResolver struct{}

func (HeaderOrgResolver) OrgID(r *http.Request) (string, error) {
	return r.Header.Get("X-Org-ID"), nil
}

// Server carries the wired collaborators for all route handlers.
type Server struct {
	client  *store.Client
	objects objstore.ObjectStore
	pairing *pairing.Store
	tokens  *tokens.Issuer
	orgs    OrgResolver
	logger  core.Logger
	clock   core.Clock
}

// New creates a Server. tokens may be nil, in which case the rag-token and
// llm routes respond 503.
func New(client *store.Client, objects objstore.ObjectStore, pairingStore *pairing.Store, issuer *tokens.Issuer, orgs OrgResolver, logger core.Logger, clock core.Clock) *Server {
	return &Server{
		client:  client,
		objects: objects,
		pairing: pairingStore,
		tokens:  issuer,
		orgs:    orgs,
		logger:  logger,
		clock:   clock,
	}
}

// Router builds the HTTP route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	api := r.PathPrefix("/api").Subrouter()

	api.HandleFunc("/activities", s.handleListActivities).Methods(http.MethodGet)
	api.HandleFunc("/activities", s.handleCreateActivity).Methods(http.MethodPost)
	api.HandleFunc("/activities/{activityId}", s.handleGetActivity).Methods(http.MethodGet)
	api.HandleFunc("/activities/{activityId}", s.handleUpdateActivity).Methods(http.MethodPatch)
	api.HandleFunc("/activities/{activityId}", s.handleDeleteActivity).Methods(http.MethodDelete)
	api.HandleFunc("/activities/{activityId}/rag-token", s.handleIssueRAGToken).Methods(http.MethodPost)

	api.HandleFunc("/activities/{activityId}/scenes", s.handleListScenes).Methods(http.MethodGet)
	api.HandleFunc("/activities/{activityId}/scenes", s.handleCreateScene).Methods(http.MethodPost)
	api.HandleFunc("/activities/{activityId}/scenes", s.handleReorderScenes).Methods(http.MethodPut)
	api.HandleFunc("/activities/{activityId}/scenes/{sceneId}", s.handleGetScene).Methods(http.MethodGet)
	api.HandleFunc("/activities/{activityId}/scenes/{sceneId}", s.handleUpdateScene).Methods(http.MethodPut)
	api.HandleFunc("/activities/{activityId}/scenes/{sceneId}", s.handleDeleteScene).Methods(http.MethodDelete)
	api.HandleFunc("/scenes-configuration/{sceneId}", s.handleGetSceneConfiguration).Methods(http.MethodGet)
	api.HandleFunc("/scenes-configuration/{sceneId}", s.handleUpdateSceneConfiguration).Methods(http.MethodPut)

	api.HandleFunc("/assets", s.handleListAssets).Methods(http.MethodGet)
	api.HandleFunc("/assets", s.handleUploadAsset).Methods(http.MethodPost)
	api.HandleFunc("/assets/{assetId}", s.handleAssetAccess).Methods(http.MethodGet)
	api.HandleFunc("/assets/{assetId}", s.handleRenameAsset).Methods(http.MethodPatch)
	api.HandleFunc("/assets/{assetId}", s.handleDeleteAsset).Methods(http.MethodDelete)

	api.HandleFunc("/documents", s.handleListDocuments).Methods(http.MethodGet)
	api.HandleFunc("/documents", s.handleUploadDocument).Methods(http.MethodPost)
	api.HandleFunc("/documents/{documentId}", s.handleDeleteDocument).Methods(http.MethodDelete)
	api.HandleFunc("/documents/{documentId}/access", s.handleDocumentAccess).Methods(http.MethodGet)
	api.HandleFunc("/documents/{documentId}/link", s.handleLinkDocument).Methods(http.MethodPost)
	api.HandleFunc("/documents/{documentId}/unlink", s.handleUnlinkDocument).Methods(http.MethodPost)

	api.HandleFunc("/pairing", s.handleGeneratePairingCode).Methods(http.MethodPost)
	api.HandleFunc("/pairing/validate", s.handleValidatePairingCode).Methods(http.MethodPost)

	api.HandleFunc("/llm/documents", s.handleLLMDocuments).Methods(http.MethodGet)
	api.HandleFunc("/diagnosis", s.handleDiagnosis).Methods(http.MethodGet)

	return r
}

// requireOrg resolves the organization or writes a 401.
func (s *Server) requireOrg(w http.ResponseWriter, r *http.Request) (string, bool) {
	orgID, err := s.orgs.OrgID(r)
	if err != nil || orgID == "" {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return "", false
	}
	return orgID, true
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("response encoding failed", "error", err)
	}
}

func (s *Server) internalError(w http.ResponseWriter, route string, err error) {
	s.logger.Error("request failed", "route", route, "error", err)
	http.Error(w, "Internal Error", http.StatusInternalServerError)
}

func (s *Server) collection(name string) core.Collection {
	return s.client.DefaultDatabase().Collection(name)
}
