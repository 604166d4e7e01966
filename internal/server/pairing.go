package server

import (
	"encoding/json"
	"net/http"
)

func (s *Server) handleGeneratePairingCode(w http.ResponseWriter, r *http.Request) {
	orgID, ok := s.requireOrg(w, r)
	if !ok {
		return
	}
	code, err := s.pairing.Generate(r.Context(), orgID)
	if err != nil {
		s.internalError(w, "generate pairing code", err)
		return
	}
	s.respondJSON(w, http.StatusCreated, map[string]any{
		"code":      code.Code,
		"expiresAt": code.ExpiresAt,
	})
}

type validateRequest struct {
	Code string `json:"code"`
}

// handleValidatePairingCode runs unauthenticated: headsets present a code
// before any session exists. Invalid and expired codes answer 404 alike.
func (s *Server) handleValidatePairingCode(w http.ResponseWriter, r *http.Request) {
	var body validateRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Code == "" {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	code, err := s.pairing.Validate(r.Context(), body.Code)
	if err != nil {
		s.internalError(w, "validate pairing code", err)
		return
	}
	if code == nil {
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{
		"orgId":     code.OrgID,
		"expiresAt": code.ExpiresAt,
	})
}
