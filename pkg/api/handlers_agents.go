package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/odvcencio/leadsplit/pkg/auth"
	"github.com/odvcencio/leadsplit/pkg/logging"
	"github.com/odvcencio/leadsplit/pkg/storage"
)

const (
	msgAgentNotFound  = "Agent not found"
	msgAgentDuplicate = "Agent with this email already exists"
)

type createAgentRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Mobile   string `json:"mobile"`
	Password string `json:"password"`
}

type updateAgentRequest struct {
	Name     *string `json:"name"`
	Email    *string `json:"email"`
	Mobile   *string `json:"mobile"`
	Password *string `json:"password"`
	IsActive *bool   `json:"isActive"`
}

type agentResponse struct {
	Message string         `json:"message"`
	Agent   *storage.Agent `json:"agent"`
}

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := s.store.ListAgents(r.Context())
	if err != nil {
		s.serverError(w, r, err, "list agents failed")
		return
	}
	writeJSON(w, http.StatusOK, agents)
}

func (s *Server) handleCreateAgent(w http.ResponseWriter, r *http.Request) {
	var in createAgentRequest
	if err := s.validators.decodeValidated(w, r, schemaAgentCreate, &in); err != nil {
		writeAppError(w, err)
		return
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	agent, err := s.store.CreateAgent(r.Context(), storage.NewAgent{
		Name:         in.Name,
		Email:        in.Email,
		Mobile:       in.Mobile,
		PasswordHash: hash,
	})
	if errors.Is(err, storage.ErrDuplicate) {
		writeError(w, http.StatusConflict, msgAgentDuplicate)
		return
	}
	if err != nil {
		s.serverError(w, r, err, "create agent failed")
		return
	}

	logging.FromContext(r.Context(), s.logger).Info("agent created", "agent_id", agent.ID)
	writeJSON(w, http.StatusCreated, agentResponse{Message: "Agent created successfully", Agent: agent})
}

func (s *Server) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	agent, err := s.store.GetAgent(r.Context(), chi.URLParam(r, "agentID"))
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, msgAgentNotFound)
		return
	}
	if err != nil {
		s.serverError(w, r, err, "get agent failed")
		return
	}
	writeJSON(w, http.StatusOK, agent)
}

func (s *Server) handleUpdateAgent(w http.ResponseWriter, r *http.Request) {
	var in updateAgentRequest
	if err := s.validators.decodeValidated(w, r, schemaAgentUpdate, &in); err != nil {
		writeAppError(w, err)
		return
	}

	// Blank strings leave the field unchanged.
	upd := storage.AgentUpdate{
		Name:     nonBlank(in.Name),
		Email:    nonBlank(in.Email),
		Mobile:   nonBlank(in.Mobile),
		IsActive: in.IsActive,
	}
	if pw := nonBlank(in.Password); pw != nil {
		hash, err := auth.HashPassword(*pw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		upd.PasswordHash = &hash
	}

	agent, err := s.store.UpdateAgent(r.Context(), chi.URLParam(r, "agentID"), upd)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, msgAgentNotFound)
		return
	case errors.Is(err, storage.ErrDuplicate):
		writeError(w, http.StatusConflict, msgAgentDuplicate)
		return
	case err != nil:
		s.serverError(w, r, err, "update agent failed")
		return
	}
	writeJSON(w, http.StatusOK, agentResponse{Message: "Agent updated successfully", Agent: agent})
}

func (s *Server) handleDeleteAgent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "agentID")
	err := s.store.DeleteAgent(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, msgAgentNotFound)
		return
	}
	if err != nil {
		s.serverError(w, r, err, "delete agent failed")
		return
	}
	logging.FromContext(r.Context(), s.logger).Info("agent deleted", "agent_id", id)
	writeJSON(w, http.StatusOK, map[string]string{"message": "Agent deleted successfully"})
}

func (s *Server) serverError(w http.ResponseWriter, r *http.Request, err error, msg string) {
	logging.FromContext(r.Context(), s.logger).WithError(err).Error(msg)
	writeError(w, http.StatusInternalServerError, "Server error")
}

func nonBlank(v *string) *string {
	if v == nil || strings.TrimSpace(*v) == "" {
		return nil
	}
	return v
}
