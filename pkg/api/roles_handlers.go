package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/SandboxServers/MeridianConsole-sub003/pkg/httputil"
)

func (s *Server) createRole(w http.ResponseWriter, r *http.Request) {
	caller := CallerToken(r)
	orgID := mux.Vars(r)["orgID"]

	var req CreateRoleRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Name == "" {
		httputil.WriteValidationError(w, "name is required")
		return
	}
	if len(req.Permissions) == 0 {
		httputil.WriteValidationError(w, "permissions are required")
		return
	}

	role, err := s.rolesSvc.CreateRole(r.Context(), caller.UserID, orgID, req.Name, req.Permissions)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	httputil.WriteCreated(w, role)
}

func (s *Server) updateRole(w http.ResponseWriter, r *http.Request) {
	caller := CallerToken(r)
	vars := mux.Vars(r)
	orgID := vars["orgID"]
	currentName := vars["name"]

	var req UpdateRoleRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if len(req.Permissions) == 0 {
		httputil.WriteValidationError(w, "permissions are required")
		return
	}

	role, err := s.rolesSvc.UpdateRole(r.Context(), caller.UserID, orgID, currentName, req.Name, req.Permissions)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	httputil.WriteSuccess(w, role)
}

func (s *Server) assignRole(w http.ResponseWriter, r *http.Request) {
	caller := CallerToken(r)
	orgID := mux.Vars(r)["orgID"]

	var req AssignRoleRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.UserID == "" || req.Role == "" {
		httputil.WriteValidationError(w, "user_id and role are required")
		return
	}

	if err := s.rolesSvc.AssignRole(r.Context(), caller.UserID, orgID, req.UserID, req.Role); err != nil {
		writeDomainError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}
