package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/SandboxServers/MeridianConsole-sub003/pkg/httputil"
	"github.com/SandboxServers/MeridianConsole-sub003/pkg/sessions"
)

func issueOptions(deviceName *string) sessions.IssueOptions {
	return sessions.IssueOptions{DeviceName: deviceName}
}

func (s *Server) exchangeToken(w http.ResponseWriter, r *http.Request) {
	var req ExchangeRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Assertion == "" {
		httputil.WriteValidationError(w, "assertion is required")
		return
	}

	start := time.Now()
	creds, err := s.coordinator.Exchange(r.Context(), req.Assertion, req.Scopes)
	if s.metrics != nil {
		s.metrics.ExchangeDuration.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		s.countExchange(r, "rejected", time.Since(start))
		writeDomainError(w, err)
		return
	}
	s.countExchange(r, "success", time.Since(start))
	if s.otelMetrics != nil {
		s.otelMetrics.RecordTokenIssued(r.Context(), "exchange")
	}
	httputil.WriteSuccess(w, creds)
}

func (s *Server) refreshToken(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.RefreshToken == "" {
		httputil.WriteValidationError(w, "refresh_token is required")
		return
	}

	creds, err := s.lifecycle.Refresh(r.Context(), req.RefreshToken, issueOptions(req.DeviceName))
	if err != nil {
		s.countRefresh(r, "rejected")
		writeDomainError(w, err)
		return
	}
	s.countRefresh(r, "success")
	if s.otelMetrics != nil {
		s.otelMetrics.RecordTokenIssued(r.Context(), "refresh")
	}
	httputil.WriteSuccess(w, creds)
}

func (s *Server) revokeToken(w http.ResponseWriter, r *http.Request) {
	var req RevokeRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.RefreshToken == "" {
		httputil.WriteValidationError(w, "refresh_token is required")
		return
	}

	if err := s.lifecycle.Revoke(r.Context(), req.RefreshToken); err != nil {
		writeDomainError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

func (s *Server) switchOrganization(w http.ResponseWriter, r *http.Request) {
	caller := CallerToken(r)

	var req SwitchRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.OrganizationID == "" {
		httputil.WriteValidationError(w, "organization_id is required")
		return
	}

	creds, err := s.switcher.Switch(r.Context(), caller.UserID, req.OrganizationID, issueOptions(nil))
	if err != nil {
		if s.metrics != nil {
			s.metrics.OrgSwitchesTotal.WithLabelValues("denied").Inc()
		}
		writeDomainError(w, err)
		return
	}
	if s.metrics != nil {
		s.metrics.OrgSwitchesTotal.WithLabelValues("success").Inc()
	}
	if s.otelMetrics != nil {
		s.otelMetrics.RecordTokenIssued(r.Context(), "org_switch")
	}
	httputil.WriteSuccess(w, creds)
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	caller := CallerToken(r)

	list, err := s.lifecycle.ListActiveSessions(r.Context(), caller.UserID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	httputil.WriteSuccess(w, list)
}

func (s *Server) revokeSession(w http.ResponseWriter, r *http.Request) {
	caller := CallerToken(r)
	sessionID := mux.Vars(r)["id"]

	if err := s.lifecycle.RevokeSession(r.Context(), caller.UserID, sessionID); err != nil {
		writeDomainError(w, err)
		return
	}
	if s.metrics != nil {
		s.metrics.SessionsRevoked.WithLabelValues("single").Inc()
	}
	httputil.WriteNoContent(w)
}

func (s *Server) revokeAllSessions(w http.ResponseWriter, r *http.Request) {
	caller := CallerToken(r)

	var (
		n   int64
		err error
	)
	if orgID := r.URL.Query().Get("organization_id"); orgID != "" {
		n, err = s.lifecycle.RevokeAllForUserInOrg(r.Context(), caller.UserID, orgID)
		if s.metrics != nil && err == nil {
			s.metrics.SessionsRevoked.WithLabelValues("organization").Add(float64(n))
		}
	} else {
		n, err = s.lifecycle.RevokeAllForUser(r.Context(), caller.UserID)
		if s.metrics != nil && err == nil {
			s.metrics.SessionsRevoked.WithLabelValues("user").Add(float64(n))
		}
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}
	httputil.WriteSuccess(w, RevokedResponse{Revoked: n})
}

func (s *Server) countExchange(r *http.Request, status string, duration time.Duration) {
	if s.metrics != nil {
		s.metrics.ExchangesTotal.WithLabelValues(status).Inc()
	}
	if s.otelMetrics != nil {
		s.otelMetrics.RecordExchange(r.Context(), status, duration)
	}
}

func (s *Server) countRefresh(r *http.Request, status string) {
	if s.metrics != nil {
		s.metrics.RefreshesTotal.WithLabelValues(status).Inc()
	}
	if s.otelMetrics != nil {
		s.otelMetrics.RecordRefresh(r.Context(), status)
	}
}
