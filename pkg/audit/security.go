package audit

import (
	"io"
	"time"

	"github.com/sirupsen/logrus"
)

// Event names for security log entries
const (
	EventReplayDetected      = "token_exchange.replay_detected"
	EventInvalidAssertion    = "token_exchange.invalid_assertion"
	EventExternalConflict    = "token_exchange.external_auth_conflict"
	EventEscalationAttempt   = "roles.privilege_escalation_attempt"
	EventRefreshRejected     = "refresh.rejected"
	EventSessionRevoked      = "session.revoked"
	EventAllSessionsRevoked  = "session.revoked_all"
	EventOrgSwitchDenied     = "org_switch.denied"
	EventSigningKeyEphemeral = "signing.ephemeral_key_in_use"
)

// SecurityLogger writes structured security events. Every event goes to the
// structured log; when a Recorder is attached the event is also persisted for
// later search and export.
type SecurityLogger struct {
	log      *logrus.Logger
	recorder Recorder
	now      func() time.Time
}

// NewSecurityLogger creates a JSON-formatted security logger
func NewSecurityLogger(out io.Writer) *SecurityLogger {
	log := logrus.New()
	log.SetOutput(out)
	log.SetFormatter(&logrus.JSONFormatter{})
	log.SetLevel(logrus.InfoLevel)
	return &SecurityLogger{log: log, now: time.Now}
}

// SetRecorder attaches a durable backend. Recording failures are logged but
// never propagated; the security log itself must not break request flows.
func (s *SecurityLogger) SetRecorder(r Recorder) {
	s.recorder = r
}

// Event logs a security event with the given fields
func (s *SecurityLogger) Event(event string, fields map[string]interface{}) {
	if s == nil {
		return
	}
	entry := s.log.WithField("security_event", event)
	if len(fields) > 0 {
		entry = entry.WithFields(logrus.Fields(fields))
	}
	entry.Warn("security event")

	if s.recorder != nil {
		rec := NewRecord(event, fields, s.now().UTC())
		if err := s.recorder.Record(rec); err != nil {
			s.log.WithError(err).Error("failed to record security event")
		}
	}
}

// ReplayDetected logs a rejected replayed exchange assertion
func (s *SecurityLogger) ReplayDetected(jti, subject string) {
	s.Event(EventReplayDetected, map[string]interface{}{
		"jti":     jti,
		"subject": subject,
	})
}

// InvalidAssertion logs a failed exchange-assertion validation.
// The reason stays server-side; callers return a generic invalid-token error.
func (s *SecurityLogger) InvalidAssertion(reason string) {
	s.Event(EventInvalidAssertion, map[string]interface{}{
		"reason": reason,
	})
}

// ExternalAuthConflict logs an attempted rebind of an email that already
// belongs to a different external subject.
func (s *SecurityLogger) ExternalAuthConflict(email, subject string) {
	s.Event(EventExternalConflict, map[string]interface{}{
		"email":   email,
		"subject": subject,
	})
}

// EscalationAttempt logs a blocked privilege-escalation attempt
func (s *SecurityLogger) EscalationAttempt(actorID, orgID string, permissions []string) {
	s.Event(EventEscalationAttempt, map[string]interface{}{
		"actor_id":        actorID,
		"organization_id": orgID,
		"permissions":     permissions,
	})
}

// OrgSwitchDenied logs a refused organization switch
func (s *SecurityLogger) OrgSwitchDenied(userID, orgID, reason string) {
	s.Event(EventOrgSwitchDenied, map[string]interface{}{
		"user_id":         userID,
		"organization_id": orgID,
		"reason":          reason,
	})
}

// RefreshRejected logs a refused token refresh
func (s *SecurityLogger) RefreshRejected(userID, orgID, reason string) {
	s.Event(EventRefreshRejected, map[string]interface{}{
		"user_id":         userID,
		"organization_id": orgID,
		"reason":          reason,
	})
}
