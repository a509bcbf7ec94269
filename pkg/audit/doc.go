// Package audit provides the security event log for the identity service.
//
// # Overview
//
// Security rejections (replayed assertions, signature failures, identity
// conflicts, escalation attempts, refused refreshes and organization
// switches) are logged with stable field names so downstream alerting can
// key on them, and optionally persisted for later search and export.
//
// # Usage Example
//
// Log a rejection:
//
//	security := audit.NewSecurityLogger(os.Stdout)
//	security.ReplayDetected(claims.JTI, claims.Subject)
//
// Persist events durably:
//
//	recorder, err := audit.NewDBRecorder(db)
//	security.SetRecorder(recorder)
//
// Search and export:
//
//	records, err := recorder.Search(ctx, audit.SearchFilter{
//		Event: audit.EventReplayDetected,
//		Since: time.Now().Add(-24 * time.Hour),
//	})
//	out, err := audit.Export(records, audit.FormatNDJSON)
//
// # Retention
//
// Persisted events are kept for RetentionPeriod (90 days); the maintenance
// job purges older rows.
//
// # Related Packages
//
//   - pkg/exchange: Replay and assertion rejections
//   - pkg/sessions: Refresh and organization-switch rejections
//   - pkg/roles: Escalation attempts
package audit
