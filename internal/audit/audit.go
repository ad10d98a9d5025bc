// Package audit writes an append-only trail of security-relevant gateway
// activity to daily JSONL partitions. Details are sanitized before they are
// persisted; the audit trail must never become a secondary leak of the
// credentials and data it exists to protect.
package audit

import (
	"time"
)

// Event types, dotted hierarchically so operators can filter by prefix.
const (
	EventLoginSuccess   = "auth.login.success"
	EventLoginFailure   = "auth.login.failure"
	EventLogout         = "auth.logout"
	EventTokenRefresh   = "auth.token.refresh"
	EventQueryExecuted  = "data.query.executed"
	EventQueryBlocked   = "data.query.blocked"
	EventSchemaAccessed = "data.schema.accessed"
	EventRateLimited    = "security.rate_limit"
	EventInvalidToken   = "security.invalid_token"
	EventUnauthorized   = "security.unauthorized"
	EventAuditQueried   = "audit.query"
)

// Event is one audit record. ID and Timestamp are assigned on write when
// absent; everything else is supplied by the call site.
type Event struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	Type      string         `json:"event_type"`
	Actor     string         `json:"actor,omitempty"`
	Origin    string         `json:"origin,omitempty"`
	Resource  string         `json:"resource,omitempty"`
	Action    string         `json:"action,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	Success   bool           `json:"success"`
	Error     string         `json:"error,omitempty"`
}

// Filter narrows a trail query. Zero fields match everything; Limit defaults
// to 100 and is capped at 1000.
type Filter struct {
	Actor  string
	Type   string
	Since  time.Time
	Until  time.Time
	Limit  int
	Offset int
}
