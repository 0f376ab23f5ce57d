package audit

import (
	"encoding/json"
	"time"
)

// Action is the mutation kind recorded in an event.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
	ActionGrant  Action = "grant"
	ActionRevoke Action = "revoke"
)

// ResourceType classifies the mutated resource.
type ResourceType string

const (
	ResourcePolicy  ResourceType = "policy"
	ResourceBinding ResourceType = "binding"
	ResourceAppOpen ResourceType = "app_open"
)

// Event is one recorded mutation.
type Event struct {
	ID           int64                  `json:"id,omitempty"`
	OccurredAt   time.Time              `json:"occurred_at"`
	Actor        string                 `json:"actor,omitempty"`
	Action       Action                 `json:"action"`
	ResourceType ResourceType           `json:"resource_type"`
	ResourceID   string                 `json:"resource_id"`
	TenantID     string                 `json:"tenant_id,omitempty"`
	RequestID    string                 `json:"request_id,omitempty"`
	Detail       map[string]interface{} `json:"detail,omitempty"`
}

// ToJSON serializes the event for archival.
func (e *Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// FromJSON deserializes an archived event.
func FromJSON(data []byte) (*Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// SearchFilter narrows an event search. Zero fields are ignored.
type SearchFilter struct {
	Actor        string
	Action       Action
	ResourceType ResourceType
	ResourceID   string
	TenantID     string
	Since        time.Time
	Until        time.Time
	Limit        int
	Offset       int
}

// RetentionPolicy controls how long events stay in the database before the
// sweeper archives and prunes them.
type RetentionPolicy struct {
	// KeepFor is how long events remain queryable in the database.
	KeepFor time.Duration
	// Archive controls whether pruned events are written to object storage
	// first. When false, pruning discards them.
	Archive bool
}

// DefaultRetentionPolicy keeps ninety days of events and archives on prune.
func DefaultRetentionPolicy() RetentionPolicy {
	return RetentionPolicy{
		KeepFor: 90 * 24 * time.Hour,
		Archive: true,
	}
}
