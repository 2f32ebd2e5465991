// Package events carries authorisation status signals to the outbound
// notification path. Delivery semantics beyond the broker hand-off are out
// of scope for the engine.
package events

import (
	"context"
	"time"
)

// StatusEvent is emitted whenever an authorisation or consent changes
// status. Terminal tells consumers whether more updates can follow.
type StatusEvent struct {
	AuthorisationID  string    `json:"authorisationId,omitempty"`
	ParentExternalID string    `json:"parentId"`
	ResourceType     string    `json:"resourceType"`
	ScaStatus        string    `json:"scaStatus,omitempty"`
	ResourceStatus   string    `json:"resourceStatus,omitempty"`
	Terminal         bool      `json:"terminal"`
	PsuMessage       string    `json:"psuMessage,omitempty"`
	TppMessages      []string  `json:"tppMessages,omitempty"`
	OccurredAt       time.Time `json:"occurredAt"`
}

// Publisher hands status events to the notification collaborator.
type Publisher interface {
	Publish(ctx context.Context, event StatusEvent) error
}
