package event

import (
	"time"

	"github.com/google/uuid"
)

// Type identifies a domain event emitted on a state transition.
type Type string

const (
	TypeTenderPublished      Type = "tender.published"
	TypeTenderCancelled      Type = "tender.cancelled"
	TypeTenderAwarded        Type = "tender.awarded"
	TypeBidSubmitted         Type = "bid.submitted"
	TypeBidDisqualified      Type = "bid.disqualified"
	TypeBidsOpened           Type = "bids.opened"
	TypeScoresLocked         Type = "scores.locked"
	TypeApprovalLevelDecided Type = "approval.level_decided"
	TypeWorkflowReturned     Type = "approval.workflow_returned"
	TypeWorkflowRejected     Type = "approval.workflow_rejected"
)

// Event is a discrete fact a notification collaborator can subscribe to.
// Delivery is best-effort; a delivery failure is never observable to the
// engine and never blocks the transition that produced the event.
type Event struct {
	ID         uuid.UUID              `json:"id"`
	Type       Type                   `json:"type"`
	TenderID   uuid.UUID              `json:"tender_id"`
	ActorID    uuid.UUID              `json:"actor_id"`
	OccurredAt time.Time              `json:"occurred_at"`
	Payload    map[string]interface{} `json:"payload,omitempty"`
}

// New builds an event for the given transition.
func New(t Type, tenderID, actorID uuid.UUID, payload map[string]interface{}) Event {
	return Event{
		ID:         uuid.New(),
		Type:       t,
		TenderID:   tenderID,
		ActorID:    actorID,
		OccurredAt: time.Now().UTC(),
		Payload:    payload,
	}
}

// Publisher fans events out to subscribers. Implementations must not
// surface delivery failures to callers.
type Publisher interface {
	Publish(evt Event)
}

// NopPublisher drops every event. Used where notifications are disabled.
type NopPublisher struct{}

func (NopPublisher) Publish(Event) {}
