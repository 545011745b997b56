package orders

import (
	"encoding/json"
	"time"
)

const EventOrderCreated = "OrderCreated"

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order_id
	Payload       json.RawMessage `json:"payload"`
}

// OrderCreatedPayload carries the full persisted order so the fulfillment
// worker never has to read it back before starting.
type OrderCreatedPayload struct {
	Order Order `json:"order"`
}
