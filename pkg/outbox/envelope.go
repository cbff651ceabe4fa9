package outbox

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/atelie-backend/pkg/enums"
)

// CurrentVersion is the envelope version written by Emit.
const CurrentVersion = 1

// Action is a follow-on step produced by an order state change. The handler
// registered for Kind runs it after the producing transaction commits.
type Action struct {
	Kind         enums.ActionKind `json:"kind"`
	OrderID      uuid.UUID        `json:"order_id"`
	TrackingCode string           `json:"tracking_code,omitempty"`
}

// DedupeKey collapses repeated enqueues of the same action for an order.
func (a Action) DedupeKey() string {
	key := string(a.Kind) + ":" + a.OrderID.String()
	if a.TrackingCode != "" {
		key += ":" + a.TrackingCode
	}
	return key
}

// PayloadEnvelope is the stable payload structure stored in outbox_events.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	ActionID   string          `json:"action_id"`
	OccurredAt time.Time       `json:"occurred_at"`
	Data       json.RawMessage `json:"data"`
}
