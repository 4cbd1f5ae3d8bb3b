package types

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/sportedge/sportedge-backend/pkg/enums"
)

// Envelope is one order event rebuilt from a Pub/Sub message: routing
// attributes plus the still-encoded event body.
type Envelope struct {
	EventID       string
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	AggregateID   string
	Version       int
	OccurredAt    time.Time
	Payload       json.RawMessage
}

// SchemaVersion is the payload version to decode with. Producers that predate
// versioning omit it, which means 1.
func (e Envelope) SchemaVersion() int {
	return max(e.Version, 1)
}

// Blank reports a missing or JSON null payload.
func (e Envelope) Blank() bool {
	body := bytes.TrimSpace(e.Payload)
	return len(body) == 0 || string(body) == "null"
}
