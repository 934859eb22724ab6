package outbox

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// EnvelopeVersion is the envelope schema subscribers decode.
const EnvelopeVersion = 1

// ActorRef identifies who produced the event. Pipeline stages emit without an actor.
type ActorRef struct {
	ActorID string `json:"actorId"`
	Role    string `json:"role,omitempty"`
}

// PayloadEnvelope is the stable payload structure stored in outbox_events.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}

// DecodeEnvelope parses a stored payload and rejects envelopes a subscriber
// could not use: unknown versions, missing ids and empty data.
func DecodeEnvelope(raw []byte) (PayloadEnvelope, error) {
	var env PayloadEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return env, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Version < 1 || env.Version > EnvelopeVersion {
		return env, fmt.Errorf("unsupported envelope version %d", env.Version)
	}
	if env.EventID == "" {
		return env, fmt.Errorf("envelope missing eventId")
	}
	trimmed := bytes.TrimSpace(env.Data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return env, fmt.Errorf("envelope missing data")
	}
	return env, nil
}
