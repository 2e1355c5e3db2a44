package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Envelope is the message published on the exchange. The routing key equals Type.
type Envelope struct {
	ID      string          `json:"id,omitempty"` // outbox row id
	Type    string          `json:"type"`
	Source  string          `json:"source"`
	TraceID string          `json:"traceId"`
	Data    json.RawMessage `json:"data"`
}

var ErrMalformedEnvelope = errors.New("malformed envelope")

// DecodeEnvelope parses a broker body. Structural problems wrap ErrMalformedEnvelope.
func DecodeEnvelope(body []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("%w: missing type", ErrMalformedEnvelope)
	}
	d := bytes.TrimSpace(env.Data)
	if len(d) == 0 || bytes.Equal(d, []byte("null")) {
		return Envelope{}, fmt.Errorf("%w: missing data", ErrMalformedEnvelope)
	}
	return env, nil
}

// DecodeData unmarshals the payload into v. Failures wrap ErrMalformedEnvelope.
func (e Envelope) DecodeData(v any) error {
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("%w: %s data: %v", ErrMalformedEnvelope, e.Type, err)
	}
	return nil
}
