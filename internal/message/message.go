// Package message provides the data structures that flow from the broker to storage and observers.
package message

import (
	"encoding/json"
	"time"

	"github.com/ibs-source/mqtt-router/pkg/jsonfast"
)

// Kind tags the variant held by a Payload.
type Kind uint8

const (
	// Raw means the bytes could not be decoded and are kept as text.
	Raw Kind = iota
	// Decoded means the bytes hold a valid JSON document.
	Decoded
)

// String returns the storage encoding name of the kind.
func (k Kind) String() string {
	if k == Decoded {
		return "json"
	}
	return "raw"
}

// Payload is a message body, decoded opportunistically.
// Both variants keep the original bytes.
type Payload struct {
	kind  Kind
	raw   []byte
	value interface{}
}

// DecodePayload tries to decode raw as JSON and falls back to the raw form.
// It never fails. raw is copied.
func DecodePayload(raw []byte) Payload {
	buf := make([]byte, len(raw))
	copy(buf, raw)

	var v interface{}
	if len(buf) > 0 && json.Unmarshal(buf, &v) == nil {
		return Payload{kind: Decoded, raw: buf, value: v}
	}
	return Payload{kind: Raw, raw: buf}
}

// Kind reports which variant the payload holds.
func (p Payload) Kind() Kind { return p.kind }

// Bytes returns the original payload bytes.
func (p Payload) Bytes() []byte { return p.raw }

// Text returns the original payload as a string.
func (p Payload) Text() string { return string(p.raw) }

// Value returns the decoded structure, or nil for Raw payloads.
func (p Payload) Value() interface{} { return p.value }

// JSON returns the payload as a JSON value: the document itself when
// Decoded, a JSON string of the text when Raw.
func (p Payload) JSON() []byte {
	if p.kind == Decoded {
		return p.raw
	}
	return jsonfast.Quote(string(p.raw))
}

// MarshalJSON implements json.Marshaler.
func (p Payload) MarshalJSON() ([]byte, error) {
	return p.JSON(), nil
}

// Activity is an observed message, matched or not.
type Activity struct {
	Topic      string
	Payload    Payload
	ObservedAt time.Time
}

// MarshalJSON implements json.Marshaler.
func (a Activity) MarshalJSON() ([]byte, error) {
	b := jsonfast.New(len(a.Topic) + len(a.Payload.raw) + 64)
	b.BeginObject()
	b.AddStringField("topic", a.Topic)
	b.AddRawJSONField("payload", a.Payload.JSON())
	b.AddTimeField("observedAt", a.ObservedAt)
	b.EndObject()
	return b.Bytes(), nil
}

// Record is what gets written to a route's destination.
type Record struct {
	RouteID    string
	Topic      string
	Payload    Payload
	ObservedAt time.Time
}

// ObserverMessage is broadcast to live observers once per inbound message.
type ObserverMessage struct {
	Topic           string
	Payload         Payload
	ObservedAt      time.Time
	MatchedRouteIDs []string
}

// MarshalJSON implements json.Marshaler.
func (m ObserverMessage) MarshalJSON() ([]byte, error) {
	b := jsonfast.New(len(m.Topic) + len(m.Payload.raw) + 40*len(m.MatchedRouteIDs) + 96)
	b.BeginObject()
	b.AddStringField("topic", m.Topic)
	b.AddRawJSONField("payload", m.Payload.JSON())
	b.AddTimeField("observedAt", m.ObservedAt)
	b.AddStringArrayField("matchedRouteIds", m.MatchedRouteIDs)
	b.EndObject()
	return b.Bytes(), nil
}
