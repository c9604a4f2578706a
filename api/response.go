package api

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ResponseKind discriminates the response envelope payload.
type ResponseKind string

const (
	KindValue     ResponseKind = "value"
	KindStatus    ResponseKind = "status"
	KindHeartbeat ResponseKind = "heartbeat"
	KindError     ResponseKind = "error"
)

// Response is the envelope for every message streamed back to the client.
// Exactly one payload group is populated, selected by Kind.
type Response struct {
	RequestID uuid.UUID    `json:"request_id"`
	NodeID    *uuid.UUID   `json:"node_id,omitempty"`
	Timestamp time.Time    `json:"timestamp"`
	Kind      ResponseKind `json:"kind"`

	// value payload
	Value json.RawMessage `json:"value,omitempty"`

	// status payload
	State   NodeState `json:"state,omitempty"`
	Message string    `json:"message,omitempty"`

	// error payload
	ErrorKind string `json:"error_kind,omitempty"`
	// OriginNodeID names the node whose failure caused a CANCELLED error.
	OriginNodeID *uuid.UUID `json:"origin_node_id,omitempty"`

	// Site is the originating site for status and heartbeat payloads.
	Site string `json:"site,omitempty"`
}

// NewValueResponse builds a value envelope. The value must be
// JSON-marshalable.
func NewValueResponse(requestID, nodeID uuid.UUID, value any) (Response, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return Response{}, err
	}
	return Response{
		RequestID: requestID,
		NodeID:    &nodeID,
		Timestamp: time.Now().UTC(),
		Kind:      KindValue,
		Value:     raw,
	}, nil
}

// NewStatusResponse builds a lifecycle transition envelope.
func NewStatusResponse(requestID, nodeID uuid.UUID, site string, state NodeState, message string) Response {
	return Response{
		RequestID: requestID,
		NodeID:    &nodeID,
		Timestamp: time.Now().UTC(),
		Kind:      KindStatus,
		State:     state,
		Message:   message,
		Site:      site,
	}
}

// NewHeartbeatResponse builds a liveness envelope. Heartbeats are
// per-request, not per-node.
func NewHeartbeatResponse(requestID uuid.UUID, site string) Response {
	return Response{
		RequestID: requestID,
		Timestamp: time.Now().UTC(),
		Kind:      KindHeartbeat,
		Site:      site,
	}
}

// NewErrorResponse builds a terminal failure envelope.
func NewErrorResponse(requestID, nodeID uuid.UUID, errorKind, message string) Response {
	return Response{
		RequestID: requestID,
		NodeID:    &nodeID,
		Timestamp: time.Now().UTC(),
		Kind:      KindError,
		ErrorKind: errorKind,
		Message:   message,
	}
}

// WithOrigin tags an error envelope with the node whose failure propagated.
func (r Response) WithOrigin(origin uuid.UUID) Response {
	r.OriginNodeID = &origin
	return r
}

// IsTerminalFor reports whether this response marks the given node as done:
// a terminal status or an error envelope.
func (r Response) IsTerminalFor(nodeID uuid.UUID) bool {
	if r.NodeID == nil || *r.NodeID != nodeID {
		return false
	}
	switch r.Kind {
	case KindStatus:
		return r.State.IsTerminal()
	case KindError:
		return true
	}
	return false
}

// DecodeValue unmarshals the value payload into out.
func (r Response) DecodeValue(out any) error {
	return json.Unmarshal(r.Value, out)
}
