package api

import (
	"crypto/sha256"

	"github.com/google/uuid"
)

// WellKnownID derives a deterministic node id from a client-chosen name.
// This simplifies pipeline management because the id for a given node can be
// reconstructed anywhere from the string, instead of having to pass around a
// randomly generated id.
func WellKnownID(ident string) uuid.UUID {
	sum := sha256.Sum256([]byte(ident))
	var id uuid.UUID
	copy(id[:], sum[:16])
	// stamp RFC 4122 version 4 / variant bits so the result round-trips as a
	// regular UUID
	id[6] = (id[6] & 0x0f) | 0x40
	id[8] = (id[8] & 0x3f) | 0x80
	return id
}
