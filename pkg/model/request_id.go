package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/google/uuid"
)

// Snapshotter is any object that can save and restore its state as JSON.
type Snapshotter interface {
	Snapshot() (json.RawMessage, error)
	Restore(json.RawMessage) error
}

// RequestID identifies a single trial create request and everything that follows from
// it. IDs are drawn from the searcher's seeded RNG so a replayed search produces the
// same IDs.
type RequestID uuid.UUID

// NewRequestID returns a new request ID using the provided reader.
func NewRequestID(r io.Reader) RequestID {
	var u uuid.UUID
	if _, err := io.ReadFull(r, u[:]); err != nil {
		// The reader is always a prand.State, which cannot fail.
		panic(fmt.Sprintf("unexpected error creating request ID: %v", err))
	}

	// Stamp the UUIDv4 version and variant bits.
	u[6] = (u[6] & 0x0f) | 0x40
	u[8] = (u[8] & 0x3f) | 0x80
	return RequestID(u)
}

// MarshalText returns the string form of the underlying UUID.
func (r RequestID) MarshalText() ([]byte, error) {
	return []byte(uuid.UUID(r).String()), nil
}

// UnmarshalText parses an ID from its text representation.
func (r *RequestID) UnmarshalText(data []byte) error {
	u, err := uuid.ParseBytes(data)
	if err != nil {
		return err
	}
	*r = RequestID(u)
	return nil
}

// Before determines whether this ID is lexicographically less than another.
func (r RequestID) Before(s RequestID) bool {
	return bytes.Compare(r[:], s[:]) == -1
}

func (r RequestID) String() string {
	return uuid.UUID(r).String()
}

// ParseRequestID decodes s into a request ID or returns an error.
func ParseRequestID(s string) (RequestID, error) {
	parsed, err := uuid.Parse(s)
	if err != nil {
		return RequestID{}, err
	}
	return RequestID(parsed), nil
}

// MustParseRequestID decodes s into a request ID or panics.
func MustParseRequestID(s string) RequestID {
	parsed, err := ParseRequestID(s)
	if err != nil {
		panic(err)
	}
	return parsed
}
