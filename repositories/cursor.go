package repositories

import (
	"encoding/base64"
	"fmt"

	"github.com/google/uuid"
)

// Cursor is the opaque pagination token handed back to clients. It encodes
// the composite ordering key (timestamp, id) of the last item returned,
// never a physical position, so iteration stays gap-free under concurrent
// inserts.
type Cursor struct {
	UnixNano int64
	ID       uuid.UUID
}

// keyPart renders the cursor the way ordering keys are laid out on disk:
// a 19-digit zero-padded nanosecond timestamp, then the uuid.
func (c Cursor) keyPart() string {
	return fmt.Sprintf("%019d:%s", c.UnixNano, c.ID)
}

// Encode returns the externally visible token.
func (c Cursor) Encode() string {
	return base64.RawURLEncoding.EncodeToString([]byte(c.keyPart()))
}

// DecodeCursor parses a client-supplied token. A malformed token yields
// nil: pagination degrades to an unfiltered first page rather than
// failing the request.
func DecodeCursor(token string) *Cursor {
	if token == "" {
		return nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil
	}
	var nanos int64
	var id string
	if _, err = fmt.Sscanf(string(raw), "%d:%s", &nanos, &id); err != nil {
		return nil
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil
	}
	return &Cursor{UnixNano: nanos, ID: parsed}
}

// EncodeCursor is a nil-safe helper for handler layers.
func EncodeCursor(c *Cursor) string {
	if c == nil {
		return ""
	}
	return c.Encode()
}
