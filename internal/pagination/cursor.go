// Package pagination reads filtered records back in stable ID order with
// opaque cursor continuation.
package pagination

import (
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// Client input errors.
var (
	ErrInvalidCursor = errors.New("invalid cursor")
	ErrInvalidLimit  = errors.New("invalid limit")
)

// cursorPayload is the JSON body of a cursor token.
type cursorPayload struct {
	ID string `json:"id"`
}

// EncodeCursor encodes the last-seen record ID as an opaque token.
func EncodeCursor(id string) string {
	data, err := json.Marshal(cursorPayload{ID: id})
	if err != nil {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(data)
}

// DecodeCursor returns the record ID carried by a cursor token. The ID must be
// a UUID, the only ID type the stores assign.
func DecodeCursor(token string) (string, error) {
	data, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return "", fmt.Errorf("%w: invalid base64 encoding: %v", ErrInvalidCursor, err)
	}

	var payload cursorPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return "", fmt.Errorf("%w: invalid cursor JSON: %v", ErrInvalidCursor, err)
	}

	id, err := uuid.Parse(payload.ID)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	return id.String(), nil
}
