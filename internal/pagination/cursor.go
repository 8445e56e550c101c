package pagination

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformedCursor indicates a cursor string that could not be decoded.
// Callers treat this as "no cursor", never as a fatal error.
var ErrMalformedCursor = errors.New("pagination: malformed cursor")

const cursorSchemaVersion = 1

// Token is the decoded form of a pagination cursor: the sort value of the
// last row of the previous page plus its tie-break identifier. A token is
// meaningful only under the same (entity, sort field, direction) it was
// issued for; the planner discards mismatched tokens.
type Token struct {
	Entity    string
	Field     SortField
	Dir       Direction
	SortValue any
	TieBreak  int64
}

type cursorEnvelope struct {
	Version   int             `json:"v"`
	Entity    string          `json:"e"`
	Field     string          `json:"f"`
	Dir       string          `json:"d"`
	SortValue json.RawMessage `json:"s"`
	TieBreak  int64           `json:"t"`
}

// EncodeToken serializes a token into an opaque, URL-safe cursor string.
// The byte value of the result carries no ordering semantics.
func EncodeToken(token Token) (string, error) {
	sortValue, err := json.Marshal(token.SortValue)
	if err != nil {
		return "", fmt.Errorf("pagination: encode cursor: %w", err)
	}
	envelope := cursorEnvelope{
		Version:   cursorSchemaVersion,
		Entity:    token.Entity,
		Field:     string(token.Field),
		Dir:       string(token.Dir),
		SortValue: sortValue,
		TieBreak:  token.TieBreak,
	}
	raw, err := json.Marshal(envelope)
	if err != nil {
		return "", fmt.Errorf("pagination: encode cursor: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// DecodeToken parses an opaque cursor string. Corrupt input, an unknown
// schema version, or an unusable sort value all yield ErrMalformedCursor.
func DecodeToken(cursor string) (Token, error) {
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return Token{}, fmt.Errorf("%w: %v", ErrMalformedCursor, err)
	}
	var envelope cursorEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return Token{}, fmt.Errorf("%w: %v", ErrMalformedCursor, err)
	}
	if envelope.Version != cursorSchemaVersion {
		return Token{}, fmt.Errorf("%w: unsupported schema version %d", ErrMalformedCursor, envelope.Version)
	}
	sortValue, err := decodeSortValue(envelope.SortValue)
	if err != nil {
		return Token{}, err
	}
	return Token{
		Entity:    envelope.Entity,
		Field:     SortField(envelope.Field),
		Dir:       Direction(envelope.Dir),
		SortValue: sortValue,
		TieBreak:  envelope.TieBreak,
	}, nil
}

// decodeSortValue keeps integer sort values exact instead of forcing them
// through float64, so the planner's equality term compares cleanly.
func decodeSortValue(raw json.RawMessage) (any, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: missing sort value", ErrMalformedCursor)
	}
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()
	var value any
	if err := decoder.Decode(&value); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedCursor, err)
	}
	switch typed := value.(type) {
	case json.Number:
		if integer, err := typed.Int64(); err == nil {
			return integer, nil
		}
		if fractional, err := typed.Float64(); err == nil {
			return fractional, nil
		}
		return nil, fmt.Errorf("%w: unusable numeric sort value %q", ErrMalformedCursor, typed.String())
	case string:
		return typed, nil
	default:
		return nil, fmt.Errorf("%w: unsupported sort value type %T", ErrMalformedCursor, value)
	}
}
