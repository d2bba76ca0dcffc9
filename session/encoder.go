package session

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// CurrentSchemaVersion is the only record layout Encode produces and Decode
// accepts.
const CurrentSchemaVersion = 1

const maxRecordSize = 64 << 10

var (
	// ErrCorruptRecord marks stored bytes that are not a valid record.
	ErrCorruptRecord = errors.New("session record corrupt")
	// ErrLegacyRecord marks pre-versioned entries such as a bare token or a
	// {"accessToken": ...} blob.
	ErrLegacyRecord = errors.New("session record uses legacy layout")
	// ErrUnsupportedVersion marks records written by a newer layout.
	ErrUnsupportedVersion = errors.New("unsupported session schema version")
	// ErrInvalidRecord is returned when asked to persist a record that could
	// never be read back.
	ErrInvalidRecord = errors.New("invalid session record")
)

type envelope struct {
	Version   int       `json:"version"`
	SessionID string    `json:"session_id"`
	Principal Principal `json:"principal"`
	Tokens    TokenPair `json:"tokens"`
	SavedAt   int64     `json:"saved_at"`
}

// Encode serializes r in the current layout.
func Encode(r *Record) ([]byte, error) {
	if err := validate(r); err != nil {
		return nil, err
	}
	data, err := json.Marshal(envelope{
		Version:   CurrentSchemaVersion,
		SessionID: r.SessionID,
		Principal: r.Principal,
		Tokens:    r.Tokens,
		SavedAt:   r.CreatedAt.Unix(),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	if len(data) > maxRecordSize {
		return nil, fmt.Errorf("%w: record too large", ErrInvalidRecord)
	}
	return data, nil
}

// Decode parses bytes produced by Encode. Anything else is rejected whole;
// a partially understood record is never returned.
func Decode(data []byte) (*Record, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, ErrCorruptRecord
	}
	if len(trimmed) > maxRecordSize {
		return nil, fmt.Errorf("%w: record too large", ErrCorruptRecord)
	}
	if trimmed[0] != '{' {
		if looksLikeBareToken(trimmed) {
			return nil, ErrLegacyRecord
		}
		return nil, ErrCorruptRecord
	}

	var probe map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &probe); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptRecord, err)
	}
	rawVersion, ok := probe["version"]
	if !ok {
		if _, legacy := probe["accessToken"]; legacy {
			return nil, ErrLegacyRecord
		}
		if _, legacy := probe["token"]; legacy {
			return nil, ErrLegacyRecord
		}
		return nil, ErrCorruptRecord
	}
	var version int
	if err := json.Unmarshal(rawVersion, &version); err != nil {
		return nil, fmt.Errorf("%w: bad version", ErrCorruptRecord)
	}
	switch {
	case version > CurrentSchemaVersion:
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, version)
	case version < CurrentSchemaVersion:
		return nil, ErrLegacyRecord
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.DisallowUnknownFields()
	var env envelope
	if err := dec.Decode(&env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptRecord, err)
	}

	r := &Record{
		SessionID: env.SessionID,
		Principal: env.Principal,
		Tokens:    env.Tokens,
		CreatedAt: time.Unix(env.SavedAt, 0),
	}
	if err := validate(r); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptRecord, err)
	}
	return r, nil
}

func validate(r *Record) error {
	if r == nil {
		return fmt.Errorf("%w: nil record", ErrInvalidRecord)
	}
	if strings.TrimSpace(r.Principal.ID) == "" {
		return fmt.Errorf("%w: principal id empty", ErrInvalidRecord)
	}
	if !r.Principal.Role.Valid() {
		return fmt.Errorf("%w: role %q", ErrInvalidRecord, r.Principal.Role)
	}
	if r.Tokens.RefreshToken != "" && !r.Tokens.HasAccess() {
		return fmt.Errorf("%w: refresh token without access token", ErrInvalidRecord)
	}
	return nil
}

// A bare token is what older clients left behind: printable, no spaces
// except an optional scheme prefix.
func looksLikeBareToken(b []byte) bool {
	s := string(b)
	s = strings.TrimPrefix(s, "Bearer ")
	s = strings.Trim(s, `"`)
	if s == "" {
		return false
	}
	for _, c := range s {
		if c <= ' ' || c > '~' {
			return false
		}
	}
	return true
}
