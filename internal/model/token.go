package model

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"time"
)

const tokenVersion = 1

// Key field names carried in a Position.
const (
	KeyImageID    = "image_id"
	KeyUserID     = "user_id"
	KeyUploadDate = "upload_date"
)

var ErrInvalidToken = errors.New("invalid continuation token")

// Position is the last evaluated key of a page: key field name to value.
type Position map[string]string

// PositionOf returns the position just after img.
func PositionOf(img Image) Position {
	return Position{
		KeyImageID:    img.ID,
		KeyUserID:     img.UserID,
		KeyUploadDate: img.UploadDate,
	}
}

type envelope struct {
	V int      `json:"v"`
	K Position `json:"k"`
}

// EncodeToken serialises p into an opaque URL-safe token.
func EncodeToken(p Position) string {
	// map keys are sorted by encoding/json, so the output is canonical
	data, _ := json.Marshal(envelope{V: tokenVersion, K: p})
	return base64.RawURLEncoding.EncodeToString(data)
}

// DecodeToken reverses EncodeToken. Any malformed input yields ErrInvalidToken.
func DecodeToken(token string) (Position, error) {
	data, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, ErrInvalidToken
	}
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, ErrInvalidToken
	}
	if env.V != tokenVersion {
		return nil, ErrInvalidToken
	}
	for _, k := range []string{KeyImageID, KeyUserID, KeyUploadDate} {
		if env.K[k] == "" {
			return nil, ErrInvalidToken
		}
	}
	if _, err := time.Parse(TimeLayout, env.K[KeyUploadDate]); err != nil {
		return nil, ErrInvalidToken
	}
	return env.K, nil
}
