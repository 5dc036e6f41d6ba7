// Package metadata defines the contract shared by the image metadata stores.
package metadata

import (
	"context"
	"errors"
	"fmt"

	"github.com/notes-bin/imgstore/internal/model"
)

var (
	ErrInvalidRange = errors.New("start_date is after end_date")
	ErrUnavailable  = errors.New("metadata store unavailable")
)

// Store persists image records and lists them by owner and upload date.
//
// Records of one owner are returned in ascending upload_date order; records
// sharing an upload_date are ordered by the store's natural key order.
type Store interface {
	// Save writes img, assigning UploadDate when it is empty.
	Save(ctx context.Context, img model.Image) (model.Image, error)
	// Get reports found=false, not an error, when no record has the id.
	Get(ctx context.Context, imageID string) (img model.Image, found bool, err error)
	Query(ctx context.Context, q Query) (Page, error)
	// Delete is a no-op for unknown ids.
	Delete(ctx context.Context, imageID string) error
}

// Query selects one page of an owner's records. Start and End are inclusive
// bounds in model.TimeLayout; an empty bound is open.
type Query struct {
	UserID string
	Start  string
	End    string
	Limit  int
	Token  string
}

// Page is one slice of a query result. NextToken is empty on the last page.
type Page struct {
	Images    []model.Image
	NextToken string
}

// Cursor is a validated Query ready to be run against a backend.
type Cursor struct {
	UserID string
	Start  string
	End    string
	Limit  int
	// After is the position the page resumes from, nil for the first page.
	After model.Position
}

// Prepare validates q and decodes its continuation token.
func Prepare(q Query) (Cursor, error) {
	if q.UserID == "" {
		return Cursor{}, errors.New("metadata: user id is required")
	}
	if q.Limit < 1 {
		return Cursor{}, fmt.Errorf("metadata: limit must be positive, got %d", q.Limit)
	}
	if q.Start != "" && q.End != "" && q.Start > q.End {
		return Cursor{}, ErrInvalidRange
	}
	c := Cursor{UserID: q.UserID, Start: q.Start, End: q.End, Limit: q.Limit}
	if q.Token == "" {
		return c, nil
	}
	pos, err := model.DecodeToken(q.Token)
	if err != nil {
		return Cursor{}, err
	}
	if pos[model.KeyUserID] != q.UserID {
		return Cursor{}, model.ErrInvalidToken
	}
	// a token only resumes a query whose range still contains its position
	date := pos[model.KeyUploadDate]
	if (q.Start != "" && date < q.Start) || (q.End != "" && date > q.End) {
		return Cursor{}, model.ErrInvalidToken
	}
	c.After = pos
	return c, nil
}

// Unavailable wraps a backend failure so callers can match ErrUnavailable
// while the cause stays visible.
func Unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
}
