// Package images orchestrates the object store and the metadata store for
// the upload, get, list and delete operations.
package images

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/notes-bin/imgstore/internal/metadata"
	"github.com/notes-bin/imgstore/internal/model"
	"github.com/notes-bin/imgstore/internal/storage"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

type Service struct {
	objects       storage.Store
	records       metadata.Store
	maxUploadSize int64
	presignTTL    time.Duration
	newID         func() string
}

type Option func(*Service)

// MaxUploadSize caps the decoded payload size. Zero disables the check.
func MaxUploadSize(n int64) Option {
	return func(s *Service) { s.maxUploadSize = n }
}

func PresignTTL(ttl time.Duration) Option {
	return func(s *Service) { s.presignTTL = ttl }
}

// IDGenerator replaces uuid.NewString, for tests.
func IDGenerator(f func() string) Option {
	return func(s *Service) { s.newID = f }
}

func NewService(objects storage.Store, records metadata.Store, opts ...Option) *Service {
	s := &Service{
		objects:    objects,
		records:    records,
		presignTTL: storage.DefaultPresignTTL,
		newID:      uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type UploadRequest struct {
	ImageData   string `json:"image_data"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	UserID      string `json:"user_id"`
	Description string `json:"description,omitempty"`
}

func (r UploadRequest) validate() error {
	for _, f := range []struct{ name, value string }{
		{"image_data", r.ImageData},
		{"filename", r.Filename},
		{"content_type", r.ContentType},
		{"user_id", r.UserID},
	} {
		if f.value == "" {
			return badInput("Missing required field: %s", f.name)
		}
	}
	// the filename becomes the last segment of the storage key
	if strings.ContainsAny(r.Filename, "/\\\x00") || r.Filename == "." || r.Filename == ".." {
		return badInput("Invalid filename")
	}
	return nil
}

// Upload stores the payload first and the record second: a crash in between
// leaves an unreferenced object rather than a record without its object.
func (s *Service) Upload(ctx context.Context, req UploadRequest) (model.Image, error) {
	if err := req.validate(); err != nil {
		return model.Image{}, err
	}
	data, err := decodePayload(req.ImageData)
	if err != nil {
		return model.Image{}, badInput("Invalid base64 image data")
	}
	if s.maxUploadSize > 0 && int64(len(data)) > s.maxUploadSize {
		return model.Image{}, badInput("Image exceeds maximum size of %d bytes", s.maxUploadSize)
	}

	imageID := s.newID()
	img := model.Image{
		ID:          imageID,
		Filename:    req.Filename,
		ContentType: req.ContentType,
		Size:        int64(len(data)),
		UserID:      req.UserID,
		StorageKey:  model.StorageKey(imageID, req.Filename),
		Description: req.Description,
	}

	if err := s.objects.Put(ctx, img.StorageKey, data, img.ContentType); err != nil {
		return model.Image{}, fmt.Errorf("images - Upload - objects.Put: %w", err)
	}

	saved, err := s.records.Save(ctx, img)
	if err != nil {
		slog.Error("Object stored without metadata", "image_id", imageID, "storage_key", img.StorageKey, "error", err)
		return model.Image{}, fmt.Errorf("images - Upload - records.Save: %w", err)
	}
	return saved, nil
}

// decodePayload accepts padded and unpadded standard base64.
func decodePayload(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(s)
	}
	return data, err
}

// Details is the metadata view of an image with a link to its payload.
type Details struct {
	Image       model.Image `json:"image"`
	DownloadURL string      `json:"download_url"`
}

func (s *Service) lookup(ctx context.Context, imageID string) (model.Image, error) {
	if imageID == "" {
		return model.Image{}, badInput("Missing image ID")
	}
	img, found, err := s.records.Get(ctx, imageID)
	if err != nil {
		return model.Image{}, fmt.Errorf("images - records.Get: %w", err)
	}
	if !found {
		return model.Image{}, imageNotFound(imageID)
	}
	return img, nil
}

// Get returns the record and a presigned link; the object itself is not read.
func (s *Service) Get(ctx context.Context, imageID string) (Details, error) {
	img, err := s.lookup(ctx, imageID)
	if err != nil {
		return Details{}, err
	}
	link, err := s.objects.PresignedDownloadURL(ctx, img.StorageKey, s.presignTTL)
	if err != nil {
		return Details{}, fmt.Errorf("images - Get - objects.PresignedDownloadURL: %w", err)
	}
	return Details{Image: img, DownloadURL: link}, nil
}

// Download returns the record together with the payload bytes.
func (s *Service) Download(ctx context.Context, imageID string) (model.Image, []byte, error) {
	img, err := s.lookup(ctx, imageID)
	if err != nil {
		return model.Image{}, nil, err
	}
	data, found, err := s.objects.Get(ctx, img.StorageKey)
	if err != nil {
		return model.Image{}, nil, fmt.Errorf("images - Download - objects.Get: %w", err)
	}
	if !found {
		slog.Warn("Metadata points at a missing object", "image_id", imageID, "storage_key", img.StorageKey)
		return model.Image{}, nil, errObjectMissing
	}
	return img, data, nil
}

type ListRequest struct {
	UserID    string
	StartDate string
	EndDate   string
	Limit     string
	NextToken string
}

type ListResult struct {
	Images    []model.Image `json:"images"`
	Count     int           `json:"count"`
	NextToken string        `json:"next_token,omitempty"`
}

func parseLimit(s string) (int, error) {
	if s == "" {
		return DefaultLimit, nil
	}
	limit, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, badInput("Invalid limit value")
	}
	if limit < 1 || limit > MaxLimit {
		return 0, badInput("Limit must be between 1 and %d", MaxLimit)
	}
	return limit, nil
}

func (s *Service) List(ctx context.Context, req ListRequest) (ListResult, error) {
	if req.UserID == "" {
		return ListResult{}, badInput("Missing required query parameter: user_id")
	}
	limit, err := parseLimit(req.Limit)
	if err != nil {
		return ListResult{}, err
	}

	q := metadata.Query{UserID: req.UserID, Limit: limit, Token: req.NextToken}
	if req.StartDate != "" {
		if q.Start, err = model.ParseBound(req.StartDate, false); err != nil {
			return ListResult{}, badInput("Invalid start_date")
		}
	}
	if req.EndDate != "" {
		if q.End, err = model.ParseBound(req.EndDate, true); err != nil {
			return ListResult{}, badInput("Invalid end_date")
		}
	}

	page, err := s.records.Query(ctx, q)
	if errors.Is(err, metadata.ErrInvalidRange) {
		return ListResult{}, badInput("start_date must not be after end_date")
	}
	if err != nil {
		return ListResult{}, fmt.Errorf("images - List - records.Query: %w", err)
	}

	images := page.Images
	if images == nil {
		images = []model.Image{}
	}
	return ListResult{Images: images, Count: len(images), NextToken: page.NextToken}, nil
}

// Delete removes the object before the record; the record is what says the
// object should exist, so it goes last.
func (s *Service) Delete(ctx context.Context, imageID string) error {
	img, err := s.lookup(ctx, imageID)
	if err != nil {
		return err
	}
	if err := s.objects.Delete(ctx, img.StorageKey); err != nil {
		return fmt.Errorf("images - Delete - objects.Delete: %w", err)
	}
	if err := s.records.Delete(ctx, imageID); err != nil {
		slog.Error("Object deleted but metadata remains", "image_id", imageID, "storage_key", img.StorageKey, "error", err)
		return fmt.Errorf("images - Delete - records.Delete: %w", err)
	}
	return nil
}
