// Package badger keeps image metadata in an embedded Badger database, for
// single-node deployments and local development.
package badger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/dgraph-io/badger/v4"
	"github.com/notes-bin/imgstore/internal/metadata"
	"github.com/notes-bin/imgstore/internal/model"
)

// Key layout:
//
//	image/<image_id>                              -> JSON record
//	idx/<user_id> 0x00 <upload_date> 0x00 <image_id> -> empty
//
// Badger iterates keys in byte order, so an owner's index entries come back
// sorted by upload date and then image id.
const (
	imagePrefix = "image/"
	indexPrefix = "idx/"
	sep         = "\x00"
)

type Options struct {
	Dir      string
	InMemory bool
	Clock    *metadata.Clock
}

type Store struct {
	db    *badger.DB
	clock *metadata.Clock
}

var _ metadata.Store = (*Store)(nil)

func NewStore(opts Options) (*Store, error) {
	var bopts badger.Options
	if opts.InMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(opts.Dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create metadata directory: %w", err)
		}
		bopts = badger.DefaultOptions(opts.Dir)
	}
	bopts.Logger = nil

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, metadata.Unavailable("badger - NewStore - Open", err)
	}

	clock := opts.Clock
	if clock == nil {
		clock = metadata.NewClock(nil)
	}
	return &Store{db: db, clock: clock}, nil
}

func imageKey(imageID string) []byte {
	return []byte(imagePrefix + imageID)
}

func userPrefix(userID string) []byte {
	return []byte(indexPrefix + userID + sep)
}

func indexKey(userID, uploadDate, imageID string) []byte {
	return []byte(indexPrefix + userID + sep + uploadDate + sep + imageID)
}

func (s *Store) Save(_ context.Context, img model.Image) (model.Image, error) {
	s.clock.Stamp(&img)
	data, err := json.Marshal(img)
	if err != nil {
		return model.Image{}, fmt.Errorf("badger - Save - json.Marshal: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(imageKey(img.ID), data); err != nil {
			return err
		}
		return txn.Set(indexKey(img.UserID, img.UploadDate, img.ID), nil)
	})
	if err != nil {
		return model.Image{}, metadata.Unavailable("badger - Save", err)
	}
	return img, nil
}

func getImage(txn *badger.Txn, imageID string) (model.Image, bool, error) {
	var img model.Image
	item, err := txn.Get(imageKey(imageID))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return img, false, nil
	}
	if err != nil {
		return img, false, err
	}
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &img)
	})
	return img, err == nil, err
}

func (s *Store) Get(_ context.Context, imageID string) (model.Image, bool, error) {
	var (
		img   model.Image
		found bool
	)
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		img, found, err = getImage(txn, imageID)
		return err
	})
	if err != nil {
		return model.Image{}, false, metadata.Unavailable("badger - Get", err)
	}
	return img, found, nil
}

func (s *Store) Query(_ context.Context, q metadata.Query) (metadata.Page, error) {
	cur, err := metadata.Prepare(q)
	if err != nil {
		return metadata.Page{}, err
	}

	prefix := userPrefix(cur.UserID)
	seek := append(bytes.Clone(prefix), cur.Start...)
	var after []byte
	if cur.After != nil {
		after = indexKey(cur.UserID, cur.After[model.KeyUploadDate], cur.After[model.KeyImageID])
		if bytes.Compare(after, seek) > 0 {
			seek = after
		}
	}

	page := metadata.Page{Images: []model.Image{}}
	err = s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		var lastDate, lastID string
		for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().Key()
			if after != nil && bytes.Equal(key, after) {
				continue
			}
			date, id, _ := bytes.Cut(key[len(prefix):], []byte(sep))
			if cur.End != "" && string(date) > cur.End {
				break
			}
			if len(page.Images) == cur.Limit {
				page.NextToken = model.EncodeToken(model.Position{
					model.KeyImageID:    lastID,
					model.KeyUserID:     cur.UserID,
					model.KeyUploadDate: lastDate,
				})
				break
			}

			img, found, err := getImage(txn, string(id))
			if err != nil {
				return err
			}
			lastDate, lastID = string(date), string(id)
			if found {
				page.Images = append(page.Images, img)
			}
		}
		return nil
	})
	if err != nil {
		return metadata.Page{}, metadata.Unavailable("badger - Query", err)
	}
	return page, nil
}

func (s *Store) Delete(_ context.Context, imageID string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		img, found, err := getImage(txn, imageID)
		if err != nil || !found {
			return err
		}
		if err := txn.Delete(imageKey(imageID)); err != nil {
			return err
		}
		return txn.Delete(indexKey(img.UserID, img.UploadDate, img.ID))
	})
	if err != nil {
		return metadata.Unavailable("badger - Delete", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
