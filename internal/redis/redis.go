package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/notes-bin/imgstore/internal/metadata"
	"github.com/notes-bin/imgstore/internal/model"

	"github.com/redis/go-redis/v9"
)

// Records live under "<table>:image:<id>". Each owner has a sorted set
// "<table>:user:<user_id>:images" whose members are "<upload_date>|<image_id>",
// all with score 0, so lexical range queries walk them by date then id.
const memberSep = "|"

type Options struct {
	Addr        string
	Password    string
	DB          int
	PoolSize    int
	DialTimeout time.Duration
	ReadTimeout time.Duration
	MaxRetries  int
	Table       string
	Clock       *metadata.Clock
}

type Client struct {
	*redis.Client
	table string
	clock *metadata.Clock
}

var _ metadata.Store = (*Client)(nil)

func NewClient(ctx context.Context, opts Options) (*Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        opts.Addr,
		Password:    opts.Password,
		DB:          opts.DB,
		PoolSize:    opts.PoolSize,
		DialTimeout: opts.DialTimeout,
		ReadTimeout: opts.ReadTimeout,
		MaxRetries:  opts.MaxRetries,
	})
	if _, err := client.Ping(ctx).Result(); err != nil {
		_ = client.Close()
		return nil, metadata.Unavailable("redis - NewClient - Ping", err)
	}
	slog.Info("Connected to Redis", "addr", opts.Addr, "table", opts.Table)

	clock := opts.Clock
	if clock == nil {
		clock = metadata.NewClock(nil)
	}
	return &Client{Client: client, table: opts.Table, clock: clock}, nil
}

func (c *Client) imageKey(imageID string) string {
	return fmt.Sprintf("%s:image:%s", c.table, imageID)
}

func (c *Client) userKey(userID string) string {
	return fmt.Sprintf("%s:user:%s:images", c.table, userID)
}

func member(uploadDate, imageID string) string {
	return uploadDate + memberSep + imageID
}

func (c *Client) Save(ctx context.Context, img model.Image) (model.Image, error) {
	c.clock.Stamp(&img)
	data, err := json.Marshal(img)
	if err != nil {
		return model.Image{}, fmt.Errorf("redis - Save - json.Marshal: %w", err)
	}

	_, err = c.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, c.imageKey(img.ID), data, 0)
		pipe.ZAdd(ctx, c.userKey(img.UserID), redis.Z{Score: 0, Member: member(img.UploadDate, img.ID)})
		return nil
	})
	if err != nil {
		return model.Image{}, metadata.Unavailable("redis - Save - TxPipelined", err)
	}
	return img, nil
}

func (c *Client) Get(ctx context.Context, imageID string) (model.Image, bool, error) {
	data, err := c.Client.Get(ctx, c.imageKey(imageID)).Bytes()
	if err == redis.Nil {
		return model.Image{}, false, nil
	}
	if err != nil {
		return model.Image{}, false, metadata.Unavailable("redis - Get", err)
	}

	var img model.Image
	if err := json.Unmarshal(data, &img); err != nil {
		return model.Image{}, false, fmt.Errorf("redis - Get - json.Unmarshal: %w", err)
	}
	return img, true, nil
}

func (c *Client) Query(ctx context.Context, q metadata.Query) (metadata.Page, error) {
	cur, err := metadata.Prepare(q)
	if err != nil {
		return metadata.Page{}, err
	}

	lo, hi := "-", "+"
	if cur.Start != "" {
		lo = "[" + cur.Start
	}
	if cur.After != nil {
		after := member(cur.After[model.KeyUploadDate], cur.After[model.KeyImageID])
		if after >= cur.Start {
			lo = "(" + after
		}
	}
	if cur.End != "" {
		// \xff sorts after every id sharing the end timestamp
		hi = "[" + cur.End + memberSep + "\xff"
	}

	// one extra member tells whether another page exists
	members, err := c.ZRangeByLex(ctx, c.userKey(cur.UserID), &redis.ZRangeBy{
		Min:   lo,
		Max:   hi,
		Count: int64(cur.Limit) + 1,
	}).Result()
	if err != nil {
		return metadata.Page{}, metadata.Unavailable("redis - Query - ZRangeByLex", err)
	}

	more := len(members) > cur.Limit
	if more {
		members = members[:cur.Limit]
	}
	if len(members) == 0 {
		return metadata.Page{Images: []model.Image{}}, nil
	}

	keys := make([]string, len(members))
	for i, m := range members {
		_, id, _ := strings.Cut(m, memberSep)
		keys[i] = c.imageKey(id)
	}
	values, err := c.MGet(ctx, keys...).Result()
	if err != nil {
		return metadata.Page{}, metadata.Unavailable("redis - Query - MGet", err)
	}

	images := make([]model.Image, 0, len(values))
	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			slog.Warn("Index entry without record", "user_id", cur.UserID, "member", members[i])
			continue
		}
		var img model.Image
		if err := json.Unmarshal([]byte(s), &img); err != nil {
			return metadata.Page{}, fmt.Errorf("redis - Query - json.Unmarshal: %w", err)
		}
		images = append(images, img)
	}

	page := metadata.Page{Images: images}
	if more {
		date, id, _ := strings.Cut(members[len(members)-1], memberSep)
		page.NextToken = model.EncodeToken(model.Position{
			model.KeyImageID:    id,
			model.KeyUserID:     cur.UserID,
			model.KeyUploadDate: date,
		})
	}
	return page, nil
}

func (c *Client) Delete(ctx context.Context, imageID string) error {
	img, found, err := c.Get(ctx, imageID)
	if err != nil {
		return err
	}
	if !found {
		return nil
	}

	_, err = c.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, c.imageKey(imageID))
		pipe.ZRem(ctx, c.userKey(img.UserID), member(img.UploadDate, img.ID))
		return nil
	})
	if err != nil {
		return metadata.Unavailable("redis - Delete - TxPipelined", err)
	}
	return nil
}
