package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/notes-bin/imgstore/internal/awsclient"
	"github.com/notes-bin/imgstore/internal/badger"
	"github.com/notes-bin/imgstore/internal/config"
	"github.com/notes-bin/imgstore/internal/dynamo"
	"github.com/notes-bin/imgstore/internal/metadata"
	"github.com/notes-bin/imgstore/internal/redis"
	"github.com/notes-bin/imgstore/internal/storage"
)

// backends holds the stores picked by configuration.
type backends struct {
	records metadata.Store
	objects storage.Store
	// files is set only for local object storage, whose links the API serves.
	files   *storage.Local
	closers []func() error
}

func (b *backends) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			slog.Warn("Failed to close backend", "error", err)
		}
	}
}

func openBackends(ctx context.Context, cfg config.Config) (_ *backends, err error) {
	b := &backends{}
	defer func() {
		if err != nil {
			b.Close()
		}
	}()

	var aws *awsclient.Clients
	if cfg.UsesAWS() {
		aws, err = awsclient.New(ctx,
			awsclient.Region(cfg.AWS.Region),
			awsclient.Endpoint(cfg.AWS.Endpoint),
			awsclient.StaticCredentials(cfg.AWS.AccessKey, cfg.AWS.SecretKey),
			awsclient.UsePathStyle(cfg.AWS.UsePathStyle),
			awsclient.MaxAttempts(cfg.AWS.MaxAttempts),
			awsclient.MaxBackoff(time.Duration(cfg.AWS.MaxBackoff)),
			awsclient.DialTimeout(time.Duration(cfg.AWS.ConnectTimeout)),
			awsclient.ReadTimeout(time.Duration(cfg.AWS.ReadTimeout)),
			awsclient.ConnRetryInterval(time.Duration(cfg.AWS.RetryInterval)),
		)
		if err != nil {
			return nil, err
		}
	}

	clock := metadata.NewClock(nil)

	switch cfg.MetadataBackend {
	case config.MetadataRedis:
		client, err := redis.NewClient(ctx, redis.Options{
			Addr:        cfg.Redis.Addr,
			Password:    cfg.Redis.Password,
			DB:          cfg.Redis.DB,
			PoolSize:    cfg.Redis.PoolSize,
			DialTimeout: time.Duration(cfg.Redis.DialTimeout),
			ReadTimeout: time.Duration(cfg.Redis.ReadTimeout),
			MaxRetries:  cfg.Redis.MaxRetries,
			Table:       cfg.Table,
			Clock:       clock,
		})
		if err != nil {
			return nil, err
		}
		b.records = client
		b.closers = append(b.closers, client.Close)
	case config.MetadataBadger:
		store, err := badger.NewStore(badger.Options{Dir: cfg.Badger.Dir, Clock: clock})
		if err != nil {
			return nil, err
		}
		b.records = store
		b.closers = append(b.closers, store.Close)
	case config.MetadataDynamoDB:
		client := aws.DynamoDB()
		if err := aws.Ping(ctx, "dynamodb", func(ctx context.Context) error {
			return dynamo.Ping(ctx, client, cfg.Table)
		}); err != nil {
			return nil, err
		}
		b.records = dynamo.NewStore(client, cfg.Table, cfg.Index, clock)
	default:
		return nil, fmt.Errorf("unknown metadata backend %q", cfg.MetadataBackend)
	}

	switch cfg.ObjectBackend {
	case config.ObjectsS3:
		objects := storage.NewS3(aws.S3(), cfg.Bucket)
		if err := aws.Ping(ctx, "s3", objects.Ping); err != nil {
			return nil, err
		}
		b.objects = objects
	case config.ObjectsLocal:
		local, err := storage.NewLocal(cfg.Local.Dir, cfg.PublicURL, []byte(cfg.Local.SigningSecret))
		if err != nil {
			return nil, err
		}
		b.objects = local
		b.files = local
	default:
		return nil, fmt.Errorf("unknown object backend %q", cfg.ObjectBackend)
	}

	return b, nil
}
