// Package awsclient builds the AWS SDK clients used by the S3 object store
// and the DynamoDB metadata store.
package awsclient

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

const (
	_defaultRegion       = "us-east-1"
	_defaultMaxAttempts  = 3
	_defaultMaxBackoff   = 5 * time.Second
	_defaultConnAttempts = 5
	_defaultConnInterval = time.Second
	_defaultDialTimeout  = 10 * time.Second
	_defaultReadTimeout  = 30 * time.Second
)

type settings struct {
	region       string
	endpoint     string
	accessKey    string
	secretKey    string
	usePathStyle bool
	maxAttempts  int
	maxBackoff   time.Duration
	connAttempts int

	connRetryInterval time.Duration
	dialTimeout       time.Duration
	readTimeout       time.Duration
}

// Clients holds a loaded AWS configuration and the per-service settings
// needed to build clients from it.
type Clients struct {
	cfg aws.Config
	s   settings
}

func New(ctx context.Context, opts ...Option) (*Clients, error) {
	s := settings{
		region:       _defaultRegion,
		maxAttempts:  _defaultMaxAttempts,
		maxBackoff:   _defaultMaxBackoff,
		connAttempts: _defaultConnAttempts,

		connRetryInterval: _defaultConnInterval,
		dialTimeout:       _defaultDialTimeout,
		readTimeout:       _defaultReadTimeout,
	}
	for _, opt := range opts {
		opt(&s)
	}

	loadOpts := []func(*config.LoadOptions) error{
		config.WithRegion(s.region),
		config.WithHTTPClient(httpClient(s)),
		config.WithRetryer(func() aws.Retryer {
			return retry.NewStandard(func(o *retry.StandardOptions) {
				o.MaxAttempts = s.maxAttempts
				o.MaxBackoff = s.maxBackoff
			})
		}),
	}
	if s.accessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(s.accessKey, s.secretKey, ""),
		))
	}

	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("awsclient - New - config.LoadDefaultConfig: %w", err)
	}
	return &Clients{cfg: cfg, s: s}, nil
}

func httpClient(s settings) *awshttp.BuildableClient {
	return awshttp.NewBuildableClient().
		WithDialerOptions(func(d *net.Dialer) {
			d.Timeout = s.dialTimeout
		}).
		WithTransportOptions(func(tr *http.Transport) {
			tr.ResponseHeaderTimeout = s.readTimeout
		})
}

func (c *Clients) S3() *s3.Client {
	return s3.NewFromConfig(c.cfg, func(o *s3.Options) {
		o.UsePathStyle = c.s.usePathStyle
		if c.s.endpoint != "" {
			o.BaseEndpoint = aws.String(c.s.endpoint)
			// most S3 compatible services reject the default trailing checksums
			o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
		}
	})
}

func (c *Clients) DynamoDB() *dynamodb.Client {
	return dynamodb.NewFromConfig(c.cfg, func(o *dynamodb.Options) {
		if c.s.endpoint != "" {
			o.BaseEndpoint = aws.String(c.s.endpoint)
		}
	})
}

// Ping runs check until it succeeds or the connect attempts run out.
func (c *Clients) Ping(ctx context.Context, name string, check func(context.Context) error) error {
	var err error
	for attempts := c.s.connAttempts; attempts > 0; attempts-- {
		if err = check(ctx); err == nil {
			return nil
		}
		slog.Warn("AWS service not reachable, retrying", "service", name, "attempts_left", attempts-1, "error", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.s.connRetryInterval):
		}
	}
	return fmt.Errorf("awsclient - Ping - %s: %w", name, err)
}
