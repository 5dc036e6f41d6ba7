package awsclient

import "time"

type Option func(c *settings)

func Region(region string) Option {
	return func(c *settings) {
		c.region = region
	}
}

// Endpoint points the clients at an S3/DynamoDB compatible service
// (MinIO, LocalStack, DynamoDB Local).
func Endpoint(endpoint string) Option {
	return func(c *settings) {
		c.endpoint = endpoint
	}
}

// StaticCredentials replaces the default credential chain.
func StaticCredentials(accessKey, secretKey string) Option {
	return func(c *settings) {
		c.accessKey = accessKey
		c.secretKey = secretKey
	}
}

func UsePathStyle(use bool) Option {
	return func(c *settings) {
		c.usePathStyle = use
	}
}

// MaxAttempts bounds the SDK retryer, including the first attempt.
func MaxAttempts(attempts int) Option {
	return func(c *settings) {
		c.maxAttempts = attempts
	}
}

func MaxBackoff(d time.Duration) Option {
	return func(c *settings) {
		c.maxBackoff = d
	}
}

func ConnAttempts(attempts int) Option {
	return func(c *settings) {
		c.connAttempts = attempts
	}
}

// ConnRetryInterval is the pause between startup Ping attempts.
func ConnRetryInterval(interval time.Duration) Option {
	return func(c *settings) {
		c.connRetryInterval = interval
	}
}

// DialTimeout bounds establishing a connection to the service.
func DialTimeout(timeout time.Duration) Option {
	return func(c *settings) {
		c.dialTimeout = timeout
	}
}

// ReadTimeout bounds the wait for response headers once a request is sent.
func ReadTimeout(timeout time.Duration) Option {
	return func(c *settings) {
		c.readTimeout = timeout
	}
}
