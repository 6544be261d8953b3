package config

import "time"

const (
	DefaultMongoURI          = "mongodb://localhost:27017"
	DefaultMongoDatabaseName = "smartpark"
	DefaultMongoConnTimeout  = 10 * time.Second

	DefaultPort     = "8080"
	DefaultLogLevel = "info"

	DefaultIdentityServiceURL = "http://localhost:8081"

	DefaultRateLimitRequests = 60
	DefaultRateLimitWindow   = 1 * time.Minute

	DefaultRequestTimeout = 30 * time.Second
	DefaultIdempotencyTTL = 24 * time.Hour
	DefaultMaxRequestSize = 1 * 1024 * 1024 // 1MB

	DefaultReadTimeout     = 15 * time.Second
	DefaultWriteTimeout    = 15 * time.Second
	DefaultIdleTimeout     = 60 * time.Second
	DefaultShutdownTimeout = 30 * time.Second

	// Advisory lock tuning: locks auto-expire after the TTL, acquisition
	// retries until the acquire timeout and then fails with Busy.
	DefaultLockTTL            = 10 * time.Second
	DefaultLockAcquireTimeout = 2 * time.Second
	DefaultLockRetryInterval  = 50 * time.Millisecond

	DefaultWSWriteTimeout = 10 * time.Second
	DefaultWSPongTimeout  = 60 * time.Second
	DefaultWSSendBuffer   = 32

	DefaultKafkaEnabled       = false
	DefaultBookingEventsTopic = "smartpark.booking-events"

	DefaultPaginationLimit = 100
)
