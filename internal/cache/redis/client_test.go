package redis

import (
	"crypto/tls"
	"testing"
)

func TestOptions(t *testing.T) {
	t.Run("zero values fall back to defaults", func(t *testing.T) {
		opts := options(ClientConfig{Addr: "localhost:6379"})
		if opts.PoolSize != defaultPoolSize {
			t.Errorf("PoolSize = %d, want %d", opts.PoolSize, defaultPoolSize)
		}
		if opts.MaxRetries != defaultMaxRetries {
			t.Errorf("MaxRetries = %d, want %d", opts.MaxRetries, defaultMaxRetries)
		}
		if opts.DialTimeout != defaultDialTimeout {
			t.Errorf("DialTimeout = %v, want %v", opts.DialTimeout, defaultDialTimeout)
		}
		if opts.ClientName != clientName {
			t.Errorf("ClientName = %q, want %q", opts.ClientName, clientName)
		}
		if opts.TLSConfig != nil {
			t.Error("TLSConfig should be nil when TLS is disabled")
		}
	})

	t.Run("explicit values win", func(t *testing.T) {
		opts := options(ClientConfig{
			Addr:       "redis.internal:6380",
			Password:   "s3cret",
			DB:         2,
			PoolSize:   50,
			MaxRetries: 7,
		})
		if opts.Addr != "redis.internal:6380" || opts.Password != "s3cret" || opts.DB != 2 {
			t.Errorf("connection fields not carried: %+v", opts)
		}
		if opts.PoolSize != 50 {
			t.Errorf("PoolSize = %d, want 50", opts.PoolSize)
		}
		if opts.MaxRetries != 7 {
			t.Errorf("MaxRetries = %d, want 7", opts.MaxRetries)
		}
	})

	t.Run("tls", func(t *testing.T) {
		opts := options(ClientConfig{Addr: "localhost:6379", TLSEnabled: true})
		if opts.TLSConfig == nil {
			t.Fatal("TLSConfig should be set when TLS is enabled")
		}
		if opts.TLSConfig.MinVersion != tls.VersionTLS12 {
			t.Errorf("MinVersion = %d, want TLS 1.2", opts.TLSConfig.MinVersion)
		}
	})
}
