package storage

import (
	"context"
	"fmt"
)

// Backend kinds accepted by Open.
const (
	KindFile   = "file"
	KindMemory = "memory"
	KindNATS   = "nats"
	KindRedis  = "redis"
)

// BackendOptions selects and configures a backend.
type BackendOptions struct {
	Kind     string
	Dir      string
	NATSURL  string
	Bucket   string
	RedisURL string
}

// Open constructs the backend named by opts.Kind.
func Open(ctx context.Context, opts BackendOptions) (Backend, error) {
	switch opts.Kind {
	case KindFile, "":
		return NewFileBackend(opts.Dir)
	case KindMemory:
		return NewMemoryBackend(), nil
	case KindNATS:
		if opts.NATSURL == "" {
			return nil, fmt.Errorf("nats backend requires a url")
		}
		return DialKV(ctx, opts.NATSURL, opts.Bucket)
	case KindRedis:
		return DialRedis(ctx, opts.RedisURL)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", opts.Kind)
	}
}
