package redis

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/redis/rueidis"

	"github.com/kailas-cloud/supportbot/internal/db"
	"github.com/kailas-cloud/supportbot/internal/domain"
)

var _ db.Store = (*Store)(nil)

const readyPollInterval = 100 * time.Millisecond

// Config holds connection parameters for a Redis store.
// KeyPrefix scopes every index and key this store hands out; empty means domain.DefaultKeyPrefix.
type Config struct {
	Addrs     []string
	Username  string
	Password  string
	DB        int
	KeyPrefix string
}

// Store reads pre-built RediSearch indices (FT.SEARCH KNN and BM25) and backs the embedding cache.
type Store struct {
	client rueidis.Client
	prefix string
}

// NewStore creates a Redis store via rueidis.
func NewStore(cfg Config) (*Store, error) {
	if len(cfg.Addrs) == 0 {
		return nil, fmt.Errorf("addrs is required")
	}

	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  cfg.Addrs,
		Username:     cfg.Username,
		Password:     cfg.Password,
		SelectDB:     cfg.DB,
		DisableCache: true,
		AlwaysRESP2:  true, // FT.SEARCH reply parsing expects RESP2 arrays
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	return newStore(client, cfg.KeyPrefix), nil
}

func newStore(c rueidis.Client, prefix string) *Store {
	if prefix == "" {
		prefix = domain.DefaultKeyPrefix
	}
	return &Store{client: c, prefix: prefix}
}

// KeyPrefix returns the namespace this store was configured with.
func (s *Store) KeyPrefix() string { return s.prefix }

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.do(ctx, s.b().Ping().Build()).Error(); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// Close shuts down the client.
func (s *Store) Close() {
	s.client.Close()
}

// ListIndexes returns the FT indexes under this store's prefix, sorted.
func (s *Store) ListIndexes(ctx context.Context) ([]string, error) {
	names, err := s.do(ctx, s.b().Arbitrary(db.OpList).Build()).AsStrSlice()
	if err != nil {
		if isRedisErr(err, "unknown command") {
			return nil, fmt.Errorf("%w: %v", db.ErrSearchUnavailable, err)
		}
		return nil, &db.Error{Op: db.OpList, Err: err}
	}
	out := slices.DeleteFunc(names, func(n string) bool {
		return !strings.HasPrefix(n, s.prefix)
	})
	slices.Sort(out)
	return out, nil
}

// WaitForReady blocks until the server answers and the search module is loaded.
// A server without FT commands fails immediately instead of waiting out the timeout.
func (s *Store) WaitForReady(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(readyPollInterval)
	defer ticker.Stop()

	var lastErr error
	for {
		err := s.ready(ctx)
		if err == nil {
			return nil
		}
		if errors.Is(err, db.ErrSearchUnavailable) {
			return err
		}
		lastErr = err

		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for database: %w (last error: %v)", ctx.Err(), lastErr)
		case <-ticker.C:
		}
	}
}

func (s *Store) ready(ctx context.Context) error {
	if err := s.Ping(ctx); err != nil {
		return err
	}
	_, err := s.ListIndexes(ctx)
	return err
}

func (s *Store) do(ctx context.Context, cmd rueidis.Completed) rueidis.RedisResult {
	return s.client.Do(ctx, cmd)
}

func (s *Store) b() rueidis.Builder {
	return s.client.B()
}

// isRedisErr reports whether err is a server error whose message contains substr, ignoring case.
func isRedisErr(err error, substr string) bool {
	re, ok := rueidis.IsRedisErr(err)
	if !ok {
		return false
	}
	return strings.Contains(strings.ToLower(re.Error()), strings.ToLower(substr))
}
