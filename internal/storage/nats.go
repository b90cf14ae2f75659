package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// NATSStore keeps records in a JetStream KeyValue bucket. It offers the same
// revisioned operations as Store so the two are interchangeable.
type NATSStore struct {
	nc *nats.Conn
	kv jetstream.KeyValue
}

// OpenNATS connects to natsURL and opens (creating if needed) the bucket.
func OpenNATS(ctx context.Context, natsURL, bucket string) (*NATSStore, error) {
	nc, err := nats.Connect(natsURL,
		nats.Name("tweetsweep"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("creating JetStream context: %w", err)
	}

	// No bucket TTL: suspended jobs go untouched for weeks. Expired sessions
	// are purged by the worker.
	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      bucket,
		Description: "tweetsweep jobs and sessions",
		History:     1,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("opening KV bucket %s: %w", bucket, err)
	}

	return &NATSStore{nc: nc, kv: kv}, nil
}

// Close drains the NATS connection.
func (s *NATSStore) Close() error {
	return s.nc.Drain()
}

// Scan returns every live record ordered by key.
func (s *NATSStore) Scan(ctx context.Context) ([]Entry, error) {
	keys, err := s.kv.Keys(ctx)
	if err != nil {
		if errors.Is(err, jetstream.ErrNoKeysFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing keys: %w", err)
	}
	sort.Strings(keys)

	results := make([]Entry, 0, len(keys))
	for _, key := range keys {
		e, err := s.Get(ctx, key)
		if errors.Is(err, ErrNotFound) {
			// Deleted between listing and reading.
			continue
		}
		if err != nil {
			return nil, err
		}
		results = append(results, e)
	}
	return results, nil
}

// Get returns the record stored under key.
func (s *NATSStore) Get(ctx context.Context, key string) (Entry, error) {
	entry, err := s.kv.Get(ctx, key)
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return Entry{}, ErrNotFound
	}
	if err != nil {
		return Entry{}, fmt.Errorf("getting %s: %w", key, err)
	}
	return Entry{
		Key:       entry.Key(),
		Value:     entry.Value(),
		Revision:  entry.Revision(),
		UpdatedAt: entry.Created(),
	}, nil
}

// Create stores value under key only if the key is free.
func (s *NATSStore) Create(ctx context.Context, key string, value []byte) (uint64, error) {
	rev, err := s.kv.Create(ctx, key, value)
	if errors.Is(err, jetstream.ErrKeyExists) {
		return 0, ErrExists
	}
	if err != nil {
		return 0, fmt.Errorf("creating %s: %w", key, err)
	}
	return rev, nil
}

// Put overwrites key unconditionally.
func (s *NATSStore) Put(ctx context.Context, key string, value []byte) (uint64, error) {
	rev, err := s.kv.Put(ctx, key, value)
	if err != nil {
		return 0, fmt.Errorf("putting %s: %w", key, err)
	}
	return rev, nil
}

// Update overwrites key only if its last revision equals revision.
// JetStream revisions are stream sequences, so they grow but not by one.
func (s *NATSStore) Update(ctx context.Context, key string, value []byte, revision uint64) (uint64, error) {
	rev, err := s.kv.Update(ctx, key, value, revision)
	if errors.Is(err, jetstream.ErrKeyExists) {
		if _, getErr := s.Get(ctx, key); errors.Is(getErr, ErrNotFound) {
			return 0, ErrNotFound
		}
		return 0, ErrConflict
	}
	if err != nil {
		return 0, fmt.Errorf("updating %s: %w", key, err)
	}
	return rev, nil
}

// Delete removes key regardless of its revision.
func (s *NATSStore) Delete(ctx context.Context, key string) error {
	if _, err := s.Get(ctx, key); err != nil {
		return err
	}
	if err := s.kv.Delete(ctx, key); err != nil {
		return fmt.Errorf("deleting %s: %w", key, err)
	}
	return nil
}

// DeleteIf removes key only if its last revision equals revision.
func (s *NATSStore) DeleteIf(ctx context.Context, key string, revision uint64) error {
	if _, err := s.Get(ctx, key); err != nil {
		return err
	}
	err := s.kv.Delete(ctx, key, jetstream.LastRevision(revision))
	if errors.Is(err, jetstream.ErrKeyExists) {
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("deleting %s: %w", key, err)
	}
	return nil
}
