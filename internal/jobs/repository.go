package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/kalambet/tweetsweep/internal/storage"
)

// KV is the revisioned record store jobs live in. Both storage.Store and
// storage.NATSStore satisfy it.
type KV interface {
	Scan(ctx context.Context) ([]storage.Entry, error)
	Get(ctx context.Context, key string) (storage.Entry, error)
	Create(ctx context.Context, key string, value []byte) (uint64, error)
	Put(ctx context.Context, key string, value []byte) (uint64, error)
	Update(ctx context.Context, key string, value []byte, revision uint64) (uint64, error)
	Delete(ctx context.Context, key string) error
	DeleteIf(ctx context.Context, key string, revision uint64) error
}

// Repository reads and writes job records. Every write that follows a read
// is conditional on the revision the job was read at.
type Repository struct {
	kv     KV
	logger *slog.Logger
}

// NewRepository wraps kv.
func NewRepository(kv KV) *Repository {
	return &Repository{kv: kv, logger: slog.Default()}
}

// List returns every job in the store. Session records are skipped, as are
// records that fail to decode.
func (r *Repository) List(ctx context.Context) ([]*Job, error) {
	entries, err := r.kv.Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("scanning jobs: %w", err)
	}

	var out []*Job
	for _, e := range entries {
		if IsSessionKey(e.Key) {
			continue
		}
		j, err := Decode(e.Key, e.Value)
		if err != nil {
			r.logger.Warn("skipping undecodable job record", "key", e.Key, "error", err)
			continue
		}
		j.Revision = e.Revision
		out = append(out, j)
	}
	return out, nil
}

// Get returns the job stored under id, or storage.ErrNotFound.
func (r *Repository) Get(ctx context.Context, id string) (*Job, error) {
	if IsSessionKey(id) {
		return nil, storage.ErrNotFound
	}
	e, err := r.kv.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	j, err := Decode(e.Key, e.Value)
	if err != nil {
		return nil, err
	}
	j.Revision = e.Revision
	return j, nil
}

// Create stores a new job. It fails with storage.ErrExists if the ID is taken.
func (r *Repository) Create(ctx context.Context, j *Job) error {
	data, err := Encode(j)
	if err != nil {
		return err
	}
	rev, err := r.kv.Create(ctx, j.ID, data)
	if err != nil {
		return err
	}
	j.Revision = rev
	return nil
}

// Save writes j back if nobody changed it since it was read. A job whose
// record has disappeared yields storage.ErrNotFound; a concurrent write
// yields storage.ErrConflict.
func (r *Repository) Save(ctx context.Context, j *Job) error {
	data, err := Encode(j)
	if err != nil {
		return err
	}
	rev, err := r.kv.Update(ctx, j.ID, data, j.Revision)
	if err != nil {
		return err
	}
	j.Revision = rev
	return nil
}

// Restore writes j unconditionally, re-creating the record if it was deleted.
func (r *Repository) Restore(ctx context.Context, j *Job) error {
	data, err := Encode(j)
	if err != nil {
		return err
	}
	rev, err := r.kv.Put(ctx, j.ID, data)
	if err != nil {
		return err
	}
	j.Revision = rev
	return nil
}

// Delete removes j if it is unchanged since it was read. A record that is
// already gone is not an error.
func (r *Repository) Delete(ctx context.Context, j *Job) error {
	err := r.kv.DeleteIf(ctx, j.ID, j.Revision)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	return err
}

// Remove deletes the job stored under id regardless of its revision.
func (r *Repository) Remove(ctx context.Context, id string) error {
	if IsSessionKey(id) {
		return storage.ErrNotFound
	}
	return r.kv.Delete(ctx, id)
}

// Claim leases j to owner until now+ttl. It fails with storage.ErrConflict
// when another writer got there first.
func (r *Repository) Claim(ctx context.Context, j *Job, owner string, ttl time.Duration, now time.Time) error {
	prev := j.Lease
	j.Lease = &Lease{Owner: owner, ExpiresAt: now.Add(ttl)}
	if err := r.Save(ctx, j); err != nil {
		j.Lease = prev
		return err
	}
	return nil
}

// SortByCreated orders jobs oldest first, breaking ties by ID.
func SortByCreated(js []*Job) {
	sort.SliceStable(js, func(a, b int) bool {
		if !js[a].CreatedAt.Equal(js[b].CreatedAt) {
			return js[a].CreatedAt.Before(js[b].CreatedAt)
		}
		return js[a].ID < js[b].ID
	})
}
