package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// Invalidator evicts derived read caches after a mutation commits. Eviction
// is strictly best-effort: failures are logged and swallowed, never surfaced
// to the request that performed the mutation. It must only ever be invoked
// after the owning transaction has committed.
type Invalidator struct {
	store Store
	log   *logrus.Logger
	sf    singleflight.Group
}

// NewInvalidator creates an Invalidator over the given store.
func NewInvalidator(store Store, log *logrus.Logger) *Invalidator {
	return &Invalidator{store: store, log: log}
}

// Evict removes the given keys, logging (not returning) any failure.
func (inv *Invalidator) Evict(ctx context.Context, keys ...string) {
	if len(keys) == 0 {
		return
	}
	if err := inv.store.Delete(ctx, keys...); err != nil {
		inv.log.WithError(err).WithField("keys", keys).Warn("cache eviction failed")
	}
}

// ProductsMutated evicts every cache view derived from the given products:
// the per-product entries, each owning vendor's list and inventory views,
// and the platform-wide inventory aggregate.
func (inv *Invalidator) ProductsMutated(ctx context.Context, ids []uint, vendorIDs []*uint) {
	keys := make([]string, 0, len(ids)*3+1)
	for _, id := range ids {
		keys = append(keys, ProductKey(id))
	}
	seen := map[uint]bool{}
	for _, v := range vendorIDs {
		if v == nil || seen[*v] {
			continue
		}
		seen[*v] = true
		keys = append(keys, VendorProductsKey(*v), VendorInventoryKey(*v))
	}
	keys = append(keys, AdminInventoryKey())
	inv.Evict(ctx, keys...)
}

// OrderMutated evicts the order-derived snapshots for a user and the agents
// whose task lists may include the order.
func (inv *Invalidator) OrderMutated(ctx context.Context, userID uint, agentIDs ...uint) {
	keys := []string{UserCartKey(userID)}
	for _, id := range agentIDs {
		keys = append(keys, AgentTasksKey(id))
	}
	inv.Evict(ctx, keys...)
}

// GetOrLoad is the read-through path: return the cached value under key, or
// run loader, cache its JSON encoding with the given TTL and return it.
// Concurrent misses for the same key are collapsed to one loader call; the
// loader runs on a context detached from the first caller's cancellation so
// collapsed callers are not failed by a caller that went away. Cache failures
// degrade to loading from the source of truth.
func (inv *Invalidator) GetOrLoad(ctx context.Context, key string, ttl time.Duration, dest interface{}, loader func(context.Context) (interface{}, error)) error {
	if raw, err := inv.store.Get(ctx, key); err == nil {
		return json.Unmarshal([]byte(raw), dest)
	} else if !errors.Is(err, ErrMiss) {
		inv.log.WithError(err).WithField("key", key).Warn("cache read failed, falling through")
	}

	raw, err, _ := inv.sf.Do(key, func() (interface{}, error) {
		loadCtx := context.WithoutCancel(ctx)
		v, err := loader(loadCtx)
		if err != nil {
			return nil, err
		}
		encoded, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		if err := inv.store.Set(loadCtx, key, string(encoded), ttl); err != nil {
			inv.log.WithError(err).WithField("key", key).Warn("cache populate failed")
		}
		return string(encoded), nil
	})
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(raw.(string)), dest)
}
