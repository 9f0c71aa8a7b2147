// Package redisstore persists access-control snapshots in Redis so the
// in-memory stores survive process restarts.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/meridian-erp/meridian/internal/authz"
)

const (
	groupsKey      = "authz:snapshot:groups"
	delegationsKey = "authz:snapshot:delegations"
	aclsKey        = "authz:snapshot:acls"
)

// Store implements authz.SnapshotStore on a Redis client.
type Store struct {
	client *redis.Client
}

// New wraps an existing client.
func New(client *redis.Client) *Store {
	return &Store{client: client}
}

// SaveGroups replaces the persisted group snapshot.
func (s *Store) SaveGroups(ctx context.Context, groups []authz.UserGroup) error {
	return s.save(ctx, groupsKey, groups)
}

// SaveDelegations replaces the persisted delegation snapshot.
func (s *Store) SaveDelegations(ctx context.Context, delegations []authz.Delegation) error {
	return s.save(ctx, delegationsKey, delegations)
}

// SaveACLs replaces the persisted ACL snapshot.
func (s *Store) SaveACLs(ctx context.Context, entries []authz.ACLEntry) error {
	return s.save(ctx, aclsKey, entries)
}

// Load fetches the three snapshots in parallel. Missing keys hydrate
// as empty collections, so a fresh deployment boots clean.
func (s *Store) Load(ctx context.Context) (authz.Snapshot, error) {
	var snap authz.Snapshot
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.load(ctx, groupsKey, &snap.Groups) })
	g.Go(func() error { return s.load(ctx, delegationsKey, &snap.Delegations) })
	g.Go(func() error { return s.load(ctx, aclsKey, &snap.ACLs) })
	if err := g.Wait(); err != nil {
		return authz.Snapshot{}, err
	}
	return snap, nil
}

func (s *Store) save(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("redisstore: marshal %s: %w", key, err)
	}
	if err := s.client.Set(ctx, key, data, 0).Err(); err != nil {
		return fmt.Errorf("redisstore: set %s: %w", key, err)
	}
	return nil
}

func (s *Store) load(ctx context.Context, key string, target any) error {
	data, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("redisstore: get %s: %w", key, err)
	}
	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("redisstore: unmarshal %s: %w", key, err)
	}
	return nil
}
