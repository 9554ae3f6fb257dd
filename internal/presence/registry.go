package presence

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mbeoliero/kit/log"
	"github.com/mbeoliero/smsdesk/pkg/constant"
	"github.com/redis/go-redis/v9"
)

// Entry is one identity -> connection mapping
type Entry struct {
	Identity string    `json:"identity"`
	ConnId   string    `json:"conn_id"`
	Since    time.Time `json:"since"`
}

// Registry maps identities to the live connection that registered interest in them.
// An identity has at most one connection (last writer wins) and a connection owns
// at most one identity. The registry never owns the connection's lifecycle.
type Registry struct {
	mu         sync.RWMutex
	identities map[string]*Entry // identity -> entry
	conns      map[string]string // connId -> identity
	rdb        *redis.Client
	ttl        time.Duration
}

// NewRegistry creates a Registry. rdb may be nil; when set, entries are mirrored
// to Redis with ttl so operators can see who is online.
func NewRegistry(rdb *redis.Client, ttl time.Duration) *Registry {
	return &Registry{
		identities: make(map[string]*Entry),
		conns:      make(map[string]string),
		rdb:        rdb,
		ttl:        ttl,
	}
}

// Register maps identity to connId, replacing any prior mapping for identity.
// If connId already owned a different identity, that entry is dropped.
func (r *Registry) Register(ctx context.Context, identity, connId string) {
	r.mu.Lock()

	var replaced, released string
	if prev, ok := r.identities[identity]; ok && prev.ConnId != connId {
		replaced = prev.ConnId
		delete(r.conns, prev.ConnId)
	}
	if owned, ok := r.conns[connId]; ok && owned != identity {
		released = owned
		delete(r.identities, owned)
	}

	r.identities[identity] = &Entry{Identity: identity, ConnId: connId, Since: time.Now()}
	r.conns[connId] = identity
	r.mu.Unlock()

	if replaced != "" {
		log.CtxInfo(ctx, "presence replaced: identity=%s, old_conn_id=%s, new_conn_id=%s", identity, replaced, connId)
	}
	if released != "" {
		r.mirrorDel(ctx, released)
	}
	r.mirrorSet(ctx, identity, connId)
}

// UnregisterByConnection removes the entry owned by connId, if any, and returns its identity
func (r *Registry) UnregisterByConnection(ctx context.Context, connId string) (string, bool) {
	r.mu.Lock()
	identity, ok := r.conns[connId]
	if ok {
		delete(r.conns, connId)
		delete(r.identities, identity)
	}
	r.mu.Unlock()

	if ok {
		r.mirrorDel(ctx, identity)
	}
	return identity, ok
}

// Lookup returns the connection registered for identity
func (r *Registry) Lookup(identity string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.identities[identity]
	if !ok {
		return "", false
	}
	return entry.ConnId, true
}

// Len returns the number of registered identities
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.identities)
}

// Snapshot returns a copy of all entries ordered by identity
func (r *Registry) Snapshot() []Entry {
	r.mu.RLock()
	entries := make([]Entry, 0, len(r.identities))
	for _, e := range r.identities {
		entries = append(entries, *e)
	}
	r.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Identity < entries[j].Identity
	})
	return entries
}

// RefreshMirror extends the Redis TTL of every local entry
func (r *Registry) RefreshMirror(ctx context.Context) {
	if r.rdb == nil {
		return
	}

	for _, e := range r.Snapshot() {
		if err := r.rdb.Expire(ctx, presenceKey(e.Identity), r.ttl).Err(); err != nil {
			log.CtxDebug(ctx, "presence mirror refresh failed: identity=%s, error=%v", e.Identity, err)
		}
	}
}

// mirrorSet writes identity -> connId to Redis
func (r *Registry) mirrorSet(ctx context.Context, identity, connId string) {
	if r.rdb == nil {
		return
	}

	if err := r.rdb.Set(ctx, presenceKey(identity), connId, r.ttl).Err(); err != nil {
		log.CtxWarn(ctx, "presence mirror set failed: identity=%s, error=%v", identity, err)
	}
}

// mirrorDel removes identity from Redis
func (r *Registry) mirrorDel(ctx context.Context, identity string) {
	if r.rdb == nil {
		return
	}

	if err := r.rdb.Del(ctx, presenceKey(identity)).Err(); err != nil {
		log.CtxWarn(ctx, "presence mirror delete failed: identity=%s, error=%v", identity, err)
	}
}

func presenceKey(identity string) string {
	return fmt.Sprintf(constant.RedisKeyPresence(), identity)
}
