package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/lox/blackjack/internal/errs"
	"github.com/lox/blackjack/internal/game"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
)

// CacheNamespace is the namespace of every round cache key
const CacheNamespace = "blackjack"

// Collections in the document store
const (
	LiveCollection    = "games"
	HistoryCollection = "game_history"
	ActiveCollection  = "active_rounds"
)

const (
	DefaultCacheTTL    = 5 * time.Minute
	DefaultLockTimeout = 2 * time.Second
)

// Options tune a RoundStore
type Options struct {
	CacheTTL    time.Duration
	LockTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.CacheTTL <= 0 {
		o.CacheTTL = DefaultCacheTTL
	}
	if o.LockTimeout <= 0 {
		o.LockTimeout = DefaultLockTimeout
	}
	return o
}

// CacheKey is the cache key of round id
func CacheKey(id string) Key {
	return Key{Namespace: CacheNamespace, Name: "game_" + id}
}

type roundLock struct {
	sem  *semaphore.Weighted
	refs int
}

// RoundStore persists live rounds and their history
type RoundStore struct {
	docs   Documents
	cache  Cache
	opts   Options
	logger zerolog.Logger

	locksMu sync.Mutex
	locks   map[string]*roundLock
}

// New returns a RoundStore writing through cache to docs
func New(docs Documents, cache Cache, opts Options, logger zerolog.Logger) *RoundStore {
	return &RoundStore{
		docs:   docs,
		cache:  cache,
		opts:   opts.withDefaults(),
		logger: logger.With().Str("component", "store").Logger(),
		locks:  make(map[string]*roundLock),
	}
}

// Upsert validates and writes a live round to the durable store and then the
// cache, and keeps the live round index of its players current.
func (s *RoundStore) Upsert(ctx context.Context, g *game.GameState) error {
	const scope = "store.upsert"
	if err := g.Validate(); err != nil {
		return err
	}
	data, err := EncodeRound(g)
	if err != nil {
		return errs.E(errs.UpsertFailed, g.ID, scope, "stage", "encode").Wrap(err)
	}
	if err := s.docs.Put(ctx, LiveCollection, g.ID, data); err != nil {
		return errs.E(errs.UpsertFailed, g.ID, scope, "collection", LiveCollection).Wrap(err)
	}
	if err := s.cache.Set(ctx, CacheKey(g.ID), data, s.opts.CacheTTL); err != nil {
		// a stale entry must not outlive a newer durable write
		s.logger.Warn().Err(err).Str("round_id", g.ID).Msg("Cache write failed, invalidating")
		if err := s.cache.Delete(ctx, CacheKey(g.ID)); err != nil {
			return errs.E(errs.UpsertFailed, g.ID, scope, "stage", "cache").Wrap(err)
		}
	}
	return s.index(ctx, g)
}

// index points each seated player at g while it is live and clears the
// pointer once it is over.
func (s *RoundStore) index(ctx context.Context, g *game.GameState) error {
	players, err := g.Players.Players()
	if err != nil {
		return err
	}
	live := g.Status == game.Pending || g.Status == game.Active
	for _, seat := range players {
		if live {
			if err := s.docs.Put(ctx, ActiveCollection, seat.PlayerID, []byte(g.ID)); err != nil {
				return errs.E(errs.UpsertFailed, g.ID, "store.index", "player_id", seat.PlayerID).Wrap(err)
			}
			continue
		}
		if err := s.unindex(ctx, g.ID, seat.PlayerID); err != nil {
			return err
		}
	}
	return nil
}

func (s *RoundStore) unindex(ctx context.Context, roundID, playerID string) error {
	current, ok, err := s.ActiveRound(ctx, playerID)
	if err != nil || !ok || current != roundID {
		return err
	}
	if err := s.docs.Delete(ctx, ActiveCollection, playerID); err != nil && !errors.Is(err, ErrNoDocument) {
		return errs.E(errs.UpsertFailed, roundID, "store.index", "player_id", playerID).Wrap(err)
	}
	return nil
}

// Get returns a live round, from the cache when possible.
func (s *RoundStore) Get(ctx context.Context, id string) (*game.GameState, error) {
	const scope = "store.get"
	key := CacheKey(id)
	if data, ok, err := s.cache.Get(ctx, key); err != nil {
		s.logger.Warn().Err(err).Str("round_id", id).Msg("Cache read failed")
	} else if ok {
		g, err := DecodeRound(data)
		if err == nil {
			return g, nil
		}
		s.logger.Warn().Err(err).Str("round_id", id).Msg("Dropping undecodable cache entry")
		_ = s.cache.Delete(ctx, key)
	}

	data, err := s.docs.Get(ctx, LiveCollection, id)
	if errors.Is(err, ErrNoDocument) {
		return nil, errs.E(errs.RoundNotFound, id, scope)
	}
	if err != nil {
		return nil, errs.E(errs.UpsertFailed, id, scope, "stage", "read").Wrap(err)
	}
	g, err := DecodeRound(data)
	if err != nil {
		return nil, errs.E(errs.UpsertFailed, id, scope, "stage", "decode").Wrap(err)
	}
	if err := s.cache.Set(ctx, key, data, s.opts.CacheTTL); err != nil {
		s.logger.Warn().Err(err).Str("round_id", id).Msg("Cache repopulate failed")
	}
	return g, nil
}

// Delete removes a live round from the cache and the durable store together.
// If the durable delete fails the cache entry is put back.
func (s *RoundStore) Delete(ctx context.Context, id string) error {
	const scope = "store.delete"
	key := CacheKey(id)
	cached, hadCached, err := s.cache.Get(ctx, key)
	if err != nil {
		return errs.E(errs.UpsertFailed, id, scope, "stage", "cache").Wrap(err)
	}
	if err := s.cache.Delete(ctx, key); err != nil {
		return errs.E(errs.UpsertFailed, id, scope, "stage", "cache").Wrap(err)
	}
	err = s.docs.Delete(ctx, LiveCollection, id)
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNoDocument) {
		return errs.E(errs.RoundNotFound, id, scope)
	}
	if hadCached {
		if cerr := s.cache.Set(ctx, key, cached, s.opts.CacheTTL); cerr != nil {
			s.logger.Error().Err(cerr).Str("round_id", id).Msg("Failed to restore cache entry")
		}
	}
	return errs.E(errs.UpsertFailed, id, scope, "collection", LiveCollection).Wrap(err)
}

// Lock takes the mutation lock of round id, waiting at most the configured
// timeout. The returned release func must be called on every path and is
// safe to call more than once.
func (s *RoundStore) Lock(ctx context.Context, id string) (release func(), err error) {
	l := s.ref(id)
	ctx, cancel := context.WithTimeout(ctx, s.opts.LockTimeout)
	defer cancel()
	if err := l.sem.Acquire(ctx, 1); err != nil {
		s.unref(id)
		return nil, errs.E(errs.LockNotAcquired, id, "store.lock", "timeout", s.opts.LockTimeout.String()).Wrap(err)
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			l.sem.Release(1)
			s.unref(id)
		})
	}, nil
}

func (s *RoundStore) ref(id string) *roundLock {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	l, ok := s.locks[id]
	if !ok {
		l = &roundLock{sem: semaphore.NewWeighted(1)}
		s.locks[id] = l
	}
	l.refs++
	return l
}

func (s *RoundStore) unref(id string) {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	if l, ok := s.locks[id]; ok {
		l.refs--
		if l.refs == 0 {
			delete(s.locks, id)
		}
	}
}

// Archive moves a complete round into history, removes the live copy and
// clears its players' live round index.
func (s *RoundStore) Archive(ctx context.Context, g *game.GameState) error {
	const scope = "store.archive"
	if g.Status != game.Complete {
		return errs.E(errs.InvalidCloseout, g.ID, scope, "status", g.Status.String())
	}
	if err := g.Validate(); err != nil {
		return err
	}
	data, err := EncodeRound(g)
	if err != nil {
		return errs.E(errs.UpsertFailed, g.ID, scope, "stage", "encode").Wrap(err)
	}
	if err := s.docs.Put(ctx, HistoryCollection, g.ID, data); err != nil {
		return errs.E(errs.UpsertFailed, g.ID, scope, "collection", HistoryCollection).Wrap(err)
	}
	if err := s.Delete(ctx, g.ID); err != nil && !errors.Is(err, errs.RoundNotFound) {
		return err
	}
	if err := s.index(ctx, g); err != nil {
		return err
	}
	s.logger.Info().Str("round_id", g.ID).Msg("Archived round")
	return nil
}

// History returns an archived round
func (s *RoundStore) History(ctx context.Context, id string) (*game.GameState, error) {
	data, err := s.docs.Get(ctx, HistoryCollection, id)
	if errors.Is(err, ErrNoDocument) {
		return nil, errs.E(errs.RoundNotFound, id, "store.history")
	}
	if err != nil {
		return nil, errs.E(errs.UpsertFailed, id, "store.history", "stage", "read").Wrap(err)
	}
	g, err := DecodeRound(data)
	if err != nil {
		return nil, errs.E(errs.UpsertFailed, id, "store.history", "stage", "decode").Wrap(err)
	}
	return g, nil
}

// ActiveRound returns the id of the player's live round, if any
func (s *RoundStore) ActiveRound(ctx context.Context, playerID string) (string, bool, error) {
	data, err := s.docs.Get(ctx, ActiveCollection, playerID)
	if errors.Is(err, ErrNoDocument) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return string(data), true, nil
}
