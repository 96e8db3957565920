// Package contest implements the live scoring core: the submission state
// machine, the team score aggregate and the contest control toggles. Every
// mutating operation commits one transaction and only then publishes its
// events.
package contest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ZJUSCT/CSArena/internal/pubsub"
	"github.com/ZJUSCT/CSArena/internal/scoring"
	"gorm.io/gorm"
)

type Service struct {
	db        *gorm.DB
	publisher pubsub.Publisher
	penalty   scoring.PenaltyRule
	now       func() time.Time
	locks     keyedMutex
}

type Option func(*Service)

// WithPenaltyRule replaces the default elapsed-minutes penalty rule.
func WithPenaltyRule(rule scoring.PenaltyRule) Option {
	return func(s *Service) { s.penalty = rule }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(db *gorm.DB, publisher pubsub.Publisher, opts ...Option) *Service {
	if publisher == nil {
		publisher = pubsub.Nop{}
	}
	s := &Service{
		db:        db,
		publisher: publisher,
		penalty:   scoring.ElapsedMinutes{},
		now:       time.Now,
		locks:     keyedMutex{locks: make(map[string]*refLock)},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DB exposes the store for read-only handlers.
func (s *Service) DB() *gorm.DB {
	return s.db
}

func (s *Service) publish(ctx context.Context, events ...pubsub.Event) {
	for _, ev := range events {
		s.publisher.Publish(ctx, ev)
	}
}

func teamKey(contestID, teamID string) string {
	return contestID + "/" + teamID
}

// keyedMutex hands out one mutex per key and forgets keys nobody holds.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refLock
}

type refLock struct {
	sync.Mutex
	refs int
}

func (k *keyedMutex) Lock(key string) (unlock func()) {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &refLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

// LockAll acquires several keys in a fixed order so it cannot deadlock
// against callers holding a single key.
func (k *keyedMutex) LockAll(keys []string) (unlock func()) {
	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)

	unlocks := make([]func(), 0, len(sorted))
	for i, key := range sorted {
		if i > 0 && key == sorted[i-1] {
			continue
		}
		unlocks = append(unlocks, k.Lock(key))
	}
	return func() {
		for i := len(unlocks) - 1; i >= 0; i-- {
			unlocks[i]()
		}
	}
}
