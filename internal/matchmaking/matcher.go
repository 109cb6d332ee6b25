package matchmaking

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/capricechess/caprice/internal/domain"
	"github.com/capricechess/caprice/internal/obslog"
)

var ErrAlreadySearching = errors.New("already searching")

// Matcher sweeps the queue every two seconds, pairing the best acceptable
// candidates and expiring searches past the wait limit.
type Matcher struct {
	store     *Store
	onMatch   func(a, b domain.SearchEntry)
	onTimeout func(e domain.SearchEntry)
	logger    *zap.Logger
}

func NewMatcher(store *Store, onMatch func(a, b domain.SearchEntry), onTimeout func(e domain.SearchEntry)) *Matcher {
	return &Matcher{
		store:     store,
		onMatch:   onMatch,
		onTimeout: onTimeout,
		logger:    obslog.L().Named("matchmaking"),
	}
}

// Enqueue registers a search and returns the search id that names it until
// it is matched, cancelled, or times out.
func (m *Matcher) Enqueue(ctx context.Context, e domain.SearchEntry) (string, error) {
	searching, err := m.store.Contains(ctx, e.PlayerID)
	if err != nil {
		return "", err
	}
	if searching {
		return "", ErrAlreadySearching
	}
	if e.SearchID == "" {
		e.SearchID = uuid.NewString()
	}
	if e.EnqueuedAt.IsZero() {
		e.EnqueuedAt = time.Now()
	}
	if err := m.store.Add(ctx, e); err != nil {
		return "", err
	}
	return e.SearchID, nil
}

// Cancel invalidates the search named by searchID. Reports whether that
// search was still live.
func (m *Matcher) Cancel(ctx context.Context, playerID, searchID string) (bool, error) {
	return m.store.Remove(ctx, playerID, searchID)
}

// Run sweeps until the context ends.
func (m *Matcher) Run(ctx context.Context) {
	ticker := time.NewTicker(SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sweep(ctx)
		}
	}
}

type candidate struct {
	a, b  domain.SearchEntry
	score float64
}

func (m *Matcher) sweep(ctx context.Context) {
	entries, err := m.store.List(ctx)
	if err != nil {
		m.logger.Warn("queue scan failed", zap.Error(err))
		return
	}
	now := time.Now()

	// Expire first so stale entries never match.
	live := entries[:0]
	for _, e := range entries {
		if now.Sub(e.EnqueuedAt) >= MaxWait {
			if removed, err := m.store.Remove(ctx, e.PlayerID, e.SearchID); err == nil && removed {
				m.onTimeout(e)
			}
			continue
		}
		live = append(live, e)
	}

	var candidates []candidate
	for i := 0; i < len(live); i++ {
		for j := i + 1; j < len(live); j++ {
			if !Acceptable(live[i], live[j], now) {
				continue
			}
			candidates = append(candidates, candidate{
				a:     live[i],
				b:     live[j],
				score: PairScore(live[i], live[j], now),
			})
		}
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].score < candidates[j].score })

	matched := map[string]bool{}
	for _, c := range candidates {
		if matched[c.a.PlayerID] || matched[c.b.PlayerID] {
			continue
		}
		won, err := m.store.ClaimPair(ctx, c.a.PlayerID, c.b.PlayerID)
		if err != nil {
			m.logger.Warn("pair claim failed", zap.Error(err))
			continue
		}
		if !won {
			continue
		}
		matched[c.a.PlayerID] = true
		matched[c.b.PlayerID] = true
		m.logger.Info("matched players",
			zap.String("a", c.a.PlayerID),
			zap.String("b", c.b.PlayerID),
			zap.Float64("score", c.score))
		m.onMatch(c.a, c.b)
	}
}

// SweepOnce runs a single sweep pass outside the ticker, for tests and
// for forcing progress after an enqueue.
func (m *Matcher) SweepOnce(ctx context.Context) { m.sweep(ctx) }
