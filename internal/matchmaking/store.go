package matchmaking

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/capricechess/caprice/internal/domain"
)

const (
	keySearching = "matchmaking:searching"
	ttlSearching = 2 * time.Minute
)

// Store holds the search queue in a redis hash keyed by player id.
type Store struct{ rdb *redis.Client }

func NewStore(rdb *redis.Client) *Store { return &Store{rdb: rdb} }

func (s *Store) Add(ctx context.Context, e domain.SearchEntry) error {
	raw, err := json.Marshal(e)
	if err != nil {
		return err
	}
	if err := s.rdb.HSet(ctx, keySearching, e.PlayerID, raw).Err(); err != nil {
		return err
	}
	return s.rdb.Expire(ctx, keySearching, ttlSearching).Err()
}

// removeScript deletes the entry only while it still carries the given
// search id, so a cancel aimed at an expired search cannot kill a newer one.
var removeScript = redis.NewScript(`
local raw = redis.call("HGET", KEYS[1], ARGV[1])
if not raw then
	return 0
end
local e = cjson.decode(raw)
if e.search_id ~= ARGV[2] then
	return 0
end
redis.call("HDEL", KEYS[1], ARGV[1])
return 1`)

// Remove invalidates the player's search by id. A stale or unknown search
// id is a no-op.
func (s *Store) Remove(ctx context.Context, playerID, searchID string) (bool, error) {
	n, err := removeScript.Run(ctx, s.rdb, []string{keySearching}, playerID, searchID).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *Store) Contains(ctx context.Context, playerID string) (bool, error) {
	return s.rdb.HExists(ctx, keySearching, playerID).Result()
}

func (s *Store) List(ctx context.Context) ([]domain.SearchEntry, error) {
	raws, err := s.rdb.HGetAll(ctx, keySearching).Result()
	if err != nil {
		return nil, err
	}
	out := make([]domain.SearchEntry, 0, len(raws))
	for _, raw := range raws {
		var e domain.SearchEntry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// claimScript removes both entries only when both are still searching, so
// a cancel racing the sweep cannot leave a half-claimed pair.
var claimScript = redis.NewScript(`
if redis.call("HEXISTS", KEYS[1], ARGV[1]) == 1 and redis.call("HEXISTS", KEYS[1], ARGV[2]) == 1 then
	redis.call("HDEL", KEYS[1], ARGV[1], ARGV[2])
	return 1
end
return 0`)

// ClaimPair atomically removes both entries, reporting whether this caller
// won the pair.
func (s *Store) ClaimPair(ctx context.Context, a, b string) (bool, error) {
	n, err := claimScript.Run(ctx, s.rdb, []string{keySearching}, a, b).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
