package redis

import (
	"context"
	"errors"
	"strconv"
	"time"

	"feedcore/internal/core/errs"
	"feedcore/internal/core/timeline"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const (
	replaceAttempts = 5
	// buildingTTL bounds how long a rebuild that died midway keeps admitting
	// fan-out writes to an owner that is not cached.
	buildingTTL = time.Minute
)

// insertIfCached adds entries to a timeline that is cached or being rebuilt
// and trims it to ARGV[1]. A timeline only reachable through the building
// marker expires with it, so an abandoned rebuild leaves nothing behind.
var insertIfCached = redis.NewScript(`
local ttl = -1
if redis.call("EXISTS", KEYS[2]) == 0 then
	ttl = redis.call("PTTL", KEYS[3])
	if ttl <= 0 then
		return 0
	end
end
for i = 2, #ARGV, 2 do
	redis.call("ZADD", KEYS[1], ARGV[i], ARGV[i + 1])
end
redis.call("ZREMRANGEBYRANK", KEYS[1], 0, -(tonumber(ARGV[1]) + 1))
if ttl > 0 then
	redis.call("PEXPIRE", KEYS[1], ttl)
end
return 1
`)

// TimelineCacheRedis keeps each owner's timeline as a sorted set scored by
// post creation time. Every mutation is atomic, either a script or MULTI/EXEC.
type TimelineCacheRedis struct {
	Client *redis.Client
	bound  int
	ttl    time.Duration
	logger *zap.Logger
}

// NewTimelineCacheRedis builds the cache. bound caps every timeline; ttl, when
// positive, expires rebuilt timelines so idle owners fall out of memory.
func NewTimelineCacheRedis(client *redis.Client, bound int, ttl time.Duration, logger *zap.Logger) *TimelineCacheRedis {
	if bound <= 0 {
		bound = 1000
	}
	return &TimelineCacheRedis{
		Client: client,
		bound:  bound,
		ttl:    ttl,
		logger: logger,
	}
}

func toZ(entries []timeline.Entry) []*redis.Z {
	zs := make([]*redis.Z, len(entries))
	for i, e := range entries {
		zs[i] = &redis.Z{Score: e.Score, Member: e.PostID}
	}
	return zs
}

func fromZ(zs []redis.Z) []timeline.Entry {
	entries := make([]timeline.Entry, 0, len(zs))
	for _, z := range zs {
		id, _ := z.Member.(string)
		entries = append(entries, timeline.Entry{PostID: id, Score: z.Score})
	}
	return entries
}

// trim keeps the bound highest-ranked members. Ascending rank puts the oldest
// first and equal scores rank by id ascending.
func (r *TimelineCacheRedis) trim(ctx context.Context, pipe redis.Pipeliner, key string, bound int) {
	pipe.ZRemRangeByRank(ctx, key, 0, int64(-(bound + 1)))
}

func insertArgs(bound int, entries ...timeline.Entry) []interface{} {
	args := make([]interface{}, 0, 1+2*len(entries))
	args = append(args, bound)
	for _, e := range entries {
		args = append(args, e.Score, e.PostID)
	}
	return args
}

func insertKeys(owner string) []string {
	return []string{timeline.Key(owner), timeline.ReadyKey(owner), timeline.BuildingKey(owner)}
}

func (r *TimelineCacheRedis) Insert(ctx context.Context, owner string, entries ...timeline.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	err := insertIfCached.Run(ctx, r.Client, insertKeys(owner), insertArgs(r.bound, entries...)...).Err()
	return classify(err)
}

// InsertMany adds one entry to several timelines in a single transaction.
func (r *TimelineCacheRedis) InsertMany(ctx context.Context, owners []string, entry timeline.Entry) error {
	if len(owners) == 0 {
		return nil
	}
	args := insertArgs(r.bound, entry)
	_, err := r.Client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, owner := range owners {
			insertIfCached.Eval(ctx, pipe, insertKeys(owner), args...)
		}
		return nil
	})
	if err != nil {
		r.logger.Debug("timeline batch insert failed", zap.String("postID", entry.PostID), zap.Int("owners", len(owners)), zap.Error(err))
	}
	return classify(err)
}

func (r *TimelineCacheRedis) Remove(ctx context.Context, owner, postID string) error {
	return classify(r.Client.ZRem(ctx, timeline.Key(owner), postID).Err())
}

func (r *TimelineCacheRedis) RemoveMany(ctx context.Context, owners []string, postID string) error {
	if len(owners) == 0 {
		return nil
	}
	_, err := r.Client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, owner := range owners {
			pipe.ZRem(ctx, timeline.Key(owner), postID)
		}
		return nil
	})
	return classify(err)
}

// Read returns up to limit entries strictly after cursor. Entries that share
// the cursor's score are read separately so the id tie-break stays exact.
func (r *TimelineCacheRedis) Read(ctx context.Context, owner string, limit int, cursor *timeline.Cursor) ([]timeline.Entry, error) {
	if limit <= 0 {
		return nil, nil
	}
	key := timeline.Key(owner)

	var ready *redis.IntCmd
	var ties, older *redis.ZSliceCmd
	_, err := r.Client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		ready = pipe.Exists(ctx, timeline.ReadyKey(owner))
		if cursor == nil {
			older = pipe.ZRevRangeByScoreWithScores(ctx, key, &redis.ZRangeBy{
				Min: "-inf", Max: "+inf", Count: int64(limit),
			})
			return nil
		}
		score := strconv.FormatFloat(cursor.Score, 'f', -1, 64)
		ties = pipe.ZRevRangeByScoreWithScores(ctx, key, &redis.ZRangeBy{Min: score, Max: score})
		older = pipe.ZRevRangeByScoreWithScores(ctx, key, &redis.ZRangeBy{
			Min: "-inf", Max: "(" + score, Count: int64(limit),
		})
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, classify(err)
	}
	if ready.Val() == 0 {
		return nil, errs.ErrCacheMiss
	}

	var out []timeline.Entry
	if ties != nil {
		for _, e := range fromZ(ties.Val()) {
			if cursor.Admits(e) {
				out = append(out, e)
			}
		}
	}
	out = append(out, fromZ(older.Val())...)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *TimelineCacheRedis) Trim(ctx context.Context, owner string, bound int) error {
	if bound <= 0 {
		bound = r.bound
	}
	return classify(r.Client.ZRemRangeByRank(ctx, timeline.Key(owner), 0, int64(-(bound+1))).Err())
}

// Replace installs a rebuilt timeline. Members scored above cutoff that the
// snapshot does not know about were written by fan-out after the rebuild
// started and are kept.
func (r *TimelineCacheRedis) Replace(ctx context.Context, owner string, entries []timeline.Entry, cutoff float64) error {
	_, err := r.ReplaceFrom(ctx, owner, cutoff, func(context.Context) ([]timeline.Entry, error) {
		return entries, nil
	})
	return err
}

// ReplaceFrom watches the timeline before snapshot reads the durable store, so
// a post fanned out after the snapshot query aborts the install and the
// snapshot is taken again. The building marker lets fan-out reach an owner
// that is not cached yet for as long as the rebuild runs.
func (r *TimelineCacheRedis) ReplaceFrom(ctx context.Context, owner string, cutoff float64, snapshot func(context.Context) ([]timeline.Entry, error)) ([]timeline.Entry, error) {
	key := timeline.Key(owner)
	readyKey := timeline.ReadyKey(owner)
	buildingKey := timeline.BuildingKey(owner)

	if err := r.Client.Set(ctx, buildingKey, "1", buildingTTL).Err(); err != nil {
		return nil, classify(err)
	}

	var entries []timeline.Entry
	var snapErr error
	txf := func(tx *redis.Tx) error {
		entries, snapErr = snapshot(ctx)
		if snapErr != nil {
			return snapErr
		}
		keep := make(map[string]struct{}, len(entries))
		for _, e := range entries {
			keep[e.PostID] = struct{}{}
		}

		old, err := tx.ZRangeByScore(ctx, key, &redis.ZRangeBy{
			Min: "-inf", Max: strconv.FormatFloat(cutoff, 'f', -1, 64),
		}).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		var stale []interface{}
		for _, id := range old {
			if _, ok := keep[id]; !ok {
				stale = append(stale, id)
			}
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if len(stale) > 0 {
				pipe.ZRem(ctx, key, stale...)
			}
			if len(entries) > 0 {
				pipe.ZAdd(ctx, key, toZ(entries)...)
			}
			r.trim(ctx, pipe, key, r.bound)
			pipe.Set(ctx, readyKey, "1", r.ttl)
			if r.ttl > 0 {
				pipe.Expire(ctx, key, r.ttl)
			} else {
				pipe.Persist(ctx, key)
			}
			pipe.Del(ctx, buildingKey)
			return nil
		})
		return err
	}

	var err error
	for i := 0; i < replaceAttempts; i++ {
		err = r.Client.Watch(ctx, txf, key)
		if snapErr != nil {
			return nil, snapErr
		}
		if !errors.Is(err, redis.TxFailedErr) {
			// a computed snapshot is still returned when only the install failed
			return entries, classify(err)
		}
		r.logger.Debug("timeline replace raced a writer, retrying", zap.String("owner", owner), zap.Int("attempt", i+1))
	}
	return entries, classify(err)
}

func (r *TimelineCacheRedis) Invalidate(ctx context.Context, owner string) error {
	return classify(r.Client.Del(ctx, timeline.Key(owner), timeline.ReadyKey(owner)).Err())
}

func (r *TimelineCacheRedis) IsCached(ctx context.Context, owner string) (bool, error) {
	n, err := r.Client.Exists(ctx, timeline.ReadyKey(owner)).Result()
	if err != nil {
		return false, classify(err)
	}
	return n == 1, nil
}
