package counter

import "context"

// CounterStore keeps eventually consistent follower/following counts.
// Get returns errs.ErrCacheMiss for an absent counter.
type CounterStore interface {
	Get(ctx context.Context, key string) (int64, error)
	Set(ctx context.Context, key string, value int64) error
	// Incr and Decr leave an absent counter absent.
	Incr(ctx context.Context, key string, delta int64) error
	Decr(ctx context.Context, key string, delta int64) error
}

func FollowersKey(userID string) string { return "user:" + userID + ":followers" }

func FollowingKey(userID string) string { return "user:" + userID + ":following" }
