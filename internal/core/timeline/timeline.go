// Package timeline holds the cached feed entry types and their ordering rules.
//
// A timeline is a bounded sequence of post references per owner, ordered by
// score (post creation time in unix milliseconds) descending, ties broken by
// post id descending.
package timeline

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"feedcore/internal/core/errs"
)

// Entry references a post inside an owner's timeline.
type Entry struct {
	PostID string  `json:"post_id"`
	Score  float64 `json:"score"`
}

// ScoreOf converts a post creation time to its timeline score.
func ScoreOf(t time.Time) float64 {
	return float64(t.UnixMilli())
}

// Before reports whether a sorts ahead of b in a timeline.
func Before(a, b Entry) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.PostID > b.PostID
}

// Sort orders entries newest first.
func Sort(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool { return Before(entries[i], entries[j]) })
}

// Bound sorts entries, drops duplicates and keeps at most n of them.
func Bound(entries []Entry, n int) []Entry {
	Sort(entries)
	out := entries[:0]
	for i, e := range entries {
		if i > 0 && e.PostID == entries[i-1].PostID {
			continue
		}
		out = append(out, e)
	}
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// Cursor marks the last entry a reader has seen.
type Cursor struct {
	Score  float64
	PostID string
}

// CursorOf returns the cursor pointing at e.
func CursorOf(e Entry) *Cursor {
	return &Cursor{Score: e.Score, PostID: e.PostID}
}

// Admits reports whether e sorts strictly after the cursor.
func (c *Cursor) Admits(e Entry) bool {
	if c == nil {
		return true
	}
	return Before(Entry{PostID: c.PostID, Score: c.Score}, e)
}

// String encodes the cursor as "<score>:<post id>".
func (c *Cursor) String() string {
	return strconv.FormatInt(int64(c.Score), 10) + ":" + c.PostID
}

// ParseCursor decodes a cursor produced by String. An empty string yields nil.
func ParseCursor(s string) (*Cursor, error) {
	if s == "" {
		return nil, nil
	}
	scoreStr, id, ok := strings.Cut(s, ":")
	if !ok || id == "" {
		return nil, errs.Validation("malformed cursor %q", s)
	}
	score, err := strconv.ParseInt(scoreStr, 10, 64)
	if err != nil {
		return nil, errs.Validation("malformed cursor score %q", scoreStr)
	}
	return &Cursor{Score: float64(score), PostID: id}, nil
}

// Page returns up to limit entries from a sorted sequence that come after cursor.
func Page(sorted []Entry, limit int, cursor *Cursor) []Entry {
	out := make([]Entry, 0, limit)
	for _, e := range sorted {
		if !cursor.Admits(e) {
			continue
		}
		out = append(out, e)
		if len(out) == limit {
			break
		}
	}
	return out
}

// Key returns the sorted-set key of an owner's timeline.
func Key(owner string) string {
	return fmt.Sprintf("timeline:%s", owner)
}

// ReadyKey returns the marker key that says an owner's timeline is cached.
func ReadyKey(owner string) string {
	return fmt.Sprintf("timeline:%s:ready", owner)
}

// BuildingKey returns the marker key held while an owner's timeline is being
// rebuilt. Fan-out keeps writing to the owner while it exists.
func BuildingKey(owner string) string {
	return fmt.Sprintf("timeline:%s:building", owner)
}
