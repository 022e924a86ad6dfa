// Package fanout describes the result of pushing a post into follower timelines.
package fanout

type Mode string

const (
	// ModeSync means the engine wrote every reachable timeline before returning.
	ModeSync Mode = "sync"
	// ModeAsync means the work was handed to a fan-out task.
	ModeAsync Mode = "async"
)

// Outcome reports how a Publish or Retract went. Degraded is set when part of
// the cache work was deferred or failed; the durable store is unaffected and
// reconciliation repairs whatever the deferred task cannot.
type Outcome struct {
	Mode      Mode   `json:"mode"`
	Delivered int    `json:"delivered"`
	Deferred  int    `json:"deferred"`
	TaskID    string `json:"task_id,omitempty"`
	Degraded  bool   `json:"degraded"`
}
