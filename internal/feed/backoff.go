package feed

import (
	"time"

	"github.com/jpillora/backoff"
)

// newBackoff returns reconnect delays that start at initial, double on each
// consecutive failure and are capped at max. Reset restarts at initial.
func newBackoff(initial, max time.Duration) *backoff.Backoff {
	if initial <= 0 {
		initial = time.Second
	}
	if max < initial {
		max = initial
	}
	return &backoff.Backoff{Min: initial, Max: max, Factor: 2}
}
