package engine

import "time"

// Clock abstracts wall time so sync passes are testable. The engine only
// reads the clock when stamping last_sync_at after a successful pass.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }
