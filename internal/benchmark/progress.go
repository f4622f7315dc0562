package benchmark

import (
	"sync/atomic"
	"time"

	"inference-bench/internal/types"
)

// Progress counts requests of a running benchmark. It implements Observer.
type Progress struct {
	mode       types.Mode
	start      time.Time
	inFlight   atomic.Int64
	completed  atomic.Int64
	successful atomic.Int64
	failed     atomic.Int64
	tokens     atomic.Int64
}

// NewProgress creates a new progress tracker
func NewProgress(mode types.Mode) *Progress {
	return &Progress{mode: mode, start: time.Now()}
}

func (p *Progress) RequestStarted(types.Mode) {
	p.inFlight.Add(1)
}

func (p *Progress) RequestFinished(result types.RequestResult) {
	p.inFlight.Add(-1)
	p.completed.Add(1)
	p.tokens.Add(int64(result.TokensGenerated))
	if result.Success {
		p.successful.Add(1)
	} else {
		p.failed.Add(1)
	}
}

// Snapshot returns the current counters
func (p *Progress) Snapshot() types.ProgressSnapshot {
	return types.ProgressSnapshot{
		Mode:       p.mode,
		InFlight:   int(p.inFlight.Load()),
		Completed:  int(p.completed.Load()),
		Successful: int(p.successful.Load()),
		Failed:     int(p.failed.Load()),
		Tokens:     int(p.tokens.Load()),
		Elapsed:    time.Since(p.start),
	}
}
