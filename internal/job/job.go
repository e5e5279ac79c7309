// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package job

import (
	"context"
	"sync"
	"time"
)

// Job represents a task that runs at a fixed interval and never overlaps with itself
// (singleton mode).
type Job struct {
	interval time.Duration
	task     func(context.Context)
}

// New creates a new Job with the given interval and task.
func New(interval time.Duration, task func(context.Context)) *Job {
	return &Job{
		interval: interval,
		task:     task,
	}
}

// Start executes the task on every tick until ctx is cancelled. A tick that fires while the
// previous run is still executing is skipped. Start returns once ctx is cancelled and the
// run in progress, if any, has finished.
func (j *Job) Start(ctx context.Context) {
	if j.task == nil || j.interval <= 0 {
		return
	}

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	var wg sync.WaitGroup
	defer wg.Wait()

	// sem is a 1-slot semaphore that guards "is a run in progress?"
	sem := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			select {
			case sem <- struct{}{}:
				wg.Go(func() {
					defer func() { <-sem }()
					j.task(ctx)
				})
			default:
			}
		}
	}
}
