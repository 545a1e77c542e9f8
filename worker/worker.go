// Copyright (c) 2026 The IceCube Collaboration and its Contributors
//
// Permission is hereby granted, free of charge, to any person obtaining a copy of
// this software and associated documentation files (the "Software"), to deal in
// the Software without restriction, including without limitation the rights to
// use, copy, modify, merge, publish, distribute, sublicense, and/or sell copies
// of the Software, and to permit persons to whom the Software is furnished to do
// so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/WIPACrepo/lta/config"
	"github.com/WIPACrepo/lta/ltadb"
	"github.com/WIPACrepo/lta/metrics"
)

// Worker runs a component's claim loop, reports its liveness, and honors
// the operator's drain and exit policies.
type Worker struct {
	Component Component
	Config    *config.Config
	DB        *ltadb.Client

	// liveness bookkeeping, shared with the heartbeat goroutine
	mutex         sync.Mutex
	lastWorkBegin string
	lastWorkEnd   string
	ok            bool
}

// New creates a worker around the given component.
func New(component Component, conf *config.Config, db *ltadb.Client) *Worker {
	return &Worker{
		Component: component,
		Config:    conf,
		DB:        db,
		ok:        true,
	}
}

// Run executes the work loop until the context is canceled, the operator
// drops a drain semaphore, or the configured exit policy fires.
func (worker *Worker) Run(ctx context.Context) error {
	if worker.Config.HeartbeatSleepSeconds > 0 && worker.DB != nil {
		heartbeatCtx, stopHeartbeat := context.WithCancel(ctx)
		defer stopHeartbeat()
		go worker.heartbeatLoop(heartbeatCtx)
	}

	for {
		if Draining(worker.Component.Type()) {
			slog.Info(fmt.Sprintf("Drain semaphore found; %s is going on vacation", worker.Component.Name()))
			return nil
		}

		processedAny, err := worker.doWork(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if worker.Config.RunOnceAndDie || worker.Config.RunUntilNoWork {
				// batch modes surface the failure to the operator
				return err
			}
			// already logged in doWork; the sleep below paces the retry
		}

		if worker.Config.RunOnceAndDie {
			slog.Info(fmt.Sprintf("Run-once-and-die enabled; %s is going on vacation", worker.Component.Name()))
			return nil
		}
		if worker.Config.RunUntilNoWork {
			// doWork returns at the first empty pop
			if processedAny {
				slog.Info(fmt.Sprintf("%s drained the available work", worker.Component.Name()))
			}
			slog.Info(fmt.Sprintf("No work remains; %s is going on vacation", worker.Component.Name()))
			return nil
		}

		sleep := time.Duration(worker.Config.WorkSleepDurationSeconds) * time.Second
		slog.Debug(fmt.Sprintf("%s sleeping for %s", worker.Component.Name(), sleep))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sleep):
		}
	}
}

// doWork drains the available work, one claim at a time, and reports
// whether any record was processed.
func (worker *Worker) doWork(ctx context.Context) (bool, error) {
	worker.markWorkBegin()
	defer worker.markWorkEnd()

	processedAny := false
	for {
		select {
		case <-ctx.Done():
			return processedAny, ctx.Err()
		default:
		}

		processed, err := worker.Component.DoWorkClaim(ctx)
		metrics.WorkCycles.WithLabelValues(worker.Component.Type(), metrics.OutcomeFor(processed)).Inc()
		if err != nil {
			// failures inside a single record end in quarantine and come
			// back nil; an error here means the cycle itself failed. Run
			// decides whether to retry or exit.
			worker.setOK(false)
			slog.Error(fmt.Sprintf("%s work cycle failed: %s", worker.Component.Name(), err.Error()))
			return processedAny, err
		}
		worker.setOK(true)
		if !processed {
			return processedAny, nil
		}
		processedAny = true
		metrics.RecordsProcessed.WithLabelValues(worker.Component.Type()).Inc()
		metrics.LastWork.WithLabelValues(worker.Component.Type()).SetToCurrentTime()

		if worker.Config.RunOnceAndDie {
			return processedAny, nil
		}
	}
}

// heartbeatLoop reports liveness to the LTA DB status endpoint. Failures
// only log and flip ok=false; the work loop is never interrupted by a sick
// status endpoint.
func (worker *Worker) heartbeatLoop(ctx context.Context) {
	interval := time.Duration(worker.Config.HeartbeatSleepSeconds) * time.Second
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}

		report := worker.statusReport()
		err := worker.DB.PatchStatus(ctx, worker.Component.Type(), report)
		if err != nil {
			worker.setOK(false)
			slog.Warn(fmt.Sprintf("%s couldn't report status: %s", worker.Component.Name(), err.Error()))
		}
	}
}

func (worker *Worker) statusReport() map[string]any {
	worker.mutex.Lock()
	defer worker.mutex.Unlock()
	return map[string]any{
		worker.Component.Name(): map[string]any{
			"timestamp":       ltadb.Now(),
			"last_work_begin": worker.lastWorkBegin,
			"last_work_end":   worker.lastWorkEnd,
			"ok":              worker.ok,
		},
	}
}

func (worker *Worker) markWorkBegin() {
	worker.mutex.Lock()
	defer worker.mutex.Unlock()
	worker.lastWorkBegin = ltadb.Now()
}

func (worker *Worker) markWorkEnd() {
	worker.mutex.Lock()
	defer worker.mutex.Unlock()
	worker.lastWorkEnd = ltadb.Now()
}

func (worker *Worker) setOK(ok bool) {
	worker.mutex.Lock()
	defer worker.mutex.Unlock()
	worker.ok = ok
}
