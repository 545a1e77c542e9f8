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

// Package metrics exposes pipeline telemetry over Prometheus.
package metrics

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// WorkCycles counts work-claim cycles per component, split by whether
	// a record was actually processed.
	WorkCycles = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lta_work_cycles_total",
		Help: "Number of work-claim cycles, by component and outcome.",
	}, []string{"component", "outcome"})

	// RecordsProcessed counts records a component advanced out of its
	// input status.
	RecordsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lta_records_processed_total",
		Help: "Number of records advanced, by component.",
	}, []string{"component"})

	// Quarantines counts records sent to the quarantine lane.
	Quarantines = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lta_quarantines_total",
		Help: "Number of records quarantined, by component.",
	}, []string{"component"})

	// BundleBytes counts container bytes handled (built, shipped, or
	// verified) by a component.
	BundleBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lta_bundle_bytes_total",
		Help: "Container bytes handled, by component.",
	}, []string{"component"})

	// LastWork records when a component last finished a work cycle.
	LastWork = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "lta_last_work_timestamp_seconds",
		Help: "Unix time a component last finished a work cycle.",
	}, []string{"component"})
)

// OutcomeFor renders a work-cycle outcome label.
func OutcomeFor(processed bool) string {
	if processed {
		return "processed"
	}
	return "idle"
}

// Serve exposes the metrics endpoint on the given port until the context is
// done. Port zero disables telemetry.
func Serve(ctx context.Context, port int) error {
	if port == 0 {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()
	err := server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}
