// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package metrics provides Prometheus metrics for the projchat session.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/jeranaias/projchat/internal/model"
)

// Refresh and send outcomes used as label values.
const (
	ResultInstalled = "installed"
	ResultStale     = "stale"
	ResultError     = "error"

	ResultDelivered = "delivered"
	ResultFailed    = "failed"
	ResultNotReady  = "not_ready"
	ResultBusy      = "busy"
)

var (
	// Session metrics
	projectSwitchesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "projchat_project_switches_total",
			Help: "Total number of project switches",
		},
	)

	// File tree metrics
	treeRefreshesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "projchat_tree_refreshes_total",
			Help: "Total number of file tree refreshes by outcome",
		},
		[]string{"result"},
	)

	treeRefreshDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "projchat_tree_refresh_duration_seconds",
			Help:    "Time to fetch a project's file tree",
			Buckets: prometheus.DefBuckets,
		},
	)

	treeNodes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "projchat_tree_nodes",
			Help: "Number of files and directories in the installed tree",
		},
	)

	// Conversation metrics
	messagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "projchat_messages_total",
			Help: "Total number of send attempts by outcome",
		},
		[]string{"result"},
	)

	sendDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "projchat_send_duration_seconds",
			Help:    "Round trip time of a conversation turn",
			Buckets: []float64{.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
	)

	// Assistant process metrics
	assistantState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "projchat_assistant_state",
			Help: "1 for the assistant process's current lifecycle state, 0 otherwise",
		},
		[]string{"state"},
	)
)

var allStates = []model.ProcessState{
	model.StateUninitialized,
	model.StateStarting,
	model.StateReady,
	model.StateFailed,
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordProjectSwitch counts a project switch.
func RecordProjectSwitch() {
	projectSwitchesTotal.Inc()
}

// RecordRefresh records a tree refresh outcome. nodes is only used when the
// tree was installed.
func RecordRefresh(result string, duration time.Duration, nodes int) {
	treeRefreshesTotal.WithLabelValues(result).Inc()
	treeRefreshDuration.Observe(duration.Seconds())
	if result == ResultInstalled {
		treeNodes.Set(float64(nodes))
	}
}

// RecordSend records a send outcome.
func RecordSend(result string, duration time.Duration) {
	messagesTotal.WithLabelValues(result).Inc()
	if result == ResultDelivered || result == ResultFailed {
		sendDuration.Observe(duration.Seconds())
	}
}

// SetAssistantState marks state as the current assistant state.
func SetAssistantState(state model.ProcessState) {
	for _, s := range allStates {
		v := 0.0
		if s == state {
			v = 1
		}
		assistantState.WithLabelValues(string(s)).Set(v)
	}
}

// Serve exposes /metrics on addr until ctx is done.
func Serve(ctx context.Context, addr string, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("serving metrics", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
