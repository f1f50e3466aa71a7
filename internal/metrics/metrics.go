// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package metrics holds the process-wide Prometheus metrics for a cleanup
// run: edits applied, global-rule promotions, recoveries, and outer-loop
// passes. The sync.Once-guarded package-level singleton mirrors the
// ingestion subsystem's own metrics registration.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type metricsEngine struct {
	once sync.Once

	editsApplied     *prometheus.CounterVec
	globalPromotions *prometheus.CounterVec
	scopePromotions  *prometheus.CounterVec
	recoveries       *prometheus.CounterVec
	fatalCorruptions prometheus.Counter
	outerPasses      prometheus.Counter
	filesWalked      prometheus.Counter
	filesSkippedGrep prometheus.Counter

	passDuration prometheus.Histogram
}

var m metricsEngine

func (m *metricsEngine) init() {
	m.once.Do(func() {
		m.editsApplied = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "piranha_edits_applied_total",
			Help: "Edits successfully committed, by rule name.",
		}, []string{"rule"})
		m.globalPromotions = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "piranha_global_promotions_total",
			Help: "Rules promoted to the global partition, by rule name.",
		}, []string{"rule"})
		m.scopePromotions = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "piranha_scope_promotions_total",
			Help: "Rules promoted to the method or class partition, by scope and rule name.",
		}, []string{"scope", "rule"})
		m.recoveries = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "piranha_recoveries_total",
			Help: "Local syntax-error recovery attempts, by step taken.",
		}, []string{"step"})
		m.fatalCorruptions = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "piranha_fatal_corruptions_total",
			Help: "Files abandoned after recovery exhausted all steps.",
		})
		m.outerPasses = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "piranha_outer_passes_total",
			Help: "Flag Cleaner outer-loop passes, the first pass included.",
		})
		m.filesWalked = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "piranha_files_walked_total",
			Help: "Files visited by the project walk.",
		})
		m.filesSkippedGrep = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "piranha_files_skipped_grep_total",
			Help: "Files skipped by the grep pre-filter before parsing.",
		})

		buckets := []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60}
		m.passDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "piranha_outer_pass_seconds",
			Help:    "Duration of one Flag Cleaner outer-loop pass.",
			Buckets: buckets,
		})

		prometheus.MustRegister(
			m.editsApplied, m.globalPromotions, m.scopePromotions, m.recoveries,
			m.fatalCorruptions, m.outerPasses, m.filesWalked, m.filesSkippedGrep,
			m.passDuration,
		)
	})
}

// RecordEditApplied counts one committed edit for ruleName.
func RecordEditApplied(ruleName string) {
	m.init()
	m.editsApplied.WithLabelValues(ruleName).Inc()
}

// RecordGlobalPromotion counts one rule's promotion to the global partition.
func RecordGlobalPromotion(ruleName string) {
	m.init()
	m.globalPromotions.WithLabelValues(ruleName).Inc()
}

// RecordScopePromotion counts one rule's promotion to the method or class
// partition.
func RecordScopePromotion(scope, ruleName string) {
	m.init()
	m.scopePromotions.WithLabelValues(scope, ruleName).Inc()
}

// RecordRecovery counts one local syntax-error recovery attempt at step.
func RecordRecovery(step string) {
	m.init()
	m.recoveries.WithLabelValues(step).Inc()
}

// RecordFatalCorruption counts a file abandoned after recovery exhausted
// every step.
func RecordFatalCorruption() {
	m.init()
	m.fatalCorruptions.Inc()
}

// RecordOuterPass counts one Flag Cleaner outer-loop pass (the first pass
// included) and observes its duration in seconds.
func RecordOuterPass(seconds float64) {
	m.init()
	m.outerPasses.Inc()
	m.passDuration.Observe(seconds)
}

// RecordFileWalked counts one file visited by the project walk.
func RecordFileWalked() {
	m.init()
	m.filesWalked.Inc()
}

// RecordFileSkippedGrep adds n to the count of files the grep pre-filter
// excluded before parsing.
func RecordFileSkippedGrep(n int) {
	m.init()
	m.filesSkippedGrep.Add(float64(n))
}
