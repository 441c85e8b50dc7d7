/*
 * Copyright 2024 The OmniConfig Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package engine

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	resolvedNodesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "omniconfig",
			Subsystem: "resolver",
			Name:      "resolved_nodes_total",
			Help:      "Total resolution-tree nodes processed by the scheduler, by outcome.",
		},
		[]string{"outcome"},
	)

	resolutionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "omniconfig",
			Subsystem: "resolver",
			Name:      "resolution_duration_seconds",
			Help:      "Wall-clock time to resolve a full configuration tree.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"outcome"},
	)

	factoryFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "omniconfig",
			Subsystem: "resolver",
			Name:      "factory_failures_total",
			Help:      "Factory System coercion failures, by target type.",
		},
		[]string{"type"},
	)
)

func init() {
	prometheus.MustRegister(resolvedNodesTotal, resolutionDuration, factoryFailuresTotal)
}
