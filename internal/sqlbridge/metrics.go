/*
Contortionist - Mail content filtering relay.
Copyright © 2019-2020 Max Mazurov <fox.cpp@disroot.org>, Maddy Mail Server contributors
Copyright © 2026 Contortionist contributors

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

package sqlbridge

import "github.com/prometheus/client_golang/prometheus"

var (
	queuedOps = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "contortionist",
			Subsystem: "sqlbridge",
			Name:      "queue_length",
			Help:      "Amount of operations waiting for the worker",
		},
		[]string{"location"},
	)
	opsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "contortionist",
			Subsystem: "sqlbridge",
			Name:      "operations_total",
			Help:      "Operations executed by the worker",
		},
		[]string{"op", "result"},
	)
	opDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "contortionist",
			Subsystem: "sqlbridge",
			Name:      "operation_duration_seconds",
			Help:      "Time spent by the worker executing an operation",
			Buckets:   []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 5},
		},
		[]string{"op"},
	)
	driverOpens = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "contortionist",
			Subsystem: "sqlbridge",
			Name:      "driver_opens_total",
			Help:      "Driver handles opened by workers",
		},
		[]string{"driver"},
	)
)

func init() {
	prometheus.MustRegister(queuedOps, opsTotal, opDuration, driverOpens)
}
