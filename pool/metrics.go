// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package pool

import (
	"strconv"

	"github.com/luxfi/geth/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/sengulatik66/catalyst/fixedpoint"
)

type metrics struct {
	operations      *prometheus.CounterVec
	escrows         *prometheus.CounterVec
	limitRejections prometheus.Counter
	unitCapacity    prometheus.Gauge
	pendingEscrows  prometheus.Gauge
}

// newMetrics creates the pool's metrics and registers them on reg. A nil
// reg leaves them unregistered. Pools are told apart by chain and address.
func newMetrics(reg prometheus.Registerer, chainID uint64, pool common.Address) *metrics {
	factory := promauto.With(reg)
	labels := prometheus.Labels{
		"chain": strconv.FormatUint(chainID, 10),
		"pool":  pool.Hex(),
	}
	return &metrics{
		operations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   "catalyst",
				Subsystem:   "pool",
				Name:        "operations_total",
				Help:        "Pool operations by kind and outcome",
				ConstLabels: labels,
			},
			[]string{"operation", "status"},
		),
		escrows: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   "catalyst",
				Subsystem:   "pool",
				Name:        "escrows_total",
				Help:        "Escrow lifecycle transitions",
				ConstLabels: labels,
			},
			[]string{"kind", "outcome"},
		),
		limitRejections: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   "catalyst",
			Subsystem:   "pool",
			Name:        "security_limit_rejections_total",
			Help:        "Inbound swaps rejected by the security limit",
			ConstLabels: labels,
		}),
		unitCapacity: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   "catalyst",
			Subsystem:   "pool",
			Name:        "unit_capacity",
			Help:        "Maximum units redeemable by inbound swaps",
			ConstLabels: labels,
		}),
		pendingEscrows: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   "catalyst",
			Subsystem:   "pool",
			Name:        "pending_escrows",
			Help:        "Outbound legs awaiting ack or timeout",
			ConstLabels: labels,
		}),
	}
}

func (m *metrics) observe(st *state) {
	m.unitCapacity.Set(fixedpoint.Float64(st.limit.max))
	m.pendingEscrows.Set(float64(st.pendingEscrows))
}
