// SPDX-License-Identifier: MPL-2.0

package sipster

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricMessagesDispatched = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "sipster",
		Subsystem: "dispatch",
		Name:      "messages_total",
		Help:      "Inbound messages routed by the dispatcher.",
	})

	metricDialogsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "sipster",
		Subsystem: "dispatch",
		Name:      "dialogs_created_total",
		Help:      "Dialogs created reactively from an unmatched inbound message.",
	})

	metricDispatchErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "sipster",
		Subsystem: "dispatch",
		Name:      "errors_total",
		Help:      "Background dialog creation failures.",
	})

	metricRecvTimeouts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "sipster",
		Subsystem: "agent",
		Name:      "recv_timeouts_total",
		Help:      "Receive operations that exceeded the timeout budget.",
	})
)
