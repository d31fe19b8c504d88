package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var bidsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "auction_bids_total",
		Help: "Bid submissions by result.",
	},
	[]string{"result"},
)

var settlementsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "auction_settlements_total",
		Help: "Settlement runs by result.",
	},
	[]string{"result"},
)

var subscribers = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "auction_subscribers",
		Help: "Currently registered notification subscribers.",
	},
)

var channelsOpen = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "auction_channels_open",
		Help: "In-memory bid channels currently held.",
	},
)

var eventsDropped = promauto.NewCounter(
	prometheus.CounterOpts{
		Name: "auction_events_dropped_total",
		Help: "Notifications dropped because a subscriber queue was full.",
	},
)

func BidProcessed(result string) {
	bidsTotal.WithLabelValues(result).Inc()
}

func SettlementFinished(result string) {
	settlementsTotal.WithLabelValues(result).Inc()
}

func SubscriberAdded() {
	subscribers.Inc()
}

func SubscriberRemoved() {
	subscribers.Dec()
}

func EventDropped() {
	eventsDropped.Inc()
}

func ChannelsOpen(n int) {
	channelsOpen.Set(float64(n))
}
