package promclient

import (
	"log"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var OrderBookResetsCounter = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "bitso_orderbook_resets_total",
		Help: "number of completed order book resets",
	},
)

var TradesNotifiedCounter = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "bitso_trades_notified_total",
		Help: "number of trades delivered to listeners",
	},
)

var TradeBufferSizeGauge = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "bitso_trade_buffer_size",
		Help: "current number of trades held in the in-memory buffer",
	},
)

func StartPromClientServer(addr string) {
	reg := prometheus.NewRegistry()
	promHandler := promhttp.HandlerFor(reg, promhttp.HandlerOpts{})

	reg.MustRegister(OrderBookResetsCounter)
	reg.MustRegister(TradesNotifiedCounter)
	reg.MustRegister(TradeBufferSizeGauge)
	reg.MustRegister(collectors.NewGoCollector())

	http.Handle("/metrics", promHandler)
	log.Printf("prometheus server listening at %s", addr)

	if err := http.ListenAndServe(addr, nil); err != nil {
		log.Printf("prometheus server stopped: %v", err)
	}
}
