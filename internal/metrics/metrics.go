// Package metrics exposes process-wide counters and gauges for the fleet.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// BotsRunning tracks how many bots are currently past Stopped.
	BotsRunning = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "cardfarm",
		Name:      "bots_running",
		Help:      "Number of bots currently running.",
	})

	// FarmingRounds counts completed farming rounds per bot.
	FarmingRounds = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cardfarm",
		Name:      "farming_rounds_total",
		Help:      "Completed farming rounds.",
	}, []string{"bot"})

	// CardsGamesFarmed counts games farmed to completion per bot.
	CardsGamesFarmed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cardfarm",
		Name:      "games_farmed_total",
		Help:      "Games farmed until no card drops remained.",
	}, []string{"bot"})

	// Reconnects counts connection losses that triggered a reconnect.
	Reconnects = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cardfarm",
		Name:      "reconnects_total",
		Help:      "Reconnect attempts after a lost connection.",
	}, []string{"bot"})

	// ConfirmationsAccepted counts mobile confirmations accepted per bot.
	ConfirmationsAccepted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cardfarm",
		Name:      "confirmations_accepted_total",
		Help:      "Mobile confirmations accepted.",
	}, []string{"bot"})

	// TradesAccepted counts incoming trade offers accepted per bot.
	TradesAccepted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cardfarm",
		Name:      "trades_accepted_total",
		Help:      "Incoming trade offers accepted.",
	}, []string{"bot"})

	// KeysRedeemed counts key activations by outcome.
	KeysRedeemed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cardfarm",
		Name:      "keys_redeemed_total",
		Help:      "Product key activations by outcome.",
	}, []string{"bot", "result"})
)
