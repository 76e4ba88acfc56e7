package usecase

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	settlementsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "transaction_settlements_total",
		Help: "Settlements grouped by terminal result (completed or failed).",
	}, []string{"result"})

	walletOperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wallet_operations_total",
		Help: "Wallet operations grouped by kind.",
	}, []string{"operation"})
)
