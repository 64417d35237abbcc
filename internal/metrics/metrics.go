package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Nonce-challenge authentication.
	AuthChallengesIssued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "backend_auth_challenges_issued_total",
		Help: "Total number of login challenges issued",
	})

	AuthVerifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backend_auth_verifications_total",
			Help: "Total number of challenge verification attempts",
		},
		[]string{"result"},
	)

	// Transaction engine.
	TransactionsBroadcast = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backend_transactions_broadcast_total",
			Help: "Total number of signed transactions broadcast to the chain",
		},
		[]string{"kind"},
	)

	TransfersPrepared = promauto.NewCounter(prometheus.CounterOpts{
		Name: "backend_transfers_prepared_total",
		Help: "Total number of unsigned transfer intents built",
	})

	// Chain RPC facade.
	ChainRPCErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backend_chain_rpc_errors_total",
			Help: "Total number of chain RPC calls that failed after retries",
		},
		[]string{"op"},
	)
)
