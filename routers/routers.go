package routers

import (
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"liquid-node/handlers"
)

// RegisterRoutes sets up all the HTTP routes of the node
func RegisterRoutes(r *mux.Router, h *handlers.Handler, gatherer prometheus.Gatherer) {

	// Submits a full block for fork choice
	r.HandleFunc("/blocks", h.ProcessBlock).Methods("POST")

	// Extends the liquid chain with a microblock
	r.HandleFunc("/microblocks", h.ProcessMicroBlock).Methods("POST")

	// Rolls the chain back to a given block
	r.HandleFunc("/rollback", h.RemoveAfter).Methods("POST")

	r.HandleFunc("/state/balances/{address}", h.GetBalance).Methods("GET")

	r.HandleFunc("/history/height", h.GetHeight).Methods("GET")
	r.HandleFunc("/history/last-block", h.GetLastBlock).Methods("GET")
	r.HandleFunc("/history/blocks/{height}", h.GetBlockAt).Methods("GET")

	// Used for inspecting the liquid state
	r.HandleFunc("/debug/liquid", h.GetLiquidChain).Methods("GET")
	r.HandleFunc("/debug/best-block-info", h.GetBestBlockInfo).Methods("GET")

	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods("GET")
}
