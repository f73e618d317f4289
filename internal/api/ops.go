package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/adxyz/adpay/pkg/metric"
)

// NewOpsRouter builds the operational listener: liveness and prometheus
// metrics, kept off the public API port.
func NewOpsRouter(m *metric.Metrics) *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}).Methods(http.MethodGet)

	router.Handle("/metrics", promhttp.HandlerFor(
		m.GetGatherer(),
		promhttp.HandlerOpts{},
	)).Methods(http.MethodGet)

	return router
}
