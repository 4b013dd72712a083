package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

var (
	Sessions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "yard_sessions_total",
		Help: "Game sessions started.",
	}, []string{"port"})

	Rounds = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "yard_rounds_total",
		Help: "Rounds prepared by round moderators.",
	}, []string{"port"})

	Rejected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "yard_connections_rejected_total",
		Help: "Connections closed before joining a game.",
	}, []string{"port", "reason"})

	Players = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "yard_players_active",
		Help: "Players taking part in the current round.",
	}, []string{"port"})
)

func init() {
	prometheus.MustRegister(Sessions, Rounds, Rejected, Players)
}

// Port formats a port number as a label value.
func Port(port int) string {
	return strconv.Itoa(port)
}

// noStore keeps proxies and browsers from caching scrapes.
func noStore(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		h.ServeHTTP(w, r)
	})
}

// Serve exposes the default registry on address until ctx is done.
func Serve(ctx context.Context, address string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", noStore(promhttp.Handler()))

	server := &http.Server{
		Addr:              address,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdown)
	}()

	log.Info().Str("address", address).Msg("serving metrics")
	err := server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
