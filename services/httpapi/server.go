package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/sirupsen/logrus"

	"pwmcode-go/bus"
	"pwmcode-go/types"
)

// UsageSource reports the resource registry state.
type UsageSource interface {
	Usage() types.ResourceUsage
}

// Server exposes the HAL's outputs over HTTP. Controls travel over the bus
// exactly as any other client's would.
type Server struct {
	Addr string

	HAL    UsageSource
	Conn   *bus.Connection
	Logger *logrus.Logger

	// Domain used when a request carries no ?domain=. Defaults to "io".
	Domain string
	// Timeout bounds each bus request. Defaults to two seconds.
	Timeout time.Duration
}

const (
	defaultDomain  = "io"
	defaultTimeout = 2 * time.Second
)

// Handler builds the router. Run uses it; tests call it directly.
func (s *Server) Handler() http.Handler {
	if s.Logger == nil {
		s.Logger = logrus.New()
	}
	if s.Domain == "" {
		s.Domain = defaultDomain
	}
	if s.Timeout <= 0 {
		s.Timeout = defaultTimeout
	}

	mux := httprouter.New()

	mux.HandlerFunc(http.MethodGet, "/resources", s.getResources)

	mux.HandlerFunc(http.MethodGet, "/outputs/:name", s.getOutput)
	mux.HandlerFunc(http.MethodPut, "/outputs/:name/duty", s.putDuty)
	mux.HandlerFunc(http.MethodPost, "/outputs/:name/ramp", s.postRamp)
	mux.HandlerFunc(http.MethodPost, "/outputs/:name/stop", s.postStop)

	return mux
}

// Run serves until ctx is cancelled or the listener fails.
func (s *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.Addr,
		Handler:           s.Handler(),
		ReadTimeout:       time.Second * 15,
		ReadHeaderTimeout: time.Second * 15,
		IdleTimeout:       time.Second * 30,
		MaxHeaderBytes:    4096,
	}

	listenErrs := make(chan error, 1)
	go func() {
		s.Logger.WithField("addr", s.Addr).Info("serving http")
		listenErrs <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-listenErrs:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	}
}
