package gateway

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mofa-org/mofa-go/core"
)

// HTTPAdapter fronts a gateway kernel with an HTTP server mux. The kernel
// stays transport-free; the adapter translates requests, drives Handle,
// and maps error kinds onto status codes.
type HTTPAdapter struct {
	gateway *Gateway
	mux     *chi.Mux
}

// NewHTTPAdapter builds the mux: every request funnels through the kernel;
// /metrics serves the prometheus gatherer when one is given.
func NewHTTPAdapter(gw *Gateway, gatherer prometheus.Gatherer) *HTTPAdapter {
	a := &HTTPAdapter{gateway: gw, mux: chi.NewRouter()}
	a.mux.Use(middleware.Recoverer)
	if gatherer != nil {
		a.mux.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
	a.mux.HandleFunc("/*", a.serve)
	return a
}

// ServeHTTP implements http.Handler.
func (a *HTTPAdapter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.mux.ServeHTTP(w, r)
}

func (a *HTTPAdapter) serve(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "unreadable request body", http.StatusBadRequest)
		return
	}

	req := NewGatewayRequest(requestID(r), r.URL.Path, r.Method).WithBody(body)
	for name := range r.Header {
		req.WithHeader(name, r.Header.Get(name))
	}

	resp, err := a.gateway.Handle(r.Context(), req)
	if err != nil {
		http.Error(w, err.Error(), core.KindOf(err).HTTPStatus())
		return
	}

	for name, value := range resp.Headers {
		w.Header().Set(name, value)
	}
	w.Header().Set("x-mofa-backend", resp.BackendID)
	w.WriteHeader(resp.Status)
	_, _ = w.Write(resp.Body)
}

func requestID(r *http.Request) string {
	if id := r.Header.Get("x-request-id"); id != "" {
		return id
	}
	return uuid.NewString()
}
