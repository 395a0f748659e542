// Package gateway fronts the auth, product and orders services with a
// single HTTP entrypoint. Requests are forwarded with a reverse proxy;
// each upstream sits behind its own circuit breaker so a dead service
// fails fast instead of tying up gateway connections.
package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sony/gobreaker/v2"
)

type Config struct {
	AuthServiceURL    string
	ProductServiceURL string
	OrdersServiceURL  string
	RequestTimeout    time.Duration
}

// errUpstreamServer marks a 5xx upstream response so the breaker counts
// it as a failure while the response still reaches the client.
var errUpstreamServer = errors.New("upstream server error")

type breakerTransport struct {
	base http.RoundTripper
	cb   *gobreaker.CircuitBreaker[*http.Response]
}

func newBreakerTransport(name string) *breakerTransport {
	cb := gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:    name,
		Timeout: 15 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Printf("circuit breaker %s: %s -> %s", name, from, to)
		},
	})
	return &breakerTransport{base: http.DefaultTransport, cb: cb}
}

func (t *breakerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.cb.Execute(func() (*http.Response, error) {
		resp, err := t.base.RoundTrip(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			return resp, errUpstreamServer
		}
		return resp, nil
	})
	if errors.Is(err, errUpstreamServer) {
		// Pass the 5xx through; the breaker has already counted it.
		return resp, nil
	}
	return resp, err
}

func newProxy(target, name string) (*httputil.ReverseProxy, error) {
	u, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("invalid upstream url %q: %w", target, err)
	}

	proxy := httputil.NewSingleHostReverseProxy(u)
	proxy.Transport = newBreakerTransport(name)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			respondJSON(w, http.StatusServiceUnavailable, map[string]string{"message": name + " temporarily unavailable"})
			return
		}
		log.Printf("proxy error for %s: %v", name, err)
		respondJSON(w, http.StatusBadGateway, map[string]string{"message": name + " unreachable"})
	}
	return proxy, nil
}

// NewRouter wires the gateway routes. Path prefixes are stripped before
// forwarding, so /products/buy reaches the product service as
// /products/buy while /auth/login reaches the auth service as /login.
func NewRouter(cfg Config) (chi.Router, error) {
	authProxy, err := newProxy(cfg.AuthServiceURL, "auth-service")
	if err != nil {
		return nil, err
	}
	productProxy, err := newProxy(cfg.ProductServiceURL, "product-service")
	if err != nil {
		return nil, err
	}
	ordersProxy, err := newProxy(cfg.OrdersServiceURL, "orders-service")
	if err != nil {
		return nil, err
	}

	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.Timeout(cfg.RequestTimeout))
	r.Use(middleware.Compress(5))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Mount("/auth", http.StripPrefix("/auth", authProxy))
	r.Mount("/products", productProxy)
	r.Mount("/orders", ordersProxy)

	return r, nil
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}
