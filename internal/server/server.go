// Package server provides HTTP server initialization and lifecycle management
// for the kinship web API.
package server

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/scrypster/kinship/internal/config"
	"github.com/scrypster/kinship/internal/engine"
	"github.com/scrypster/kinship/web/handlers"
)

// Version is reported by /api/health.
const Version = "1.0.0"

// securityHeadersMiddleware adds security headers to all HTTP responses.
func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-XSS-Protection", "1; mode=block")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

// Start initializes and starts the HTTP server over svc.
// Returns the actual address being listened on (useful for testing with port 0)
// and the WebSocketHub that relays chunk events. The server shuts down when
// ctx is cancelled.
func Start(ctx context.Context, cfg *config.Config, svc *engine.Service) (string, *handlers.WebSocketHub, error) {
	addr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return "", nil, fmt.Errorf("server: listen on %s: %w", addr, err)
	}
	actualAddr := listener.Addr().String()

	wsHub := handlers.NewWebSocketHub(originPatterns(cfg.Server.Host, listener.Addr())...)
	go wsHub.Run()
	detach := wsHub.Attach(svc)

	rateLimiter := handlers.NewRateLimiter(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst)

	mux := http.NewServeMux()
	handlers.NewKinshipHandlers(svc, cfg).Register(mux)

	// Health endpoint for monitoring
	mux.HandleFunc("/api/health", handlers.RequireGET(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"status":"healthy","version":%q,"mode":%q}`, Version, svc.Mode())
	}))

	// WebSocket endpoint (origin validation handles security)
	mux.Handle("/ws", wsHub)

	var handler http.Handler = mux
	if cfg.Server.RateLimitRPS > 0 {
		handler = handlers.RateLimitMiddleware(handler, rateLimiter)
	}
	handler = securityHeadersMiddleware(handler)

	writeTimeout := 30 * time.Second
	if cfg.Server.RequestTimeout+5*time.Second > writeTimeout {
		writeTimeout = cfg.Server.RequestTimeout + 5*time.Second
	}
	server := &http.Server{
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: writeTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Printf("server: serve error: %v", err)
		}
	}()

	// Handle graceful shutdown
	go func() {
		<-ctx.Done()
		detach()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("server: shutdown error: %v", err)
		}
		wsHub.Stop()
	}()

	return actualAddr, wsHub, nil
}

// originPatterns lists the browser origins allowed to open /ws: the
// configured host and loopback names on the bound port.
func originPatterns(host string, bound net.Addr) []string {
	port := ""
	if tcp, ok := bound.(*net.TCPAddr); ok {
		port = strconv.Itoa(tcp.Port)
	}
	hosts := []string{"localhost", "127.0.0.1"}
	if host != "" && host != "0.0.0.0" && host != "localhost" && host != "127.0.0.1" {
		hosts = append(hosts, host)
	}
	patterns := make([]string, 0, len(hosts))
	for _, h := range hosts {
		patterns = append(patterns, net.JoinHostPort(h, port))
	}
	return patterns
}
