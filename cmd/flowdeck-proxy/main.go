// Command flowdeck-proxy exposes the resilient Flowdeck client as a
// small HTTP passthrough, mainly for local debugging and smoke tests.
package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/flowdeck/flowdeck-go/pkg/client"
	"github.com/flowdeck/flowdeck-go/pkg/logging"
)

func main() {
	logger := logging.Setup(logging.Config{
		Level:  logging.LogLevel(getEnv("LOG_LEVEL", "info")),
		Output: os.Stderr,
	})

	baseURL := getEnv("FLOWDECK_BASE_URL", "http://localhost:5678/api/v1")
	apiKey := os.Getenv("FLOWDECK_API_KEY")
	port := getEnv("PORT", "8080")

	if apiKey == "" {
		logger.Fatal().Msg("FLOWDECK_API_KEY is required")
	}

	cfg := client.DefaultConfig(baseURL, apiKey)

	// Response cache is optional; enabled when REDIS_URL is set.
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: redisURL})
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			logger.Fatal().Err(err).Str("redis_url", redisURL).Msg("Failed to connect to Redis")
		}
		cfg.Redis = redisClient
		logger.Info().Str("redis_url", redisURL).Msg("Response cache enabled")
	}

	c, err := client.New(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create Flowdeck client")
	}

	http.HandleFunc("/healthz", healthHandler)
	http.Handle("/metrics", promhttp.Handler())
	http.HandleFunc("/api/", proxyHandler(c))

	addr := ":" + port
	logger.Info().
		Str("addr", addr).
		Str("base_url", baseURL).
		Msg("Starting Flowdeck proxy")

	if err := http.ListenAndServe(addr, nil); err != nil {
		logger.Fatal().Err(err).Msg("Server failed")
	}
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// proxyHandler forwards GETs under /api/ through the resilient client.
func proxyHandler(c *client.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "only GET is supported", http.StatusMethodNotAllowed)
			return
		}

		path := strings.TrimPrefix(r.URL.Path, "/api")

		ctx, cancel := context.WithTimeout(r.Context(), 60*time.Second)
		defer cancel()

		result, err := c.Get(ctx, path, r.URL.Query())
		if err != nil {
			writeError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if result == nil {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		_ = json.NewEncoder(w).Encode(result)
	}
}

// writeError maps a client failure to a proxy response without
// re-deriving classification.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusBadGateway
	switch client.KindOf(err) {
	case client.KindInvalidArgument:
		status = http.StatusBadRequest
	case client.KindPermissionDenied:
		status = http.StatusForbidden
	case client.KindNotFound:
		status = http.StatusNotFound
	case client.KindFailedPrecondition:
		status = http.StatusConflict
	case client.KindResourceExhausted:
		status = http.StatusTooManyRequests
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error": err.Error(),
		"kind":  string(client.KindOf(err)),
	})
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
