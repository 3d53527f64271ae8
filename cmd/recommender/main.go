// cmd/recommender/main.go
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"shop-recommender/internal/cache"
	"shop-recommender/internal/common/config"
	"shop-recommender/internal/common/database"
	commonerrors "shop-recommender/internal/common/errors"
	"shop-recommender/internal/common/logger"
	"shop-recommender/internal/common/observability"
	"shop-recommender/internal/explanation"
	"shop-recommender/internal/recommendation"
	"shop-recommender/internal/store"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		var stdErr *commonerrors.StandardError
		if errors.As(err, &stdErr) && !commonerrors.IsRetryableErrorCode(stdErr.Code) {
			return fmt.Errorf("%s failed with non-retryable error: %w", operationName, err)
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting recommendation engine...",
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Environment),
	)

	obs := observability.New(cfg.App.Name)
	defer obs.Shutdown()

	ctx := context.Background()

	// --- Init the interaction/product store ---
	var productStore store.Store
	switch cfg.Store.Backend {
	case "elasticsearch":
		var esClient *database.ElasticsearchClient
		err = retryWithBackoff(func() error {
			var err error
			esClient, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
			if err != nil {
				return err
			}
			return esClient.Ping()
		}, 15, 2*time.Second, zapLog, "Elasticsearch connection")
		if err != nil {
			zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
		}
		productStore = store.NewElasticStore(esClient.GetClient(), cfg.Store.InteractionsIndex, cfg.Store.ProductsIndex)
		zapLog.Info("Elasticsearch store ready")

	default:
		var pg *database.PostgresClient
		err = retryWithBackoff(func() error {
			var err error
			pg, err = database.NewPostgres(cfg.Database.Postgres)
			if err != nil {
				return err
			}
			return pg.Ping(ctx)
		}, 15, 2*time.Second, zapLog, "PostgreSQL connection")
		if err != nil {
			zapLog.Fatal("postgres failed after retries", zap.Error(err))
		}
		defer pg.Close()
		productStore = store.NewPostgresStore(pg.GetDB())
		zapLog.Info("PostgreSQL store ready")
	}

	// --- Init Redis. Unlike the store, Redis is optional: the cache runs
	// local-only until the distributed tier comes back.
	var redisClient *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		redisClient, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		return redisClient.Ping(ctx)
	}, 3, 2*time.Second, zapLog, "Redis connection")
	if err != nil {
		zapLog.Warn("redis unavailable, running with local cache only", zap.Error(err))
		redisClient = nil
	} else {
		defer redisClient.Close()
		zapLog.Info("Redis connected successfully")
	}

	cacheManager := buildCache(redisClient, cfg, log)
	defer cacheManager.Close()

	// --- Explanation generator. Without a configured API the generator
	// still runs, producing rule-based text only.
	var genaiClient *explanation.Client
	if cfg.APIs.GenAI.BaseURL != "" {
		genaiClient = explanation.NewClient(explanation.ClientConfig{
			BaseURL:     cfg.APIs.GenAI.BaseURL,
			APIKey:      cfg.APIs.GenAI.APIKey,
			Timeout:     time.Duration(cfg.APIs.GenAI.Timeout) * time.Millisecond,
			MaxTokens:   cfg.APIs.GenAI.MaxTokens,
			Temperature: cfg.APIs.GenAI.Temperature,
		}, log)
		zapLog.Info("Generation API client initialized")
	}

	generator := explanation.NewGenerator(
		productStore, cacheManager, genaiClient, log,
		time.Duration(cfg.Recommendation.HistoryTTL)*time.Second,
		time.Duration(cfg.Recommendation.ExplanationTTL)*time.Second,
	)

	engine := recommendation.NewEngine(
		recommendation.NewContentBasedScorer(productStore, cacheManager, log,
			time.Duration(cfg.Recommendation.ProfileTTL)*time.Second),
		recommendation.NewCollaborativeScorer(productStore, log),
		productStore,
		cacheManager,
		generator,
		log,
		cfg.Recommendation.DefaultLimit,
		time.Duration(cfg.Recommendation.ResultTTL)*time.Second,
	)

	// --- HTTP API ---
	mux := http.NewServeMux()
	registerRoutes(mux, engine, generator, obs, log)

	server := &http.Server{
		Addr:    cfg.Server.Address,
		Handler: mux,
	}

	go func() {
		zapLog.Info("HTTP server listening", zap.String("address", cfg.Server.Address))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLog.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, stopping...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error shutting down HTTP server", zap.Error(err))
	}

	zapLog.Info("Recommendation engine stopped gracefully")
}

func buildCache(redisClient *database.RedisClient, cfg *config.Config, log logger.Logger) *cache.Manager {
	opts := []cache.Option{}
	if cfg.Recommendation.LocalSweepPeriod > 0 {
		opts = append(opts, cache.WithSweepPeriod(time.Duration(cfg.Recommendation.LocalSweepPeriod)*time.Second))
	}
	if redisClient == nil {
		return cache.NewManager(nil, log, opts...)
	}
	return cache.NewManager(redisClient.GetClient(), log, opts...)
}

func registerRoutes(mux *http.ServeMux, engine *recommendation.Engine, generator *explanation.Generator, obs *observability.Observability, log logger.Logger) {
	mux.HandleFunc("/api/recommendations", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		userID := r.URL.Query().Get("userId")
		if userID == "" {
			writeError(w, http.StatusBadRequest, "userId is required")
			return
		}
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

		start := time.Now()
		recs := engine.GetRecommendations(r.Context(), userID, limit)
		obs.RecordRequestServed(r.Context(), "recommendations")
		obs.RecordRequestDuration(r.Context(), time.Since(start), "recommendations")
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"userId":          userID,
			"recommendations": recs,
			"count":           len(recs),
		})
	})

	mux.HandleFunc("/api/recommendations/refresh", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		var body struct {
			UserID string `json:"userId"`
			Limit  int    `json:"limit"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.UserID == "" {
			writeError(w, http.StatusBadRequest, "userId is required")
			return
		}

		start := time.Now()
		recs := engine.RefreshRecommendations(r.Context(), body.UserID, body.Limit)
		obs.RecordRequestServed(r.Context(), "refresh")
		obs.RecordRequestDuration(r.Context(), time.Since(start), "refresh")
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"userId":          body.UserID,
			"recommendations": recs,
			"count":           len(recs),
			"refreshed":       true,
		})
	})

	mux.HandleFunc("/api/recommendations/explanation", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		query := r.URL.Query()
		userID := query.Get("userId")
		productID := query.Get("productId")
		if userID == "" || productID == "" {
			writeError(w, http.StatusBadRequest, "userId and productId are required")
			return
		}
		score, _ := strconv.ParseFloat(query.Get("score"), 64)

		text := generator.Explain(r.Context(), userID, productID,
			recommendation.Method(query.Get("method")), score)
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"userId":      userID,
			"productId":   productID,
			"explanation": text,
		})
	})

	mux.HandleFunc("/api/stats", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		userID := r.URL.Query().Get("userId")
		if userID == "" {
			writeError(w, http.StatusBadRequest, "userId is required")
			return
		}

		stats, err := engine.GetUserStats(r.Context(), userID)
		if err != nil {
			log.WithError(err).Error("stats lookup failed", map[string]interface{}{"userId": userID})
			writeStandardError(w, http.StatusInternalServerError, "failed to load user stats", err)
			return
		}
		writeJSON(w, http.StatusOK, stats)
	})

	mux.HandleFunc("/api/cache/clear", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		var body struct {
			UserID string `json:"userId"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.UserID == "" {
			writeError(w, http.StatusBadRequest, "userId is required")
			return
		}

		engine.InvalidateUserCache(r.Context(), body.UserID)
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"userId":  body.UserID,
			"cleared": true,
		})
	})

	mux.HandleFunc("/api/cache/status", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		writeJSON(w, http.StatusOK, engine.Status())
	})

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	mux.Handle("/metrics", promhttp.Handler())
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeStandardError includes the code, category, and retryable flag of a
// coded error in the response body.
func writeStandardError(w http.ResponseWriter, status int, message string, err error) {
	body := map[string]interface{}{"error": message}
	var stdErr *commonerrors.StandardError
	if errors.As(err, &stdErr) {
		body["code"] = stdErr.Code
		body["category"] = commonerrors.GetErrorCategory(stdErr.Code)
		body["retryable"] = stdErr.Retryable
	}
	writeJSON(w, status, body)
}
