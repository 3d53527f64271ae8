// internal/recommendation/hybrid.go
package recommendation

import (
	"context"
	"encoding/json"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/google/uuid"

	"shop-recommender/internal/cache"
	commonerrors "shop-recommender/internal/common/errors"
	"shop-recommender/internal/common/logger"
	"shop-recommender/internal/common/metrics"
	"shop-recommender/internal/store"
)

const (
	contentWeight  = 0.6
	collabWeight   = 0.4
	backfillWeight = 0.3
	maxScore       = 100
)

// Explainer attaches human-readable reasons to ranked recommendations. The
// explanation package provides the production implementation; the engine
// only needs this slice of it.
type Explainer interface {
	ExplainBatch(ctx context.Context, userID string, recs []Recommendation) map[string]string
	Available() bool
}

// Engine blends the content-based and collaborative scorers into a single
// ranked, hydrated recommendation list. It never returns an error to the
// caller: every failure path degrades to the popularity fallback.
type Engine struct {
	content       *ContentBasedScorer
	collaborative *CollaborativeScorer
	store         store.Store
	cache         cache.Cache
	explainer     Explainer // nil when explanations are disabled
	logger        logger.Logger

	defaultLimit int
	resultTTL    time.Duration
}

func NewEngine(
	content *ContentBasedScorer,
	collaborative *CollaborativeScorer,
	st store.Store,
	c cache.Cache,
	explainer Explainer,
	log logger.Logger,
	defaultLimit int,
	resultTTL time.Duration,
) *Engine {
	return &Engine{
		content:       content,
		collaborative: collaborative,
		store:         st,
		cache:         c,
		explainer:     explainer,
		logger:        log.WithFields(map[string]interface{}{"component": "engine"}),
		defaultLimit:  defaultLimit,
		resultTTL:     resultTTL,
	}
}

// GetRecommendations returns up to limit ranked recommendations for the
// user. limit <= 0 falls back to the configured default.
func (e *Engine) GetRecommendations(ctx context.Context, userID string, limit int) []Recommendation {
	if limit <= 0 {
		limit = e.defaultLimit
	}

	start := time.Now()
	log := e.logger.WithFields(map[string]interface{}{
		"requestId": uuid.New().String(),
		"userId":    userID,
		"limit":     limit,
	})

	if cached, ok := e.cachedResult(ctx, userID, limit); ok {
		log.Debug("served from result cache", nil)
		e.observe("cached", start)
		return cached
	}

	// Both scorers tolerate failure internally, so the group never errors;
	// it only bounds and joins the concurrent fetches.
	var contentScored, collabScored []ScoredProduct
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		contentScored = e.content.Recommend(groupCtx, userID, limit*2)
		return nil
	})
	group.Go(func() error {
		collabScored = e.collaborative.Recommend(groupCtx, userID, limit*2)
		return nil
	})
	group.Wait()

	blended := blend(contentScored, collabScored)

	if len(blended) < limit {
		backfilled, err := e.backfill(ctx, blended, limit)
		if err != nil {
			log.WithError(commonerrors.NewRecommendationFailedError("backfill", err)).
				Warn("popularity backfill failed", nil)
			return e.fallback(ctx, userID, limit, start, log)
		}
		blended = backfilled
	}

	ranked := rank(blended, limit)

	recs, err := e.hydrate(ctx, ranked)
	if err != nil {
		log.WithError(commonerrors.NewRecommendationFailedError("hydrate", err)).
			Warn("product hydration failed", nil)
		return e.fallback(ctx, userID, limit, start, log)
	}

	if e.explainer != nil {
		attachExplanations(e.explainer.ExplainBatch(ctx, userID, recs), recs)
	}

	e.cacheResult(ctx, userID, limit, recs)

	log.Info("recommendations blended", map[string]interface{}{
		"count":         len(recs),
		"contentScored": len(contentScored),
		"collabScored":  len(collabScored),
	})
	e.observe("blended", start)
	return recs
}

// RefreshRecommendations drops every cached artifact for the user and
// recomputes from live data.
func (e *Engine) RefreshRecommendations(ctx context.Context, userID string, limit int) []Recommendation {
	e.cache.ClearUser(ctx, userID)
	return e.GetRecommendations(ctx, userID, limit)
}

// InvalidateUserCache clears cached recommendations, profiles, and
// explanations for the user without recomputing.
func (e *Engine) InvalidateUserCache(ctx context.Context, userID string) {
	e.cache.ClearUser(ctx, userID)
}

// EngineStatus reports the health of the engine's dependencies.
type EngineStatus struct {
	Cache              cache.Status `json:"cache"`
	GeneratorAvailable bool         `json:"generatorAvailable"`
}

func (e *Engine) Status() EngineStatus {
	status := EngineStatus{Cache: e.cache.Status()}
	if e.explainer != nil {
		status.GeneratorAvailable = e.explainer.Available()
	}
	return status
}

type blendedProduct struct {
	ScoredProduct
	Method Method
}

// blend merges the two scorer outputs: products both scorers surface get the
// weighted sum and the hybrid method tag, single-source products keep their
// scorer's tag.
func blend(content, collab []ScoredProduct) []blendedProduct {
	merged := make(map[string]*blendedProduct, len(content)+len(collab))
	order := make([]string, 0, len(content)+len(collab))

	for _, sp := range content {
		merged[sp.ProductID] = &blendedProduct{
			ScoredProduct: ScoredProduct{ProductID: sp.ProductID, Score: sp.Score * contentWeight},
			Method:        MethodContentBased,
		}
		order = append(order, sp.ProductID)
	}

	for _, sp := range collab {
		if existing, ok := merged[sp.ProductID]; ok {
			existing.Score += sp.Score * collabWeight
			existing.Method = MethodHybrid
			continue
		}
		merged[sp.ProductID] = &blendedProduct{
			ScoredProduct: ScoredProduct{ProductID: sp.ProductID, Score: sp.Score * collabWeight},
			Method:        MethodCollaborative,
		}
		order = append(order, sp.ProductID)
	}

	blended := make([]blendedProduct, 0, len(order))
	for _, id := range order {
		blended = append(blended, *merged[id])
	}
	return blended
}

// backfill appends down-weighted popular products until the list can satisfy
// the limit, skipping products already present.
func (e *Engine) backfill(ctx context.Context, blended []blendedProduct, limit int) ([]blendedProduct, error) {
	counts, err := e.store.CountInteractionsGroupedByProduct(ctx, limit*2)
	if err != nil {
		return nil, err
	}

	present := make(map[string]bool, len(blended))
	for _, bp := range blended {
		present[bp.ProductID] = true
	}

	for i, c := range counts {
		if len(blended) >= limit {
			break
		}
		if present[c.ProductID] {
			continue
		}
		present[c.ProductID] = true
		blended = append(blended, blendedProduct{
			ScoredProduct: ScoredProduct{
				ProductID: c.ProductID,
				Score:     float64(100-i*3) * backfillWeight,
			},
			Method: MethodPopular,
		})
	}
	return blended, nil
}

// rank orders by raw score descending with a deterministic product-id
// tiebreak, truncates to the limit, and caps scores last so that ties
// introduced by the cap cannot reorder the list.
func rank(blended []blendedProduct, limit int) []blendedProduct {
	scored := make([]ScoredProduct, len(blended))
	byID := make(map[string]blendedProduct, len(blended))
	for i, bp := range blended {
		scored[i] = bp.ScoredProduct
		byID[bp.ProductID] = bp
	}

	sortScored(scored)
	if len(scored) > limit {
		scored = scored[:limit]
	}

	ranked := make([]blendedProduct, len(scored))
	for i, sp := range scored {
		bp := byID[sp.ProductID]
		if bp.Score > maxScore {
			bp.Score = maxScore
		}
		ranked[i] = bp
	}
	return ranked
}

// hydrate attaches product details, silently dropping ids whose products no
// longer exist.
func (e *Engine) hydrate(ctx context.Context, ranked []blendedProduct) ([]Recommendation, error) {
	if len(ranked) == 0 {
		return []Recommendation{}, nil
	}

	ids := make([]string, len(ranked))
	for i, bp := range ranked {
		ids[i] = bp.ProductID
	}

	products, err := e.store.FindProducts(ctx, store.ProductFilter{IDsIn: ids})
	if err != nil {
		return nil, err
	}

	byID := make(map[string]int, len(products))
	for i, p := range products {
		byID[p.ID] = i
	}

	recs := make([]Recommendation, 0, len(ranked))
	for _, bp := range ranked {
		idx, ok := byID[bp.ProductID]
		if !ok {
			continue
		}
		recs = append(recs, Recommendation{
			ProductID: bp.ProductID,
			Score:     bp.Score,
			Method:    bp.Method,
			Product:   products[idx],
		})
	}
	return recs, nil
}

// fallback serves the newest catalog entries when blending cannot complete.
// Fallback results are intentionally not cached so a recovered store serves
// real recommendations on the next request.
func (e *Engine) fallback(ctx context.Context, userID string, limit int, start time.Time, log logger.Logger) []Recommendation {
	products, err := e.store.FindProducts(ctx, store.ProductFilter{
		Limit:                limit,
		OrderByCreatedAtDesc: true,
	})
	if err != nil {
		log.Error("fallback product lookup failed", map[string]interface{}{"error": err.Error()})
		e.observe("fallback", start)
		return []Recommendation{}
	}

	recs := make([]Recommendation, 0, len(products))
	for i, p := range products {
		recs = append(recs, Recommendation{
			ProductID: p.ID,
			Score:     float64(100 - i*5),
			Method:    MethodPopular,
			Product:   p,
		})
	}

	if e.explainer != nil {
		attachExplanations(e.explainer.ExplainBatch(ctx, userID, recs), recs)
	}

	log.Info("served fallback recommendations", map[string]interface{}{"count": len(recs)})
	e.observe("fallback", start)
	return recs
}

func attachExplanations(explanations map[string]string, recs []Recommendation) {
	for i := range recs {
		if text, ok := explanations[recs[i].ProductID]; ok {
			recs[i].Explanation = text
		}
	}
}

func (e *Engine) cachedResult(ctx context.Context, userID string, limit int) ([]Recommendation, bool) {
	raw, ok := e.cache.Get(ctx, resultCacheKey(userID, limit))
	if !ok {
		return nil, false
	}
	var recs []Recommendation
	if err := json.Unmarshal([]byte(raw), &recs); err != nil {
		return nil, false
	}
	return recs, true
}

func (e *Engine) cacheResult(ctx context.Context, userID string, limit int, recs []Recommendation) {
	raw, err := json.Marshal(recs)
	if err != nil {
		return
	}
	e.cache.Set(ctx, resultCacheKey(userID, limit), string(raw), e.resultTTL)
}

func (e *Engine) observe(outcome string, start time.Time) {
	metrics.RecommendationRequests.WithLabelValues(outcome).Inc()
	metrics.RecommendationDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
}
