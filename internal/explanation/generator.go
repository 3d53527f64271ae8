// internal/explanation/generator.go

// Package explanation produces the human-readable "why was this
// recommended" text attached to recommendations. Generated text comes from
// the external generation API when configured, with a rule-based fallback
// that always succeeds.
package explanation

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"shop-recommender/internal/cache"
	"shop-recommender/internal/common/logger"
	"shop-recommender/internal/common/metrics"
	"shop-recommender/internal/models"
	"shop-recommender/internal/recommendation"
	"shop-recommender/internal/store"
)

const (
	historySampleCap = 100
	// batchConcurrency bounds parallel generation calls so a batch cannot
	// flood the external API.
	batchConcurrency = 3
)

// shoppingSummary is a compact view of a user's history used both in
// prompts and in rule-based fallback text.
type shoppingSummary struct {
	TopCategories    []string `json:"topCategories"`
	TopTags          []string `json:"topTags"`
	AveragePrice     float64  `json:"averagePrice"`
	InteractionCount int      `json:"interactionCount"`
}

// Generator builds explanations. client may be nil, in which case every
// explanation is rule-based.
type Generator struct {
	store  store.Store
	cache  cache.Cache
	client *Client
	logger logger.Logger

	historyTTL     time.Duration
	explanationTTL time.Duration
}

func NewGenerator(st store.Store, c cache.Cache, client *Client, log logger.Logger, historyTTL, explanationTTL time.Duration) *Generator {
	return &Generator{
		store:          st,
		cache:          c,
		client:         client,
		logger:         log.WithFields(map[string]interface{}{"component": "explanation"}),
		historyTTL:     historyTTL,
		explanationTTL: explanationTTL,
	}
}

// Available reports whether the external generation API is configured.
func (g *Generator) Available() bool {
	return g.client != nil
}

// Explain returns the explanation for a single (user, product) pair,
// fetching the product itself. A missing product gets a generic line rather
// than an error.
func (g *Generator) Explain(ctx context.Context, userID, productID string, method recommendation.Method, score float64) string {
	product, err := g.store.FindProductByID(ctx, productID)
	if err != nil || product == nil {
		return "This product matches your interests."
	}
	summary := g.summaryFor(ctx, userID)
	return g.explainProduct(ctx, userID, *product, summary, method, score)
}

// ExplainBatch explains every recommendation in the slice, keyed by product
// id. The user's shopping summary is computed once and shared.
func (g *Generator) ExplainBatch(ctx context.Context, userID string, recs []recommendation.Recommendation) map[string]string {
	if len(recs) == 0 {
		return map[string]string{}
	}

	summary := g.summaryFor(ctx, userID)

	var mu sync.Mutex
	explanations := make(map[string]string, len(recs))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(batchConcurrency)
	for _, rec := range recs {
		rec := rec
		group.Go(func() error {
			text := g.explainProduct(groupCtx, userID, rec.Product, summary, rec.Method, rec.Score)
			mu.Lock()
			explanations[rec.ProductID] = text
			mu.Unlock()
			return nil
		})
	}
	group.Wait()

	return explanations
}

func (g *Generator) explainProduct(ctx context.Context, userID string, product models.Product, summary shoppingSummary, method recommendation.Method, score float64) string {
	key := explanationCacheKey(userID, product.ID)
	if cached, ok := g.cache.Get(ctx, key); ok {
		metrics.ExplanationsGenerated.WithLabelValues("cache").Inc()
		return cached
	}

	text, source := g.generate(ctx, product, summary, method, score)
	metrics.ExplanationsGenerated.WithLabelValues(source).Inc()

	g.cache.Set(ctx, key, text, g.explanationTTL)
	return text
}

func (g *Generator) generate(ctx context.Context, product models.Product, summary shoppingSummary, method recommendation.Method, score float64) (text, source string) {
	if g.client != nil {
		generated, err := g.client.Generate(ctx, buildPrompt(product, summary, method))
		if err == nil && generated != "" {
			return generated, "generator"
		}
		if err != nil {
			g.logger.Warn("generation failed, using rule-based text", map[string]interface{}{
				"productId": product.ID,
				"error":     err.Error(),
			})
		}
	}
	return ruleBasedExplanation(product, summary, score), "fallback"
}

// summaryFor returns the cached shopping summary, rebuilding it from the
// user's most recent interactions when absent. A store failure yields an
// empty summary so explanation text still renders.
func (g *Generator) summaryFor(ctx context.Context, userID string) shoppingSummary {
	key := historyCacheKey(userID)
	if raw, ok := g.cache.Get(ctx, key); ok {
		var summary shoppingSummary
		if err := json.Unmarshal([]byte(raw), &summary); err == nil {
			return summary
		}
	}

	summary := g.buildSummary(ctx, userID)

	if raw, err := json.Marshal(summary); err == nil {
		g.cache.Set(ctx, key, string(raw), g.historyTTL)
	}
	return summary
}

func (g *Generator) buildSummary(ctx context.Context, userID string) shoppingSummary {
	summary := shoppingSummary{
		TopCategories: []string{},
		TopTags:       []string{},
	}

	interactions, err := g.store.FindInteractions(ctx, store.InteractionFilter{
		UserID:               userID,
		Limit:                historySampleCap,
		OrderByTimestampDesc: true,
	})
	if err != nil {
		g.logger.Warn("history lookup failed", map[string]interface{}{
			"userId": userID,
			"error":  err.Error(),
		})
		return summary
	}
	if len(interactions) == 0 {
		return summary
	}

	ids := make([]string, 0, len(interactions))
	seen := make(map[string]bool, len(interactions))
	for _, interaction := range interactions {
		if !seen[interaction.ProductID] {
			seen[interaction.ProductID] = true
			ids = append(ids, interaction.ProductID)
		}
	}

	products, err := g.store.FindProducts(ctx, store.ProductFilter{IDsIn: ids})
	if err != nil {
		g.logger.Warn("history product lookup failed", map[string]interface{}{
			"userId": userID,
			"error":  err.Error(),
		})
		return summary
	}

	byID := make(map[string]models.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	categoryCounts := make(map[string]int)
	tagCounts := make(map[string]int)
	var totalPrice float64
	var priced int
	for _, interaction := range interactions {
		product, ok := byID[interaction.ProductID]
		if !ok {
			continue
		}
		categoryCounts[product.Category]++
		for _, tag := range product.Tags {
			tagCounts[tag]++
		}
		totalPrice += product.Price
		priced++
		summary.InteractionCount++
	}

	summary.TopCategories = topKeys(categoryCounts, 3)
	summary.TopTags = topKeys(tagCounts, 10)
	if priced > 0 {
		summary.AveragePrice = totalPrice / float64(priced)
	}
	return summary
}

func topKeys(counts map[string]int, limit int) []string {
	keys := make([]string, 0, len(counts))
	for key := range counts {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] < keys[j]
	})
	if len(keys) > limit {
		keys = keys[:limit]
	}
	return keys
}

func buildPrompt(product models.Product, summary shoppingSummary, method recommendation.Method) string {
	var b strings.Builder
	b.WriteString("Write one short, friendly sentence telling a shopper why this product is recommended for them. ")
	b.WriteString("Do not mention algorithms or data.\n")
	fmt.Fprintf(&b, "Product: %s (%s), priced at $%.2f", product.Name, product.Category, product.Price)
	if len(product.Tags) > 0 {
		fmt.Fprintf(&b, ", tagged %s", strings.Join(product.Tags, ", "))
	}
	b.WriteString(".\n")
	fmt.Fprintf(&b, "Recommendation type: %s.\n", method)
	if summary.InteractionCount > 0 {
		fmt.Fprintf(&b, "Shopper favors %s", strings.Join(summary.TopCategories, ", "))
		if len(summary.TopTags) > 0 {
			fmt.Fprintf(&b, ", likes %s", strings.Join(summary.TopTags, ", "))
		}
		fmt.Fprintf(&b, ", and usually spends around $%.0f.\n", summary.AveragePrice)
	}
	return b.String()
}

// ruleBasedExplanation assembles a sentence from whichever affinity clauses
// apply. It never returns an empty string.
func ruleBasedExplanation(product models.Product, summary shoppingSummary, score float64) string {
	var clauses []string

	for _, category := range summary.TopCategories {
		if category == product.Category {
			clauses = append(clauses, fmt.Sprintf("you've shown strong interest in %s products", product.Category))
			break
		}
	}

	liked := make(map[string]bool, len(summary.TopTags))
	for _, tag := range summary.TopTags {
		liked[tag] = true
	}
	var matchingTags []string
	for _, tag := range product.Tags {
		if liked[tag] && len(matchingTags) < 2 {
			matchingTags = append(matchingTags, tag)
		}
	}
	if len(matchingTags) > 0 {
		clauses = append(clauses, fmt.Sprintf("it features %s that you like", strings.Join(matchingTags, " and ")))
	}

	if summary.AveragePrice > 0 {
		diff := math.Abs(product.Price - summary.AveragePrice)
		if diff <= summary.AveragePrice*0.3 {
			clauses = append(clauses, fmt.Sprintf("it's within your preferred price range ($%.0f)", summary.AveragePrice))
		}
	}

	if score > 80 {
		clauses = append(clauses, fmt.Sprintf("it's a %.0f%% match for your preferences", math.Min(score, 100)))
	}

	if len(clauses) == 0 {
		return fmt.Sprintf("We think you'll love this %s product based on your browsing history!", product.Category)
	}
	return "We recommend this because " + strings.Join(clauses, ", ") + "."
}

func explanationCacheKey(userID, productID string) string {
	return fmt.Sprintf("explanation:%s:%s", userID, productID)
}

func historyCacheKey(userID string) string {
	return fmt.Sprintf("user:%s:history", userID)
}
