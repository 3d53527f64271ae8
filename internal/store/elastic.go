// internal/store/elastic.go
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	commonerrors "shop-recommender/internal/common/errors"
	"shop-recommender/internal/models"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// ElasticStore implements Store for deployments that index the catalog and
// interaction log in Elasticsearch. The interactions index denormalizes the
// product creation time as product_created_at for popularity tie-breaks.
type ElasticStore struct {
	client            *elasticsearch.Client
	interactionsIndex string
	productsIndex     string
}

func NewElasticStore(client *elasticsearch.Client, interactionsIndex, productsIndex string) *ElasticStore {
	return &ElasticStore{
		client:            client,
		interactionsIndex: interactionsIndex,
		productsIndex:     productsIndex,
	}
}

type esInteraction struct {
	UserID          string `json:"user_id"`
	ProductID       string `json:"product_id"`
	InteractionType string `json:"interaction_type"`
	Timestamp       string `json:"timestamp"`
}

type esProduct struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Category    string   `json:"category"`
	Price       float64  `json:"price"`
	Tags        []string `json:"tags"`
	ImageURL    string   `json:"image_url"`
	CreatedAt   string   `json:"created_at"`
}

type esSearchResponse struct {
	Hits struct {
		Hits []struct {
			Source json.RawMessage `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
	Aggregations struct {
		ByProduct struct {
			Buckets []struct {
				Key      string `json:"key"`
				DocCount int    `json:"doc_count"`
			} `json:"buckets"`
		} `json:"by_product"`
	} `json:"aggregations"`
}

func (s *ElasticStore) FindInteractions(ctx context.Context, filter InteractionFilter) ([]models.Interaction, error) {
	body := buildInteractionsQuery(filter)

	size := filter.Limit
	if size <= 0 {
		size = 10000
	}

	resp, err := s.search(ctx, s.interactionsIndex, body, size)
	if err != nil {
		return nil, err
	}

	out := make([]models.Interaction, 0, len(resp.Hits.Hits))
	for _, hit := range resp.Hits.Hits {
		var doc esInteraction
		if err := json.Unmarshal(hit.Source, &doc); err != nil {
			return nil, fmt.Errorf("decode interaction document: %w", err)
		}
		in := models.Interaction{
			UserID:          doc.UserID,
			ProductID:       doc.ProductID,
			InteractionType: models.InteractionType(doc.InteractionType),
		}
		in.Timestamp, _ = parseESTime(doc.Timestamp)
		out = append(out, in)
	}
	return out, nil
}

func (s *ElasticStore) CountInteractionsGroupedByProduct(ctx context.Context, limit int) ([]models.ProductInteractionCount, error) {
	body := buildPopularityAggregation(limit)

	resp, err := s.search(ctx, s.interactionsIndex, body, 0)
	if err != nil {
		return nil, err
	}

	out := make([]models.ProductInteractionCount, 0, len(resp.Aggregations.ByProduct.Buckets))
	for _, bucket := range resp.Aggregations.ByProduct.Buckets {
		out = append(out, models.ProductInteractionCount{
			ProductID: bucket.Key,
			Count:     bucket.DocCount,
		})
	}
	return out, nil
}

func (s *ElasticStore) FindProducts(ctx context.Context, filter ProductFilter) ([]models.Product, error) {
	body := buildProductsQuery(filter)

	size := filter.Limit
	if size <= 0 {
		size = 10000
	}

	resp, err := s.search(ctx, s.productsIndex, body, size)
	if err != nil {
		return nil, err
	}

	out := make([]models.Product, 0, len(resp.Hits.Hits))
	for _, hit := range resp.Hits.Hits {
		var doc esProduct
		if err := json.Unmarshal(hit.Source, &doc); err != nil {
			return nil, fmt.Errorf("decode product document: %w", err)
		}
		out = append(out, docToProduct(doc))
	}
	return out, nil
}

func (s *ElasticStore) FindProductByID(ctx context.Context, id string) (*models.Product, error) {
	products, err := s.FindProducts(ctx, ProductFilter{IDsIn: []string{id}, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(products) == 0 {
		return nil, nil
	}
	return &products[0], nil
}

func (s *ElasticStore) search(ctx context.Context, index string, body map[string]interface{}, size int) (*esSearchResponse, error) {
	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode search body: %w", err)
	}

	req := esapi.SearchRequest{
		Index: []string{index},
		Body:  bytes.NewReader(encoded),
	}
	if size > 0 {
		req.Size = &size
	}

	res, err := req.Do(ctx, s.client)
	if err != nil {
		return nil, commonerrors.NewStoreQueryFailedError(index, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, commonerrors.NewStoreQueryFailedError(index, fmt.Errorf("search returned %s", res.Status()))
	}

	var resp esSearchResponse
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	return &resp, nil
}

func buildInteractionsQuery(filter InteractionFilter) map[string]interface{} {
	var filterClauses, mustNotClauses []interface{}

	if filter.UserID != "" {
		filterClauses = append(filterClauses, term("user_id", filter.UserID))
	}
	if filter.ExcludeUserID != "" {
		mustNotClauses = append(mustNotClauses, term("user_id", filter.ExcludeUserID))
	}
	if len(filter.UserIDIn) > 0 {
		filterClauses = append(filterClauses, terms("user_id", filter.UserIDIn))
	}
	if len(filter.ProductIDIn) > 0 {
		filterClauses = append(filterClauses, terms("product_id", filter.ProductIDIn))
	}
	if len(filter.Types) > 0 {
		types := make([]string, len(filter.Types))
		for i, t := range filter.Types {
			types[i] = string(t)
		}
		filterClauses = append(filterClauses, terms("interaction_type", types))
	}

	boolQuery := map[string]interface{}{}
	if len(filterClauses) > 0 {
		boolQuery["filter"] = filterClauses
	}
	if len(mustNotClauses) > 0 {
		boolQuery["must_not"] = mustNotClauses
	}

	body := map[string]interface{}{}
	if len(boolQuery) > 0 {
		body["query"] = map[string]interface{}{"bool": boolQuery}
	} else {
		body["query"] = map[string]interface{}{"match_all": map[string]interface{}{}}
	}

	if filter.OrderByTimestampDesc {
		body["sort"] = []interface{}{
			map[string]interface{}{"timestamp": map[string]interface{}{"order": "desc"}},
		}
	}
	return body
}

func buildPopularityAggregation(limit int) map[string]interface{} {
	return map[string]interface{}{
		"size": 0,
		"aggs": map[string]interface{}{
			"by_product": map[string]interface{}{
				"terms": map[string]interface{}{
					"field": "product_id",
					"size":  limit,
					"order": []interface{}{
						map[string]interface{}{"_count": "desc"},
						map[string]interface{}{"product_created": "desc"},
					},
				},
				"aggs": map[string]interface{}{
					"product_created": map[string]interface{}{
						"max": map[string]interface{}{"field": "product_created_at"},
					},
				},
			},
		},
	}
}

func buildProductsQuery(filter ProductFilter) map[string]interface{} {
	var filterClauses, mustNotClauses []interface{}

	if len(filter.IDsIn) > 0 {
		filterClauses = append(filterClauses, terms("id", filter.IDsIn))
	}
	if len(filter.ExcludeIDsIn) > 0 {
		mustNotClauses = append(mustNotClauses, terms("id", filter.ExcludeIDsIn))
	}

	boolQuery := map[string]interface{}{}
	if len(filterClauses) > 0 {
		boolQuery["filter"] = filterClauses
	}
	if len(mustNotClauses) > 0 {
		boolQuery["must_not"] = mustNotClauses
	}

	body := map[string]interface{}{}
	if len(boolQuery) > 0 {
		body["query"] = map[string]interface{}{"bool": boolQuery}
	} else {
		body["query"] = map[string]interface{}{"match_all": map[string]interface{}{}}
	}

	if filter.OrderByCreatedAtDesc {
		body["sort"] = []interface{}{
			map[string]interface{}{"created_at": map[string]interface{}{"order": "desc"}},
		}
	}
	return body
}

func term(field, value string) map[string]interface{} {
	return map[string]interface{}{
		"term": map[string]interface{}{field: value},
	}
}

func terms(field string, values []string) map[string]interface{} {
	return map[string]interface{}{
		"terms": map[string]interface{}{field: values},
	}
}

func parseESTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}

func docToProduct(doc esProduct) models.Product {
	p := models.Product{
		ID:          doc.ID,
		Name:        doc.Name,
		Description: doc.Description,
		Category:    doc.Category,
		Price:       doc.Price,
		Tags:        doc.Tags,
		ImageURL:    doc.ImageURL,
	}
	p.CreatedAt, _ = parseESTime(doc.CreatedAt)
	return p
}
