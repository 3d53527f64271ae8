// internal/store/postgres.go
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	commonerrors "shop-recommender/internal/common/errors"
	"shop-recommender/internal/models"

	"github.com/lib/pq"
)

// PostgresStore implements Store over the shop's relational schema.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) FindInteractions(ctx context.Context, filter InteractionFilter) ([]models.Interaction, error) {
	query := strings.Builder{}
	query.WriteString(`SELECT user_id, product_id, interaction_type, created_at FROM user_interactions`)

	var (
		conds []string
		args  []interface{}
	)
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.UserID != "" {
		conds = append(conds, "user_id = "+arg(filter.UserID))
	}
	if filter.ExcludeUserID != "" {
		conds = append(conds, "user_id <> "+arg(filter.ExcludeUserID))
	}
	if len(filter.UserIDIn) > 0 {
		conds = append(conds, "user_id = ANY("+arg(pq.Array(filter.UserIDIn))+")")
	}
	if len(filter.ProductIDIn) > 0 {
		conds = append(conds, "product_id = ANY("+arg(pq.Array(filter.ProductIDIn))+")")
	}
	if len(filter.Types) > 0 {
		types := make([]string, len(filter.Types))
		for i, t := range filter.Types {
			types[i] = string(t)
		}
		conds = append(conds, "interaction_type = ANY("+arg(pq.Array(types))+")")
	}

	if len(conds) > 0 {
		query.WriteString(" WHERE " + strings.Join(conds, " AND "))
	}
	if filter.OrderByTimestampDesc {
		query.WriteString(" ORDER BY created_at DESC")
	}
	if filter.Limit > 0 {
		query.WriteString(" LIMIT " + arg(filter.Limit))
	}

	rows, err := s.db.QueryContext(ctx, query.String(), args...)
	if err != nil {
		return nil, commonerrors.NewStoreQueryFailedError("interactions", err)
	}
	defer rows.Close()

	var out []models.Interaction
	for rows.Next() {
		var in models.Interaction
		var typ string
		if err := rows.Scan(&in.UserID, &in.ProductID, &typ, &in.Timestamp); err != nil {
			return nil, commonerrors.NewStoreQueryFailedError("interactions", err)
		}
		in.InteractionType = models.InteractionType(typ)
		out = append(out, in)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CountInteractionsGroupedByProduct(ctx context.Context, limit int) ([]models.ProductInteractionCount, error) {
	// Tie-break equal counts by most recent product creation.
	const query = `
		SELECT i.product_id, COUNT(*) AS interaction_count
		FROM user_interactions i
		JOIN products p ON p.id = i.product_id
		GROUP BY i.product_id, p.created_at
		ORDER BY interaction_count DESC, p.created_at DESC
		LIMIT $1`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, commonerrors.NewStoreQueryFailedError("interactionCounts", err)
	}
	defer rows.Close()

	var out []models.ProductInteractionCount
	for rows.Next() {
		var c models.ProductInteractionCount
		if err := rows.Scan(&c.ProductID, &c.Count); err != nil {
			return nil, commonerrors.NewStoreQueryFailedError("interactionCounts", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *PostgresStore) FindProducts(ctx context.Context, filter ProductFilter) ([]models.Product, error) {
	query := strings.Builder{}
	query.WriteString(`SELECT id, name, description, category, price, tags, image_url, created_at FROM products`)

	var (
		conds []string
		args  []interface{}
	)
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if len(filter.IDsIn) > 0 {
		conds = append(conds, "id = ANY("+arg(pq.Array(filter.IDsIn))+")")
	}
	if len(filter.ExcludeIDsIn) > 0 {
		conds = append(conds, "NOT (id = ANY("+arg(pq.Array(filter.ExcludeIDsIn))+"))")
	}

	if len(conds) > 0 {
		query.WriteString(" WHERE " + strings.Join(conds, " AND "))
	}
	if filter.OrderByCreatedAtDesc {
		query.WriteString(" ORDER BY created_at DESC")
	}
	if filter.Limit > 0 {
		query.WriteString(" LIMIT " + arg(filter.Limit))
	}

	rows, err := s.db.QueryContext(ctx, query.String(), args...)
	if err != nil {
		return nil, commonerrors.NewStoreQueryFailedError("products", err)
	}
	defer rows.Close()

	var out []models.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *PostgresStore) FindProductByID(ctx context.Context, id string) (*models.Product, error) {
	const query = `SELECT id, name, description, category, price, tags, image_url, created_at FROM products WHERE id = $1`

	rows, err := s.db.QueryContext(ctx, query, id)
	if err != nil {
		return nil, commonerrors.NewStoreQueryFailedError("productById", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	p, err := scanProduct(rows)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func scanProduct(rows *sql.Rows) (models.Product, error) {
	var p models.Product
	if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.Category, &p.Price, pq.Array(&p.Tags), &p.ImageURL, &p.CreatedAt); err != nil {
		return models.Product{}, commonerrors.NewStoreQueryFailedError("products", err)
	}
	return p, nil
}
