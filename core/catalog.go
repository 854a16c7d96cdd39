package core

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"
	"time"
)

// ProductFilter narrows a product listing. Nil boolean fields mean
// "don't filter on this".
type ProductFilter struct {
	Search       string
	Category     string
	Organic      *bool
	Availability *bool
}

func (f ProductFilter) encode() string {
	q := url.Values{}
	if f.Search != "" {
		q.Set("search", f.Search)
	}
	if f.Category != "" {
		q.Set("category", f.Category)
	}
	if f.Organic != nil {
		q.Set("organic", strconv.FormatBool(*f.Organic))
	}
	if f.Availability != nil {
		q.Set("availability", strconv.FormatBool(*f.Availability))
	}
	return q.Encode()
}

// Catalog is the read-only browse surface the cart items come from.
// Responses are cached in a Memory store keyed by request shape; the
// cache is an optimization only, so on a miss or store failure the
// request simply goes out as normal.
type Catalog struct {
	gateway *APIGateway
	cache   Memory
	ttl     time.Duration
	logger  Logger
}

// NewCatalog creates a catalog client. A nil cache disables caching.
func NewCatalog(gateway *APIGateway, cache Memory, cfg *Config, logger Logger) *Catalog {
	if logger == nil {
		logger = &NoOpLogger{}
	}
	return &Catalog{
		gateway: gateway,
		cache:   cache,
		ttl:     cfg.Cache.TTL,
		logger:  logger,
	}
}

// ListProducts fetches marketplace listings matching the filter
func (c *Catalog) ListProducts(ctx context.Context, filter ProductFilter) ([]Product, error) {
	path := "/api/products"
	if query := filter.encode(); query != "" {
		path += "?" + query
	}

	var envelope struct {
		Products []Product `json:"products"`
	}
	if err := c.cachedGet(ctx, "products:"+filter.encode(), path, &envelope); err != nil {
		return nil, NewClientError("catalog.ListProducts", "catalog", err)
	}
	return envelope.Products, nil
}

// GetProduct fetches a single listing by id
func (c *Catalog) GetProduct(ctx context.Context, id ID) (*Product, error) {
	var envelope struct {
		Product Product `json:"product"`
	}
	if err := c.cachedGet(ctx, "product:"+id.String(), "/api/products/"+id.String(), &envelope); err != nil {
		return nil, NewClientError("catalog.GetProduct", "catalog", err)
	}
	return &envelope.Product, nil
}

// ListCategories fetches the marketplace category names
func (c *Catalog) ListCategories(ctx context.Context) ([]string, error) {
	var envelope struct {
		Categories []string `json:"categories"`
	}
	if err := c.cachedGet(ctx, "categories", "/api/categories", &envelope); err != nil {
		return nil, NewClientError("catalog.ListCategories", "catalog", err)
	}
	return envelope.Categories, nil
}

// cachedGet serves path from the cache when possible, otherwise fetches
// it and stores the raw payload under key
func (c *Catalog) cachedGet(ctx context.Context, key, path string, out interface{}) error {
	if c.cache != nil {
		if cached, err := c.cache.Get(ctx, key); err == nil && cached != "" {
			if json.Unmarshal([]byte(cached), out) == nil {
				c.logger.Debug("Catalog cache hit", map[string]interface{}{
					"operation": "catalog_get",
					"key":       key,
				})
				return nil
			}
		} else if err != nil {
			c.logger.Debug("Catalog cache read failed", map[string]interface{}{
				"operation": "catalog_get",
				"key":       key,
				"error":     err.Error(),
			})
		}
	}

	resp := c.gateway.Get(ctx, path)
	if err := resp.Error(); err != nil {
		return err
	}
	if err := resp.Decode(out); err != nil {
		return err
	}

	if c.cache != nil {
		if err := c.cache.Set(ctx, key, string(resp.Data), c.ttl); err != nil {
			c.logger.Debug("Catalog cache write failed", map[string]interface{}{
				"operation": "catalog_get",
				"key":       key,
				"error":     err.Error(),
			})
		}
	}
	return nil
}
