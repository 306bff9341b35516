// Package catalog wraps the product service's validate_products call. The
// catalog is the authority on product existence, price and name; orders
// never trust caller-supplied prices.
package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/example/orders-ms/internal/contracts"
)

var ErrProductsNotFound = errors.New("some products could not be resolved")

// Requester is the request/reply bus surface the client needs.
type Requester interface {
	Request(ctx context.Context, topic, pattern string, payload, out any) error
}

type Client struct {
	bus Requester
}

func NewClient(bus Requester) *Client {
	return &Client{bus: bus}
}

// Validate resolves the given product ids to authoritative {id, name,
// price} data. A result set smaller than the request is treated the same
// as an explicit not-found from the catalog: the caller never sees a
// silently shortened list.
func (c *Client) Validate(ctx context.Context, ids []string) (map[string]contracts.Product, error) {
	var resolved []contracts.Product
	err := c.bus.Request(ctx, contracts.TopicProductsRequests, contracts.PatternValidateProducts,
		contracts.ValidateProductsRequest{IDs: ids}, &resolved)
	if err != nil {
		var rpcErr *contracts.Error
		if errors.As(err, &rpcErr) && rpcErr.Status == 404 {
			return nil, fmt.Errorf("%w: %s", ErrProductsNotFound, rpcErr.Message)
		}
		return nil, fmt.Errorf("validate products: %w", err)
	}

	byID := make(map[string]contracts.Product, len(resolved))
	for _, p := range resolved {
		byID[p.ID] = p
	}
	for _, id := range ids {
		if _, ok := byID[id]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrProductsNotFound, id)
		}
	}
	return byID, nil
}
