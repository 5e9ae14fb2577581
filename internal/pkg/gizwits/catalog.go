package gizwits

import (
	"context"
	"errors"
	"fmt"

	"github.com/samber/lo"

	"github.com/anicoll/gizwits-integration/internal/pkg/model"
)

// ListBindings pages through /app/bindings until a short page and returns the
// full set of device descriptors. When productTypes is non-empty the result
// is filtered to those product types. Transport errors abort the whole listing;
// no partial result is returned.
func (c *Client) ListBindings(ctx context.Context, productTypes []string) ([]model.Device, error) {
	devices := []model.Device{}
	skip := 0
	for {
		page, err := c.bindingsPage(ctx, defaultPageSize, skip)
		if err != nil {
			return nil, errors.Join(ErrBindingFetch, err)
		}
		devices = append(devices, page...)
		if len(page) < defaultPageSize {
			break
		}
		skip += defaultPageSize
	}
	if len(productTypes) == 0 {
		return devices, nil
	}
	return lo.Filter(devices, func(d model.Device, _ int) bool {
		return lo.Contains(productTypes, d.ProductName)
	}), nil
}

func (c *Client) bindingsPage(ctx context.Context, limit, skip int) ([]model.Device, error) {
	res := bindingsResponse{}
	endpoint := fmt.Sprintf("%s?show_disabled=0&limit=%d&skip=%d", bindingsPath, limit, skip)
	if err := c.get(ctx, endpoint, &res); err != nil {
		return nil, err
	}
	return res.Devices, nil
}
