package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/omkarshukla84/klymo-client/domain"
	"github.com/omkarshukla84/klymo-client/errors"
)

func (c *Client) Metrics(ctx context.Context) (domain.Metrics, error) {
	var m domain.Metrics
	status, err := c.do(ctx, http.MethodGet, metricsPath, nil, &m)
	if err != nil {
		return domain.Metrics{}, err
	}
	if status != http.StatusOK {
		return domain.Metrics{}, fmt.Errorf("%w: metrics status %d", errors.ErrBadResponse, status)
	}
	return m, nil
}
