// Package auditsink wraps the organization-wide compliance audit service
// that mirrors every regulated action, drug transactions included.
package auditsink

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/stationhq/cdregister/internal/config"
	"github.com/stationhq/cdregister/internal/domain/models"
)

// ErrUnavailable indicates the sink did not acknowledge the entry. The
// caller must retry from its pending queue; the entry is never dropped.
var ErrUnavailable = errors.New("audit sink unavailable")

// Sink exposes the append operation of the central compliance log. There is
// no update or delete in the contract.
type Sink interface {
	Log(ctx context.Context, entry models.AuditEntry) error
}

// APIClient is a resty-backed implementation of Sink.
type APIClient struct {
	httpClient *resty.Client
}

// NewClient builds an audit sink client from the provided configuration.
func NewClient(cfg config.AuditSinkConfig) *APIClient {
	restyClient := resty.New()
	restyClient.
		SetBaseURL(strings.TrimSuffix(cfg.BaseURL, "/")).
		SetHeader("Authorization", fmt.Sprintf("Bearer %s", cfg.APIToken)).
		SetHeader("Content-Type", "application/json").
		SetTimeout(10 * time.Second)

	return &APIClient{httpClient: restyClient}
}

type apiError struct {
	Error string `json:"error"`
}

// Log appends one entry to the central compliance log.
func (c *APIClient) Log(ctx context.Context, entry models.AuditEntry) error {
	payload := map[string]any{
		"userId":   entry.UserID,
		"userName": entry.UserName,
		"action":   entry.Action,
		"detail":   entry.Detail,
		"category": entry.Category,
		"ref":      entry.TxID,
	}

	apiErr := new(apiError)
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(payload).
		SetError(apiErr).
		Post("/audit")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if resp.StatusCode() >= http.StatusBadRequest {
		return fmt.Errorf("%w: code=%d, message=%s", ErrUnavailable, resp.StatusCode(), apiErr.Error)
	}

	return nil
}
