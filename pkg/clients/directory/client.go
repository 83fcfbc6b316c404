// Package directory wraps the organization's staff directory and credential
// service. The register never stores PINs itself; it only reads them here at
// the moment of witness verification.
package directory

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

// ErrUserNotFound indicates the directory has no record for the user id.
var ErrUserNotFound = errors.New("user not found in staff directory")

// Credential is a staff member's verification secret as held by the
// directory. PINHash is a bcrypt hash (current enrollment); LegacyPIN is the
// plaintext 4-digit value still present on records not yet migrated.
type Credential struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	PINHash     string `json:"pinHash,omitempty"`
	LegacyPIN   string `json:"pin,omitempty"`
}

// Client exposes the directory operations the register consumes.
type Client interface {
	GetSecret(ctx context.Context, userID string) (Credential, error)
	ListActive(ctx context.Context) ([]models.Actor, error)
}

// APIClient is a resty-backed implementation of Client.
type APIClient struct {
	httpClient *resty.Client
}

// NewClient builds a directory client from the provided configuration.
func NewClient(cfg config.DirectoryConfig) *APIClient {
	restyClient := resty.New()
	restyClient.
		SetBaseURL(strings.TrimSuffix(cfg.BaseURL, "/")).
		SetHeader("Authorization", fmt.Sprintf("Bearer %s", cfg.APIToken)).
		SetHeader("Content-Type", "application/json").
		SetTimeout(10 * time.Second)

	return &APIClient{httpClient: restyClient}
}

// apiError mirrors the directory's error payload.
type apiError struct {
	Error string `json:"error"`
}

// GetSecret fetches the current verification secret for a staff member.
func (c *APIClient) GetSecret(ctx context.Context, userID string) (Credential, error) {
	cred := new(Credential)
	apiErr := new(apiError)

	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetResult(cred).
		SetError(apiErr).
		Get(fmt.Sprintf("/staff/%s/credential", userID))
	if err != nil {
		return Credential{}, fmt.Errorf("fetch credential for %s: %w", userID, err)
	}

	if resp.StatusCode() == http.StatusNotFound {
		return Credential{}, ErrUserNotFound
	}
	if resp.StatusCode() >= http.StatusBadRequest {
		return Credential{}, fmt.Errorf("directory error: code=%d, message=%s", resp.StatusCode(), apiErr.Error)
	}

	return *cred, nil
}

// ListActive returns active staff for the witness picker.
func (c *APIClient) ListActive(ctx context.Context) ([]models.Actor, error) {
	var actors []models.Actor
	apiErr := new(apiError)

	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetResult(&actors).
		SetError(apiErr).
		Get("/staff/active")
	if err != nil {
		return nil, fmt.Errorf("list active staff: %w", err)
	}

	if resp.StatusCode() >= http.StatusBadRequest {
		return nil, fmt.Errorf("directory error: code=%d, message=%s", resp.StatusCode(), apiErr.Error)
	}

	return actors, nil
}
