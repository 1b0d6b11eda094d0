// Package discovery pulls topology snapshots from an external discovery provider.
package discovery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/kiranshivaraju/servicemap/pkg/models"
)

// Sentinel errors for provider client failures.
var (
	ErrProviderUnreachable = errors.New("topology provider unreachable")
	ErrProviderResponse    = errors.New("topology provider returned an error")
	ErrProviderTimeout     = errors.New("topology provider timeout")
)

// maxSnapshotBytes caps how much of a snapshot response is read.
const maxSnapshotBytes = 32 << 20

// Client is the interface for fetching provider topology.
type Client interface {
	// FetchTopology returns the provider's current snapshot. A non-empty
	// orgID overrides the client's default X-Scope-OrgID.
	FetchTopology(ctx context.Context, orgID string) (*models.TopologySnapshot, error)
	Ready(ctx context.Context) error
}

// HTTPClient implements Client over the provider's HTTP API.
type HTTPClient struct {
	baseURL  string
	username string
	password string
	orgID    string
	client   *http.Client
}

// NewHTTPClient creates a new provider HTTP client.
func NewHTTPClient(baseURL, username, password, orgID string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL:  baseURL,
		username: username,
		password: password,
		orgID:    orgID,
		client:   &http.Client{Timeout: timeout},
	}
}

func (c *HTTPClient) FetchTopology(ctx context.Context, orgID string) (*models.TopologySnapshot, error) {
	u := fmt.Sprintf("%s/api/v1/topology", c.baseURL)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	c.setHeaders(httpReq, orgID)
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, classifyError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrProviderResponse, resp.StatusCode)
	}

	var body snapshotResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxSnapshotBytes)).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: decoding snapshot: %v", ErrProviderResponse, err)
	}
	if body.Data == nil {
		return nil, fmt.Errorf("%w: snapshot response has no data", ErrProviderResponse)
	}
	return body.Data, nil
}

func (c *HTTPClient) Ready(ctx context.Context) error {
	u := fmt.Sprintf("%s/ready", c.baseURL)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	c.setHeaders(httpReq, "")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProviderUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: provider not ready (status %d)", ErrProviderUnreachable, resp.StatusCode)
	}
	return nil
}

func (c *HTTPClient) setHeaders(req *http.Request, orgID string) {
	if c.username != "" && c.password != "" {
		req.SetBasicAuth(c.username, c.password)
	}
	if orgID == "" {
		orgID = c.orgID
	}
	if orgID != "" {
		req.Header.Set("X-Scope-OrgID", orgID)
	}
}

// classifyError maps transport-level errors to sentinel errors.
func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrProviderTimeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrProviderTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrProviderUnreachable, err)
}

type snapshotResponse struct {
	Data *models.TopologySnapshot `json:"data"`
}

// Compile-time check that HTTPClient implements Client.
var _ Client = (*HTTPClient)(nil)
