package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/sethvargo/go-retry"
)

// HTTPClient queries an external directory service over HTTP:
// GET {base}/roles/{id}/members -> [{"id": "...", "email": "..."}].
//
// Transient failures (network errors, 5xx) are retried with fibonacci
// backoff a small bounded number of times before surfacing, per the
// propagation policy for collaborator faults.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
	maxRetries uint64
}

func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		maxRetries: 3,
	}
}

func (c *HTTPClient) RoleMembers(ctx context.Context, roleID string) ([]Member, error) {
	endpoint := fmt.Sprintf("%s/roles/%s/members", c.baseURL, url.PathEscape(roleID))

	var members []Member
	backoff := retry.WithMaxRetries(c.maxRetries, retry.NewFibonacci(200*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		list, err := c.fetch(ctx, endpoint)
		if err != nil {
			return err
		}
		members = list
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("directory lookup for role %s failed: %w", roleID, err)
	}

	// The allocator's fairness depends on a stable ordering across calls.
	sort.Slice(members, func(i, j int) bool { return members[i].ID < members[j].ID })
	return members, nil
}

func (c *HTTPClient) fetch(ctx context.Context, endpoint string) ([]Member, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, retry.RetryableError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		io.Copy(io.Discard, resp.Body)
		return nil, retry.RetryableError(fmt.Errorf("directory returned %d", resp.StatusCode))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("directory returned %d", resp.StatusCode)
	}

	var members []Member
	if err := json.NewDecoder(resp.Body).Decode(&members); err != nil {
		return nil, fmt.Errorf("failed to decode directory response: %w", err)
	}
	return members, nil
}
