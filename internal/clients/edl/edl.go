package edl

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/eosdis/harmony-workflow/internal/platform/logger"
)

// Client resolves Earthdata Login access tokens to usernames.
type Client struct {
	baseURL string
	http    *http.Client
	log     *logger.Logger
}

func NewClient(baseURL string, baseLog *logger.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 15 * time.Second},
		log:     baseLog.With("client", "edl"),
	}
}

type userinfoResponse struct {
	UID string `json:"uid"`
}

// Username validates the token and returns the account it belongs to.
func (c *Client) Username(ctx context.Context, accessToken string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/oauth/userinfo", nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("edl userinfo: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("edl userinfo: status %d", resp.StatusCode)
	}

	var body userinfoResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decode edl userinfo: %w", err)
	}
	if body.UID == "" {
		return "", fmt.Errorf("edl userinfo: empty uid")
	}
	return body.UID, nil
}
