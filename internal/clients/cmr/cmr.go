package cmr

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/eosdis/harmony-workflow/internal/platform/logger"
)

// eulaTagKey marks collections whose data requires EULA acceptance. A
// collection without the tag at all is treated as restricted.
const eulaTagKey = "harmony.has-eula"

// Client talks to the granule index and collection metadata service. The
// orchestrator uses it for share-gate permission checks; granule queries are
// issued by the first-stage worker fleet.
type Client struct {
	baseURL  string
	clientID string
	http     *http.Client
	log      *logger.Logger
}

func NewClient(baseURL, clientID string, baseLog *logger.Logger) *Client {
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		clientID: clientID,
		http:     &http.Client{Timeout: 30 * time.Second},
		log:      baseLog.With("client", "cmr"),
	}
}

type collectionsResponse struct {
	Items []struct {
		Meta struct {
			ConceptID string `json:"concept-id"`
		} `json:"meta"`
		Tags map[string]struct {
			Data json.RawMessage `json:"data"`
		} `json:"tags"`
	} `json:"items"`
}

// EulaFlags returns, per requested collection, whether the collection
// carries the has-eula tag and its value. Collections absent from the
// response or without the tag map to nil.
func (c *Client) EulaFlags(ctx context.Context, collectionIDs []string, token string) (map[string]*bool, error) {
	q := url.Values{}
	for _, id := range collectionIDs {
		q.Add("concept_id", id)
	}
	q.Set("page_size", strconv.Itoa(len(collectionIDs)))
	q.Set("include_tags", eulaTagKey)

	var body collectionsResponse
	if err := c.getJSON(ctx, "/search/collections.umm_json?"+q.Encode(), token, &body); err != nil {
		return nil, err
	}

	out := make(map[string]*bool, len(collectionIDs))
	for _, id := range collectionIDs {
		out[id] = nil
	}
	for _, item := range body.Items {
		tag, ok := item.Tags[eulaTagKey]
		if !ok {
			continue
		}
		var hasEula bool
		if err := json.Unmarshal(tag.Data, &hasEula); err != nil {
			continue
		}
		v := hasEula
		out[item.Meta.ConceptID] = &v
	}
	return out, nil
}

type permissionsResponse map[string][]string

// GuestReadable reports, per collection, whether unauthenticated users hold
// read permission. All collections are resolved in one call.
func (c *Client) GuestReadable(ctx context.Context, collectionIDs []string) (map[string]bool, error) {
	q := url.Values{}
	q.Set("user_type", "guest")
	for _, id := range collectionIDs {
		q.Add("concept_id", id)
	}

	var perms permissionsResponse
	if err := c.getJSON(ctx, "/access-control/permissions?"+q.Encode(), "", &perms); err != nil {
		return nil, err
	}

	out := make(map[string]bool, len(collectionIDs))
	for _, id := range collectionIDs {
		readable := false
		for _, action := range perms[id] {
			if action == "read" {
				readable = true
				break
			}
		}
		out[id] = readable
	}
	return out, nil
}

type granulesResponse struct {
	Hits  int               `json:"hits"`
	Items []json.RawMessage `json:"items"`
}

// QueryGranules runs one page of a granule search. The response items are
// opaque to the orchestrator.
func (c *Client) QueryGranules(ctx context.Context, collectionID, token string, pageSize int, scrollID string) (hits int, granules []json.RawMessage, nextScrollID string, err error) {
	q := url.Values{}
	q.Set("collection_concept_id", collectionID)
	q.Set("page_size", strconv.Itoa(pageSize))
	if scrollID != "" {
		q.Set("scroll_id", scrollID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/search/granules.umm_json?"+q.Encode(), nil)
	if err != nil {
		return 0, nil, "", err
	}
	c.decorate(req, token)
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, "", fmt.Errorf("query granules: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, nil, "", fmt.Errorf("query granules: unexpected status %d", resp.StatusCode)
	}

	var body granulesResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, nil, "", fmt.Errorf("decode granules response: %w", err)
	}
	if h := resp.Header.Get("CMR-Hits"); h != "" {
		if parsed, err := strconv.Atoi(h); err == nil {
			body.Hits = parsed
		}
	}
	return body.Hits, body.Items, resp.Header.Get("CMR-Scroll-Id"), nil
}

func (c *Client) getJSON(ctx context.Context, pathAndQuery, token string, v interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+pathAndQuery, nil)
	if err != nil {
		return err
	}
	c.decorate(req, token)
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("cmr request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("cmr request: status %d: %s", resp.StatusCode, snippet)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode cmr response: %w", err)
	}
	return nil
}

func (c *Client) decorate(req *http.Request, token string) {
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if c.clientID != "" {
		req.Header.Set("Client-Id", c.clientID)
	}
	req.Header.Set("Accept", "application/json")
}
