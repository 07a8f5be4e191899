package integration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"weekly-snippets/internal/domain/model"
	"weekly-snippets/internal/domain/ports/adapter"
)

var _ adapter.IntegrationSource = (*HTTPSource)(nil)

// HTTPSource reads activity from an activity gateway that fronts the
// individual providers:
//
//	GET {base}/{type}/activity?from=RFC3339&to=RFC3339
//	Authorization: Bearer <integration access token>
type HTTPSource struct {
	base   string
	client *http.Client
}

func NewHTTPSource(baseURL string, timeout time.Duration) (*HTTPSource, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid integrations base url %q", baseURL)
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPSource{
		base:   strings.TrimRight(baseURL, "/"),
		client: &http.Client{Timeout: timeout},
	}, nil
}

type activityResponse struct {
	Items []struct {
		Title      string    `json:"title"`
		URL        string    `json:"url"`
		OccurredAt time.Time `json:"occurredAt"`
	} `json:"items"`
}

func (s *HTTPSource) Fetch(ctx context.Context, integrationType, accessToken string, from, to time.Time) ([]model.IntegrationItem, error) {
	if integrationType == "" {
		return nil, errors.New("integration type empty")
	}
	q := url.Values{}
	q.Set("from", from.UTC().Format(time.RFC3339))
	q.Set("to", to.UTC().Format(time.RFC3339))
	endpoint := fmt.Sprintf("%s/%s/activity?%s", s.base, url.PathEscape(integrationType), q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return nil, fmt.Errorf("%s http %d: %s", integrationType, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out activityResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode %s activity: %w", integrationType, err)
	}
	items := make([]model.IntegrationItem, 0, len(out.Items))
	for _, it := range out.Items {
		if strings.TrimSpace(it.Title) == "" {
			continue
		}
		items = append(items, model.IntegrationItem{
			Source:     integrationType,
			Title:      it.Title,
			URL:        it.URL,
			OccurredAt: it.OccurredAt,
		})
	}
	return items, nil
}

// NoopSource returns no activity. Used when no gateway is configured.
type NoopSource struct{}

func (NoopSource) Fetch(context.Context, string, string, time.Time, time.Time) ([]model.IntegrationItem, error) {
	return nil, nil
}
