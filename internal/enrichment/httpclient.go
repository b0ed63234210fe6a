package enrichment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sunilblinkoninfra-cyber/PhishX/internal/model"
)

// TextMLClient calls the NLP text-scoring service.
type TextMLClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewTextMLClient constructs a text scorer for the given service.
func NewTextMLClient(baseURL string, timeout time.Duration) *TextMLClient {
	return &TextMLClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type textScoreResponse struct {
	Score        float64  `json:"score"`
	Signals      []string `json:"signals"`
	ModelVersion string   `json:"model_version"`
}

// ScoreText sends subject and body to the NLP service and returns the text
// fragment. Errors are returned as-is; the caller decides on fallback.
func (c *TextMLClient) ScoreText(ctx context.Context, subject, body string) (model.Fragment, error) {
	if c == nil {
		return model.Fragment{}, fmt.Errorf("text ml client not configured")
	}

	reqBody := map[string]string{
		"subject": subject,
		"body":    body,
	}
	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return model.Fragment{}, fmt.Errorf("marshal request: %w", err)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/score-text", bytes.NewReader(bodyBytes))
	if err != nil {
		return model.Fragment{}, fmt.Errorf("build request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(request)
	if err != nil {
		return model.Fragment{}, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errBody map[string]string
		_ = json.NewDecoder(resp.Body).Decode(&errBody)
		return model.Fragment{}, fmt.Errorf("text ml response status %d: %s", resp.StatusCode, errBody["message"])
	}

	var result textScoreResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return model.Fragment{}, fmt.Errorf("decode response: %w", err)
	}

	return model.Fragment{
		Kind:         model.FragmentTextML,
		Score:        clampUnit(result.Score),
		Signals:      result.Signals,
		ModelVersion: result.ModelVersion,
		Available:    true,
	}, nil
}

// URLMLClient calls the URL reputation/ML service.
type URLMLClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewURLMLClient constructs a URL scorer for the given service.
func NewURLMLClient(baseURL string, timeout time.Duration) *URLMLClient {
	return &URLMLClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type urlScoreResponse struct {
	Score        float64  `json:"score"`
	Signals      []string `json:"signals"`
	ModelVersion string   `json:"model_version"`
}

// ScoreURLs sends the URL set to the reputation service. An empty URL set
// is answered locally with a zero fragment and no network call.
func (c *URLMLClient) ScoreURLs(ctx context.Context, urls []string) (model.Fragment, error) {
	if c == nil {
		return model.Fragment{}, fmt.Errorf("url ml client not configured")
	}
	if len(urls) == 0 {
		return model.Fragment{
			Kind:         model.FragmentURLML,
			Score:        0,
			ModelVersion: "url-ml-v2",
			Available:    true,
		}, nil
	}

	bodyBytes, err := json.Marshal(map[string][]string{"urls": urls})
	if err != nil {
		return model.Fragment{}, fmt.Errorf("marshal request: %w", err)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/score-urls", bytes.NewReader(bodyBytes))
	if err != nil {
		return model.Fragment{}, fmt.Errorf("build request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(request)
	if err != nil {
		return model.Fragment{}, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errBody map[string]string
		_ = json.NewDecoder(resp.Body).Decode(&errBody)
		return model.Fragment{}, fmt.Errorf("url ml response status %d: %s", resp.StatusCode, errBody["message"])
	}

	var result urlScoreResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return model.Fragment{}, fmt.Errorf("decode response: %w", err)
	}

	return model.Fragment{
		Kind:         model.FragmentURLML,
		Score:        clampUnit(result.Score),
		Signals:      result.Signals,
		ModelVersion: result.ModelVersion,
		Available:    true,
	}, nil
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
