package enrich

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/mstanton/curator/internal/collection"
)

const (
	defaultAPIURL  = "https://api.anthropic.com/v1/messages"
	apiVersion     = "2023-06-01"
	betaHeader     = "structured-outputs-2025-11-13"
	suggestModel   = "claude-haiku-4-5-20251001"
	apiKeyEnv      = "ANTHROPIC_API_KEY"
	suggestTimeout = 30 * time.Second
)

var (
	ErrNoAPIKey        = errors.New("ANTHROPIC_API_KEY environment variable not set")
	ErrAPIRequest      = errors.New("API request failed")
	ErrInvalidResponse = errors.New("invalid API response")
)

// SuggestClient calls the model API for structured bookmark suggestions.
type SuggestClient struct {
	apiURL     string
	apiKey     string
	model      string
	httpClient *http.Client
}

// NewSuggestClient reads the API key from the environment. An empty apiURL
// selects the hosted endpoint.
func NewSuggestClient(apiURL string) (*SuggestClient, error) {
	apiKey := os.Getenv(apiKeyEnv)
	if apiKey == "" {
		return nil, ErrNoAPIKey
	}
	if apiURL == "" {
		apiURL = defaultAPIURL
	}
	return &SuggestClient{
		apiURL: apiURL,
		apiKey: apiKey,
		model:  suggestModel,
		httpClient: &http.Client{
			Timeout: suggestTimeout,
		},
	}, nil
}

// NewSuggestClientWith builds a client against a specific endpoint and key.
func NewSuggestClientWith(apiURL, apiKey string) *SuggestClient {
	return &SuggestClient{
		apiURL: apiURL,
		apiKey: apiKey,
		model:  suggestModel,
		httpClient: &http.Client{
			Timeout: suggestTimeout,
		},
	}
}

// suggestionPayload is the schema the model is constrained to emit.
type suggestionPayload struct {
	Title      string   `json:"title"`
	Summary    string   `json:"summary"`
	Category   string   `json:"category"`
	Tags       []string `json:"tags"`
	IconSymbol string   `json:"iconSymbol"`
}

type apiRequest struct {
	Model        string        `json:"model"`
	MaxTokens    int           `json:"max_tokens"`
	Messages     []apiMessage  `json:"messages"`
	OutputFormat *outputFormat `json:"output_format,omitempty"`
}

type apiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type outputFormat struct {
	Type   string     `json:"type"`
	Schema jsonSchema `json:"schema"`
}

type jsonSchema struct {
	Type                 string                `json:"type"`
	Properties           map[string]schemaProp `json:"properties"`
	Required             []string              `json:"required"`
	AdditionalProperties bool                  `json:"additionalProperties"`
}

type schemaProp struct {
	Type  string      `json:"type"`
	Items *schemaProp `json:"items,omitempty"`
}

type apiResponse struct {
	Content    []contentBlock `json:"content"`
	StopReason string         `json:"stop_reason"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Suggest asks the model for a refined title, summary, category, tags, and
// icon symbol for the scraped page.
func (c *SuggestClient) Suggest(ctx context.Context, page collection.PageContent, categories, tags []string) (collection.Suggestion, error) {
	reqBody := apiRequest{
		Model:     c.model,
		MaxTokens: 512,
		Messages: []apiMessage{
			{Role: "user", Content: buildSuggestPrompt(page, categories, tags)},
		},
		OutputFormat: &outputFormat{
			Type: "json_schema",
			Schema: jsonSchema{
				Type: "object",
				Properties: map[string]schemaProp{
					"title":      {Type: "string"},
					"summary":    {Type: "string"},
					"category":   {Type: "string"},
					"tags":       {Type: "array", Items: &schemaProp{Type: "string"}},
					"iconSymbol": {Type: "string"},
				},
				Required:             []string{"title", "summary", "category", "tags", "iconSymbol"},
				AdditionalProperties: false,
			},
		},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return collection.Suggestion{}, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return collection.Suggestion{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", apiVersion)
	req.Header.Set("anthropic-beta", betaHeader)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return collection.Suggestion{}, fmt.Errorf("%w: %v", ErrAPIRequest, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return collection.Suggestion{}, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return collection.Suggestion{}, fmt.Errorf("%w: status %d: %s", ErrAPIRequest, resp.StatusCode, string(body))
	}

	var apiResp apiResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return collection.Suggestion{}, fmt.Errorf("unmarshal response: %w", err)
	}
	if len(apiResp.Content) == 0 || apiResp.Content[0].Type != "text" {
		return collection.Suggestion{}, ErrInvalidResponse
	}

	var payload suggestionPayload
	if err := json.Unmarshal([]byte(apiResp.Content[0].Text), &payload); err != nil {
		return collection.Suggestion{}, fmt.Errorf("unmarshal suggestion: %w", err)
	}

	return collection.Suggestion{
		RefinedTitle: payload.Title,
		Summary:      payload.Summary,
		CategoryName: payload.Category,
		TagNames:     payload.Tags,
		IconSymbol:   payload.IconSymbol,
	}, nil
}

const maxPromptText = 4000

// truncateOnRune caps s at max bytes without splitting a multi-byte rune.
func truncateOnRune(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func buildSuggestPrompt(page collection.PageContent, categories, tags []string) string {
	categoryList := "(none yet)"
	if len(categories) > 0 {
		categoryList = strings.Join(categories, ", ")
	}
	tagList := "(none yet)"
	if len(tags) > 0 {
		tagList = strings.Join(tags, ", ")
	}

	text := truncateOnRune(page.CleanedText, maxPromptText)

	return fmt.Sprintf(`Analyze this web page and suggest bookmark metadata.

Page:
- Title: %s
- Description: %s
- Site: %s
- Content excerpt: %s

Available categories: %s
Available tags: %s

Instructions:
- Suggest a concise, descriptive title
- Write a one or two sentence summary of the page
- Choose the most fitting category from the available list; only propose a new name if nothing fits
- Suggest 1-3 relevant tags, preferring existing tags when they fit
- If suggesting new tags, keep them lowercase and concise
- Suggest a single SF Symbol name that represents this page's topic`,
		page.Title, page.Description, page.SiteName, text, categoryList, tagList)
}
