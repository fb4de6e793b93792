package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"

	"pricepulse/config"
)

// Platforms the generator writes search queries for
var Platforms = []string{"Flipkart", "Meesho"}

// QueryResult is the structured output of one generation call. On failure
// Metadata carries an "Error" entry and SearchQueries is empty.
type QueryResult struct {
	Metadata      map[string]any
	SearchQueries map[string]string
	Err           error
}

// GeminiClient calls the Gemini generateContent REST endpoint
type GeminiClient struct {
	cfg    config.LLM
	client *http.Client
}

// NewGeminiClient creates a client with cfg.Timeout applied to every call
func NewGeminiClient(cfg config.LLM) *GeminiClient {
	return &GeminiClient{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}
}

type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generationConfig struct {
	ResponseMimeType string  `json:"responseMimeType"`
	Temperature      float64 `json:"temperature"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

// GenerateQueries asks the model for product metadata and per-platform search
// queries. It never fails outright; problems are folded into the result.
func (g *GeminiClient) GenerateQueries(ctx context.Context, productName, productURL string) QueryResult {
	if g.cfg.APIKey == "" {
		log.Println("⚠️  GEMINI_API_KEY not configured, skipping query generation")
		return failed(fmt.Errorf("LLM API key not configured"))
	}

	text, err := g.generate(ctx, buildPrompt(productName, productURL))
	if err != nil {
		log.Printf("❌ LLM call failed for %q: %v", productName, err)
		return failed(fmt.Errorf("LLM API call failed: %w", err))
	}

	result, err := parseQueryResponse(text)
	if err != nil {
		log.Printf("❌ Failed to parse LLM response for %q: %v", productName, err)
		return failed(err)
	}
	log.Printf("LLM generated %d search queries for %q", len(result.SearchQueries), productName)
	return result
}

func failed(err error) QueryResult {
	return QueryResult{
		Metadata:      map[string]any{"Error": err.Error()},
		SearchQueries: map[string]string{},
		Err:           err,
	}
}

func (g *GeminiClient) generate(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(generateRequest{
		Contents:         []content{{Parts: []part{{Text: prompt}}}},
		GenerationConfig: generationConfig{ResponseMimeType: "application/json", Temperature: 0.2},
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	model := strings.TrimPrefix(g.cfg.Model, "models/")
	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s",
		strings.TrimRight(g.cfg.BaseURL, "/"), url.PathEscape(model), url.QueryEscape(g.cfg.APIKey))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("API error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var out generateResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	if len(out.Candidates) == 0 || len(out.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("empty response from LLM")
	}
	return out.Candidates[0].Content.Parts[0].Text, nil
}

// parseQueryResponse decodes the model's JSON, tolerating markdown code fences
func parseQueryResponse(text string) (QueryResult, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	var payload struct {
		Metadata      map[string]any `json:"metadata"`
		SearchQueries map[string]any `json:"search_queries"`
	}
	if err := json.Unmarshal([]byte(text), &payload); err != nil {
		return QueryResult{}, fmt.Errorf("failed to parse LLM response as JSON: %w", err)
	}

	result := QueryResult{Metadata: payload.Metadata, SearchQueries: map[string]string{}}
	if result.Metadata == nil {
		result.Metadata = map[string]any{"Warning": "Metadata missing from LLM response"}
	}
	for platform, q := range payload.SearchQueries {
		if s, ok := q.(string); ok && strings.TrimSpace(s) != "" {
			result.SearchQueries[platform] = strings.TrimSpace(s)
		}
	}
	return result, nil
}

func buildPrompt(productName, productURL string) string {
	var sb strings.Builder
	sb.WriteString("You are an expert e-commerce product analyst.\n")
	sb.WriteString("Analyze the following product:\n")
	fmt.Fprintf(&sb, "Product Name: %q\n", productName)
	fmt.Fprintf(&sb, "Product URL: %s\n\n", productURL)
	sb.WriteString("Your tasks are:\n")
	sb.WriteString("1. Extract key structured metadata: Brand, Model/Series and 2-3 critical distinguishing specifications. Be concise.\n")
	fmt.Fprintf(&sb, "2. Generate targeted search queries to find the exact same product on these Indian e-commerce platforms: %s.\n\n", strings.Join(Platforms, ", "))
	sb.WriteString(`Respond ONLY with a single valid JSON object of this shape:
{
  "metadata": {
    "brand": "ExampleBrand",
    "model": "ExampleModel X100",
    "specifications": ["Spec1: Value1", "Spec2: Value2"]
  },
  "search_queries": {
    "Flipkart": "ExampleBrand ExampleModel X100 Value1 Value2",
    "Meesho": "ExampleBrand ExampleModel X100 Value1"
  }
}
If a platform is unsuitable for the product type, omit it from search_queries.
`)
	return sb.String()
}
