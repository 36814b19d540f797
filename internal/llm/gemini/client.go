package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"tailor-backend/internal/llm"
)

const defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// Client implements llm.Client against the Gemini generateContent API.
// The API key is supplied per call so the gateway can fail over between
// credentials without rebuilding the client.
type Client struct {
	model      string
	baseURL    string
	httpClient *http.Client
}

// NewClient constructs a Gemini client for the given model.
func NewClient(model string) (*Client, error) {
	if strings.TrimSpace(model) == "" {
		return nil, fmt.Errorf("LLM_MODEL is required for Gemini")
	}
	timeout := 120 * time.Second
	if raw := strings.TrimSpace(os.Getenv("LLM_TIMEOUT_SECONDS")); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			timeout = time.Duration(parsed) * time.Second
		}
	}
	baseURL := defaultBaseURL
	if raw := strings.TrimSpace(os.Getenv("GEMINI_BASE_URL")); raw != "" {
		baseURL = strings.TrimSuffix(raw, "/")
	}
	return &Client{
		model:   model,
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

type generateRequest struct {
	Contents []content `json:"contents"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
	UsageMetadata *struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata,omitempty"`
	Error *apiError `json:"error,omitempty"`
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

// Generate performs a single generation attempt with the given key.
func (c *Client) Generate(ctx context.Context, apiKey, prompt string) (string, error) {
	if strings.TrimSpace(apiKey) == "" {
		return "", &llm.ProviderError{Kind: llm.KindFatal, Detail: "missing API key"}
	}

	reqBody := generateRequest{
		Contents: []content{{Parts: []part{{Text: prompt}}}},
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, c.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || strings.Contains(err.Error(), "Client.Timeout") {
			return "", &llm.ProviderError{Kind: llm.KindOverloaded, Detail: "request timeout", Err: err}
		}
		return "", &llm.ProviderError{Kind: llm.KindOverloaded, Detail: "transport failure", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	var parsed generateResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("gemini response parse: %w", err)
	}
	if resp.StatusCode != http.StatusOK || parsed.Error != nil {
		return "", classifyAPIError(resp.StatusCode, parsed.Error)
	}
	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return "", &llm.ProviderError{Kind: llm.KindFatal, Status: resp.StatusCode, Detail: "response missing candidates"}
	}

	var b strings.Builder
	for _, p := range parsed.Candidates[0].Content.Parts {
		b.WriteString(p.Text)
	}
	text := strings.TrimSpace(b.String())
	if text == "" {
		return "", &llm.ProviderError{Kind: llm.KindFatal, Status: resp.StatusCode, Detail: "response empty content"}
	}
	logUsage(c.model, parsed.UsageMetadata)
	return text, nil
}

// classifyAPIError maps an HTTP status plus the provider's error payload
// to a llm.ErrorKind. The mapping is an integration point: it will need
// updates if the provider's error contract changes.
func classifyAPIError(status int, apiErr *apiError) error {
	kind := llm.KindFatal
	detail := fmt.Sprintf("http status %d", status)
	grpcStatus := ""
	if apiErr != nil {
		detail = apiErr.Message
		grpcStatus = apiErr.Status
		if apiErr.Code != 0 {
			status = apiErr.Code
		}
	}

	switch {
	case status == http.StatusTooManyRequests, grpcStatus == "RESOURCE_EXHAUSTED":
		kind = llm.KindQuotaExceeded
	case status == http.StatusServiceUnavailable, grpcStatus == "UNAVAILABLE":
		kind = llm.KindOverloaded
	case status == http.StatusInternalServerError, status == http.StatusBadGateway,
		status == http.StatusGatewayTimeout, grpcStatus == "INTERNAL", grpcStatus == "DEADLINE_EXCEEDED":
		kind = llm.KindOverloaded
	}

	return &llm.ProviderError{Kind: kind, Status: status, Detail: detail}
}

func logUsage(model string, usage *struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}) {
	if usage == nil {
		log.Printf("llm response model=%s", model)
		return
	}
	log.Printf("llm response model=%s prompt_tokens=%d candidate_tokens=%d total_tokens=%d",
		model, usage.PromptTokenCount, usage.CandidatesTokenCount, usage.TotalTokenCount)
}

var _ llm.Client = (*Client)(nil)
