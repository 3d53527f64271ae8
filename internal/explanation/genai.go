// internal/explanation/genai.go
package explanation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"

	commonerrors "shop-recommender/internal/common/errors"
	"shop-recommender/internal/common/logger"
)

// ClientConfig carries the generation-API settings. Timeout bounds a single
// Generate call via context; the underlying http.Client has no timeout of
// its own.
type ClientConfig struct {
	BaseURL     string
	APIKey      string
	Timeout     time.Duration
	MaxTokens   int
	Temperature float64
}

// Client wraps the external text-generation API.
type Client struct {
	config     ClientConfig
	httpClient *http.Client
	logger     logger.Logger
}

func NewClient(config ClientConfig, log logger.Logger) *Client {
	return &Client{
		config:     config,
		httpClient: &http.Client{},
		logger:     log.WithFields(map[string]interface{}{"component": "genai"}),
	}
}

// responseSchema rejects payloads without a usable text field before we
// trust them, matching how templated responses are validated elsewhere.
var responseSchema = map[string]interface{}{
	"type":     "object",
	"required": []interface{}{"text"},
	"properties": map[string]interface{}{
		"text": map[string]interface{}{"type": "string"},
	},
}

// Generate sends the prompt and returns the generated text. Timeouts,
// non-2xx statuses, and schema violations all surface as StandardErrors so
// the caller can fall back to rule-based text.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	body, err := json.Marshal(map[string]interface{}{
		"prompt":      prompt,
		"max_tokens":  c.config.MaxTokens,
		"temperature": c.config.Temperature,
	})
	if err != nil {
		return "", commonerrors.NewGenerationFailedError(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/api/ai/generate", bytes.NewBuffer(body))
	if err != nil {
		return "", commonerrors.NewGenerationFailedError(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return "", commonerrors.NewGenerationTimeoutError()
		}
		return "", commonerrors.NewGenerationFailedError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", commonerrors.NewGenerationFailedError(fmt.Errorf("status %d", resp.StatusCode))
	}

	var payload map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", commonerrors.NewGenerationInvalidResponseError(err.Error())
	}

	if err := validateResponse(payload); err != nil {
		return "", err
	}

	text, _ := payload["text"].(string)
	return strings.TrimSpace(text), nil
}

func validateResponse(payload map[string]interface{}) error {
	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(responseSchema),
		gojsonschema.NewGoLoader(payload),
	)
	if err != nil {
		return commonerrors.NewGenerationInvalidResponseError(err.Error())
	}
	if !result.Valid() {
		details := make([]string, len(result.Errors()))
		for i, desc := range result.Errors() {
			details[i] = desc.String()
		}
		return commonerrors.NewGenerationInvalidResponseError(strings.Join(details, "; "))
	}
	return nil
}
