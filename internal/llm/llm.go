// Package llm wraps the Gemini API for C6's relevance scorer.
package llm

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/viper"
	"google.golang.org/genai"
)

// DefaultModel is the default Gemini model used for relevance scoring.
const DefaultModel = "gemini-flash-lite-latest"

// Client wraps a Gemini API connection.
type Client struct {
	apiKey    string
	modelName string
	gClient   *genai.Client
}

// TextGenerationOptions contains options for text generation.
type TextGenerationOptions struct {
	MaxTokens      int32
	Temperature    float32
	Model          string
	ResponseSchema *genai.Schema // structured-output constraint (C6's scorer contract)
}

// NewClient creates a new LLM client. The API key is resolved, in order,
// from GEMINI_API_KEY, GOOGLE_GEMINI_API_KEY, GOOGLE_AI_API_KEY, or the
// viper key gemini.api_key.
func NewClient(modelName string) (*Client, error) {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		if apiKey = os.Getenv("GOOGLE_GEMINI_API_KEY"); apiKey == "" {
			if apiKey = os.Getenv("GOOGLE_AI_API_KEY"); apiKey == "" {
				apiKey = viper.GetString("gemini.api_key")
			}
		}
	}
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required. Set GEMINI_API_KEY environment variable or gemini.api_key in config file")
	}

	if modelName == "" {
		modelName = viper.GetString("gemini.model")
		if modelName == "" {
			modelName = DefaultModel
		}
	}

	ctx := context.Background()
	gClient, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &Client{
		apiKey:    apiKey,
		modelName: modelName,
		gClient:   gClient,
	}, nil
}

// GenerateText generates text using the LLM with the given options,
// optionally constraining output to a JSON response schema.
func (c *Client) GenerateText(ctx context.Context, prompt string, options TextGenerationOptions) (string, error) {
	if prompt == "" {
		return "", fmt.Errorf("prompt cannot be empty")
	}

	modelName := c.modelName
	if options.Model != "" {
		modelName = options.Model
	}

	contents := []*genai.Content{{
		Parts: []*genai.Part{{Text: prompt}},
		Role:  "user",
	}}

	var config *genai.GenerateContentConfig
	if options.MaxTokens > 0 || options.Temperature > 0 || options.ResponseSchema != nil {
		config = &genai.GenerateContentConfig{}
		if options.MaxTokens > 0 {
			config.MaxOutputTokens = options.MaxTokens
		}
		if options.Temperature > 0 {
			temp := options.Temperature
			config.Temperature = &temp
		}
		if options.ResponseSchema != nil {
			config.ResponseMIMEType = "application/json"
			config.ResponseSchema = options.ResponseSchema
		}
	}

	resp, err := c.gClient.Models.GenerateContent(ctx, modelName, contents, config)
	if err != nil {
		return "", fmt.Errorf("failed to generate text: %w", err)
	}

	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("empty response from LLM")
	}

	return text, nil
}

// ModelName returns the model name used by this client.
func (c *Client) ModelName() string {
	return c.modelName
}

// Close cleans up resources used by the client.
func (c *Client) Close() {}
