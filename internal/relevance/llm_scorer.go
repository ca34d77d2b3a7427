package relevance

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"briefly/internal/discoveryerr"
	"briefly/internal/llm"
)

const (
	retryMax      = 3
	retryWaitMin  = 250 * time.Millisecond
	retryWaitMax  = 4 * time.Second
	defaultMaxTok = int32(512)
)

var resultSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"score":      {Type: genai.TypeInteger},
		"isRelevant": {Type: genai.TypeBoolean},
		"reason":     {Type: genai.TypeString},
	},
	Required: []string{"score", "isRelevant", "reason"},
}

// LLMScorer implements C6 against the Gemini client, constraining the
// model's output to the {score, isRelevant, reason} schema (§4.5).
type LLMScorer struct {
	client *llm.Client
}

// NewLLMScorer constructs an LLMScorer from an already-configured client.
func NewLLMScorer(client *llm.Client) *LLMScorer {
	return &LLMScorer{client: client}
}

func (s *LLMScorer) Score(ctx context.Context, patch PatchContext, title, url, text string) (Result, error) {
	if len(text) > MaxInputBytes {
		text = text[:MaxInputBytes]
	}

	prompt := buildPrompt(patch, title, url, text)

	var raw string
	var err error
	wait := retryWaitMin
	for attempt := 0; attempt <= retryMax; attempt++ {
		raw, err = s.client.GenerateText(ctx, prompt, llm.TextGenerationOptions{
			MaxTokens:      defaultMaxTok,
			Temperature:    0,
			ResponseSchema: resultSchema,
		})
		if err == nil {
			break
		}
		if !isRateLimited(err) || attempt == retryMax {
			return Result{}, discoveryerr.New(discoveryerr.ScorerMalformed, "score", err)
		}
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return Result{}, ctx.Err()
		}
		wait *= 2
		if wait > retryWaitMax {
			wait = retryWaitMax
		}
	}

	var result Result
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return Result{}, discoveryerr.New(discoveryerr.ScorerMalformed, "score", fmt.Errorf("non-conforming response: %w", err))
	}
	if result.Score < 0 || result.Score > 100 {
		return Result{}, discoveryerr.New(discoveryerr.ScorerMalformed, "score", fmt.Errorf("score %d out of range", result.Score))
	}

	return result, nil
}

func isRateLimited(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "429") || strings.Contains(msg, "RESOURCE_EXHAUSTED")
}

func buildPrompt(patch PatchContext, title, url, text string) string {
	var b strings.Builder
	b.WriteString("You are judging whether a web page is relevant supporting material for a Wikipedia-style topic.\n\n")
	fmt.Fprintf(&b, "Topic: %s\n", patch.Title)
	if len(patch.Aliases) > 0 {
		fmt.Fprintf(&b, "Also known as: %s\n", strings.Join(patch.Aliases, ", "))
	}
	if len(patch.Tags) > 0 {
		fmt.Fprintf(&b, "Tags: %s\n", strings.Join(patch.Tags, ", "))
	}
	b.WriteString("\nCandidate page:\n")
	fmt.Fprintf(&b, "Title: %s\n", title)
	fmt.Fprintf(&b, "URL: %s\n", url)
	b.WriteString("Extracted text:\n")
	b.WriteString(text)
	b.WriteString("\n\nRate how relevant the candidate page is as a source for the topic. ")
	b.WriteString("Respond with JSON matching {\"score\": integer 0-100, \"isRelevant\": boolean, \"reason\": short string}.")
	return b.String()
}
