// Package ai_engine talks to an OpenAI-compatible chat-completion backend
// (a local Ollama instance in the default deployment) for the optional
// detection and rewrite paths. Failures never propagate: detection returns
// a fixed sentinel result so the caller can fall back to heuristics.
package ai_engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

const (
	// maxBodyChars bounds the prompt payload on adversarially large bodies.
	maxBodyChars = 2000
	// maxPromptURLs bounds the URL excerpt sent to the model.
	maxPromptURLs = 10
)

// Config for the AI engine client.
type Config struct {
	BaseURL string
	APIKey  string
	Model   string
}

// Client wraps the chat-completion backend.
type Client struct {
	api    *openai.Client
	model  string
	logger *zap.Logger
}

// NewClient creates a client against an OpenAI-compatible endpoint. The
// /v1 suffix is appended when missing so a bare Ollama base URL works.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if !strings.HasSuffix(baseURL, "/v1") {
		baseURL += "/v1"
	}
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = "ollama" // dummy key, local backends ignore it
	}
	model := cfg.Model
	if model == "" {
		model = "llama3.2:1b"
	}

	oc := openai.DefaultConfig(apiKey)
	oc.BaseURL = baseURL

	return &Client{
		api:    openai.NewClientWithConfig(oc),
		model:  model,
		logger: logger,
	}
}

const detectSystemPrompt = "You are a security analyst. Output JSON only."

const detectPromptTemplate = `You are a paranoid security analyst. Analyze this email for phishing.
Be suspicious. If there is ANY doubt, mark it as suspicious.

Return ONLY a JSON object with these EXACT keys:
- "label": "benign", "suspicious", or "phishing"
- "score": integer 0-100 (0=safe, 100=phishing). Be aggressive.
- "reasons": array of strings (brief bullet points)

DATA:
Subject: %s
From: %s
Body: %s
URLs: %s`

// DetectEmail asks the model for a structured phishing verdict. The second
// return value is false when the backend failed or returned garbage; the
// result is then the fixed sentinel and the caller should fall back.
func (c *Client) DetectEmail(ctx context.Context, subject, from, body string, urls []string) (DetectionResult, bool) {
	// Only the prompt excerpt is bounded. The guardrail below still walks
	// the full URL list, so a hard indicator past the excerpt cutoff keeps
	// its effect.
	promptURLs := urls
	if len(promptURLs) > maxPromptURLs {
		promptURLs = promptURLs[:maxPromptURLs]
	}
	urlsJSON, _ := json.Marshal(promptURLs)

	prompt := fmt.Sprintf(detectPromptTemplate, subject, from, truncateUTF8(body, maxBodyChars), string(urlsJSON))

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: detectSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: "json_object"},
	})
	if err != nil {
		c.logger.Warn("AI detection call failed", zap.Error(err))
		return FailureResult("AI analysis failed: " + err.Error()), false
	}
	if len(resp.Choices) == 0 {
		c.logger.Warn("AI detection returned no choices")
		return FailureResult("AI analysis failed: empty response"), false
	}

	raw := make(map[string]interface{})
	content := stripFences(resp.Choices[0].Message.Content)
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		c.logger.Warn("AI detection returned non-JSON payload",
			zap.String("content", content),
			zap.Error(err))
		return FailureResult("AI analysis failed: model returned invalid JSON"), false
	}

	result := RepairConsistency(ApplyGuardrail(Normalize(raw), urls))
	return result, true
}

const rewriteSystemPrompt = `You rewrite dangerous emails into safe summaries. Rules you must follow:
- Do not include any clickable links or URLs.
- Do not include any phone numbers.
- Remove all urgency, threats and manipulation language.
- Preserve the factual content of the message in neutral wording.
Respond with the rewritten text only.`

// RewriteEmail asks the model for a neutralized rendition of the body.
// Unlike DetectEmail this returns an error: the rewriter absorbs it and
// keeps its rule-based baseline.
func (c *Client) RewriteEmail(ctx context.Context, subject, body string) (string, error) {
	prompt := fmt.Sprintf("Subject: %s\n\n%s", subject, truncateUTF8(body, maxBodyChars))

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: rewriteSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("rewrite completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("rewrite completion: empty response")
	}
	return resp.Choices[0].Message.Content, nil
}

// stripFences removes a markdown code fence the model may wrap JSON in.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// truncateUTF8 cuts s to at most max bytes without splitting a rune.
func truncateUTF8(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}
