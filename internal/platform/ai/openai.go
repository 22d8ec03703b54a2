package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"
)

// maxDocumentChars caps how much of a document is sent per request. Longer
// uploads are truncated; the tail of a lab report is usually boilerplate.
const maxDocumentChars = 16000

const extractionSystemPrompt = `You are a medical document parser. Extract structured data from the
provided health record and respond with a single JSON object with keys:
patient_info (object of strings), test_results (array of {name, value,
unit, reference_range, date, flag}), diagnoses (array of strings),
medications (array of strings), summary (string), confidence (object
mapping each section name to a score between 0 and 1). Respond with JSON
only, no prose and no markdown fences.`

const insightSystemPrompt = `You are a health educator interpreting parsed medical records for a
patient. Respond with a single JSON object with keys: summary,
key_findings (array of {category, finding, explanation, severity}),
abnormal_values (array of {test_name, value, explanation}),
doctor_questions (array of strings), recommendations (array of strings),
family_screening (array of strings), follow_up_timeline (string), urgency
(one of: none, routine, urgent, emergency). Never diagnose; explain.
Respond with JSON only, no prose and no markdown fences.`

// Client calls a hosted OpenAI-compatible API for document extraction and
// insight generation. It implements ExtractionService and InsightService.
type Client struct {
	api   *openai.Client
	model string
	log   zerolog.Logger
}

// NewClient builds a Client. BaseURL may be empty for the default
// endpoint; model must name a chat-completion model.
func NewClient(apiKey, baseURL, model string, log zerolog.Logger) *Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &Client{
		api:   openai.NewClientWithConfig(cfg),
		model: model,
		log:   log.With().Str("component", "ai").Logger(),
	}
}

// ExtractDocuments runs structured extraction over each document in turn.
// Any failure aborts the batch; callers decide how to degrade.
func (c *Client) ExtractDocuments(ctx context.Context, sessionID uuid.UUID, docs []DocumentInput) ([]Extraction, error) {
	extractions := make([]Extraction, 0, len(docs))
	for _, doc := range docs {
		ext, err := c.extractOne(ctx, doc)
		if err != nil {
			return nil, fmt.Errorf("extracting %s: %w", doc.Filename, err)
		}
		extractions = append(extractions, *ext)
	}
	c.log.Debug().
		Str("session_id", sessionID.String()).
		Int("documents", len(extractions)).
		Msg("extraction complete")
	return extractions, nil
}

func (c *Client) extractOne(ctx context.Context, doc DocumentInput) (*Extraction, error) {
	content := string(doc.Content)
	if len(content) > maxDocumentChars {
		content = content[:maxDocumentChars]
	}

	user := fmt.Sprintf("Filename: %s\nMIME type: %s\n\n%s", doc.Filename, doc.MimeType, content)
	raw, err := c.complete(ctx, extractionSystemPrompt, user)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		ParsedPayload
		Confidence map[string]float64 `json:"confidence"`
	}
	if err := decodeJSONResponse(raw, &parsed); err != nil {
		return nil, fmt.Errorf("malformed extraction response: %w", err)
	}

	return &Extraction{
		FileID:     doc.FileID,
		Payload:    parsed.ParsedPayload,
		Confidence: parsed.Confidence,
	}, nil
}

// GenerateInsights interprets a session's parsed documents. Internal tone
// and language values are translated to the provider vocabulary before
// the call.
func (c *Client) GenerateInsights(ctx context.Context, req InsightRequest) (*InsightPayload, error) {
	docsJSON, err := json.Marshal(req.Documents)
	if err != nil {
		return nil, fmt.Errorf("encoding documents: %w", err)
	}

	user := fmt.Sprintf(
		"Tone: %s\nReading level: %s\n\nParsed documents:\n%s",
		ProviderTone(req.Tone),
		ProviderLanguage(req.LanguageLevel),
		docsJSON,
	)
	raw, err := c.complete(ctx, insightSystemPrompt, user)
	if err != nil {
		return nil, err
	}

	var payload InsightPayload
	if err := decodeJSONResponse(raw, &payload); err != nil {
		return nil, fmt.Errorf("malformed insight response: %w", err)
	}
	if payload.Urgency == "" {
		payload.Urgency = "routine"
	}

	c.log.Debug().
		Str("session_id", req.SessionID.String()).
		Str("tone", req.Tone).
		Str("language_level", req.LanguageLevel).
		Msg("insights generated")
	return &payload, nil
}

func (c *Client) complete(ctx context.Context, system, user string) (string, error) {
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		Temperature: 0.2,
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			return "", fmt.Errorf("provider rejected request: %w", err)
		}
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: empty completion", ErrUnavailable)
	}
	return resp.Choices[0].Message.Content, nil
}

// decodeJSONResponse tolerates models that wrap JSON in markdown fences
// despite instructions.
func decodeJSONResponse(raw string, v any) error {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return json.Unmarshal([]byte(s), v)
}
