package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultGeminiModel   = "gemini-3-pro-preview"
	defaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"
)

// FallbackReply is shown instead of surfacing a conversation error.
const FallbackReply = "I'm having a little trouble connecting to my brain right now. Let's try again in a moment!"

const assistantSystemPrompt = `You are LiVo, a proactive personal life assistant.
Your core mission is to be the external brain that connects fragmented pieces of a user's life (tasks, goals, relationships, health, memories).
Be warm, human, proactive, and contextual.
You remember EVERYTHING the user shares.
When responding:
1. Reference past memories if relevant.
2. Be proactive. Suggest next steps or notice patterns.
3. Keep it warm and casual.
4. If the user mentions a goal, break it down.
5. If they mention health issues, look for correlations in their history (but never diagnose).
6. Handle inputs like text descriptions of images or voice transcriptions.

User's Memory Bank:
%s

Current Date/Time: %s`

const extractorSystemPrompt = "You are a memory extraction engine for LiVo. Only extract concrete facts, goals, preferences, or patterns."

// GeminiClient talks to the generative AI API. Both calls are stateless:
// the full history and memory bank travel with every request.
type GeminiClient struct {
	APIKey  string
	Model   string
	BaseURL string
	HTTP    *http.Client
}

// ExtractedFact is one nugget the extractor wants remembered.
type ExtractedFact struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inline_data,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type geminiContent struct {
	Role  string       `json:"role"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	Temperature      float64         `json:"temperature,omitempty"`
	ResponseMimeType string          `json:"response_mime_type,omitempty"`
	ResponseSchema   json.RawMessage `json:"response_schema,omitempty"`
}

type geminiRequest struct {
	SystemInstruction *geminiContent          `json:"system_instruction,omitempty"`
	Contents          []geminiContent         `json:"contents"`
	GenerationConfig  *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func NewGeminiClient(apiKey, model, baseURL string) *GeminiClient {
	if model == "" {
		model = defaultGeminiModel
	}
	if baseURL == "" {
		baseURL = defaultGeminiBaseURL
	}
	return &GeminiClient{
		APIKey:  apiKey,
		Model:   model,
		BaseURL: baseURL,
		HTTP:    &http.Client{Timeout: 60 * time.Second},
	}
}

// Converse produces the assistant reply for one user turn. Failures never
// propagate: any error degrades to FallbackReply.
func (c *GeminiClient) Converse(ctx context.Context, input, imageDataURI string, history []ChatMessage, memories []Memory) string {
	if c.APIKey == "mock" || c.BaseURL == "mock://" {
		return c.mockReply(input)
	}

	system := fmt.Sprintf(assistantSystemPrompt, memoryBank(memories), time.Now().Format("Mon Jan 2 15:04 2006"))

	contents := make([]geminiContent, 0, len(history)+1)
	for _, msg := range history {
		role := "user"
		if msg.Role == RoleAssistant {
			role = "model"
		}
		contents = append(contents, geminiContent{Role: role, Parts: []geminiPart{{Text: msg.Content}}})
	}
	parts := []geminiPart{{Text: input}}
	if imageDataURI != "" {
		if data, ok := dataURIPayload(imageDataURI); ok {
			parts = append(parts, geminiPart{InlineData: &geminiInlineData{MimeType: "image/jpeg", Data: data}})
		}
	}
	contents = append(contents, geminiContent{Role: "user", Parts: parts})

	req := geminiRequest{
		SystemInstruction: &geminiContent{Parts: []geminiPart{{Text: system}}},
		Contents:          contents,
		GenerationConfig:  &geminiGenerationConfig{Temperature: 0.7},
	}
	text, err := c.generate(ctx, req)
	if err != nil {
		return FallbackReply
	}
	if strings.TrimSpace(text) == "" {
		return "I'm processing that. Can you tell me more?"
	}
	return text
}

// extractionSchema constrains the extractor to a JSON array of typed facts.
var extractionSchema = json.RawMessage(`{
  "type": "ARRAY",
  "items": {
    "type": "OBJECT",
    "properties": {
      "type": {"type": "STRING", "description": "note, event, relationship, goal, health, finance, or pattern"},
      "content": {"type": "STRING", "description": "the actual nugget of info to remember"}
    },
    "required": ["type", "content"]
  }
}`)

// ExtractFacts asks the model what the exchange added to long-term memory.
// Best effort: every failure mode yields an empty list, never an error.
func (c *GeminiClient) ExtractFacts(ctx context.Context, userText, assistantText string) []ExtractedFact {
	if c.APIKey == "mock" || c.BaseURL == "mock://" {
		return nil
	}

	prompt := fmt.Sprintf("Based on this interaction, what specific details should I add to the long-term memory bank?\nUser: %q\nAssistant: %q", userText, assistantText)
	req := geminiRequest{
		SystemInstruction: &geminiContent{Parts: []geminiPart{{Text: extractorSystemPrompt}}},
		Contents:          []geminiContent{{Role: "user", Parts: []geminiPart{{Text: prompt}}}},
		GenerationConfig: &geminiGenerationConfig{
			ResponseMimeType: "application/json",
			ResponseSchema:   extractionSchema,
		},
	}
	text, err := c.generate(ctx, req)
	if err != nil {
		return nil
	}
	var facts []ExtractedFact
	if err := json.Unmarshal([]byte(text), &facts); err != nil {
		return nil
	}
	return facts
}

func (c *GeminiClient) generate(ctx context.Context, body geminiRequest) (string, error) {
	if c.APIKey == "" {
		return "", errors.New("gemini api key is required")
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", err
	}
	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", strings.TrimRight(c.BaseURL, "/"), c.Model, c.APIKey)
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	request.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(request)
	if err != nil {
		return "", fmt.Errorf("api request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", err
	}
	var parsed geminiResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("api error %d: %s", parsed.Error.Code, parsed.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	var b strings.Builder
	for _, cand := range parsed.Candidates {
		for _, part := range cand.Content.Parts {
			b.WriteString(part.Text)
		}
		break
	}
	return b.String(), nil
}

// memoryBank renders the memory list the way the system prompt expects:
// one "[timestamp] TYPE: content" line per memory.
func memoryBank(memories []Memory) string {
	if len(memories) == 0 {
		return "No memories yet."
	}
	var b strings.Builder
	for i, m := range memories {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "[%s] %s: %s", m.Timestamp, strings.ToUpper(string(m.Kind)), m.Content)
	}
	return b.String()
}

// dataURIPayload strips the "data:image/...;base64," prefix.
func dataURIPayload(uri string) (string, bool) {
	idx := strings.IndexByte(uri, ',')
	if idx < 0 {
		return "", false
	}
	return uri[idx+1:], true
}

func (c *GeminiClient) mockReply(input string) string {
	input = strings.TrimSpace(input)
	if input == "" {
		return "I'm here whenever you're ready."
	}
	return fmt.Sprintf("I hear you: %q. Tell me more and I'll keep it in mind.", input)
}
