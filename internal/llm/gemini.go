package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
)

// DefaultGeminiModel is used when no Gemini chat model is configured.
const DefaultGeminiModel = "gemini-1.5-flash"

// GeminiProvider completes prompts with the Gemini API.
type GeminiProvider struct {
	client *genai.Client
	model  string
}

var _ Provider = (*GeminiProvider)(nil)

// NewGeminiProvider wraps a genai client shared with the Gemini embedder.
func NewGeminiProvider(client *genai.Client, model string) *GeminiProvider {
	if model == "" {
		model = DefaultGeminiModel
	}
	return &GeminiProvider{client: client, model: model}
}

// Complete maps system messages to the system instruction and replays the
// remaining turns as chat history before sending the last one.
func (p *GeminiProvider) Complete(ctx context.Context, messages []Message, opts Options) (string, error) {
	// A fresh model handle per call keeps concurrent requests from sharing settings.
	model := p.client.GenerativeModel(p.model)
	model.SetTemperature(float32(opts.Temperature))
	if opts.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(opts.MaxTokens))
	}

	prompt, err := mapGeminiMessages(messages)
	if err != nil {
		return "", err
	}
	model.SystemInstruction = prompt.system

	session := model.StartChat()
	session.History = prompt.history

	resp, err := session.SendMessage(ctx, prompt.last...)
	if err != nil {
		return "", fmt.Errorf("gemini generate content failed: %w", err)
	}

	return responseText(resp)
}

// geminiPrompt is a message list in the shape the chat session expects.
type geminiPrompt struct {
	system  *genai.Content
	history []*genai.Content
	last    []genai.Part
}

// mapGeminiMessages joins system messages into one system instruction, maps
// assistant turns to the "model" role and splits off the final turn to send.
func mapGeminiMessages(messages []Message) (geminiPrompt, error) {
	var (
		system []string
		turns  []*genai.Content
	)
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			system = append(system, m.Content)
		case RoleAssistant:
			turns = append(turns, &genai.Content{Role: "model", Parts: []genai.Part{genai.Text(m.Content)}})
		default:
			turns = append(turns, &genai.Content{Role: "user", Parts: []genai.Part{genai.Text(m.Content)}})
		}
	}
	if len(turns) == 0 {
		return geminiPrompt{}, fmt.Errorf("no user message to send")
	}

	var prompt geminiPrompt
	if len(system) > 0 {
		prompt.system = &genai.Content{
			Parts: []genai.Part{genai.Text(strings.Join(system, "\n\n"))},
		}
	}
	prompt.history = turns[:len(turns)-1]
	prompt.last = turns[len(turns)-1].Parts
	return prompt, nil
}

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("gemini returned no candidates")
	}

	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			b.WriteString(string(txt))
		}
	}
	return b.String(), nil
}
