package ai

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"

	openai "github.com/sashabaranov/go-openai"
)

// HandoffPhrase is the fixed fallback the policy mandates whenever the
// context does not cover the question.
const HandoffPhrase = "Unfortunately, I cannot find exact information regarding your question. " +
	"For current information or to answer a specific request, please call the operator using the button below."

const promptTemplate = `You are a virtual assistant for a car rental service. Answer customer questions using exclusively the CONTEXT provided below.

RULES:
1. Use only information contained in the CONTEXT. Do not add external knowledge.
2. If the CONTEXT does not contain an exact answer, do not guess. Respond with exactly this phrase:
   "%s"
3. Questions about real-time availability, exact prices for non-standard requests, booking status, personal bonus balances or anything absent from the CONTEXT fall under rule 2.
4. Answer precisely and to the point, in the customer's language.

CONTEXT:
%s

CUSTOMER QUESTION:
%s

YOUR ANSWER:`

type completionClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAIGenerator wraps the chat-completion call with the policy context.
// A single failed call is surfaced immediately, no retries.
type OpenAIGenerator struct {
	client      completionClient
	model       string
	contextFile string

	mu      sync.Mutex
	context string
}

// NewOpenAIGenerator builds the generator. baseURL may point at any
// OpenAI-compatible endpoint.
func NewOpenAIGenerator(baseURL, apiKey, model, contextFile string) *OpenAIGenerator {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIGenerator{
		client:      openai.NewClientWithConfig(cfg),
		model:       model,
		contextFile: contextFile,
	}
}

// Answer runs one completion for the question.
func (g *OpenAIGenerator) Answer(ctx context.Context, question string) (string, error) {
	prompt := fmt.Sprintf(promptTemplate, HandoffPhrase, g.loadContext(), question)

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: "You are a helpful support assistant."},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: 1,
		MaxTokens:   1000,
	})
	if err != nil {
		log.Printf("generator call failed: %v", err)
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("generator returned no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func (g *OpenAIGenerator) loadContext() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.context != "" {
		return g.context
	}
	data, err := os.ReadFile(g.contextFile)
	if err != nil {
		log.Printf("context file %s: %v", g.contextFile, err)
		return "Context is not loaded."
	}
	g.context = string(data)
	return g.context
}
