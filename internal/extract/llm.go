package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/sashabaranov/go-openai"

	"github.com/ppiankov/cvlacsync/internal/model"
)

const llmSystemPrompt = `You extract research projects from a researcher's CV page.
Reply with a JSON object {"facts": [...]} and nothing else. Each fact has the keys
category, full_name, sex, degree, project_type, parent_node, project_title and year.
category, full_name, sex and degree describe the researcher and repeat on every fact.
parent_node is the section heading the project is listed under. year is the start
year as an integer, or null when the page does not say. Only report what the page
states; use an empty string for unknown text fields. Return {"facts": []} when the
page lists no projects.`

// LLMExtractor asks an OpenAI-compatible chat model to read a page
type LLMExtractor struct {
	client       *openai.Client
	fetcher      Fetcher
	model        string
	maxTextChars int
}

// NewLLMExtractor creates a model-assisted extractor
func NewLLMExtractor(cfg model.LLMConfig, f Fetcher) (*LLMExtractor, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("llm extractor: API key is required")
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	modelName := cfg.Model
	if modelName == "" {
		modelName = openai.GPT4oMini
	}

	return &LLMExtractor{
		client:       openai.NewClientWithConfig(clientConfig),
		fetcher:      f,
		model:        modelName,
		maxTextChars: cfg.MaxTextChars,
	}, nil
}

type llmReply struct {
	Facts []struct {
		Category     string `json:"category"`
		FullName     string `json:"full_name"`
		Sex          string `json:"sex"`
		Degree       string `json:"degree"`
		ProjectType  string `json:"project_type"`
		ParentNode   string `json:"parent_node"`
		ProjectTitle string `json:"project_title"`
		Year         *int   `json:"year"`
	} `json:"facts"`
}

// Extract fetches link, reduces it to text and asks the model for facts
func (e *LLMExtractor) Extract(ctx context.Context, link string) ([]model.ExtractedFact, error) {
	page, err := e.fetcher.Fetch(ctx, link)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", link, err)
	}

	facts, err := e.extractPage(ctx, page)
	if err != nil {
		forget(e.fetcher, link)
		return nil, err
	}
	return facts, nil
}

func (e *LLMExtractor) extractPage(ctx context.Context, page *model.Page) ([]model.ExtractedFact, error) {
	body, err := decodeBody(page)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	text := truncate(PageText(doc.Get(0)), e.maxTextChars)
	if strings.TrimSpace(text) == "" {
		return nil, ErrNoProfile
	}

	resp, err := e.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: e.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: llmSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 0,
	})
	if err != nil {
		return nil, fmt.Errorf("llm request: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("llm returned no choices")
	}

	return parseLLMReply(resp.Choices[0].Message.Content)
}

func parseLLMReply(content string) ([]model.ExtractedFact, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	var reply llmReply
	if err := json.Unmarshal([]byte(content), &reply); err != nil {
		return nil, fmt.Errorf("decode llm reply: %w", err)
	}

	facts := make([]model.ExtractedFact, 0, len(reply.Facts))
	for _, f := range reply.Facts {
		if strings.TrimSpace(f.ProjectTitle) == "" {
			continue
		}
		facts = append(facts, model.ExtractedFact{
			Category:     strings.TrimSpace(f.Category),
			FullName:     strings.TrimSpace(f.FullName),
			Sex:          strings.TrimSpace(f.Sex),
			Degree:       strings.TrimSpace(f.Degree),
			ProjectType:  strings.TrimSpace(f.ProjectType),
			ParentNode:   strings.TrimSpace(f.ParentNode),
			ProjectTitle: strings.TrimSpace(f.ProjectTitle),
			Year:         f.Year,
		})
	}
	return facts, nil
}
