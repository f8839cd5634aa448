package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"google.golang.org/genai"
)

const geminiModelFast = "gemini-2.5-flash"

// GeminiService generates task suggestions and encouragement text. Without
// an API key it degrades to empty suggestions and canned encouragement.
type GeminiService struct {
	client *genai.Client
}

func NewGeminiService(ctx context.Context, apiKey string) *GeminiService {
	if apiKey == "" {
		log.Println("Gemini API key is not configured; suggestions are disabled")
		return &GeminiService{}
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		log.Printf("Failed to create Gemini client, suggestions disabled: %v", err)
		return &GeminiService{}
	}
	return &GeminiService{client: client}
}

// SuggestSubtasks breaks a broad task into 3-5 short sub-tasks. Any failure
// yields an empty list.
func (s *GeminiService) SuggestSubtasks(ctx context.Context, taskName string) []string {
	if s.client == nil {
		return nil
	}

	prompt := `The user wants to do: "` + taskName + `". Break this down into 3-5 actionable, short sub-tasks for a family todo list. Return only the list of strings.`
	resp, err := s.client.Models.GenerateContent(ctx, geminiModelFast, genai.Text(prompt), &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema: &genai.Schema{
			Type:  genai.TypeArray,
			Items: &genai.Schema{Type: genai.TypeString},
		},
	})
	if err != nil {
		log.Printf("Gemini API error: %v", err)
		return nil
	}

	var subtasks []string
	if err := json.Unmarshal([]byte(resp.Text()), &subtasks); err != nil {
		log.Printf("Failed to parse Gemini suggestions: %v", err)
		return nil
	}
	return subtasks
}

// Encouragement writes a short Japanese message for the partner. Failures
// fall back to a fixed phrase.
func (s *GeminiService) Encouragement(ctx context.Context, completedCount int, partnerName string) string {
	if s.client == nil {
		return "お疲れ様！"
	}

	prompt := fmt.Sprintf(
		"Generate a short, sweet, and encouraging Japanese message (max 1 sentence) from a partner. The user has completed %d tasks today. Address them as %s. No translations, just the Japanese text.",
		completedCount, partnerName)

	resp, err := s.client.Models.GenerateContent(ctx, geminiModelFast, genai.Text(prompt), nil)
	if err != nil {
		log.Printf("Gemini API error: %v", err)
		return "今日も頑張ったね！"
	}

	if text := strings.TrimSpace(resp.Text()); text != "" {
		return text
	}
	return "お疲れ様でした！"
}
