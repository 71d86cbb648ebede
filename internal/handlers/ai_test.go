package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sashabaranov/go-openai"

	"github.com/novylist/backend/internal/config"
	"github.com/novylist/backend/internal/middleware"
	"github.com/novylist/backend/internal/services"
	"github.com/novylist/backend/internal/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubClient struct {
	resp openai.ChatCompletionResponse
	err  error
}

func (c *stubClient) CreateChatCompletion(context.Context, openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	return c.resp, c.err
}

// testIdentity stands in for the JWT middleware: it injects a fixed caller.
func testIdentity(userID uint, tier string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.ContextUserID, userID)
		c.Set(middleware.ContextUsername, "novelist")
		c.Set(middleware.ContextRole, "user")
		c.Set(middleware.ContextTier, tier)
		c.Next()
	}
}

func newAIRouter(tier string, client services.CompletionClient) (*gin.Engine, *store.MemoryStore) {
	govCfg := config.DefaultGovernanceConfig()
	cfg := &govCfg
	st := store.NewMemoryStore()

	completion := services.NewCompletionService(
		services.NewRateLimitService(cfg, st),
		services.NewTokenBudgetService(cfg, st),
		services.NewCostService(cfg, st),
		client,
		nil,
	)

	router := gin.New()
	router.Use(testIdentity(7, tier))
	router.POST("/api/ai/complete", NewAIHandler(completion).Complete)
	return router, st
}

func postComplete(router *gin.Engine, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/api/ai/complete", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	return w
}

func TestAIComplete_Success(t *testing.T) {
	client := &stubClient{resp: openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: "The storm broke at dawn."}},
		},
		Usage: openai.Usage{PromptTokens: 50, CompletionTokens: 150, TotalTokens: 200},
	}}
	router, _ := newAIRouter("standard", client)

	w := postComplete(router, `{"feature_type":"writingContinuation","prompt":"The storm"}`)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}

	var resp struct {
		Success bool `json:"success"`
		Data    struct {
			Content string `json:"content"`
			Model   string `json:"model"`
			Usage   struct {
				TotalTokens int `json:"total_tokens"`
			} `json:"usage"`
			RateLimitRemaining int `json:"rate_limit_remaining"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !resp.Success {
		t.Error("success = false")
	}
	if resp.Data.Content != "The storm broke at dawn." {
		t.Errorf("content = %q", resp.Data.Content)
	}
	if resp.Data.Model != "gpt-3.5-turbo" {
		t.Errorf("model = %q, want gpt-3.5-turbo", resp.Data.Model)
	}
	if resp.Data.Usage.TotalTokens != 200 {
		t.Errorf("total_tokens = %d, want 200", resp.Data.Usage.TotalTokens)
	}
	if resp.Data.RateLimitRemaining != 99 {
		t.Errorf("rate_limit_remaining = %d, want 99", resp.Data.RateLimitRemaining)
	}
}

func TestAIComplete_MissingFields(t *testing.T) {
	router, _ := newAIRouter("free", &stubClient{})

	tests := []struct {
		name string
		body string
	}{
		{"empty body", `{}`},
		{"no prompt", `{"feature_type":"writingContinuation"}`},
		{"no feature", `{"prompt":"hello"}`},
		{"bad json", `{`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := postComplete(router, tt.body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", w.Code)
			}
		})
	}
}

func TestAIComplete_RateLimited(t *testing.T) {
	client := &stubClient{resp: openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: "ok"}}},
		Usage:   openai.Usage{PromptTokens: 10, CompletionTokens: 10, TotalTokens: 20},
	}}
	router, _ := newAIRouter("free", client)

	body := `{"feature_type":"writingContinuation","prompt":"Once upon a time"}`
	for i := 0; i < 20; i++ {
		if w := postComplete(router, body); w.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d", i, w.Code)
		}
	}

	w := postComplete(router, body)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", w.Code)
	}

	var resp struct {
		Success bool `json:"success"`
		Error   struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Success {
		t.Error("success should be false")
	}
	if resp.Error.Code != services.ErrCodeRateLimitExceeded {
		t.Errorf("error code = %q, want %s", resp.Error.Code, services.ErrCodeRateLimitExceeded)
	}
}

func TestAIComplete_TokenBudgetExceeded(t *testing.T) {
	client := &stubClient{resp: openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: "ok"}}},
	}}
	router, st := newAIRouter("free", client)

	// Pre-spend the whole monthly slice straight through the counters.
	govCfg := config.DefaultGovernanceConfig()
	tokens := services.NewTokenBudgetService(&govCfg, st)
	tokens.Record(context.Background(), "7", "free", "writingContinuation", 70_000)

	w := postComplete(router, `{"feature_type":"writingContinuation","prompt":"more words please"}`)
	if w.Code != http.StatusPaymentRequired {
		t.Fatalf("status = %d, want 402, body %s", w.Code, w.Body.String())
	}

	var resp struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Error.Code != services.ErrCodeTokenBudgetExceeded {
		t.Errorf("error code = %q, want %s", resp.Error.Code, services.ErrCodeTokenBudgetExceeded)
	}
}

func TestAIComplete_UpstreamFailure(t *testing.T) {
	client := &stubClient{err: &openai.APIError{HTTPStatusCode: 500, Message: "backend error"}}
	router, _ := newAIRouter("standard", client)

	w := postComplete(router, `{"feature_type":"plotAnalysis","prompt":"What drives the antagonist?"}`)
	if w.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", w.Code)
	}

	var resp struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Error.Code != services.ErrCodeAIServiceError {
		t.Errorf("error code = %q, want %s", resp.Error.Code, services.ErrCodeAIServiceError)
	}
}
