package services

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/novylist/backend/pkg/logger"
)

// Governance error codes returned to request handlers.
const (
	ErrCodeRateLimitExceeded   = "RATE_LIMIT_EXCEEDED"
	ErrCodeBudgetExceeded      = "BUDGET_EXCEEDED"
	ErrCodeTokenBudgetExceeded = "TOKEN_BUDGET_EXCEEDED"
	ErrCodeAIServiceError      = "AI_SERVICE_ERROR"
)

// defaultMaxTokens caps the completion when the caller does not set one.
// It also serves as the output-token estimate for admission checks.
const defaultMaxTokens = 1000

// GovernanceError is the structured failure returned when a request is
// rejected or the upstream call fails. Details carries the relevant tracker
// snapshot so the UI can render remaining quota.
type GovernanceError struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func (e *GovernanceError) Error() string {
	return e.Code + ": " + e.Message
}

// CompletionOptions are caller-supplied generation parameters, passed
// through to the upstream API. Model overrides the tier/feature policy.
type CompletionOptions struct {
	Model            string   `json:"model,omitempty"`
	MaxTokens        int      `json:"max_tokens,omitempty"`
	Temperature      *float32 `json:"temperature,omitempty"`
	TopP             *float32 `json:"top_p,omitempty"`
	FrequencyPenalty float32  `json:"frequency_penalty,omitempty"`
	PresencePenalty  float32  `json:"presence_penalty,omitempty"`
}

type CompletionRequest struct {
	UserID      string
	Tier        string
	FeatureType string
	Prompt      string
	Options     CompletionOptions
}

type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type CompletionResult struct {
	Content            string       `json:"content"`
	Model              string       `json:"model"`
	Usage              TokenUsage   `json:"usage"`
	ProcessingTimeMs   int64        `json:"processing_time_ms"`
	Cost               CostEstimate `json:"cost"`
	RateLimitRemaining int          `json:"rate_limit_remaining"`
	RateLimitReset     int64        `json:"rate_limit_reset"`
}

// CompletionService is the single entry point for AI requests. It sequences
// the admission checks, issues the upstream call, and records actual usage
// only after the call succeeds. No retry, single attempt per invocation.
//
// Concurrent requests for the same user can both pass the checks on the
// same usage snapshot; the budgets are best-effort ceilings, not hard ones.
type CompletionService struct {
	rateLimits *RateLimitService
	tokens     *TokenBudgetService
	costs      *CostService
	client     CompletionClient
	archive    TaskQueue
}

func NewCompletionService(rateLimits *RateLimitService, tokens *TokenBudgetService, costs *CostService, client CompletionClient, archive TaskQueue) *CompletionService {
	return &CompletionService{
		rateLimits: rateLimits,
		tokens:     tokens,
		costs:      costs,
		client:     client,
		archive:    archive,
	}
}

// ApproximateTokenCount estimates tokens as prompt length divided by four.
// A crude stand-in for real tokenization; admission uses this estimate
// while billing uses provider-reported counts.
func ApproximateTokenCount(text string) int {
	return len(text) / 4
}

// Complete runs the full governance sequence for one AI request. On any
// rejection or upstream failure it returns a *GovernanceError and mutates
// no counters.
func (s *CompletionService) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResult, error) {
	// 1. Rate limit gate, checked before anything is spent.
	rl := s.rateLimits.Check(ctx, req.UserID, req.Tier)
	if rl.IsRateLimited {
		return nil, &GovernanceError{
			Code:    ErrCodeRateLimitExceeded,
			Message: "daily AI request limit reached",
			Details: rl,
		}
	}

	// 2. Resolve model: caller override wins over the tier/feature policy.
	model := req.Options.Model
	if model == "" {
		model = s.costs.SelectModel(req.Tier, req.FeatureType)
	}

	// 3. Token estimate for admission.
	promptTokens := ApproximateTokenCount(req.Prompt)
	maxTokens := req.Options.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	// 4. Dollar budget gate on the estimated cost.
	est := s.costs.Estimate(model, promptTokens, maxTokens)
	budget := s.costs.CheckBudget(ctx, req.UserID, req.Tier, est.TotalCost)
	if budget.HasExceededLimit {
		return nil, &GovernanceError{
			Code:    ErrCodeBudgetExceeded,
			Message: "AI cost budget exceeded",
			Details: budget,
		}
	}

	// 5. Token budget gate on the estimated total.
	tokenBudget := s.tokens.Check(ctx, req.UserID, req.Tier, req.FeatureType, int64(promptTokens+maxTokens))
	if !tokenBudget.HasSufficientBudget {
		return nil, &GovernanceError{
			Code:    ErrCodeTokenBudgetExceeded,
			Message: "monthly token budget exceeded",
			Details: tokenBudget,
		}
	}

	// 6. Single upstream attempt.
	start := time.Now()
	resp, err := s.client.CreateChatCompletion(ctx, s.buildRequest(req, model, maxTokens))
	if err != nil {
		return nil, classifyUpstreamError(err)
	}
	elapsed := time.Since(start)

	if len(resp.Choices) == 0 {
		return nil, &GovernanceError{
			Code:    ErrCodeAIServiceError,
			Message: "no completion returned by AI service",
		}
	}

	// 7. Record actual usage, never the estimate. Order: rate limit point,
	// token counters, cost counters.
	usage := TokenUsage{
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
	}

	rlAfter := s.rateLimits.Consume(ctx, req.UserID, req.Tier)
	s.tokens.Record(ctx, req.UserID, req.Tier, req.FeatureType, int64(usage.TotalTokens))
	rec := s.costs.RecordCost(ctx, req.UserID, req.Tier, req.FeatureType, model, usage.PromptTokens, usage.CompletionTokens)

	if s.archive != nil {
		if err := s.archive.Enqueue(&ArchiveTask{
			UserID:           req.UserID,
			Tier:             req.Tier,
			FeatureType:      req.FeatureType,
			Model:            model,
			PromptTokens:     usage.PromptTokens,
			CompletionTokens: usage.CompletionTokens,
			InputCost:        rec.InputCost,
			OutputCost:       rec.OutputCost,
			TotalCost:        rec.TotalCost,
			LatencyMs:        elapsed.Milliseconds(),
			CalledAt:         time.Now().UTC(),
		}); err != nil {
			logger.Warn().Err(err).Str("user_id", req.UserID).Msg("failed to enqueue call archive task")
		}
	}

	logger.Info().
		Str("user_id", req.UserID).
		Str("tier", req.Tier).
		Str("feature", req.FeatureType).
		Str("model", model).
		Int("total_tokens", usage.TotalTokens).
		Float64("cost", rec.TotalCost).
		Dur("latency", elapsed).
		Msg("AI completion")

	return &CompletionResult{
		Content:          resp.Choices[0].Message.Content,
		Model:            model,
		Usage:            usage,
		ProcessingTimeMs: elapsed.Milliseconds(),
		Cost: CostEstimate{
			Model:        model,
			InputTokens:  usage.PromptTokens,
			OutputTokens: usage.CompletionTokens,
			InputCost:    rec.InputCost,
			OutputCost:   rec.OutputCost,
			TotalCost:    rec.TotalCost,
		},
		RateLimitRemaining: rlAfter.Remaining,
		RateLimitReset:     rlAfter.ResetAt,
	}, nil
}

func (s *CompletionService) buildRequest(req *CompletionRequest, model string, maxTokens int) openai.ChatCompletionRequest {
	out := openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: req.Prompt},
		},
		MaxTokens:        maxTokens,
		FrequencyPenalty: req.Options.FrequencyPenalty,
		PresencePenalty:  req.Options.PresencePenalty,
		// Opaque id for upstream abuse monitoring.
		User: req.UserID,
	}

	if req.Options.Temperature != nil {
		out.Temperature = *req.Options.Temperature
	} else {
		out.Temperature = 0.7
	}
	if req.Options.TopP != nil {
		out.TopP = *req.Options.TopP
	}

	return out
}

// classifyUpstreamError maps provider errors onto the governance taxonomy:
// upstream throttling surfaces as RATE_LIMIT_EXCEEDED, everything else as
// AI_SERVICE_ERROR. The upstream status and message are attached verbatim.
func classifyUpstreamError(err error) *GovernanceError {
	status := 0
	message := err.Error()

	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
		message = apiErr.Message
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}

	logger.Error().Err(err).Int("upstream_status", status).Msg("AI service call failed")

	code := ErrCodeAIServiceError
	if status == http.StatusTooManyRequests {
		code = ErrCodeRateLimitExceeded
	}

	return &GovernanceError{
		Code:    code,
		Message: "AI service error: " + message,
		Details: map[string]interface{}{
			"upstream_status": status,
		},
	}
}
