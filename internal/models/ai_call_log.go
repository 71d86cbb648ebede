package models

import "time"

// AICallLog is the durable archive of each completed AI call. The Redis
// detail records expire after 90 days; these rows back the admin usage
// dashboards and are pruned by the retention scheduler.
type AICallLog struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	UserID           string    `gorm:"index;size:64" json:"user_id"`
	Tier             string    `gorm:"size:20" json:"tier"`
	FeatureType      string    `gorm:"index;size:50" json:"feature_type"`
	Model            string    `gorm:"size:100" json:"model"`
	PromptTokens     int       `json:"prompt_tokens"`
	CompletionTokens int       `json:"completion_tokens"`
	TotalTokens      int       `json:"total_tokens"`
	InputCost        float64   `json:"input_cost"`
	OutputCost       float64   `json:"output_cost"`
	TotalCost        float64   `json:"total_cost"`
	LatencyMs        int64     `json:"latency_ms"`
	CreatedAt        time.Time `gorm:"index" json:"created_at"`
}

func (AICallLog) TableName() string { return "ai_call_logs" }
