package engine

import (
	"time"

	"creator-automation/backend/pkg/models"
)

// SeedWorkflow is a built-in workflow installed by Initialize.
type SeedWorkflow struct {
	ID         string
	Definition models.WorkflowDefinition
}

// DefaultWorkflows returns the built-in workflows for the content platform.
func DefaultWorkflows() []SeedWorkflow {
	return []SeedWorkflow{
		{
			ID: "engagement-recovery",
			Definition: models.WorkflowDefinition{
				Name:        "Engagement Recovery",
				Description: "Boosts freshly published content that is not getting traction.",
				Triggers:    []string{"content.published"},
				Conditions: []models.Condition{
					{Type: "engagement_score", Operator: OpLessThan, Value: 20},
				},
				Actions: []models.Action{
					{Target: "notification-service", Operation: "notify_creator", Params: map[string]any{
						"template": "low_engagement_tips",
					}},
					{Target: "promotion-service", Operation: "schedule_boost", Params: map[string]any{
						"durationHours": 24,
					}},
				},
				Cooldown: models.Duration(6 * time.Hour),
				Priority: models.PriorityHigh,
			},
		},
		{
			ID: "milestone-pricing-review",
			Definition: models.WorkflowDefinition{
				Name:        "Milestone Pricing Review",
				Description: "Suggests a subscription price review when a creator crosses a subscriber milestone.",
				Triggers:    []string{"subscriber.milestone"},
				Conditions: []models.Condition{
					{Type: "subscriberCount", Operator: OpGreaterEqual, Value: 1000},
				},
				Actions: []models.Action{
					{Target: "pricing-service", Operation: "recommend_price"},
					{Target: BuiltinTarget, Operation: OpLog, Params: map[string]any{
						"message": "pricing review requested",
					}},
				},
				Cooldown: models.Duration(24 * time.Hour),
				Priority: models.PriorityMedium,
			},
		},
		{
			ID: "payment-failure-escalation",
			Definition: models.WorkflowDefinition{
				Name:        "Payment Failure Escalation",
				Description: "Escalates repeated payment failures and suspends the subscription.",
				Triggers:    []string{"payment.failed"},
				Conditions: []models.Condition{
					{Type: "attempts", Operator: OpGreaterEqual, Value: 3},
				},
				Actions: []models.Action{
					{Target: BuiltinTarget, Operation: OpSendAlert, Params: map[string]any{
						"title":    "Repeated payment failure",
						"message":  "A subscriber payment failed three or more times",
						"severity": string(models.SeverityError),
					}},
					{Target: "notification-service", Operation: "notify_subscriber", Params: map[string]any{
						"template": "payment_failed",
					}},
					{Target: "billing-service", Operation: "suspend_subscription", Critical: true},
				},
				Priority: models.PriorityCritical,
			},
		},
		{
			ID: "inactive-creator-nudge",
			Definition: models.WorkflowDefinition{
				Name:        "Inactive Creator Nudge",
				Description: "Reminds creators who have not posted for two weeks.",
				Triggers:    []string{"creator.inactive"},
				Conditions: []models.Condition{
					{Type: "lastPostAt", Operator: OpOlderThan, Value: int64((14 * 24 * time.Hour) / time.Millisecond)},
				},
				Actions: []models.Action{
					{Target: "notification-service", Operation: "notify_creator", Params: map[string]any{
						"template": "come_back",
					}},
				},
				Cooldown: models.Duration(7 * 24 * time.Hour),
				Priority: models.PriorityLow,
			},
		},
	}
}
