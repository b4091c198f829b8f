package engine

import (
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Event kinds published to the notification dispatcher.
const (
	EventBadgeGranted   = "badge_granted"
	EventLevelUp        = "level_up"
	EventQuestCompleted = "quest_completed"
	EventRewardRedeemed = "reward_redeemed"
	EventSpinResult     = "spin_result"
)

// Event is a fire-and-forget notification payload. Delivery and retry are
// the dispatcher's concern; the engine never blocks on it.
type Event struct {
	ID        string                 `json:"id"`
	Kind      string                 `json:"kind"`
	AccountID uint                   `json:"account_id"`
	Title     string                 `json:"title"`
	Message   string                 `json:"message"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// Notifier is the boundary to the external notification dispatcher.
type Notifier interface {
	Publish(Event)
}

// LogNotifier is the default dispatcher: it assigns event IDs and writes the
// event to the structured log. Deployments swap in a real transport behind
// the same interface.
type LogNotifier struct {
	logger *zap.SugaredLogger
}

// NewLogNotifier creates a LogNotifier. A nil logger disables output.
func NewLogNotifier(logger *zap.SugaredLogger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Publish logs the event. Never fails, never blocks on delivery.
func (n *LogNotifier) Publish(ev Event) {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if n.logger == nil {
		return
	}
	n.logger.Infow("notification",
		"event_id", ev.ID,
		"kind", ev.Kind,
		"account_id", ev.AccountID,
		"title", ev.Title,
		"message", ev.Message,
	)
}
