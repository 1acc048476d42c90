package lark

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/travel-approval/internal/application/port"
	"github.com/garyjia/travel-approval/internal/domain/event"
	"github.com/garyjia/travel-approval/internal/domain/workflow"
)

const receiveIDTypeChat = "chat_id"

// StatusNotifier posts committed status changes to the reviewers' group chat
type StatusNotifier struct {
	sender MessageSender
	chatID string
	logger *zap.Logger
}

// NewStatusNotifier creates a notifier for one Lark chat
func NewStatusNotifier(sender MessageSender, chatID string, logger *zap.Logger) *StatusNotifier {
	return &StatusNotifier{
		sender: sender,
		chatID: chatID,
		logger: logger,
	}
}

// NotifyStatusChanged implements port.StatusNotifier
func (n *StatusNotifier) NotifyStatusChanged(ctx context.Context, change port.StatusChange) error {
	if n.chatID == "" {
		return fmt.Errorf("notify chat ID is not configured")
	}

	content, err := json.Marshal(map[string]string{"text": FormatStatusChange(change)})
	if err != nil {
		return fmt.Errorf("failed to marshal message content: %w", err)
	}

	messageID, err := n.sender.SendMessage(ctx, receiveIDTypeChat, n.chatID, "text", string(content))
	if err != nil {
		return fmt.Errorf("failed to notify status change for application %d: %w", change.ApplicationID, err)
	}

	n.logger.Info("Status change notified",
		zap.Int64("application_id", change.ApplicationID),
		zap.String("new_status", change.NewStatus.String()),
		zap.String("message_id", messageID))
	return nil
}

// HandleStatusChanged adapts application.status_changed events to NotifyStatusChanged
func (n *StatusNotifier) HandleStatusChanged(ctx context.Context, evt *event.Event) error {
	if evt.Type != event.TypeStatusChanged {
		return nil
	}
	return n.NotifyStatusChanged(ctx, ChangeFromEvent(evt))
}

// ChangeFromEvent reads a StatusChange out of a status_changed event payload
func ChangeFromEvent(evt *event.Event) port.StatusChange {
	return port.StatusChange{
		ApplicationID:  evt.ApplicationID,
		PreviousStatus: workflow.State(evt.GetPayloadString(event.PayloadPreviousStatus)),
		NewStatus:      workflow.State(evt.GetPayloadString(event.PayloadNewStatus)),
		Action:         workflow.Action(evt.GetPayloadString(event.PayloadAction)),
		Remark:         evt.GetPayloadString(event.PayloadRemark),
		Actor:          evt.Actor,
		Timestamp:      evt.Timestamp,
	}
}

// FormatStatusChange renders the chat message text
func FormatStatusChange(change port.StatusChange) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Application #%d: %s -> %s", change.ApplicationID, displayState(change.PreviousStatus), displayState(change.NewStatus))
	fmt.Fprintf(&b, "\nAction: %s by %s", change.Action, change.Actor)
	if remark := strings.TrimSpace(change.Remark); remark != "" {
		fmt.Fprintf(&b, "\nRemark: %s", remark)
	}
	if !change.Timestamp.IsZero() {
		fmt.Fprintf(&b, "\nAt: %s", change.Timestamp.UTC().Format(time.RFC3339))
	}
	return b.String()
}

// displayState turns RESUBMIT_REQUIRED into "Resubmit Required"
func displayState(s workflow.State) string {
	words := strings.Split(strings.ToLower(s.String()), "_")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}

// Verify interface compliance
var _ port.StatusNotifier = (*StatusNotifier)(nil)
