package handlers

import (
	"context"
	"fmt"
	"time"

	"github.com/nerrad567/device-server/internal/audit"
	"github.com/nerrad567/device-server/internal/dispatch"
	"github.com/nerrad567/device-server/internal/infrastructure/logging"
)

// AuditLogger records every inbound message.
type AuditLogger struct {
	repo   audit.Repository
	logger *logging.Logger
	now    func() time.Time
}

// NewAuditLogger creates an AuditLogger writing to repo.
func NewAuditLogger(repo audit.Repository, logger *logging.Logger) *AuditLogger {
	return &AuditLogger{repo: repo, logger: logger.With("handler", NameAuditLogger), now: time.Now}
}

// Name implements dispatch.Handler.
func (h *AuditLogger) Name() string { return NameAuditLogger }

// Match accepts every topic.
func (h *AuditLogger) Match(string) bool { return true }

// Handle logs the message and appends it to the audit table.
func (h *AuditLogger) Handle(ctx context.Context, msg dispatch.InboundMessage) error {
	h.logger.Info("message received",
		"topic", msg.Topic,
		"payload", logging.Payload(msg.Payload),
		"size", len(msg.Payload),
	)

	entry := &audit.Entry{
		Topic:     msg.Topic,
		Payload:   string(msg.Payload),
		SizeBytes: len(msg.Payload),
		CreatedAt: receivedAt(msg, h.now),
	}
	if id, ok := topics.DeviceID(msg.Topic); ok {
		entry.DeviceID = &id
	}

	if err := h.repo.Create(ctx, entry); err != nil {
		return fmt.Errorf("auditing %s: %w", msg.Topic, err)
	}
	return nil
}
