// Package audit records every interaction with an external provider on a
// per-organizer Redis stream. Entries are append-only; retention is handled
// by stream trimming outside this package.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"synchub/integration"
)

// Logger appends and reads audit entries.
type Logger struct {
	client *redis.Client
}

// NewLogger creates a new audit logger.
func NewLogger(client *redis.Client) *Logger {
	return &Logger{client: client}
}

func streamKey(organizerID string) string {
	return "audit:" + organizerID
}

// Record appends one entry to the organizer's audit stream. Failures are
// reported but must never block the operation being audited, so callers
// typically log and continue.
func (l *Logger) Record(ctx context.Context, entry integration.LogEntry) error {
	if entry.OrganizerID == "" {
		return fmt.Errorf("audit entry requires an organizer id")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	values := map[string]interface{}{
		"log_type":         entry.LogType,
		"integration_type": entry.IntegrationType,
		"message":          entry.Message,
		"success":          fmt.Sprintf("%t", entry.Success),
		"created_at":       entry.CreatedAt.Format(time.RFC3339Nano),
	}
	if entry.BookingID != "" {
		values["booking_id"] = entry.BookingID
	}
	if len(entry.Details) > 0 {
		details, err := json.Marshal(entry.Details)
		if err != nil {
			return fmt.Errorf("failed to marshal audit details: %w", err)
		}
		values["details"] = string(details)
	}

	if err := l.client.XAdd(ctx, &redis.XAddArgs{
		Stream: streamKey(entry.OrganizerID),
		Values: values,
	}).Err(); err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

// Log is Record minus error plumbing for call sites that must not fail on an
// audit problem.
func (l *Logger) Log(ctx context.Context, entry integration.LogEntry) {
	if err := l.Record(ctx, entry); err != nil {
		log.Printf("Warning: failed to record audit entry (%s): %v", entry.LogType, err)
	}
}

// Recent returns up to count entries for an organizer, newest first.
func (l *Logger) Recent(ctx context.Context, organizerID string, count int64) ([]integration.LogEntry, error) {
	msgs, err := l.client.XRevRangeN(ctx, streamKey(organizerID), "+", "-", count).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read audit stream: %w", err)
	}

	entries := make([]integration.LogEntry, 0, len(msgs))
	for _, msg := range msgs {
		entry := integration.LogEntry{OrganizerID: organizerID}
		if v, ok := msg.Values["log_type"].(string); ok {
			entry.LogType = v
		}
		if v, ok := msg.Values["integration_type"].(string); ok {
			entry.IntegrationType = v
		}
		if v, ok := msg.Values["message"].(string); ok {
			entry.Message = v
		}
		if v, ok := msg.Values["success"].(string); ok {
			entry.Success = v == "true"
		}
		if v, ok := msg.Values["booking_id"].(string); ok {
			entry.BookingID = v
		}
		if v, ok := msg.Values["created_at"].(string); ok {
			if ts, err := time.Parse(time.RFC3339Nano, v); err == nil {
				entry.CreatedAt = ts
			}
		}
		if v, ok := msg.Values["details"].(string); ok && v != "" {
			details := map[string]string{}
			if err := json.Unmarshal([]byte(v), &details); err == nil {
				entry.Details = details
			}
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
