// internal/alerts/alerts.go

// Package alerts notifies operators when a refresh aborts, over SES
// email and/or an SNS topic depending on configuration.
package alerts

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"treasury-portal/internal/common/aws"
	"treasury-portal/internal/common/config"
	"treasury-portal/internal/common/logger"
)

// Alerter receives operator-facing notifications. Delivery failures are
// logged, never propagated; an alert must not break the pipeline it
// reports on.
type Alerter interface {
	RefreshAborted(ctx context.Context, reason string, missingFields map[string]string)
}

// Manager fans an alert out to every enabled channel.
type Manager struct {
	cfg config.AlertConfig
	ses *aws.SESClient
	sns *aws.SNSClient
	log logger.Logger
}

func NewManager(cfg config.AlertConfig, ses *aws.SESClient, sns *aws.SNSClient, log logger.Logger) *Manager {
	return &Manager{cfg: cfg, ses: ses, sns: sns, log: log}
}

func (m *Manager) RefreshAborted(ctx context.Context, reason string, missingFields map[string]string) {
	subject := "Treasury portal: vendor refresh aborted"
	body := formatAbortMessage(reason, missingFields)

	if m.cfg.Email.Enabled && m.ses != nil {
		if err := m.ses.SendPlainEmail(ctx, m.cfg.Email.FromEmail, m.cfg.Email.ToEmail, subject, body); err != nil {
			m.log.Error("failed to send alert email", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}

	if m.cfg.SNS.Enabled && m.sns != nil {
		if err := m.sns.PublishToTopic(ctx, m.cfg.SNS.TopicARN, subject, body); err != nil {
			m.log.Error("failed to publish alert to topic", map[string]interface{}{
				"topic": m.cfg.SNS.TopicARN,
				"error": err.Error(),
			})
		}
	}
}

func formatAbortMessage(reason string, missingFields map[string]string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "The vendor cache refresh was aborted: %s\n", reason)
	if len(missingFields) > 0 {
		b.WriteString("\nMissing fields:\n")
		labels := make([]string, 0, len(missingFields))
		for label := range missingFields {
			labels = append(labels, label)
		}
		sort.Strings(labels)
		for _, label := range labels {
			fmt.Fprintf(&b, "  - %s\n", label)
		}
	}
	b.WriteString("\nThe previously cached catalog remains in service.\n")
	return b.String()
}

// Noop discards all alerts. Used when no channel is configured.
type Noop struct{}

func (Noop) RefreshAborted(context.Context, string, map[string]string) {}
