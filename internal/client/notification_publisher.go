package client

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/Bouchary/saas-tracker-app-sub001/internal/natsclient"
	"github.com/Bouchary/saas-tracker-app-sub001/internal/repository"
)

// NotificationPublisher publishes approval workflow events to NATS JetStream
// for consumption by the notifications service.
//
// Subject convention: notifications.procurement.<event_type>
// Event types: approval_required, request_approved, request_rejected
//
// All publish operations are non-fatal — errors are logged but never
// propagated, so notification failures never interrupt a transition.
type NotificationPublisher struct {
	nats *natsclient.Client
	log  zerolog.Logger
}

// NotificationEvent is the JSON schema published to NATS.
type NotificationEvent struct {
	EventType      string                 `json:"event_type"`
	OrganizationID string                 `json:"organization_id"`
	Recipients     []string               `json:"recipients"`
	ResourceType   string                 `json:"resource_type"`
	ResourceID     string                 `json:"resource_id"`
	IsActionable   bool                   `json:"is_actionable,omitempty"`
	Severity       string                 `json:"severity,omitempty"`
	Category       string                 `json:"category,omitempty"`
	Payload        map[string]interface{} `json:"payload,omitempty"`
}

// NewNotificationPublisher creates a publisher backed by the given NATS client.
func NewNotificationPublisher(nats *natsclient.Client, log zerolog.Logger) *NotificationPublisher {
	return &NotificationPublisher{nats: nats, log: log}
}

// NotifyApprover tells an approver their turn on a request has arrived.
func (p *NotificationPublisher) NotifyApprover(ctx context.Context, req *repository.PurchaseRequest, approverID string, position int) {
	p.publish(ctx, "approval_required", req, []string{approverID}, map[string]interface{}{
		"request_number": req.RequestNumber,
		"title":          req.Title,
		"amount_cents":   req.AmountCents,
		"currency":       req.Currency,
		"position":       position,
		"total":          req.TotalApprovers,
	})
}

// NotifyRequester tells the requester about a terminal outcome.
func (p *NotificationPublisher) NotifyRequester(ctx context.Context, req *repository.PurchaseRequest, outcome string, reason *string) {
	payload := map[string]interface{}{
		"request_number": req.RequestNumber,
		"title":          req.Title,
		"outcome":        outcome,
	}
	if reason != nil {
		payload["reason"] = *reason
	}
	p.publish(ctx, "request_"+outcome, req, []string{req.RequesterID}, payload)
}

func (p *NotificationPublisher) publish(ctx context.Context, eventType string, req *repository.PurchaseRequest, recipients []string, payload map[string]interface{}) {
	if p.nats == nil {
		return
	}
	if len(recipients) == 0 {
		return
	}

	event := &NotificationEvent{
		EventType:      eventType,
		OrganizationID: req.OrganizationID,
		Recipients:     recipients,
		ResourceType:   "purchase_request",
		ResourceID:     req.ID,
		IsActionable:   eventType == "approval_required",
		Severity:       "info",
		Category:       "procurement_approval",
		Payload:        payload,
	}

	data, err := json.Marshal(event)
	if err != nil {
		p.log.Warn().Err(err).Str("event_type", eventType).Msg("notification: failed to marshal event")
		return
	}

	subject := fmt.Sprintf("notifications.procurement.%s", eventType)
	if err := p.nats.Publish(ctx, subject, data); err != nil {
		p.log.Warn().Err(err).
			Str("subject", subject).
			Str("request_id", req.ID).
			Msg("notification: failed to publish NATS event (non-fatal)")
		return
	}

	p.log.Debug().
		Str("subject", subject).
		Str("request_id", req.ID).
		Int("recipients", len(recipients)).
		Msg("notification: event published")
}
