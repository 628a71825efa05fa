package subscription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/kiranshivaraju/errdigest/internal/config"
	"github.com/kiranshivaraju/errdigest/internal/metrics"
	"github.com/kiranshivaraju/errdigest/internal/store"
	"github.com/kiranshivaraju/errdigest/pkg/models"
)

// Reply is the confirmation or error mail sent back to the command sender.
type Reply struct {
	From    string
	To      string
	Subject string
	Body    string
}

// Service applies subscription commands to the store.
type Service struct {
	store   store.Store
	policy  SenderPolicy
	allowed []string
	from    string
}

func NewService(s store.Store, cfg config.SubscriptionConfig) *Service {
	return &Service{
		store:   s,
		policy:  NewSenderPolicy(cfg),
		allowed: cfg.AllowedClientIDs,
		from:    cfg.SenderEmail,
	}
}

// Handle processes one command from sender. Senders rejected by the policy
// get no reply and a nil Reply is returned.
func (s *Service) Handle(ctx context.Context, sender, subject string) (*Reply, error) {
	if !s.policy.Allows(sender) {
		slog.Warn("ignoring subscription command from unauthorized sender", "sender", sender)
		metrics.SubscriptionCommands.WithLabelValues("ignored").Inc()
		return nil, nil
	}

	cmd := ParseSubject(subject)

	var current *models.Subscription
	if cmd.ClientID != "" {
		sub, err := s.store.GetSubscription(ctx, cmd.ClientID)
		switch {
		case err == nil:
			current = sub
		case !errors.Is(err, store.ErrNotFound):
			return nil, fmt.Errorf("load subscription %s: %w", cmd.ClientID, err)
		}
	}

	d := Decide(cmd, sender, current, s.allowed)
	if err := s.apply(ctx, cmd.ClientID, sender, d.Mutation); err != nil {
		return nil, err
	}

	slog.Info(d.LogMessage, "client_id", cmd.ClientID, "action", cmd.Action)
	metrics.SubscriptionCommands.WithLabelValues(actionLabel(cmd, d)).Inc()

	return &Reply{
		From:    s.from,
		To:      sender,
		Subject: d.ReplySubject,
		Body:    d.ReplyBody,
	}, nil
}

func (s *Service) apply(ctx context.Context, clientID, sender string, m Mutation) error {
	switch m {
	case MutationAdd:
		if _, err := s.store.AddSubscriber(ctx, clientID, sender); err != nil {
			return fmt.Errorf("subscribe %s to %s: %w", sender, clientID, err)
		}
	case MutationRemove:
		if _, err := s.store.RemoveSubscriber(ctx, clientID, sender); err != nil {
			return fmt.Errorf("unsubscribe %s from %s: %w", sender, clientID, err)
		}
	}
	return nil
}

// Subscribers returns the subscription for clientID.
func (s *Service) Subscribers(ctx context.Context, clientID string) (*models.Subscription, error) {
	return s.store.GetSubscription(ctx, clientID)
}

func actionLabel(cmd Command, d Decision) string {
	switch d.Mutation {
	case MutationAdd:
		return ActionSubscribe
	case MutationRemove:
		return ActionUnsubscribe
	}
	if cmd.Action == ActionSubscribe || cmd.Action == ActionUnsubscribe {
		return "noop"
	}
	return "rejected"
}
