package alert

import (
	"context"
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/hamed0406/pingbase/internal/domain"
	"github.com/hamed0406/pingbase/internal/repo"
)

type Mailer interface {
	Send(ctx context.Context, to, subject, html string) error
}

type WebhookPoster interface {
	Post(ctx context.Context, url string, payload any) error
}

type SlackSender interface {
	Send(ctx context.Context, webhookURL, title, text string) error
}

// Dispatcher notifies an owner's primary email and every active alert
// channel. Each send is attempted once; failures are logged and dropped.
type Dispatcher struct {
	log      *zap.Logger
	contacts repo.ContactStore
	channels repo.ChannelStore
	mail     Mailer
	hooks    WebhookPoster
	slack    SlackSender
}

func NewDispatcher(
	log *zap.Logger,
	contacts repo.ContactStore,
	channels repo.ChannelStore,
	mail Mailer,
	hooks WebhookPoster,
	slack SlackSender,
) *Dispatcher {
	return &Dispatcher{
		log:      log,
		contacts: contacts,
		channels: channels,
		mail:     mail,
		hooks:    hooks,
		slack:    slack,
	}
}

// Dispatch never returns an error; the caller must not observe delivery.
func (d *Dispatcher) Dispatch(ctx context.Context, ownerID string, ev domain.AlertEvent) {
	sent, err := d.deliver(ctx, ownerID, ev)
	fields := []zap.Field{
		zap.String("owner_id", ownerID),
		zap.String("monitor_id", string(ev.MonitorID)),
		zap.String("type", string(ev.Type)),
		zap.Int("delivered", sent),
	}
	if err != nil {
		d.log.Warn("alert_dispatch_partial", append(fields, zap.Errors("errors", multierr.Errors(err)))...)
		return
	}
	d.log.Info("alert_dispatched", fields...)
}

func (d *Dispatcher) deliver(ctx context.Context, ownerID string, ev domain.AlertEvent) (int, error) {
	var (
		errs    error
		sent    int
		subject = Subject(ev)
		body    = HTMLBody(ev)
	)

	email, err := d.contacts.OwnerEmail(ctx, ownerID)
	switch {
	case err != nil:
		errs = multierr.Append(errs, fmt.Errorf("owner email lookup: %w", err))
	case email != "":
		if err := d.mail.Send(ctx, email, subject, body); err != nil {
			d.channelFailed(ownerID, "owner_email", domain.ChannelEmail, err)
			errs = multierr.Append(errs, err)
		} else {
			sent++
		}
	}

	channels, err := d.channels.ActiveChannels(ctx, ownerID)
	if err != nil {
		return sent, multierr.Append(errs, fmt.Errorf("load alert channels: %w", err))
	}
	for _, ch := range channels {
		if err := d.send(ctx, ch, ev, subject, body); err != nil {
			d.channelFailed(ownerID, ch.ID, ch.Type, err)
			errs = multierr.Append(errs, fmt.Errorf("channel %s (%s): %w", ch.ID, ch.Type, err))
			continue
		}
		sent++
	}
	return sent, errs
}

func (d *Dispatcher) send(ctx context.Context, ch domain.AlertChannel, ev domain.AlertEvent, subject, body string) (err error) {
	// a misbehaving transport must not take the other channels down with it
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	if ch.Config == nil {
		return fmt.Errorf("channel config missing or malformed")
	}
	switch ch.Type {
	case domain.ChannelEmail:
		return d.mail.Send(ctx, ch.Config["email"], subject, body)
	case domain.ChannelWebhook:
		return d.hooks.Post(ctx, ch.Config["url"], NewWebhookPayload(ev))
	case domain.ChannelSlack:
		return d.slack.Send(ctx, ch.Config["webhookUrl"], subject, SlackText(ev))
	default:
		return fmt.Errorf("unknown channel type %q", ch.Type)
	}
}

func (d *Dispatcher) channelFailed(ownerID, channelID string, t domain.ChannelType, err error) {
	d.log.Warn("alert_channel_failed",
		zap.String("owner_id", ownerID),
		zap.String("channel_id", channelID),
		zap.String("channel_type", string(t)),
		zap.Error(err),
	)
}
