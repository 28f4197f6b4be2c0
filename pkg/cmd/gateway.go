// Package cmd provides shared initialization for the cadence binaries.
package cmd

import (
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/vantagecrm/cadence/pkg/gateway"
	"github.com/vantagecrm/cadence/pkg/gateway/email"
	"github.com/vantagecrm/cadence/pkg/gateway/linkedin"
	"github.com/vantagecrm/cadence/pkg/gateway/telegram"
	"github.com/vantagecrm/cadence/pkg/gateway/voicecall"
	"github.com/vantagecrm/cadence/pkg/gateway/whatsapp"
	"github.com/vantagecrm/cadence/pkg/inbox"
	"github.com/vantagecrm/cadence/pkg/persistence"
)

const defaultGatewayTimeout = 15 * time.Second

// GatewayConfig holds the provider credentials per channel. A channel whose
// credentials are absent is simply not registered; sends on it fail with
// ErrChannelNotRegistered and the runs carry on.
type GatewayConfig struct {
	TelegramAPIBase  string
	TelegramBotToken string

	WhatsAppAPIBase       string
	WhatsAppPhoneNumberID string
	WhatsAppAccessToken   string

	LinkedInServiceURL string
	LinkedInAPIKey     string

	EmailRelayURL    string
	EmailAPIKey      string
	EmailFromAddress string

	VoiceAPIBase string
	VoiceAPIKey  string
	VoiceAgentID string
}

// NewGatewayRegistry registers a sender for every configured channel and
// returns the mailbox client when the email relay is configured.
func NewGatewayRegistry(cfg GatewayConfig, audit persistence.AuditRepository, clock clockwork.Clock, logger *slog.Logger) (*gateway.Registry, inbox.Mailbox) {
	client := gateway.NewHTTPClient(defaultGatewayTimeout)
	registry := gateway.NewRegistry(audit, clock, logger)

	if cfg.TelegramBotToken != "" {
		registry.Register(telegram.NewSender(cfg.TelegramAPIBase, cfg.TelegramBotToken, client, logger))
	}

	if cfg.WhatsAppPhoneNumberID != "" && cfg.WhatsAppAccessToken != "" {
		registry.Register(whatsapp.NewSender(cfg.WhatsAppAPIBase, cfg.WhatsAppPhoneNumberID, cfg.WhatsAppAccessToken, client, logger))
	}

	if cfg.LinkedInServiceURL != "" {
		registry.Register(linkedin.NewSender(cfg.LinkedInServiceURL, cfg.LinkedInAPIKey, client, logger))
	}

	var mailbox inbox.Mailbox

	if cfg.EmailRelayURL != "" {
		registry.Register(email.NewSender(cfg.EmailRelayURL, cfg.EmailAPIKey, cfg.EmailFromAddress, client, logger))
		mailbox = email.NewMailboxClient(cfg.EmailRelayURL, cfg.EmailAPIKey, client)
	}

	if cfg.VoiceAPIBase != "" {
		registry.Register(voicecall.NewSender(cfg.VoiceAPIBase, cfg.VoiceAPIKey, cfg.VoiceAgentID, client, logger))
	}

	logger.Info("Channel gateways registered", "channels", registry.Kinds())

	return registry, mailbox
}
