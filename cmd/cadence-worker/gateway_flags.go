package main

import (
	cli "github.com/urfave/cli/v3"

	"github.com/vantagecrm/cadence/pkg/cmd"
)

// gatewayFlags declares the per-channel provider credentials. Channels left
// unconfigured are not registered on this worker.
func gatewayFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "telegram-api-base",
			Usage:   "Override for the Telegram Bot API base URL",
			Sources: cli.EnvVars("TELEGRAM_API_BASE"),
		},
		&cli.StringFlag{
			Name:    "telegram-bot-token",
			Usage:   "Telegram bot token",
			Sources: cli.EnvVars("TELEGRAM_BOT_TOKEN"),
		},
		&cli.StringFlag{
			Name:    "whatsapp-api-base",
			Usage:   "Override for the WhatsApp Graph API base URL",
			Sources: cli.EnvVars("WHATSAPP_API_BASE"),
		},
		&cli.StringFlag{
			Name:    "whatsapp-phone-number-id",
			Usage:   "WhatsApp Business phone number id",
			Sources: cli.EnvVars("WHATSAPP_PHONE_NUMBER_ID"),
		},
		&cli.StringFlag{
			Name:    "whatsapp-access-token",
			Usage:   "WhatsApp Business access token",
			Sources: cli.EnvVars("WHATSAPP_ACCESS_TOKEN"),
		},
		&cli.StringFlag{
			Name:    "linkedin-service-url",
			Usage:   "LinkedIn automation service URL",
			Sources: cli.EnvVars("LINKEDIN_SERVICE_URL"),
		},
		&cli.StringFlag{
			Name:    "linkedin-api-key",
			Usage:   "LinkedIn automation service API key",
			Sources: cli.EnvVars("LINKEDIN_API_KEY"),
		},
		&cli.StringFlag{
			Name:    "email-relay-url",
			Usage:   "Mail relay service URL",
			Sources: cli.EnvVars("EMAIL_RELAY_URL"),
		},
		&cli.StringFlag{
			Name:    "email-api-key",
			Usage:   "Mail relay API key",
			Sources: cli.EnvVars("EMAIL_API_KEY"),
		},
		&cli.StringFlag{
			Name:    "email-from-address",
			Usage:   "Sender address for outbound mail",
			Sources: cli.EnvVars("EMAIL_FROM_ADDRESS"),
		},
		&cli.StringFlag{
			Name:    "voice-api-base",
			Usage:   "Voice agent platform base URL",
			Sources: cli.EnvVars("VOICE_API_BASE"),
		},
		&cli.StringFlag{
			Name:    "voice-api-key",
			Usage:   "Voice agent platform API key",
			Sources: cli.EnvVars("VOICE_API_KEY"),
		},
		&cli.StringFlag{
			Name:    "voice-agent-id",
			Usage:   "Voice agent id used for outbound calls",
			Sources: cli.EnvVars("VOICE_AGENT_ID"),
		},
	}
}

func gatewayConfigFromFlags(command *cli.Command) cmd.GatewayConfig {
	return cmd.GatewayConfig{
		TelegramAPIBase:       command.String("telegram-api-base"),
		TelegramBotToken:      command.String("telegram-bot-token"),
		WhatsAppAPIBase:       command.String("whatsapp-api-base"),
		WhatsAppPhoneNumberID: command.String("whatsapp-phone-number-id"),
		WhatsAppAccessToken:   command.String("whatsapp-access-token"),
		LinkedInServiceURL:    command.String("linkedin-service-url"),
		LinkedInAPIKey:        command.String("linkedin-api-key"),
		EmailRelayURL:         command.String("email-relay-url"),
		EmailAPIKey:           command.String("email-api-key"),
		EmailFromAddress:      command.String("email-from-address"),
		VoiceAPIBase:          command.String("voice-api-base"),
		VoiceAPIKey:           command.String("voice-api-key"),
		VoiceAgentID:          command.String("voice-agent-id"),
	}
}
