package models

import "time"

// Contact is a prospect reached by campaigns. Each channel requires its own
// identifier; a missing identifier makes nodes on that channel unsendable for
// this contact, which is not a run-ending condition.
type Contact struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	Phone            string    `json:"phone,omitempty"`
	Email            string    `json:"email,omitempty"    validate:"omitempty,email"`
	TelegramUsername string    `json:"telegram_username,omitempty"`
	WhatsAppNumber   string    `json:"whatsapp_number,omitempty"`
	LinkedInURL      string    `json:"linkedin_url,omitempty"`
	Owner            string    `json:"owner"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// IdentifierFor returns the contact identifier required by the given channel.
// The second result is false when the contact has no identifier for it.
func (c *Contact) IdentifierFor(kind ChannelKind) (string, bool) {
	var id string

	switch kind {
	case ChannelTelegram:
		id = c.TelegramUsername
	case ChannelWhatsApp:
		id = c.WhatsAppNumber
	case ChannelLinkedIn:
		id = c.LinkedInURL
	case ChannelEmail:
		id = c.Email
	case ChannelVoiceCall:
		id = c.Phone
	}

	return id, id != ""
}
