// Package models defines the core domain models for multichannel outreach sequences.
package models

// ChannelKind is the messaging medium a workflow node sends through.
type ChannelKind string

const (
	ChannelTelegram  ChannelKind = "telegram"
	ChannelWhatsApp  ChannelKind = "whatsapp"
	ChannelLinkedIn  ChannelKind = "linkedin"
	ChannelEmail     ChannelKind = "email"
	ChannelVoiceCall ChannelKind = "voice_call"
)

// AllChannelKinds lists every supported channel, in no particular order.
var AllChannelKinds = []ChannelKind{
	ChannelTelegram,
	ChannelWhatsApp,
	ChannelLinkedIn,
	ChannelEmail,
	ChannelVoiceCall,
}

// Valid reports whether the kind is one of the supported channels.
func (k ChannelKind) Valid() bool {
	switch k {
	case ChannelTelegram, ChannelWhatsApp, ChannelLinkedIn, ChannelEmail, ChannelVoiceCall:
		return true
	default:
		return false
	}
}

// IsMessageChannel reports whether sends on this channel produce a sent-audit
// record. Voice calls are initiated, not delivered, so they are excluded.
func (k ChannelKind) IsMessageChannel() bool {
	return k != ChannelVoiceCall
}
