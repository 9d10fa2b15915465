package notify

import "earshot/internal/kit"

// defaultProfiles seeds the profile table on first start. Existing
// profiles with the same name (loaded from the store) win.
func defaultProfiles() []kit.Profile {
	return []kit.Profile{
		{
			Name:            "default",
			Sound:           kit.SoundMessage,
			TitleTemplate:   "Chat Message",
			MessageTemplate: "New message from {sender}",
			Volume:          1.0,
			Priority:        kit.PriorityMedium,
			Enabled:         true,
		},
		{
			Name:            "mention",
			Sound:           kit.SoundMention,
			TitleTemplate:   "Mention",
			MessageTemplate: "{sender} mentioned you",
			Volume:          1.0,
			Priority:        kit.PriorityHigh,
			Enabled:         true,
		},
		{
			Name:            "dm",
			Sound:           kit.SoundDM,
			TitleTemplate:   "Direct Message",
			MessageTemplate: "DM from {sender}",
			Volume:          1.0,
			Priority:        kit.PriorityHigh,
			Enabled:         true,
		},
		{
			Name:            "urgent",
			Sound:           kit.SoundUrgent,
			TitleTemplate:   "Urgent Message",
			MessageTemplate: "URGENT: {content}",
			Volume:          1.0,
			Priority:        kit.PriorityCritical,
			Enabled:         true,
		},
		{
			Name:            "team",
			Sound:           kit.SoundMessage,
			TitleTemplate:   "Team Message",
			MessageTemplate: "Team update in {channel}",
			Volume:          1.0,
			Priority:        kit.PriorityMedium,
			Enabled:         true,
		},
	}
}
