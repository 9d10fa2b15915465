package output

import "earshot/internal/kit"

// macOS system sounds per notification sound kind.
var darwinSounds = map[kit.Sound]string{
	kit.SoundMessage: "/System/Library/Sounds/Morse.aiff",
	kit.SoundMention: "/System/Library/Sounds/Ping.aiff",
	kit.SoundDM:      "/System/Library/Sounds/Purr.aiff",
	kit.SoundUrgent:  "/System/Library/Sounds/Glass.aiff",
	kit.SoundSuccess: "/System/Library/Sounds/Bottle.aiff",
	kit.SoundWarning: "/System/Library/Sounds/Basso.aiff",
}

// freedesktop sound theme events per notification sound kind.
var linuxSounds = map[kit.Sound]string{
	kit.SoundMessage: "/usr/share/sounds/freedesktop/stereo/message-new-instant.oga",
	kit.SoundMention: "/usr/share/sounds/freedesktop/stereo/bell.oga",
	kit.SoundDM:      "/usr/share/sounds/freedesktop/stereo/message.oga",
	kit.SoundUrgent:  "/usr/share/sounds/freedesktop/stereo/dialog-warning.oga",
	kit.SoundSuccess: "/usr/share/sounds/freedesktop/stereo/complete.oga",
	kit.SoundWarning: "/usr/share/sounds/freedesktop/stereo/dialog-error.oga",
}
