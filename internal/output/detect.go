package output

import (
	"context"
	"strings"
	"time"
)

// Known backend names. These double as the keys of a profile's
// per-backend settings map.
const (
	BackendVoiceOver = "voiceover"
	BackendNVDA      = "nvda"
	BackendJAWS      = "jaws"
	BackendOrca      = "orca"
	BackendSpeech    = "speech" // plain speech synthesis, no screen reader
)

// detectBackend probes for a running screen reader. Failures fall through
// to plain speech; a missing screen reader is the normal case, not an
// error.
func detectBackend(ctx context.Context, goos string, run Runner) string {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	switch goos {
	case "darwin":
		script := `tell application "System Events" to return (exists process "VoiceOver")`
		out, err := run.Run(ctx, "osascript", "-e", script)
		if err == nil && strings.Contains(strings.ToLower(out), "true") {
			return BackendVoiceOver
		}
	case "windows":
		out, err := run.Run(ctx, "tasklist")
		if err == nil {
			low := strings.ToLower(out)
			if strings.Contains(low, "nvda.exe") {
				return BackendNVDA
			}
			if strings.Contains(low, "jfw.exe") {
				return BackendJAWS
			}
		}
	case "linux":
		out, err := run.Run(ctx, "ps", "aux")
		if err == nil && strings.Contains(strings.ToLower(out), "orca") {
			return BackendOrca
		}
	}
	return BackendSpeech
}
