package output

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strconv"
	"strings"

	"earshot/internal/kit"
	"earshot/pkg/logx"
)

// Runner executes one external command and returns its combined output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (string, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	return string(out), err
}

// Config configures the output backend.
type Config struct {
	// Backend forces a specific backend instead of detection:
	// voiceover, nvda, jaws, orca, speech. Empty or "auto" detects.
	Backend string
	// Sound disables the per-profile sound cue when false.
	Sound bool
}

// Notifier implements kit.Deliverer on top of the platform's assistive
// stack.
type Notifier struct {
	log     logx.Logger
	goos    string
	run     Runner
	backend string
	sound   bool
}

func New(cfg Config, log logx.Logger) *Notifier {
	return newNotifier(cfg, log, runtime.GOOS, execRunner{})
}

func newNotifier(cfg Config, log logx.Logger, goos string, run Runner) *Notifier {
	if log.IsZero() {
		log = logx.Nop()
	}
	backend := strings.ToLower(strings.TrimSpace(cfg.Backend))
	if backend == "" || backend == "auto" {
		backend = detectBackend(context.Background(), goos, run)
	}
	log.Info("output backend", logx.String("backend", backend), logx.String("os", goos))
	return &Notifier{log: log, goos: goos, run: run, backend: backend, sound: cfg.Sound}
}

// Backend names the active output backend.
func (n *Notifier) Backend() string { return n.backend }

// Deliver plays the profile's sound cue and announces "title: body" on
// the active backend. Sound failures do not fail the announcement.
func (n *Notifier) Deliver(ctx context.Context, title, body string, profile kit.Profile, settings map[string]any) error {
	if n.sound {
		if err := n.playSound(ctx, profile); err != nil {
			n.log.Debug("sound cue failed", logx.Err(err))
		}
	}

	text := body
	if title != "" {
		text = title + ": " + body
	}
	return n.announce(ctx, text, settings)
}

func (n *Notifier) playSound(ctx context.Context, profile kit.Profile) error {
	switch n.goos {
	case "darwin":
		file, ok := darwinSounds[profile.Sound]
		if !ok {
			file = darwinSounds[kit.SoundMessage]
		}
		_, err := n.run.Run(ctx, "afplay", "-v", formatVolume(profile.Volume), file)
		return err
	case "linux":
		file, ok := linuxSounds[profile.Sound]
		if !ok {
			file = linuxSounds[kit.SoundMessage]
		}
		// paplay volume is 0..65536.
		vol := int(clampVolume(profile.Volume) * 65536)
		_, err := n.run.Run(ctx, "paplay", "--volume", strconv.Itoa(vol), file)
		return err
	default:
		// Windows screen readers beep on speech; no separate cue.
		return nil
	}
}

func (n *Notifier) announce(ctx context.Context, text string, settings map[string]any) error {
	switch n.backend {
	case BackendVoiceOver:
		script := fmt.Sprintf("tell application %q to output %q", "VoiceOver", text)
		_, err := n.run.Run(ctx, "osascript", "-e", script)
		return err
	case BackendOrca:
		args := []string{
			"-r", strconv.Itoa(settingInt(settings, "rate", 50)),
			"-p", strconv.Itoa(settingInt(settings, "pitch", 50)),
		}
		if voice := settingString(settings, "voice"); voice != "" && voice != "default" {
			args = append(args, "-t", voice)
		}
		args = append(args, text)
		_, err := n.run.Run(ctx, "spd-say", args...)
		return err
	case BackendNVDA, BackendJAWS:
		// Both read the SAPI output; earshot drives SAPI directly rather
		// than linking the vendor controller DLLs.
		return n.sapiSpeak(ctx, text)
	default:
		return n.plainSpeak(ctx, text, settings)
	}
}

func (n *Notifier) plainSpeak(ctx context.Context, text string, settings map[string]any) error {
	switch n.goos {
	case "darwin":
		args := []string{}
		if voice := settingString(settings, "voice"); voice != "" {
			args = append(args, "-v", voice)
		}
		if rate := settingInt(settings, "rate", 0); rate > 0 {
			args = append(args, "-r", strconv.Itoa(rate))
		}
		args = append(args, text)
		_, err := n.run.Run(ctx, "say", args...)
		return err
	case "windows":
		return n.sapiSpeak(ctx, text)
	default:
		_, err := n.run.Run(ctx, "spd-say", text)
		if err != nil {
			_, err = n.run.Run(ctx, "espeak", text)
		}
		return err
	}
}

func (n *Notifier) sapiSpeak(ctx context.Context, text string) error {
	script := fmt.Sprintf(
		"Add-Type -AssemblyName System.Speech; (New-Object System.Speech.Synthesis.SpeechSynthesizer).Speak(%s)",
		psQuote(text))
	_, err := n.run.Run(ctx, "powershell", "-NoProfile", "-Command", script)
	return err
}

func psQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func settingInt(settings map[string]any, key string, def int) int {
	switch v := settings[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return def
	}
}

func settingString(settings map[string]any, key string) string {
	if v, ok := settings[key].(string); ok {
		return v
	}
	return ""
}

func clampVolume(v float64) float64 {
	if v <= 0 || v > 1 {
		return 1
	}
	return v
}

func formatVolume(v float64) string {
	return strconv.FormatFloat(clampVolume(v), 'f', 2, 64)
}
