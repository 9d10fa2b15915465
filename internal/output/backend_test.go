package output

import (
	"context"
	"errors"
	"strings"
	"testing"

	"earshot/internal/kit"
	"earshot/pkg/logx"
)

// fakeRunner records commands and replies from a canned table keyed by
// command name.
type fakeRunner struct {
	replies map[string]string
	fails   map[string]bool
	calls   [][]string
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) (string, error) {
	f.calls = append(f.calls, append([]string{name}, args...))
	if f.fails[name] {
		return "", errors.New(name + " failed")
	}
	return f.replies[name], nil
}

func (f *fakeRunner) called(name string) []string {
	for _, c := range f.calls {
		if c[0] == name {
			return c
		}
	}
	return nil
}

func TestDetectBackend(t *testing.T) {
	cases := []struct {
		name    string
		goos    string
		replies map[string]string
		want    string
	}{
		{"voiceover running", "darwin", map[string]string{"osascript": "true"}, BackendVoiceOver},
		{"voiceover absent", "darwin", map[string]string{"osascript": "false"}, BackendSpeech},
		{"nvda", "windows", map[string]string{"tasklist": "svchost.exe\nNVDA.exe\n"}, BackendNVDA},
		{"jaws", "windows", map[string]string{"tasklist": "jfw.exe"}, BackendJAWS},
		{"orca", "linux", map[string]string{"ps": "user 123 orca --replace"}, BackendOrca},
		{"bare linux", "linux", map[string]string{"ps": "bash\nsshd"}, BackendSpeech},
	}
	for _, c := range cases {
		r := &fakeRunner{replies: c.replies}
		if got := detectBackend(context.Background(), c.goos, r); got != c.want {
			t.Errorf("%s: backend = %s, want %s", c.name, got, c.want)
		}
	}
}

func TestDetectBackendProbeFailure(t *testing.T) {
	r := &fakeRunner{fails: map[string]bool{"ps": true}}
	if got := detectBackend(context.Background(), "linux", r); got != BackendSpeech {
		t.Fatalf("backend = %s", got)
	}
}

func TestForcedBackendSkipsDetection(t *testing.T) {
	r := &fakeRunner{}
	n := newNotifier(Config{Backend: "Orca"}, logx.Nop(), "linux", r)
	if n.Backend() != BackendOrca {
		t.Fatalf("backend = %s", n.Backend())
	}
	if len(r.calls) != 0 {
		t.Fatalf("detection probes ran: %v", r.calls)
	}
}

func TestDeliverDarwinSoundAndAnnounce(t *testing.T) {
	r := &fakeRunner{}
	n := newNotifier(Config{Backend: BackendSpeech, Sound: true}, logx.Nop(), "darwin", r)

	p := kit.Profile{Name: "dm", Sound: kit.SoundDM, Volume: 0.5}
	if err := n.Deliver(context.Background(), "Direct Message", "DM from Ana", p, nil); err != nil {
		t.Fatal(err)
	}

	afplay := r.called("afplay")
	if afplay == nil {
		t.Fatal("sound cue not played")
	}
	if afplay[1] != "-v" || afplay[2] != "0.50" {
		t.Errorf("afplay args = %v", afplay)
	}

	say := r.called("say")
	if say == nil {
		t.Fatal("announcement not spoken")
	}
	if say[len(say)-1] != "Direct Message: DM from Ana" {
		t.Errorf("say args = %v", say)
	}
}

func TestDeliverSoundFailureStillAnnounces(t *testing.T) {
	r := &fakeRunner{fails: map[string]bool{"paplay": true}}
	n := newNotifier(Config{Backend: BackendSpeech, Sound: true}, logx.Nop(), "linux", r)

	err := n.Deliver(context.Background(), "", "hello", kit.Profile{Sound: kit.SoundMessage}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if r.called("spd-say") == nil {
		t.Fatal("announcement skipped after sound failure")
	}
}

func TestAnnounceOrcaSettings(t *testing.T) {
	r := &fakeRunner{}
	n := newNotifier(Config{Backend: BackendOrca}, logx.Nop(), "linux", r)

	settings := map[string]any{"rate": float64(80), "pitch": 30, "voice": "en-GB"}
	if err := n.Deliver(context.Background(), "", "hi", kit.Profile{}, settings); err != nil {
		t.Fatal(err)
	}
	got := strings.Join(r.called("spd-say"), " ")
	want := "spd-say -r 80 -p 30 -t en-GB hi"
	if got != want {
		t.Fatalf("spd-say = %q, want %q", got, want)
	}
}

func TestPlainSpeakLinuxFallsBackToEspeak(t *testing.T) {
	r := &fakeRunner{fails: map[string]bool{"spd-say": true}}
	n := newNotifier(Config{Backend: BackendSpeech}, logx.Nop(), "linux", r)

	if err := n.Deliver(context.Background(), "", "hi", kit.Profile{}, nil); err != nil {
		t.Fatal(err)
	}
	if r.called("espeak") == nil {
		t.Fatal("espeak fallback not attempted")
	}
}

func TestSapiQuoting(t *testing.T) {
	if got := psQuote("it's here"); got != "'it''s here'" {
		t.Fatalf("psQuote = %q", got)
	}
}

func TestClampVolume(t *testing.T) {
	cases := []struct {
		in, want float64
	}{
		{0.5, 0.5},
		{0, 1},
		{-1, 1},
		{1.5, 1},
		{1, 1},
	}
	for _, c := range cases {
		if got := clampVolume(c.in); got != c.want {
			t.Errorf("clampVolume(%v) = %v, want %v", c.in, got, c.want)
		}
	}
}
