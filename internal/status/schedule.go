package status

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"earshot/internal/kit"
	"earshot/pkg/logx"
)

// ScheduleEntry maps a cron spec to a status transition, e.g. quiet hours:
// "0 22 * * *" → do_not_disturb, "0 7 * * *" → active.
type ScheduleEntry struct {
	Spec   string
	Status kit.Status
}

// ScheduleConfig configures automatic status transitions.
type ScheduleConfig struct {
	Enabled  bool
	Timezone string // IANA name; empty means local time
	Entries  []ScheduleEntry
}

// Schedule drives Manager.SetStatus on a cron timetable.
type Schedule struct {
	log logx.Logger
	c   *cron.Cron
}

// NewSchedule parses and registers every entry. A single bad spec fails
// construction; quiet hours are explicit operator config, not per-message
// input, so they should not be silently dropped.
func NewSchedule(cfg ScheduleConfig, mgr *Manager, log logx.Logger) (*Schedule, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	loc := time.Local
	if cfg.Timezone != "" {
		l, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			return nil, fmt.Errorf("schedule timezone: %w", err)
		}
		loc = l
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	c := cron.New(cron.WithParser(parser), cron.WithLocation(loc))

	for _, e := range cfg.Entries {
		target := kit.ParseStatus(string(e.Status))
		if _, err := parser.Parse(e.Spec); err != nil {
			return nil, fmt.Errorf("schedule spec %q: %w", e.Spec, err)
		}
		spec := e.Spec
		_, err := c.AddFunc(spec, func() {
			log.Info("scheduled status transition", logx.String("spec", spec), logx.String("status", string(target)))
			mgr.SetStatus(target, true)
		})
		if err != nil {
			return nil, fmt.Errorf("schedule spec %q: %w", e.Spec, err)
		}
	}

	return &Schedule{log: log, c: c}, nil
}

func (s *Schedule) Start() { s.c.Start() }

// Stop halts the timetable and waits for a running transition to finish.
func (s *Schedule) Stop() {
	ctx := s.c.Stop()
	<-ctx.Done()
}
