package internal

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/robfig/cron/v3"
)

// sessionLister is implemented by session managers that track open sessions.
type sessionLister interface {
	Sessions() []*Session
}

// sweeper closes sessions that outlived the connection timeout on a cron schedule.
type sweeper struct {
	schedule cron.Schedule
	sessions sessionLister
	maxAge   time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

func parseSweepSchedule(spec string) (cron.Schedule, error) {
	parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	schedule, err := parser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("dispatch: invalid sweep schedule %q: %w", spec, err)
	}
	return schedule, nil
}

func newSweeper(spec string, sessions sessionLister, maxAge time.Duration, logger *slog.Logger) (*sweeper, error) {
	schedule, err := parseSweepSchedule(spec)
	if err != nil {
		return nil, err
	}
	return &sweeper{
		schedule: schedule,
		sessions: sessions,
		maxAge:   maxAge,
		logger:   logger,
		now:      time.Now,
	}, nil
}

// run sweeps on schedule until ctx is done.
func (w *sweeper) run(ctx context.Context) error {
	c := cron.New(cron.WithLogger(cron.DiscardLogger))
	c.Schedule(w.schedule, cron.FuncJob(func() { w.sweep() }))
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}

// sweep closes every idle session older than maxAge with 408 and returns
// how many it closed. A session is idle when no handler is executing for it:
// it is parked on a gate that has not continued yet, or its handler returned
// without closing it. Handlers still running are left alone.
func (w *sweeper) sweep() int {
	cutoff := w.now().Add(-w.maxAge)
	closed := 0
	for _, s := range w.sessions.Sessions() {
		if !s.CreatedAt().Before(cutoff) || s.inHandler.Load() {
			continue
		}
		err := s.CloseWithError(&HTTPError{Code: http.StatusRequestTimeout, Err: ErrSessionTimeout})
		if err != nil {
			s.Logger().Debug("sweeper failed to write timeout response", slog.Any("error", err))
		}
		closed++
	}
	if closed > 0 {
		w.logger.Info("swept stale sessions", slog.Int("count", closed), slog.Duration("max_age", w.maxAge))
	}
	return closed
}
