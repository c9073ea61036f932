package progression

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/darasa/backend/core"
)

// nowFunc is mockable for release-gate tests.
var nowFunc = time.Now

// ReleaseDate returns the module's release date and whether the module is
// time-gated at all. An explicit per-module release date overrides the
// course interval policy; with neither, the module is always released.
func ReleaseDate(course Course, module Module) (time.Time, bool) {
	if module.ReleaseAt != nil {
		return *module.ReleaseAt, true
	}
	if course.ReleaseIntervalDays > 0 {
		// ordinals are 1-based; the first module releases on the start date
		offset := (module.Ordinal - 1) * course.ReleaseIntervalDays
		return course.StartDate.AddDate(0, 0, offset), true
	}
	return time.Time{}, false
}

// IsTimeGated reports whether a release policy applies to the module.
func IsTimeGated(course Course, module Module) bool {
	_, gated := ReleaseDate(course, module)
	return gated
}

func released(course Course, module Module, now time.Time) bool {
	date, gated := ReleaseDate(course, module)
	if !gated {
		return true
	}
	return !now.Before(date)
}

// ReleaseSweeper periodically flips time gates open for all active
// enrollments so modules unlock without waiting for a student read.
type ReleaseSweeper struct {
	svc  *Service
	log  core.Logger
	cron *cron.Cron
}

func NewReleaseSweeper(svc *Service, logger core.Logger) *ReleaseSweeper {
	return &ReleaseSweeper{svc: svc, log: logger}
}

// Start registers the sweep on the configured cron spec and runs one sweep
// immediately.
func (rs *ReleaseSweeper) Start() error {
	rs.cron = cron.New()
	if _, err := rs.cron.AddFunc(rs.svc.conf.Engine.ReleaseSweepSpec, rs.sweep); err != nil {
		return err
	}
	rs.cron.Start()
	go rs.sweep()
	return nil
}

func (rs *ReleaseSweeper) Stop() {
	if rs.cron != nil {
		rs.cron.Stop()
	}
}

func (rs *ReleaseSweeper) sweep() {
	ctx := context.Background()
	if err := rs.svc.SweepReleases(ctx); err != nil {
		rs.log.Error(fmt.Sprintf("release sweep: %v", err), err)
	}
}
