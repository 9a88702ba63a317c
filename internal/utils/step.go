package utils

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// Step is one timed unit of work of a pipeline stage
type Step struct {
	log   logrus.FieldLogger
	start time.Time
}

// Start logs the beginning of a step, e.g. "▶️  Loading DEM"
func Start(log logrus.FieldLogger, format string, args ...interface{}) *Step {
	log.Info("▶️  " + fmt.Sprintf(format, args...))
	return &Step{log: log, start: time.Now()}
}

// Done logs the completion of the step with its duration, e.g.
// "✔️  Loaded DEM in 1.2s"
func (s *Step) Done(format string, args ...interface{}) {
	d := time.Since(s.start).Round(time.Millisecond)
	s.log.Info("✔️  " + fmt.Sprintf(format, args...) + " in " + d.String())
}

// Elapsed is the time since the step started
func (s *Step) Elapsed() time.Duration {
	return time.Since(s.start)
}

// Note logs an informational line of a stage
func Note(log logrus.FieldLogger, format string, args ...interface{}) {
	log.Info("ℹ️  " + fmt.Sprintf(format, args...))
}

// Finished logs the end of a whole stage or pipeline
func Finished(log logrus.FieldLogger, start time.Time) {
	log.Info("🎉  Finished in " + time.Since(start).Round(time.Millisecond).String())
}
