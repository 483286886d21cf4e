package metrics

import (
	"time"

	"github.com/sirupsen/logrus"
)

// Observer receives retrieval and chat outcome signals. It is injected into
// each service instead of living in a process-wide singleton.
type Observer interface {
	SearchCompleted(mode string, hits int, degraded bool)
	ChatCompleted(provider, status string, duration time.Duration)
}

// LogObserver reports counters as structured log lines.
type LogObserver struct {
	logger *logrus.Logger
}

// NewLogObserver creates an observer backed by the given logger.
func NewLogObserver(logger *logrus.Logger) *LogObserver {
	return &LogObserver{logger: logger}
}

func (o *LogObserver) SearchCompleted(mode string, hits int, degraded bool) {
	o.logger.WithFields(logrus.Fields{
		"mode":     mode,
		"hits":     hits,
		"degraded": degraded,
	}).Info("search completed")
}

func (o *LogObserver) ChatCompleted(provider, status string, duration time.Duration) {
	o.logger.WithFields(logrus.Fields{
		"provider":    provider,
		"status":      status,
		"duration_ms": duration.Milliseconds(),
	}).Info("chat turn finished")
}

// Nop discards all signals.
type Nop struct{}

func (Nop) SearchCompleted(string, int, bool) {}
func (Nop) ChatCompleted(string, string, time.Duration) {}
