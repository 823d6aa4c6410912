package usecase

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/semmidev/cloudvault/internal/domain"
)

type Logger interface {
	Infof(template string, args ...interface{})
	Errorf(template string, args ...interface{})
	Warnf(template string, args ...interface{})
}

type Metrics interface {
	BackupFinished(status domain.HistoryStatus, elapsed time.Duration, bytes int64)
	RestoreFinished(err error)
	ArtifactsReaped(n int)
	TimersArmed(n int)
}

type NopMetrics struct{}

func (NopMetrics) BackupFinished(domain.HistoryStatus, time.Duration, int64) {}
func (NopMetrics) RestoreFinished(error)                                    {}
func (NopMetrics) ArtifactsReaped(int)                                      {}
func (NopMetrics) TimersArmed(int)                                          {}

// NextRun computes the next run of a recurring config from now. Manual
// configs have no next run. The result is truncated to milliseconds, the
// precision it is stored at.
func NextRun(freq domain.Frequency, now time.Time) (time.Time, error) {
	var next time.Time
	switch freq {
	case domain.FrequencyDaily:
		next = now.AddDate(0, 0, 1)
	case domain.FrequencyWeekly:
		next = now.AddDate(0, 0, 7)
	case domain.FrequencyMonthly:
		next = now.AddDate(0, 1, 0)
	default:
		return time.Time{}, fmt.Errorf("%w: no next run for frequency %q", domain.ErrScheduling, freq)
	}
	return next.Truncate(time.Millisecond), nil
}

var unsafeName = regexp.MustCompile(`[^a-zA-Z0-9]`)

// SanitizeName replaces every non alphanumeric character with an underscore.
func SanitizeName(name string) string {
	return unsafeName.ReplaceAllString(name, "_")
}

// CloudPathPrefix is the storage prefix of every run of a config.
func CloudPathPrefix(userID, configName string) string {
	return userID + "/" + SanitizeName(configName)
}

// ExecutionPath is the sub-path of a single run, e.g.
// "u1/Documents/2024-05-01T10-20-30.123Z".
func ExecutionPath(prefix string, start time.Time) string {
	stamp := start.UTC().Format("2006-01-02T15:04:05.000Z")
	return prefix + "/" + strings.ReplaceAll(stamp, ":", "-")
}
