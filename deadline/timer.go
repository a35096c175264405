// Package deadline derives countdown state from a task's start time and
// duration and raises one alert per expiry.
package deadline

import (
	"fmt"
	"time"

	"github.com/Adibmaros/tasks-management/domain"
)

// Locale selects the wording of formatted durations and alerts.
type Locale string

const (
	LocaleEN Locale = "en"
	LocaleID Locale = "id"
)

type wording struct {
	hour, minute, second string
	expired              string
	alertTitle           string
	alertBody            string
}

var wordings = map[Locale]wording{
	LocaleEN: {hour: "h", minute: "m", second: "s", expired: "Time's up!", alertTitle: "Time's up!", alertBody: "Task %q has passed its deadline!"},
	LocaleID: {hour: "j", minute: "m", second: "d", expired: "Waktu habis!", alertTitle: "Waktu Habis!", alertBody: "Tugas %q telah melewati batas waktu!"},
}

func wordingFor(l Locale) wording {
	if w, ok := wordings[l]; ok {
		return w
	}
	return wordings[LocaleEN]
}

// TimeLeft returns max(0, deadline-now). ok is false when the task is not timed.
func TimeLeft(task domain.Task, now time.Time) (left time.Duration, ok bool) {
	deadline, ok := task.Deadline()
	if !ok {
		return 0, false
	}
	left = deadline.Sub(now)
	if left < 0 {
		left = 0
	}
	return left, true
}

// ProgressPercent is elapsed/duration as a percentage clamped to [0, 100].
func ProgressPercent(task domain.Task, now time.Time) float64 {
	if _, ok := task.Deadline(); !ok {
		return 0
	}
	total := time.Duration(*task.DurationMinutes) * time.Minute
	pct := float64(now.Sub(*task.StartedAt)) / float64(total) * 100
	switch {
	case pct < 0:
		return 0
	case pct > 100:
		return 100
	}
	return pct
}

// FormatDuration renders d as "1h 2m 3s", dropping leading zero units.
func FormatDuration(d time.Duration, locale Locale) string {
	w := wordingFor(locale)
	if d <= 0 {
		return w.expired
	}
	total := int64(d / time.Second)
	hours := total / 3600
	minutes := (total % 3600) / 60
	seconds := total % 60

	switch {
	case hours > 0:
		return fmt.Sprintf("%d%s %d%s %d%s", hours, w.hour, minutes, w.minute, seconds, w.second)
	case minutes > 0:
		return fmt.Sprintf("%d%s %d%s", minutes, w.minute, seconds, w.second)
	}
	return fmt.Sprintf("%d%s", seconds, w.second)
}

// AlertText returns the title and body shown when task expires.
func AlertText(task domain.Task, locale Locale) (title, body string) {
	w := wordingFor(locale)
	return w.alertTitle, fmt.Sprintf(w.alertBody, task.Name)
}
