package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/Adibmaros/tasks-management/deadline"
	"github.com/Adibmaros/tasks-management/domain"
)

const columnWidth = 32

var boardColumns = []domain.Status{domain.StatusPlan, domain.StatusDoing, domain.StatusDone}

var (
	columnStyle = lipgloss.NewStyle().
			Width(columnWidth).
			Padding(0, 1).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#6B7280"))
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#3B82F6"))
	timerStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B"))
	expiredStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#EF4444"))
	mutedStyle   = lipgloss.NewStyle().Faint(true)
)

// renderBoard lays the PLAN, DOING and DONE columns side by side.
func renderBoard(tasks []domain.Task, now time.Time, locale deadline.Locale) string {
	byStatus := make(map[domain.Status][]domain.Task, len(boardColumns))
	for _, t := range tasks {
		byStatus[t.Status] = append(byStatus[t.Status], t)
	}

	cols := make([]string, 0, len(boardColumns))
	for _, status := range boardColumns {
		items := byStatus[status]
		lines := []string{headerStyle.Render(fmt.Sprintf("%s (%d)", status, len(items)))}
		if len(items) == 0 {
			lines = append(lines, mutedStyle.Render("no tasks"))
		}
		for _, t := range items {
			lines = append(lines, renderTask(t, now, locale))
		}
		cols = append(cols, columnStyle.Render(lipgloss.JoinVertical(lipgloss.Left, lines...)))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, cols...)
}

func renderTask(t domain.Task, now time.Time, locale deadline.Locale) string {
	line := fmt.Sprintf("#%d %s", t.ID, t.Name)
	if t.Status != domain.StatusDoing {
		return line
	}
	left, ok := deadline.TimeLeft(t, now)
	if !ok {
		return line
	}
	countdown := deadline.FormatDuration(left, locale)
	if left == 0 {
		return line + "\n  " + expiredStyle.Render(countdown)
	}
	pct := deadline.ProgressPercent(t, now)
	return line + "\n  " + timerStyle.Render(fmt.Sprintf("%s %s", countdown, progressBar(pct, 10)))
}

// progressBar draws pct (0-100) as a fixed width bar.
func progressBar(pct float64, width int) string {
	filled := int(pct / 100 * float64(width))
	filled = max(0, min(filled, width))
	return "[" + strings.Repeat("#", filled) + strings.Repeat("-", width-filled) + "]"
}
