package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/yungbote/recycleright-backend/internal/leaderboard"
	"github.com/yungbote/recycleright-backend/internal/ledger"
	"github.com/yungbote/recycleright-backend/internal/realtime"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	badStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
)

// renderTable lays rows out in padded columns separated by a muted bar.
func renderTable(headers []string, rows [][]string) string {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && lipgloss.Width(cell) > widths[i] {
				widths[i] = lipgloss.Width(cell)
			}
		}
	}
	// Width includes padding.
	for i := range widths {
		widths[i] += 2
	}

	var sb strings.Builder
	line := func(cells []string, style lipgloss.Style) {
		for i, c := range cells {
			if i >= len(widths) {
				break
			}
			sb.WriteString(style.Width(widths[i]).Render(c))
			if i < len(cells)-1 {
				sb.WriteString(mutedStyle.Render("|"))
			}
		}
		sb.WriteString("\n")
	}
	line(headers, headerStyle)
	for _, row := range rows {
		line(row, cellStyle)
	}
	return sb.String()
}

func renderLeaderboard(entries []leaderboard.Entry) string {
	if len(entries) == 0 {
		return mutedStyle.Render("no users yet") + "\n"
	}
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []string{
			strconv.Itoa(e.Rank),
			e.UserID,
			strconv.Itoa(e.Points),
			strconv.Itoa(e.Level),
		})
	}
	return renderTable([]string{"RANK", "USER", "POINTS", "LEVEL"}, rows)
}

func renderVerify(r ledger.VerifyReport) string {
	status := okStyle.Render("OK")
	if !r.OK {
		status = badStyle.Render("DRIFT")
	}
	rows := [][]string{
		{"points", strconv.Itoa(r.Points)},
		{"event sum", strconv.Itoa(r.EventSum)},
		{"drift", strconv.Itoa(r.Drift)},
		{"events", strconv.Itoa(r.EventCount)},
		{"seq gaps", strconv.Itoa(r.SeqGaps)},
		{"level mismatch", strconv.FormatBool(r.LevelMismatch)},
	}
	return fmt.Sprintf("%s %s\n", r.UserID, status) + renderTable([]string{"CHECK", "VALUE"}, rows)
}

func renderMessage(m realtime.Message) string {
	return fmt.Sprintf("%s %s %s %s",
		mutedStyle.Render(m.SentAt.Format("15:04:05")),
		headerStyle.Render(m.Event),
		m.UserID,
		string(m.Data),
	)
}
