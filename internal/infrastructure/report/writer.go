package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"github.com/felixgeelhaar/devwatch/internal/application"
	"github.com/felixgeelhaar/devwatch/internal/domain"
)

type Writer struct{}

var (
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#16A34A")).Bold(true)
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#DC2626")).Bold(true)
	cancelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#CA8A04")).Bold(true)
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
)

type resultPayload struct {
	ID         string             `json:"id"`
	Seq        int                `json:"seq"`
	Mode       domain.BuildMode   `json:"mode"`
	Status     domain.BuildStatus `json:"status"`
	StartedAt  time.Time          `json:"started_at"`
	DurationMS int64              `json:"duration_ms"`
	PID        int                `json:"pid,omitempty"`
	Error      string             `json:"error,omitempty"`
}

// WriteResult prints one build result. Text output is a single line:
// STATUS | #seq | mode | duration | id [| pid N] [| error].
func (Writer) WriteResult(w io.Writer, res domain.BuildResult, format application.OutputFormat) error {
	switch format {
	case application.OutputJSON:
		payload := resultPayload{
			ID:         res.ID,
			Seq:        res.Seq,
			Mode:       res.Mode,
			Status:     res.Status,
			StartedAt:  res.StartedAt,
			DurationMS: res.Duration.Milliseconds(),
			PID:        res.PID,
		}
		if res.Err != nil {
			payload.Error = res.Err.Error()
		}
		return json.NewEncoder(w).Encode(payload)
	case application.OutputText, "":
		return writeResultLine(w, res)
	default:
		return fmt.Errorf("unsupported output format: %s", format)
	}
}

func writeResultLine(w io.Writer, res domain.BuildResult) error {
	colorize := colorEnabled(w)

	var sb strings.Builder
	sb.WriteString(statusLabel(res.Status, colorize))
	sb.WriteString(fmt.Sprintf(" | #%d | %s | %s | %s", res.Seq, res.Mode, formatDuration(res.Duration), res.ID))
	if res.PID > 0 {
		sb.WriteString(fmt.Sprintf(" | pid %d", res.PID))
	}
	if res.Err != nil && res.Status != domain.BuildCancelled {
		sb.WriteString(" | ")
		sb.WriteString(firstLine(res.Err.Error()))
	}
	sb.WriteString("\n")
	_, err := io.WriteString(w, sb.String())
	return err
}

// WriteHistory prints recorded builds followed by a summary.
func (Writer) WriteHistory(w io.Writer, res application.HistoryResult, format application.OutputFormat) error {
	switch format {
	case application.OutputJSON:
		entries := res.Entries
		if entries == nil {
			entries = []domain.BuildRecord{}
		}
		payload := struct {
			Entries []domain.BuildRecord `json:"entries"`
			Stats   domain.HistoryStats  `json:"stats"`
		}{Entries: entries, Stats: res.Stats}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(payload)
	case application.OutputText, "":
		return writeHistoryText(w, res)
	default:
		return fmt.Errorf("unsupported output format: %s", format)
	}
}

func writeHistoryText(w io.Writer, res application.HistoryResult) error {
	if len(res.Entries) == 0 {
		_, err := fmt.Fprintln(w, "No builds recorded yet.")
		return err
	}

	colorize := colorEnabled(w)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "Seq\tStarted\tMode\tStatus\tDuration\tID\tError")
	for _, e := range res.Entries {
		started := "-"
		if !e.StartedAt.IsZero() {
			started = e.StartedAt.Local().Format("2006-01-02 15:04:05")
		}
		errText := "-"
		if e.Error != "" {
			errText = firstLine(e.Error)
		}
		_, _ = fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			e.Seq, started, e.Mode, statusLabel(e.Status, colorize), formatDuration(e.Duration), e.ID, errText)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	summary := fmt.Sprintf("%d builds | %.1f%% success | mean build %s",
		res.Stats.Total, res.Stats.SuccessRate, formatDuration(res.Stats.MeanDuration))
	if colorize {
		summary = dimStyle.Render(summary)
	}
	_, err := fmt.Fprintf(w, "\n%s\n", summary)
	return err
}

func statusLabel(status domain.BuildStatus, colorize bool) string {
	var label string
	var style lipgloss.Style
	switch status {
	case domain.BuildSucceeded:
		label, style = "OK", okStyle
	case domain.BuildFailed:
		label, style = "BUILD FAILED", failStyle
	case domain.RunFailed:
		label, style = "RUN FAILED", failStyle
	case domain.BuildCancelled:
		label, style = "CANCELLED", cancelStyle
	default:
		return string(status)
	}
	if colorize {
		return style.Render(label)
	}
	return label
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	return d.Round(10 * time.Millisecond).String()
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func colorEnabled(w io.Writer) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(file.Fd()) || isatty.IsCygwinTerminal(file.Fd())
}
