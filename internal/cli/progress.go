package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"charm.land/bubbles/v2/progress"
	tea "charm.land/bubbletea/v2"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/warydiaz/json-ingestion-platform/internal/service"
)

// errInterrupted is returned when the user quits a local run.
var errInterrupted = errors.New("interrupted")

// Theme holds the color scheme for the progress display.
type Theme struct {
	Status  lipgloss.Color
	Success lipgloss.Color
	Error   lipgloss.Color
	Hint    lipgloss.Color
}

// defaultTheme provides default colors.
var defaultTheme = Theme{
	Status:  lipgloss.Color("#5FAFD7"), // light blue
	Success: lipgloss.Color("#00D787"), // green
	Error:   lipgloss.Color("#FF005F"), // red
	Hint:    lipgloss.Color("#6C6C6C"), // dim gray
}

func (t Theme) statusStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Status)
}

func (t Theme) completedStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Success).Bold(true)
}

func (t Theme) errorStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Error).Bold(true)
}

func (t Theme) hintStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Hint).Italic(true)
}

// jobUpdate carries one snapshot or the error that ended the stream.
type jobUpdate struct {
	job service.JobSnapshot
	err error
}

// streamClosedMsg is sent when the update channel closes.
type streamClosedMsg struct{}

// progressModel is the bubbletea model for job progress.
type progressModel struct {
	jobID    string
	remote   bool // the job keeps running server-side when the UI quits
	updates  <-chan jobUpdate
	job      *service.JobSnapshot
	progress progress.Model
	theme    Theme
	done     bool
	quitting bool
	err      error
}

func newProgressModel(jobID string, remote bool, updates <-chan jobUpdate) progressModel {
	return progressModel{
		jobID:    jobID,
		remote:   remote,
		updates:  updates,
		progress: progress.New(progress.WithDefaultBlend(), progress.WithWidth(40)),
		theme:    defaultTheme,
	}
}

// Init starts listening for updates.
func (m progressModel) Init() tea.Cmd {
	return tea.Batch(waitForUpdate(m.updates), m.progress.Init())
}

// Update handles messages and returns the updated model.
func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyPressMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			return m, tea.Quit
		}

	case jobUpdate:
		if msg.err != nil {
			m.err = msg.err
			m.done = true
			return m, tea.Quit
		}
		m.job = &msg.job
		if m.job.Done() {
			m.done = true
			if m.job.Status == service.JobStatusFailed {
				m.err = errors.New(m.job.Error)
			}
			return m, tea.Quit
		}
		return m, waitForUpdate(m.updates)

	case streamClosedMsg:
		m.done = true
		if m.job == nil || !m.job.Done() {
			m.err = errors.New("job update stream closed before the job finished")
		}
		return m, tea.Quit

	case progress.FrameMsg:
		var cmd tea.Cmd
		m.progress, cmd = m.progress.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View renders the progress display.
func (m progressModel) View() tea.View {
	return tea.NewView(m.renderContent())
}

func (m progressModel) renderContent() string {
	if m.done || m.quitting {
		return m.finalView()
	}
	if m.job == nil {
		return "Waiting for job status...\n"
	}

	status := m.theme.statusStyle().Render(fmt.Sprintf("[%s]", m.job.Status))
	counts := fmt.Sprintf("%d records, %d batches", m.job.Records, m.job.Batches)

	hint := "Press Ctrl+C to stop"
	if m.remote {
		hint = "Press Ctrl+C to continue in background"
	}
	hint = m.theme.hintStyle().Render(hint)

	// Without a content length there is nothing to measure against.
	if m.job.BytesTotal <= 0 {
		return fmt.Sprintf("%s %s, %s read\n%s\n", status, counts, formatBytes(m.job.BytesRead), hint)
	}
	bar := m.progress.ViewAs(progressFraction(*m.job))
	return fmt.Sprintf("%s %s %s\n%s\n", status, bar, counts, hint)
}

func (m progressModel) finalView() string {
	if m.quitting {
		if !m.remote {
			return m.theme.errorStyle().Render("\nIngestion stopped.\n")
		}
		msg := fmt.Sprintf("\nJob %s continues in background.\nUse 'ingestctl jobs %s' to check status.\n", m.jobID, m.jobID)
		return m.theme.hintStyle().Render(msg)
	}
	if m.err != nil {
		return m.theme.errorStyle().Render(fmt.Sprintf("\n✗ Job failed: %s\n", m.err))
	}
	return summary(m.theme, m.job)
}

// summary renders the result of a finished job.
func summary(t Theme, job *service.JobSnapshot) string {
	if job == nil {
		return t.completedStyle().Render("✓ Completed") + "\n"
	}
	if job.Status == service.JobStatusSkipped {
		return t.hintStyle().Render(fmt.Sprintf("Skipped: source type of %s has no ingestion path", job.DatasetID)) + "\n"
	}

	var output string
	output += t.completedStyle().Render("✓ Completed") + "\n\n"
	output += fmt.Sprintf("  Records ingested:  %d\n", job.Records)
	output += fmt.Sprintf("  Batches:           %d\n", job.Batches)
	output += fmt.Sprintf("  Records replaced:  %d\n", job.Deleted)
	if job.BytesRead > 0 {
		output += fmt.Sprintf("  Downloaded:        %s\n", formatBytes(job.BytesRead))
	}
	if job.CompletedAt != nil {
		output += fmt.Sprintf("  Duration:          %s\n", job.CompletedAt.Sub(job.StartedAt).Round(time.Millisecond))
	}
	return output
}

// progressFraction is the share of the body read so far, in [0, 1].
func progressFraction(job service.JobSnapshot) float64 {
	if job.BytesTotal <= 0 {
		return 0
	}
	return min(float64(job.BytesRead)/float64(job.BytesTotal), 1)
}

// waitForUpdate blocks on the next update in a command so Update never does.
func waitForUpdate(ch <-chan jobUpdate) tea.Cmd {
	return func() tea.Msg {
		u, ok := <-ch
		if !ok {
			return streamClosedMsg{}
		}
		return u
	}
}

// RunJobProgress renders updates until the job finishes. On a terminal it
// shows an interactive progress bar; otherwise it prints one line per update.
// Returns nil when the job completed or was skipped, or when the user detached
// from a remote job. Quitting a local run returns errInterrupted.
func RunJobProgress(out io.Writer, jobID string, remote bool, updates <-chan jobUpdate) error {
	if f, ok := out.(*os.File); !ok || !term.IsTerminal(int(f.Fd())) {
		return printJobProgress(out, updates)
	}

	p := tea.NewProgram(newProgressModel(jobID, remote, updates), tea.WithOutput(out))
	finalModel, err := p.Run()
	if err != nil {
		return fmt.Errorf("progress UI error: %w", err)
	}

	if m, ok := finalModel.(progressModel); ok {
		if m.quitting {
			if remote {
				return nil
			}
			return errInterrupted
		}
		if m.err != nil {
			return m.err
		}
	}
	return nil
}

// printJobProgress is the non-interactive rendering used for pipes and logs.
func printJobProgress(out io.Writer, updates <-chan jobUpdate) error {
	var last *service.JobSnapshot
	for u := range updates {
		if u.err != nil {
			return u.err
		}
		last = &u.job
		fmt.Fprintf(out, "[%s] %d records, %d batches, %s read\n", u.job.Status, u.job.Records, u.job.Batches, formatBytes(u.job.BytesRead))
		if u.job.Done() {
			break
		}
	}
	if last == nil || !last.Done() {
		return errors.New("job update stream closed before the job finished")
	}
	if last.Status == service.JobStatusFailed {
		return errors.New(last.Error)
	}
	fmt.Fprint(out, summary(defaultTheme, last))
	return nil
}
