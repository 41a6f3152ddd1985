package progress

import (
	"context"
	"fmt"
	"io"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"

	"github.com/tesso57/readsync/internal/application/usecase"
)

// Work runs the task, sending notifications on progress. It returns the
// summary shown when it finishes.
type Work func(progress chan<- usecase.Progress) (string, error)

// Run executes work while rendering its progress on out. Outputs that are
// not terminals get one plain line per notification instead.
func Run(ctx context.Context, out io.Writer, title string, work Work) error {
	if f, ok := out.(*os.File); !ok || !isatty.IsTerminal(f.Fd()) {
		return RunPlain(out, title, work)
	}

	updates := make(chan usecase.Progress, 16)
	p := tea.NewProgram(New(title, updates), tea.WithOutput(out), tea.WithInput(nil), tea.WithContext(ctx))

	workErr := make(chan error, 1)
	go func() {
		summary, err := work(updates)
		close(updates)
		workErr <- err
		p.Send(DoneMsg{Summary: summary, Err: err})
	}()

	if _, err := p.Run(); err != nil {
		return err
	}
	return <-workErr
}

// RunPlain executes work, printing notifications as text lines.
func RunPlain(out io.Writer, title string, work Work) error {
	updates := make(chan usecase.Progress, 16)
	printed := make(chan struct{})
	go func() {
		defer close(printed)
		for p := range updates {
			if p.Total == 0 || p.Current == "" {
				continue
			}
			_, _ = fmt.Fprintf(out, "[%d/%d] %s\n", p.Done+1, p.Total, p.Current)
		}
	}()

	_, _ = fmt.Fprintln(out, title)
	summary, err := work(updates)
	close(updates)
	<-printed
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(out, summary)
	return nil
}
