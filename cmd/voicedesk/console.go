package main

import (
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/foxseedlab/voicedesk/internal/session"
)

type consoleListener struct {
	mu       sync.Mutex
	out      io.Writer
	outcomes chan session.Outcome
}

func newConsoleListener(out io.Writer) *consoleListener {
	return &consoleListener{
		out:      out,
		outcomes: make(chan session.Outcome, 1),
	}
}

func (l *consoleListener) OnNotice(n session.Notice) {
	if n.Err != nil {
		slog.Warn(n.Message, "kind", n.Kind, "error", n.Err)
	} else {
		slog.Info(n.Message, "kind", n.Kind)
	}
}

func (l *consoleListener) OnMessage(msg session.Message) {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, _ = fmt.Fprintf(l.out, "[%s] %s: %s\n", msg.At.Format("15:04:05"), msg.Role, msg.Text)
}

func (l *consoleListener) OnOutcome(o session.Outcome) {
	select {
	case l.outcomes <- o:
	default:
	}
}
