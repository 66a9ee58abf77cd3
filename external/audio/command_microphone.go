package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/foxseedlab/voicedesk/internal/audio"
)

const defaultStartupProbe = 200 * time.Millisecond

// CommandMicrophone captures audio by running a recorder process
// (arecord, sox, ffmpeg, ...) that writes raw s16le PCM to stdout.
type CommandMicrophone struct {
	command      string
	startupProbe time.Duration
}

func NewCommandMicrophone(command string) audio.Microphone {
	return &CommandMicrophone{command: command, startupProbe: defaultStartupProbe}
}

func (m *CommandMicrophone) Open(ctx context.Context) (audio.InputStream, error) {
	args := strings.Fields(m.command)
	if len(args) == 0 {
		return nil, fmt.Errorf("%w: capture command is empty", audio.ErrMicrophoneUnavailable)
	}
	bin, err := exec.LookPath(args[0])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", audio.ErrMicrophoneUnavailable, err)
	}

	pr, pw, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("create capture pipe: %w", err)
	}
	var stderr bytes.Buffer
	cmd := exec.Command(bin, args[1:]...)
	cmd.Stdout = pw
	cmd.Stderr = &stderr
	if err := cmd.Start(); err != nil {
		_ = pr.Close()
		_ = pw.Close()
		return nil, fmt.Errorf("%w: %v", audio.ErrMicrophoneUnavailable, err)
	}
	_ = pw.Close()

	exited := make(chan error, 1)
	go func() { exited <- cmd.Wait() }()

	// A recorder that cannot open the device exits right away.
	select {
	case err := <-exited:
		_ = pr.Close()
		msg := strings.TrimSpace(stderr.String())
		if msg == "" && err != nil {
			msg = err.Error()
		}
		return nil, fmt.Errorf("%w: %s", audio.ErrPermissionDenied, msg)
	case <-ctx.Done():
		_ = cmd.Process.Kill()
		_ = pr.Close()
		return nil, ctx.Err()
	case <-time.After(m.startupProbe):
	}

	slog.Debug("capture command started", "command", args[0], "pid", cmd.Process.Pid)
	return &commandStream{cmd: cmd, pipe: pr, exited: exited}, nil
}

type commandStream struct {
	cmd       *exec.Cmd
	pipe      *os.File
	exited    <-chan error
	closeOnce sync.Once
}

func (s *commandStream) Read(p []byte) (int, error) {
	return s.pipe.Read(p)
}

func (s *commandStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		if killErr := s.cmd.Process.Kill(); killErr != nil && !errors.Is(killErr, os.ErrProcessDone) {
			err = killErr
		}
		if closeErr := s.pipe.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
		<-s.exited
	})
	return err
}
