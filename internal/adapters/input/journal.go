package input

import (
	"bufio"
	"context"
	"io"
	"os/exec"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/xoelrdgz/succeed2ban/internal/domain"
	"github.com/xoelrdgz/succeed2ban/internal/errors"
	"github.com/xoelrdgz/succeed2ban/internal/ports"
)

var DefaultJournalUnits = []string{"ssh", "sshd"}

// JournalFollower streams new journal entries of the SSH units by running
// journalctl -f as a child process.
type JournalFollower struct {
	command    string
	args       []string
	bufferSize int
	mu         sync.Mutex
	cancel     context.CancelFunc
	running    bool
}

var _ ports.LineSource = (*JournalFollower)(nil)

// NewJournalFollower follows units (default ssh and sshd) from now on.
func NewJournalFollower(units []string, bufferSize int) *JournalFollower {
	return NewCommandFollower("journalctl", JournalArgs(units), bufferSize)
}

// JournalArgs are the journalctl arguments that follow units.
func JournalArgs(units []string) []string {
	if len(units) == 0 {
		units = DefaultJournalUnits
	}
	args := []string{"-f", "-n", "0"}
	for _, u := range units {
		args = append(args, "-u", u)
	}
	return args
}

// NewCommandFollower streams the stdout lines of an arbitrary command.
func NewCommandFollower(command string, args []string, bufferSize int) *JournalFollower {
	if bufferSize <= 0 {
		bufferSize = 1000
	}
	return &JournalFollower{command: command, args: args, bufferSize: bufferSize}
}

func (j *JournalFollower) Origin() domain.Origin { return domain.OriginJournal }

func (j *JournalFollower) Start(ctx context.Context) (<-chan string, <-chan error) {
	lineChan := make(chan string, j.bufferSize)
	errChan := make(chan error, 1)

	j.mu.Lock()
	if j.running {
		j.mu.Unlock()
		close(lineChan)
		close(errChan)
		return lineChan, errChan
	}
	ctx, cancel := context.WithCancel(ctx)
	j.cancel = cancel
	j.running = true
	j.mu.Unlock()

	go func() {
		defer close(lineChan)
		defer close(errChan)
		defer func() {
			j.mu.Lock()
			j.running = false
			j.mu.Unlock()
			cancel()
		}()

		cmd := exec.CommandContext(ctx, j.command, j.args...)
		stdout, err := cmd.StdoutPipe()
		if err != nil {
			errChan <- errors.Wrapf(err, errors.KindWatcher, "start %s", j.command)
			return
		}
		if err := cmd.Start(); err != nil {
			log.Error().Err(err).Str("command", j.command).Msg("Failed to start journal follower")
			errChan <- errors.Wrapf(err, errors.KindWatcher, "start %s", j.command)
			return
		}

		log.Info().Str("command", j.command).Strs("args", j.args).Msg("Started following journal")

		scanErr := j.scan(ctx, stdout, lineChan)
		if scanErr != nil && ctx.Err() == nil {
			// Nobody drains stdout any more, so the command must be killed before Wait.
			cancel()
			cmd.Wait()
			errChan <- errors.Wrapf(scanErr, errors.KindWatcher, "read %s", j.command)
			return
		}
		waitErr := cmd.Wait()

		if ctx.Err() != nil {
			return
		}
		if waitErr != nil {
			errChan <- errors.Wrapf(waitErr, errors.KindWatcher, "%s exited", j.command)
		}
	}()

	return lineChan, errChan
}

func (j *JournalFollower) scan(ctx context.Context, r io.Reader, out chan<- string) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for scanner.Scan() {
		raw := scanner.Text()
		if raw == "" {
			continue
		}
		text, truncated := domain.TruncateLine(raw)
		if truncated {
			log.Warn().
				Int("original_size", len(raw)).
				Int("truncated_to", domain.MaxLineLength).
				Msg("Truncated oversized journal line")
		}
		select {
		case out <- text:
		case <-ctx.Done():
			return nil
		}
	}
	return scanner.Err()
}

func (j *JournalFollower) Stop() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.running && j.cancel != nil {
		j.cancel()
	}
	return nil
}

func (j *JournalFollower) IsRunning() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.running
}
