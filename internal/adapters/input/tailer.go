package input

import (
	"context"
	"sync"

	"github.com/nxadm/tail"
	"github.com/rs/zerolog/log"

	"github.com/xoelrdgz/succeed2ban/internal/domain"
	"github.com/xoelrdgz/succeed2ban/internal/errors"
	"github.com/xoelrdgz/succeed2ban/internal/ports"
)

// DefaultFail2banLog is the fail2ban log followed when none is configured.
const DefaultFail2banLog = "/var/log/fail2ban.log"

// FileTailer follows the fail2ban log from its end, reopening it on rotation.
type FileTailer struct {
	filepath      string
	bufferSize    int
	fromBeginning bool
	poll          bool
	mu            sync.Mutex
	tail          *tail.Tail
	running       bool
	stopChan      chan struct{}
}

var _ ports.LineSource = (*FileTailer)(nil)

func NewFileTailer(filepath string, bufferSize int) *FileTailer {
	if filepath == "" {
		filepath = DefaultFail2banLog
	}
	if bufferSize <= 0 {
		bufferSize = 1000
	}
	return &FileTailer{
		filepath:   filepath,
		bufferSize: bufferSize,
		stopChan:   make(chan struct{}),
	}
}

// SetFromBeginning replays the existing file content before following.
func (t *FileTailer) SetFromBeginning(fromBeginning bool) {
	t.fromBeginning = fromBeginning
}

// SetPoll switches from inotify to polling.
func (t *FileTailer) SetPoll(poll bool) {
	t.poll = poll
}

func (t *FileTailer) Origin() domain.Origin { return domain.OriginFail2ban }

func (t *FileTailer) Start(ctx context.Context) (<-chan string, <-chan error) {
	lineChan := make(chan string, t.bufferSize)
	errChan := make(chan error, 1)

	t.mu.Lock()
	if t.running {
		t.mu.Unlock()
		close(lineChan)
		close(errChan)
		return lineChan, errChan
	}
	t.running = true
	t.stopChan = make(chan struct{})
	stop := t.stopChan
	t.mu.Unlock()

	go func() {
		defer close(lineChan)
		defer close(errChan)
		defer t.markStopped(stop)

		whence := 2
		if t.fromBeginning {
			whence = 0
		}

		config := tail.Config{
			Follow:    true,
			ReOpen:    true,
			MustExist: true,
			Poll:      t.poll,
			Location:  &tail.SeekInfo{Offset: 0, Whence: whence},
			Logger:    tail.DiscardingLogger,
		}

		tl, err := tail.TailFile(t.filepath, config)
		if err != nil {
			log.Error().Err(err).Str("file", t.filepath).Msg("Failed to tail file")
			errChan <- errors.Wrapf(err, errors.KindWatcher, "tail %s", t.filepath)
			return
		}
		defer tl.Cleanup()

		t.mu.Lock()
		t.tail = tl
		t.mu.Unlock()

		log.Info().Str("file", t.filepath).Msg("Started tailing log file")

		for {
			select {
			case <-ctx.Done():
				log.Info().Msg("Context cancelled, stopping tailer")
				tl.Stop()
				return
			case <-stop:
				log.Info().Msg("Stop signal received, stopping tailer")
				return
			case line, ok := <-tl.Lines:
				if !ok {
					if err := tl.Err(); err != nil {
						errChan <- errors.Wrapf(err, errors.KindWatcher, "tail %s", t.filepath)
					}
					return
				}
				if line.Err != nil {
					log.Warn().Err(line.Err).Msg("Error reading line")
					continue
				}
				if line.Text == "" {
					continue
				}

				text, truncated := domain.TruncateLine(line.Text)
				if truncated {
					log.Warn().
						Int("original_size", len(line.Text)).
						Int("truncated_to", domain.MaxLineLength).
						Msg("Truncated oversized log line")
				}

				select {
				case lineChan <- text:
				case <-ctx.Done():
					return
				case <-stop:
					return
				}
			}
		}
	}()

	return lineChan, errChan
}

func (t *FileTailer) markStopped(stop chan struct{}) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopChan == stop {
		t.running = false
		t.tail = nil
	}
}

func (t *FileTailer) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.running {
		return nil
	}

	close(t.stopChan)
	t.running = false

	if t.tail != nil {
		return t.tail.Stop()
	}
	return nil
}

func (t *FileTailer) IsRunning() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}
