package modelserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"multilingual-rag/internal/config"
)

var ErrNotReady = errors.New("model server not ready")

type State int

const (
	NotStarted State = iota
	Starting
	Ready
	Failed
	Terminated
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "not_started"
	case Starting:
		return "starting"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	case Terminated:
		return "terminated"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Manager owns the lifecycle of one model server process.
type Manager struct {
	cfg    config.ServerConfig
	client *http.Client

	mu      sync.Mutex
	state   State
	cmd     *exec.Cmd
	exited  chan struct{}
	exitErr error
	logFile *os.File
}

func New(cfg config.ServerConfig) *Manager {
	return &Manager{
		cfg:    cfg,
		client: &http.Client{Timeout: 2 * time.Second},
		state:  NotStarted,
	}
}

func (m *Manager) BaseURL() string {
	return strings.TrimRight(m.cfg.BaseURL, "/")
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// RequireReady returns ErrNotReady unless the last health probe succeeded.
func (m *Manager) RequireReady() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != Ready {
		return fmt.Errorf("%w: state %s", ErrNotReady, m.state)
	}
	return nil
}

// Start launches the server process in the background. Output is discarded
// unless a log file is configured.
func (m *Manager) Start(ctx context.Context, model string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != NotStarted {
		return fmt.Errorf("cannot start model server in state %s", m.state)
	}

	args := m.cfg.ExpandArgs(model)
	cmd := exec.Command(m.cfg.Command, args...)
	if m.cfg.LogFile != "" {
		f, err := os.OpenFile(m.cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			m.state = Failed
			return fmt.Errorf("failed to open server log file: %w", err)
		}
		cmd.Stdout = f
		cmd.Stderr = f
		m.logFile = f
	}

	if err := cmd.Start(); err != nil {
		m.state = Failed
		m.closeLogFile()
		return fmt.Errorf("failed to start model server %q: %w", m.cfg.Command, err)
	}

	log.Info().
		Str("command", m.cfg.Command).
		Strs("args", args).
		Int("pid", cmd.Process.Pid).
		Msg("Model server started")

	m.cmd = cmd
	m.exited = make(chan struct{})
	m.state = Starting
	go m.reap(cmd, m.exited)
	return nil
}

func (m *Manager) reap(cmd *exec.Cmd, exited chan struct{}) {
	err := cmd.Wait()
	m.mu.Lock()
	m.exitErr = err
	state := m.state
	m.mu.Unlock()
	close(exited)

	if state != Terminated {
		log.Warn().Err(err).Int("pid", cmd.Process.Pid).Msg("Model server process exited")
	}
}

// AwaitReady polls the health endpoint until it answers 200, giving up after
// maxAttempts probes spaced by interval.
func (m *Manager) AwaitReady(ctx context.Context, maxAttempts int, interval time.Duration) error {
	switch st := m.State(); st {
	case Ready:
		return nil
	case Starting:
	default:
		return fmt.Errorf("cannot await readiness in state %s", st)
	}

	start := time.Now()
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := m.probe(ctx)
		if err == nil {
			if !m.transition(Starting, Ready) {
				return fmt.Errorf("%w: server terminated while waiting", ErrNotReady)
			}
			log.Info().Int("attempt", attempt).Dur("elapsed", time.Since(start)).Msg("Model server ready")
			return nil
		}
		log.Debug().Err(err).Int("attempt", attempt).Msg("Model server not ready yet")

		if attempt == maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			m.transition(Starting, Failed)
			return fmt.Errorf("waiting for model server: %w", ctx.Err())
		case <-time.After(interval):
		}
	}

	m.transition(Starting, Failed)
	return fmt.Errorf("%w after %d attempts", ErrNotReady, maxAttempts)
}

func (m *Manager) probe(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.BaseURL()+"/", nil)
	if err != nil {
		return err
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned %d", resp.StatusCode)
	}
	return nil
}

func (m *Manager) transition(from, to State) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != from {
		return false
	}
	m.state = to
	return true
}

// Terminate stops the process: SIGTERM, then a kill once the grace period
// runs out. It is safe to call in any state and more than once.
func (m *Manager) Terminate() error {
	m.mu.Lock()
	if m.state == Terminated {
		m.mu.Unlock()
		return nil
	}
	m.state = Terminated
	cmd, exited := m.cmd, m.exited
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.closeLogFile()
		m.mu.Unlock()
	}()

	if cmd == nil || cmd.Process == nil {
		return nil
	}

	select {
	case <-exited:
		return nil
	default:
	}

	if err := cmd.Process.Signal(syscall.SIGTERM); err != nil && !errors.Is(err, os.ErrProcessDone) {
		log.Warn().Err(err).Msg("Failed to signal model server")
	}

	select {
	case <-exited:
		log.Info().Int("pid", cmd.Process.Pid).Msg("Model server terminated")
		return nil
	case <-time.After(m.cfg.TerminateGrace()):
	}

	log.Warn().Int("pid", cmd.Process.Pid).Msg("Model server ignored SIGTERM, killing")
	if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("failed to kill model server: %w", err)
	}
	<-exited
	return nil
}

func (m *Manager) closeLogFile() {
	if m.logFile != nil {
		_ = m.logFile.Close()
		m.logFile = nil
	}
}
