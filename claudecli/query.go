package claudecli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"

	"github.com/m4xw311/ccbridge/errors"
	"github.com/m4xw311/ccbridge/logging"
)

// EventStream is a pull-based, single-pass sequence of events from one
// invocation. Next returns io.EOF after the stream ends cleanly; any other
// error is a failure of the invocation. Close is safe to call at any time
// and terminates the underlying process.
type EventStream interface {
	Next() (Event, error)
	Close() error
}

// QueryFunc is the signature of the invocation function. Engines consume
// the CLI through this type so tests can substitute a fake event source.
type QueryFunc func(ctx context.Context, prompt string, opts Options) (EventStream, error)

// Query spawns one agent CLI process for the given prompt and returns its
// event stream. The prompt is delivered via stdin. Cancelling ctx kills
// the process group; the resulting failure surfaces from Next.
func Query(ctx context.Context, prompt string, opts Options) (EventStream, error) {
	args, cleanup, err := opts.Args()
	if err != nil {
		return nil, errors.Wrapf(err, "building CLI arguments")
	}

	log := invocationLogger(opts)

	cmd := exec.Command(opts.executable(), args...)
	if opts.WorkingDir != "" {
		cmd.Dir = opts.WorkingDir
	}
	if len(opts.Env) > 0 {
		env := append([]string{}, os.Environ()...)
		for k, v := range opts.Env {
			env = append(env, fmt.Sprintf("%s=%s", k, v))
		}
		cmd.Env = env
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		cleanup()
		return nil, errors.Wrapf(err, "stdin pipe")
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cleanup()
		return nil, errors.Wrapf(err, "stdout pipe")
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		cleanup()
		return nil, errors.Wrapf(err, "stderr pipe")
	}

	if err := cmd.Start(); err != nil {
		cleanup()
		return nil, errors.Wrapf(err, "starting agent CLI %q", opts.executable())
	}
	log.Debug("agent CLI started", "pid", cmd.Process.Pid, "args", strings.Join(args, " "))

	s := &cliStream{
		ctx:     ctx,
		cmd:     cmd,
		cleanup: cleanup,
		log:     log,
		done:    make(chan struct{}),
	}
	s.pgid, _ = syscall.Getpgid(cmd.Process.Pid)

	// Tail stderr for diagnostics on failure.
	go s.tailStderr(stderr)

	// Deliver the prompt and close stdin so the one-shot invocation runs.
	go func() {
		_, werr := io.WriteString(stdin, prompt)
		if werr != nil {
			log.Warn("writing prompt to agent stdin", "error", werr)
		}
		_ = stdin.Close()
	}()

	// Kill the process group when the caller cancels.
	go func() {
		select {
		case <-ctx.Done():
			s.kill()
		case <-s.done:
		}
	}()

	scanner := bufio.NewScanner(stdout)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 2*1024*1024)
	s.scanner = scanner

	return s, nil
}

type cliStream struct {
	ctx     context.Context
	cmd     *exec.Cmd
	scanner *bufio.Scanner
	cleanup func()
	log     logging.Logger
	pgid    int

	mu         sync.Mutex
	stderrTail strings.Builder

	done     chan struct{}
	waitOnce sync.Once
	waitErr  error
}

func (s *cliStream) Next() (Event, error) {
	for s.scanner.Scan() {
		line := s.scanner.Bytes()
		if len(strings.TrimSpace(string(line))) == 0 {
			continue
		}
		ev, err := ParseEvent(line)
		if err != nil {
			// Non-JSON noise on stdout is skipped, not fatal.
			s.log.Debug("skipping unparseable agent output", "error", err)
			continue
		}
		if ev == nil {
			continue
		}
		return ev, nil
	}

	if err := s.scanner.Err(); err != nil {
		_ = s.wait()
		return nil, errors.Wrapf(err, "reading agent output")
	}

	// stdout closed cleanly; the exit status decides between EOF and error.
	if err := s.wait(); err != nil {
		if ctxErr := s.ctx.Err(); ctxErr != nil {
			return nil, errors.Wrapf(ctxErr, "agent invocation aborted")
		}
		if tail := s.stderrSnapshot(); tail != "" {
			return nil, errors.New("agent CLI exited: %v: %s", err, tail)
		}
		return nil, errors.Wrapf(err, "agent CLI exited")
	}
	return nil, io.EOF
}

func (s *cliStream) stderrSnapshot() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return strings.TrimSpace(s.stderrTail.String())
}

func (s *cliStream) tailStderr(r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		s.mu.Lock()
		if s.stderrTail.Len() < 8*1024 {
			s.stderrTail.WriteString(scanner.Text())
			s.stderrTail.WriteByte('\n')
		}
		s.mu.Unlock()
	}
}

func (s *cliStream) kill() {
	pgid := s.pgid
	if pgid == 0 && s.cmd.Process != nil {
		pgid = s.cmd.Process.Pid
	}
	if pgid != 0 {
		_ = syscall.Kill(-pgid, syscall.SIGTERM)
	}
}

// wait reaps the process exactly once and records its exit error.
func (s *cliStream) wait() error {
	s.waitOnce.Do(func() {
		s.waitErr = s.cmd.Wait()
		close(s.done)
		s.cleanup()
	})
	return s.waitErr
}

func (s *cliStream) Close() error {
	s.kill()
	_ = s.wait()
	return nil
}

func invocationLogger(opts Options) logging.Logger {
	if opts.LogFile != "" {
		if f, err := os.OpenFile(opts.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); err == nil {
			return logging.New(f, opts.LogLevel)
		}
	}
	return logging.Default(opts.LogLevel)
}
