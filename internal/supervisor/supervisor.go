// Package supervisor implements the Child Supervisor (spec.md §4.E):
// spawns an executor action's child process, attaches its stdout/stderr
// to a Message Store, and races an OS exit-status poll against an
// executor-reported "done" signal to produce a single durable
// completion event. Grounded on the teacher's internal/codexrpc/process.go
// spawn/pipe/wait pattern, generalized from one fixed binary (codex2
// app-server) to any executor's Spawnable.
package supervisor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vibeorchestrator/engine/internal/model"
	"github.com/vibeorchestrator/engine/internal/msgstore"
)

// SpawnTimeout is the ceiling on the spawn step itself (including
// pre-commands), per spec.md §4.E.
const SpawnTimeout = 30 * time.Second

// ExitSignal is fired by an executor's protocol adapter when it reports
// a final message out of band from the OS process exiting.
type ExitSignal struct {
	Success bool
}

// Spawnable describes what the supervisor needs to start a process: the
// command to run, its working directory, environment overlay, and any
// pre-commands that must succeed first.
type Spawnable struct {
	Command     string
	Args        []string
	Dir         string
	Env         map[string]string // overlay; wins over the base process environment
	PreCommands []string          // run sequentially under a shell before spawn
}

// Normalizer consumes a Message Store's raw Stdout/Stderr messages and
// pushes back JsonPatch entries and at most one SessionId, mirroring the
// spec's `normalize_logs(store, worktree_path)` adapter contract. input
// is the child's stdin, offered for protocol adapters (e.g. a JSON-RPC
// executor) that must also write requests back to the child; adapters
// with nothing to say may ignore it. fireExit lets an adapter report
// completion out of band from the OS process exiting (e.g. a
// turn-completed notification while the child keeps running).
type Normalizer interface {
	NormalizeLogs(ctx context.Context, store *msgstore.Store, worktreePath string, input io.Writer, fireExit func(ExitSignal))
}

// Child is a running (or just-finished) supervised process.
type Child struct {
	cmd   *exec.Cmd
	store *msgstore.Store

	mu          sync.Mutex
	stopped     bool
	exitSignal  chan ExitSignal
	inputSender io.WriteCloser
}

// Supervisor spawns and supervises child processes for execution
// processes; callers persist the Result it returns from Reconcile.
type Supervisor struct {
	log zerolog.Logger
}

// New creates a Supervisor.
func New(log zerolog.Logger) *Supervisor {
	return &Supervisor{log: log.With().Str("component", "supervisor").Logger()}
}

// Spawn starts spawnable, wiring stdout/stderr into store and returning
// a handle for exit reconciliation and (if the normalizer supports
// input) user input forwarding. Spawn itself is bounded by SpawnTimeout.
func (s *Supervisor) Spawn(ctx context.Context, spawnable Spawnable, store *msgstore.Store, norm Normalizer, worktreePath string) (*Child, error) {
	spawnCtx, cancel := context.WithTimeout(ctx, SpawnTimeout)
	defer cancel()

	if err := s.runPreCommands(spawnCtx, spawnable); err != nil {
		return nil, fmt.Errorf("pre-command failed: %w", err)
	}

	cmd := exec.CommandContext(ctx, spawnable.Command, spawnable.Args...)
	cmd.Dir = spawnable.Dir
	cmd.Env = mergeEnv(spawnable.Env)
	setProcessGroup(cmd)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("create stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("create stderr pipe: %w", err)
	}

	if err := waitWithTimeout(spawnCtx, cmd.Start); err != nil {
		return nil, err
	}

	c := &Child{
		cmd:         cmd,
		store:       store,
		exitSignal:  make(chan ExitSignal, 1),
		inputSender: stdin,
	}

	go streamLines(store, stdout, msgstore.Stdout)
	go streamLines(store, stderr, msgstore.Stderr)
	if norm != nil {
		go norm.NormalizeLogs(ctx, store, worktreePath, stdin, c.FireExitSignal)
	}

	return c, nil
}

func waitWithTimeout(ctx context.Context, start func() error) error {
	done := make(chan error, 1)
	go func() { done <- start() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Supervisor) runPreCommands(ctx context.Context, spawnable Spawnable) error {
	for _, pc := range spawnable.PreCommands {
		cmd := exec.CommandContext(ctx, "sh", "-c", pc)
		cmd.Dir = spawnable.Dir
		cmd.Env = mergeEnv(spawnable.Env)
		if out, err := cmd.CombinedOutput(); err != nil {
			return fmt.Errorf("%s: %w: %s", pc, err, string(out))
		}
	}
	return nil
}

func streamLines(store *msgstore.Store, r io.Reader, build func(string) msgstore.Message) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		store.Push(build(scanner.Text()))
	}
}

// FireExitSignal records that the executor's protocol adapter reported a
// final message out of band. Best-effort kills the process group.
func (c *Child) FireExitSignal(sig ExitSignal) {
	select {
	case c.exitSignal <- sig:
	default:
	}
	killProcessGroup(c.cmd)
}

// Input returns the child's stdin writer, or nil if it has been closed.
func (c *Child) Input() io.WriteCloser {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inputSender
}

// Stop preemptively marks the child as user-stopped, kills its process
// group, closes input, and pushes Finished into the store. Idempotent.
func (c *Child) Stop() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	if c.inputSender != nil {
		_ = c.inputSender.Close()
		c.inputSender = nil
	}
	c.mu.Unlock()

	killProcessGroup(c.cmd)
	c.store.Push(msgstore.Finished)
}

func (c *Child) wasStopped() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopped
}

// Result is the durable outcome of Reconcile.
type Result struct {
	Status      model.ProcessStatus
	ExitCode    *int
	AfterCommit string // best-effort, filled by the caller
}

// Reconcile races the OS exit watcher (cmd.Wait, Go's idiomatic
// equivalent of polling try_wait) against an executor exit signal,
// returning once either fires (or the child was user-stopped). It pushes
// Finished into the store exactly once, unless Stop already did so.
func (s *Supervisor) Reconcile(ctx context.Context, c *Child) Result {
	waitErr := make(chan error, 1)
	go func() { waitErr <- c.cmd.Wait() }()

	var result Result
	select {
	case sig := <-c.exitSignal:
		if c.wasStopped() {
			return Result{Status: model.ProcessKilled}
		}
		code := 0
		if !sig.Success {
			code = 1
		}
		result = Result{Status: statusFor(code), ExitCode: &code}
		killProcessGroup(c.cmd)
		go func() { <-waitErr }() // drain so cmd.Wait's goroutine doesn't leak
	case err := <-waitErr:
		if c.wasStopped() {
			return Result{Status: model.ProcessKilled}
		}
		code := exitCodeFromWaitErr(err)
		result = Result{Status: statusFor(code), ExitCode: &code}
	}

	if !c.wasStopped() {
		c.store.Push(msgstore.Finished)
	}
	return result
}

func statusFor(code int) model.ProcessStatus {
	if code == 0 {
		return model.ProcessCompleted
	}
	return model.ProcessFailed
}

func exitCodeFromWaitErr(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return 1
}

func mergeEnv(overlay map[string]string) []string {
	base := os.Environ()
	if len(overlay) == 0 {
		return base
	}
	merged := make(map[string]string, len(base)+len(overlay))
	for _, kv := range base {
		for i := 0; i < len(kv); i++ {
			if kv[i] == '=' {
				merged[kv[:i]] = kv[i+1:]
				break
			}
		}
	}
	for k, v := range overlay {
		merged[k] = v
	}
	out := make([]string, 0, len(merged))
	for k, v := range merged {
		out = append(out, k+"="+v)
	}
	return out
}
