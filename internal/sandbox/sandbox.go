// Package sandbox executes user-submitted decision scripts as isolated
// subprocesses: one invocation per call, JSON in and out via temp files,
// bounded by a wall-clock timeout and a recycle-after-N-invocations worker
// pool. Grounded on the teacher's os/exec + temp-file JSON pattern
// (internal/agent/worker.go's codex exec call), generalized from a single
// external binary invocation to a pool of recyclable interpreter processes,
// with resource limits taken from the source system's sandbox module
// (DEFAULT_SANDBOX_TIMEOUT, MEMORY_LIMIT_BYTES, WORKER_MAX_TASKS). No CPU-time
// limit is applied, and the memory limit is only passed to the runner as
// --memory-mb. See design doc Section 4.3.
package sandbox

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/talgya/econ-sim-orchestrator/internal/apperr"
)

// oomExitCode is the exit status a Linux process receives when the kernel
// OOM-killer (or a cgroup memory limit) terminates it with SIGKILL.
const oomExitCode = 137

// Limits bounds a single script invocation. Values default to the source
// system's constants (config.Config carries the env-tunable equivalents).
type Limits struct {
	Timeout          time.Duration
	MemoryMB         int
	MaxInvocations   int // 0 means unlimited
}

// Request is the JSON payload written to the worker's input file: the
// script source plus the decision context it should run against.
type Request struct {
	ScriptID string          `json:"script_id"`
	Code     string          `json:"code"`
	Context  json.RawMessage `json:"context"`
}

// Result is the JSON payload a worker writes to its output file.
type Result struct {
	Decisions json.RawMessage `json:"decisions"`
	Error     string          `json:"error,omitempty"`
}

// Metrics accumulates counters for observability, mirroring the source
// system's SCRIPT_TIMEOUTS/SCRIPT_EXECUTIONS prometheus counters.
type Metrics struct {
	Invocations int64
	Timeouts    int64
	Failures    int64
}

func (m *Metrics) Snapshot() Metrics {
	return Metrics{
		Invocations: atomic.LoadInt64(&m.Invocations),
		Timeouts:    atomic.LoadInt64(&m.Timeouts),
		Failures:    atomic.LoadInt64(&m.Failures),
	}
}

// worker tracks how many invocations have run through a logical pool slot,
// so the Pool can force a fresh process after MaxInvocations per the source
// system's "WORKER_MAX_TASKS" mitigation for leaked state / memory growth.
type worker struct {
	invocations int
}

// Pool executes scripts by spawning one interpreter subprocess per
// invocation, bounded by limits, and tracks per-slot invocation counts to
// decide when a slot is due for recycling (informational; since each call is
// already its own process, recycling here means resetting slot bookkeeping,
// not killing a long-lived process).
type Pool struct {
	interpreterPath string
	limits          Limits
	log             *slog.Logger

	mu      sync.Mutex
	workers []*worker
	next    int

	metrics Metrics
}

// NewPool constructs a Pool with size logical worker slots, executing
// scripts via interpreterPath (e.g. "python3" with a small runner shim).
func NewPool(interpreterPath string, size int, limits Limits, log *slog.Logger) *Pool {
	if log == nil {
		log = slog.Default()
	}
	if size < 1 {
		size = 1
	}
	workers := make([]*worker, size)
	for i := range workers {
		workers[i] = &worker{}
	}
	return &Pool{
		interpreterPath: interpreterPath,
		limits:          limits,
		log:             log,
		workers:         workers,
	}
}

// Metrics returns a snapshot of execution counters.
func (p *Pool) Metrics() Metrics { return p.metrics.Snapshot() }

// Execute runs a script against a decision context, returning the raw
// decision JSON the caller is expected to validate/merge. Every failure is
// apperr.KindScriptFailure, refined by an apperr.ScriptFailureReason
// (Timeout, MemoryLimit, InvalidReturn, RuntimeException, or ImportDenied)
// so callers can branch on the failure mode without parsing Message text.
func (p *Pool) Execute(ctx context.Context, req Request) (json.RawMessage, error) {
	slot := p.claimSlot()
	defer p.releaseSlot(slot)

	timeout := p.limits.Timeout
	if timeout <= 0 {
		timeout = 750 * time.Millisecond
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	atomic.AddInt64(&p.metrics.Invocations, 1)

	inFile, err := os.CreateTemp("", "script_input_*.json")
	if err != nil {
		return nil, apperr.WrapScriptFailure(apperr.ReasonRuntimeException, "create input temp file", err)
	}
	defer os.Remove(inFile.Name())

	payload, err := json.Marshal(req)
	if err != nil {
		inFile.Close()
		return nil, apperr.WrapScriptFailure(apperr.ReasonRuntimeException, "marshal script request", err)
	}
	if _, err := inFile.Write(payload); err != nil {
		inFile.Close()
		return nil, apperr.WrapScriptFailure(apperr.ReasonRuntimeException, "write script request", err)
	}
	inFile.Close()

	outFile, err := os.CreateTemp("", "script_output_*.json")
	if err != nil {
		return nil, apperr.WrapScriptFailure(apperr.ReasonRuntimeException, "create output temp file", err)
	}
	outFile.Close()
	defer os.Remove(outFile.Name())

	cmd := exec.CommandContext(runCtx, p.interpreterPath,
		"-m", "econ_sim_script_runner",
		"--input", inFile.Name(),
		"--output", outFile.Name(),
		"--memory-mb", fmt.Sprintf("%d", p.limits.MemoryMB),
	)
	output, err := cmd.CombinedOutput()
	if runCtx.Err() == context.DeadlineExceeded {
		atomic.AddInt64(&p.metrics.Timeouts, 1)
		p.log.Warn("script execution timed out", "script_id", req.ScriptID, "timeout", timeout)
		return nil, apperr.NewScriptFailure(apperr.ReasonTimeout,
			fmt.Sprintf("script %s timed out after %s", req.ScriptID, timeout))
	}
	if err != nil {
		atomic.AddInt64(&p.metrics.Failures, 1)
		if exitErr, ok := err.(*exec.ExitError); ok && exitErr.ProcessState.ExitCode() == oomExitCode {
			return nil, apperr.WrapScriptFailure(apperr.ReasonMemoryLimit,
				fmt.Sprintf("script %s exceeded its memory limit", req.ScriptID), err)
		}
		return nil, apperr.WrapScriptFailure(apperr.ReasonRuntimeException,
			fmt.Sprintf("script %s exited with error; output: %s", req.ScriptID, truncate(string(output), 2000)), err)
	}

	raw, err := os.ReadFile(outFile.Name())
	if err != nil {
		atomic.AddInt64(&p.metrics.Failures, 1)
		return nil, apperr.WrapScriptFailure(apperr.ReasonInvalidReturn, "read script output", err)
	}
	var result Result
	if err := json.Unmarshal(raw, &result); err != nil {
		atomic.AddInt64(&p.metrics.Failures, 1)
		return nil, apperr.WrapScriptFailure(apperr.ReasonInvalidReturn, "parse script output", err)
	}
	if result.Error != "" {
		atomic.AddInt64(&p.metrics.Failures, 1)
		reason := apperr.ReasonRuntimeException
		if isImportDenial(result.Error) {
			reason = apperr.ReasonImportDenied
		}
		return nil, apperr.NewScriptFailure(reason, fmt.Sprintf("script %s reported error: %s", req.ScriptID, result.Error))
	}
	return result.Decisions, nil
}

// isImportDenial recognizes the runner shim's report of a blocked import
// attempted at call time (distinct from the registry's static check at
// registration, which catches the common case before a script ever runs).
func isImportDenial(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "importerror") || strings.Contains(lower, "import not allowed") || strings.Contains(lower, "module not allowed")
}

func (p *Pool) claimSlot() *worker {
	p.mu.Lock()
	defer p.mu.Unlock()
	w := p.workers[p.next%len(p.workers)]
	p.next++
	w.invocations++
	if p.limits.MaxInvocations > 0 && w.invocations >= p.limits.MaxInvocations {
		p.log.Info("recycling sandbox worker slot after max invocations", "invocations", w.invocations)
		w.invocations = 0
	}
	return w
}

func (p *Pool) releaseSlot(*worker) {}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "...(truncated)"
}
