package claro

import (
	"context"
	"strings"
	"sync"

	"github.com/clarolang/claroterm/pkg/configuration"
	"github.com/clarolang/claroterm/pkg/logger"
	"github.com/clarolang/claroterm/pkg/shared"
)

func claroDebugLog(format string, args ...interface{}) {
	logger.Debug(logger.AreaInterpreter, format, args...)
}

// FileSystem is the collaborator contract for IMPORT, READFILE and
// WRITEFILE. Implementations resolve paths in whatever store the host
// provides (OS files for the CLI, the script database for sessions).
type FileSystem interface {
	ReadText(path string) (string, error)
	WriteText(path, content string) error
}

// InputFunc is the blocking line-input collaborator used by INPUT.
type InputFunc func(prompt string) (string, error)

// FuncDef is one stored user procedure: parameter names plus the raw
// body lines. Bodies are never executed at definition time.
type FuncDef struct {
	Name   string
	Params []string
	Body   []sourceLine
}

// frame is one execution scope: the line list being executed and the
// variable environment statements mutate. The top-level program and
// every function body get their own frame; block keywords inside a
// body resolve against the body's own line list.
type frame struct {
	lines []sourceLine
	env   map[string]Value
}

// Interp is the Claro interpreter. One instance runs one program (or
// one interactive session) at a time; all state is protected by mu so
// a hosting service can drive it from its own goroutines.
type Interp struct {
	mu sync.Mutex

	lines   []sourceLine        // loaded program
	globals map[string]Value    // global variable environment
	funcs   map[string]*FuncDef // process-wide function table
	output  []string            // append-only PRINT output

	fs    FileSystem // optional; nil disables IMPORT/READFILE/WRITEFILE
	input InputFunc  // optional; nil makes INPUT fail

	// OutputChan streams produced output to a hosting terminal as it
	// appears. Nil for plain CLI runs; the buffer is collected either way.
	OutputChan chan shared.Message
	sessionID  string

	running    bool
	directMode bool
	callDepth  int

	maxCallDepth  int
	checkInterval int

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates an interpreter with limits taken from configuration.
func New() *Interp {
	ctx, cancel := context.WithCancel(context.Background())
	return &Interp{
		globals:       make(map[string]Value),
		funcs:         make(map[string]*FuncDef),
		maxCallDepth:  configuration.GetInt("Interpreter", "max_call_depth", DefaultMaxCallDepth),
		checkInterval: configuration.GetInt("Interpreter", "context_check_interval", ContextCheckInterval),
		ctx:           ctx,
		cancel:        cancel,
	}
}

// SetFileSystem installs the file access collaborator.
func (b *Interp) SetFileSystem(fs FileSystem) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fs = fs
}

// SetInput installs the line-input collaborator used by INPUT.
func (b *Interp) SetInput(fn InputFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.input = fn
}

// SetSessionID tags streamed messages with the owning session.
func (b *Interp) SetSessionID(sessionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sessionID = sessionID
}

// Load replaces the program with the given source text. Comments and
// blank lines are stripped; original line numbers are retained for
// diagnostics.
func (b *Interp) Load(src string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lines = parseSource(src)
}

// IsRunning safely checks whether a program run is in progress.
func (b *Interp) IsRunning() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.running
}

// Output returns a copy of the output buffer produced so far.
func (b *Interp) Output() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.output))
	copy(out, b.output)
	return out
}

// TakeOutput returns the buffered output and clears the buffer. The
// REPL uses this to print per-line results.
func (b *Interp) TakeOutput() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.output
	b.output = nil
	return out
}

// Globals returns a copy of the global variable environment.
func (b *Interp) Globals() map[string]Value {
	b.mu.Lock()
	defer b.mu.Unlock()
	return copyEnv(b.globals)
}

// Functions returns the names of all defined functions.
func (b *Interp) Functions() []*FuncDef {
	b.mu.Lock()
	defer b.mu.Unlock()
	defs := make([]*FuncDef, 0, len(b.funcs))
	for _, f := range b.funcs {
		defs = append(defs, f)
	}
	return defs
}

// Stop cancels a running program.
func (b *Interp) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cancel != nil {
		b.cancel()
	}
	b.ctx, b.cancel = context.WithCancel(context.Background())
	b.running = false
	b.callDepth = 0
}

// Reset clears all interpreter state except collaborators.
func (b *Interp) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lines = nil
	b.globals = make(map[string]Value)
	b.funcs = make(map[string]*FuncDef)
	b.output = nil
	b.callDepth = 0
	b.running = false
}

// Run executes the loaded program from the first line. It is the
// top-level program driver: it owns the global environment, feeds the
// dispatcher line by line, and halts on the first error outside a TRY
// region. The returned error carries the 1-based source line.
func (b *Interp) Run(ctx context.Context) error {
	b.mu.Lock()
	if b.running {
		b.mu.Unlock()
		return ErrProgramAlreadyRunning
	}
	if len(b.lines) == 0 {
		b.mu.Unlock()
		return ErrNoProgramLoaded
	}
	b.running = true
	b.directMode = false
	b.callDepth = 0
	stopCtx := b.ctx
	fr := &frame{lines: b.lines, env: b.globals}
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		b.running = false
		b.mu.Unlock()
	}()

	ctx, cancel := mergeStop(ctx, stopCtx)
	defer cancel()

	err := b.runProgram(ctx, fr)
	if err != nil {
		claroDebugLog("run aborted: %v", err)
		b.sendMessage(shared.MessageTypeError, err.Error())
	}
	return err
}

// runProgram drives a frame from its first line to the end. The state
// lock is taken around each dispatched statement and released between
// them; compound constructs release it around their own bodies the
// same way, so Stop and the inspection accessors stay responsive even
// while a loop or call is in progress.
func (b *Interp) runProgram(ctx context.Context, fr *frame) error {
	idx := 0
	checkCounter := 0
	for idx < len(fr.lines) {
		checkCounter++
		if checkCounter >= b.checkInterval {
			checkCounter = 0
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
		}

		b.mu.Lock()
		out, err := b.execLine(ctx, fr, idx)
		b.mu.Unlock()
		if err != nil {
			return err
		}
		if out.signal != sigNone {
			// A break/continue/return that reaches the driver was not
			// consumed by its owning construct. That is an interpreter
			// bug, never user error, and must not be silently dropped.
			return NewClaroError(ErrCategoryInternal, CodeSignalLeak, false, fr.lines[idx].num).
				WithDetail("signal %v escaped to the program driver", out.signal)
		}
		idx = out.next
	}
	return nil
}

// mergeStop derives the context a run executes under, so that both the
// caller's context and the interpreter's own Stop cancellation can
// interrupt it. The returned cancel must be called when the run ends.
func mergeStop(ctx, stopCtx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	runCtx, cancel := context.WithCancel(ctx)
	release := context.AfterFunc(stopCtx, cancel)
	return runCtx, func() {
		release()
		cancel()
	}
}

// ExecuteDirect runs one already-complete statement (or block) in the
// global environment, as the interactive mode does. Output is buffered
// and streamed like a program run; errors are returned for display and
// do not poison the session.
func (b *Interp) ExecuteDirect(ctx context.Context, input string) error {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil
	}

	b.mu.Lock()
	if b.running {
		b.mu.Unlock()
		return ErrProgramAlreadyRunning
	}
	b.directMode = true
	stopCtx := b.ctx
	fr := &frame{lines: parseSource(input), env: b.globals}
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		b.directMode = false
		b.mu.Unlock()
	}()

	ctx, cancel := mergeStop(ctx, stopCtx)
	defer cancel()

	return b.runProgram(ctx, fr)
}

// NeedsContinuation reports how many unterminated blocks the given
// buffered input still has open. The REPL keeps prompting with "..."
// until this returns zero for the collected lines.
func NeedsContinuation(input string) int {
	depth := 0
	for _, line := range parseSource(input) {
		kw := keywordOf(line.text)
		switch {
		case opensBlock(kw):
			depth++
		case kw == "END" && depth > 0:
			depth--
		}
	}
	return depth
}

// emit appends one produced string to the output buffer and streams it
// when a channel is attached. Assumes lock is held.
func (b *Interp) emit(s string) {
	b.output = append(b.output, s)
	b.sendLocked(shared.MessageTypeText, s)
}

// sendMessage best-effort delivers a message to the streaming channel.
func (b *Interp) sendMessage(msgType shared.MessageType, content string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sendLocked(msgType, content)
}

// sendLocked is sendMessage for callers already holding the lock.
func (b *Interp) sendLocked(msgType shared.MessageType, content string) bool {
	if b.OutputChan == nil {
		return false
	}
	select {
	case b.OutputChan <- shared.Message{Type: msgType, Content: content, SessionID: b.sessionID}:
		return true
	default:
		return false // dropped under backpressure
	}
}
