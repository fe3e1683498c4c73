package terminal

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/clarolang/claroterm/pkg/claro"
	"github.com/clarolang/claroterm/pkg/configuration"
	"github.com/clarolang/claroterm/pkg/logger"
	"github.com/clarolang/claroterm/pkg/shared"
	"github.com/clarolang/claroterm/pkg/storage"
)

const (
	promptReady        = "> "
	promptContinuation = "... "
)

// TerminalRequest is one frame from the frontend.
type TerminalRequest struct {
	Content   string `json:"content,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
	Type      string `json:"type,omitempty"`
}

// Session is one terminal session: an interpreter plus the REPL state
// driving it. Every websocket connection gets its own session.
type Session struct {
	ID       string
	Username string

	interp *claro.Interp
	store  *storage.Store
	out    func(shared.Message)

	mu            sync.Mutex
	pending       []string // collected lines of an unterminated block
	awaitingInput bool
	inputCh       chan string
	closed        chan struct{}
}

// NewSession wires an interpreter to an output sink. The store may be
// nil, which disables the script commands and file statements.
func NewSession(id, username string, store *storage.Store, out func(shared.Message)) *Session {
	s := &Session{
		ID:       id,
		Username: username,
		store:    store,
		out:      out,
		inputCh:  make(chan string, 1),
		closed:   make(chan struct{}),
	}

	s.interp = claro.New()
	s.interp.SetSessionID(id)
	s.interp.SetInput(s.readInput)
	if store != nil {
		s.interp.SetFileSystem(storage.NewScriptFS(store, s.scriptOwner()))
	}

	bufSize := configuration.GetInt("Interpreter", "output_buffer_size", claro.OutputChannelBufferSize)
	s.interp.OutputChan = make(chan shared.Message, bufSize)
	go s.pumpOutput()

	return s
}

// scriptOwner is the key scripts are stored under. Guests get a
// session-scoped namespace so they cannot touch user scripts.
func (s *Session) scriptOwner() string {
	if s.Username != "" {
		return s.Username
	}
	return "guest:" + s.ID
}

// Close tears the session down and interrupts a running program.
func (s *Session) Close() {
	select {
	case <-s.closed:
		return
	default:
	}
	close(s.closed)
	s.interp.Stop()
}

// pumpOutput forwards streamed interpreter output to the sink.
func (s *Session) pumpOutput() {
	for {
		select {
		case msg := <-s.interp.OutputChan:
			s.out(msg)
		case <-s.closed:
			return
		}
	}
}

func (s *Session) send(msgType shared.MessageType, content string) {
	s.out(shared.Message{Type: msgType, Content: content, SessionID: s.ID})
}

func (s *Session) sendPrompt(symbol string) {
	s.out(shared.Message{Type: shared.MessageTypePrompt, PromptSymbol: symbol, SessionID: s.ID})
}

// readInput is the interpreter's input collaborator. It announces the
// prompt to the frontend and blocks until the next line arrives.
func (s *Session) readInput(prompt string) (string, error) {
	s.mu.Lock()
	s.awaitingInput = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.awaitingInput = false
		s.mu.Unlock()
	}()

	s.send(shared.MessageTypeInput, prompt)

	select {
	case line := <-s.inputCh:
		return line, nil
	case <-s.closed:
		return "", fmt.Errorf("session closed")
	}
}

// HandleFrame decodes one websocket frame and feeds it to the REPL.
func (s *Session) HandleFrame(raw []byte) {
	var req TerminalRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		logger.Warn(logger.AreaTerminal, "undecodable frame in session %s: %v", s.ID, err)
		return
	}
	if req.Type == "keepalive" {
		return
	}
	s.HandleLine(req.Content)
}

// HandleLine processes one line of terminal input: an answer to a
// pending INPUT, a session command, or Claro source.
func (s *Session) HandleLine(line string) {
	s.mu.Lock()
	if s.awaitingInput {
		s.mu.Unlock()
		select {
		case s.inputCh <- line:
		default:
		}
		return
	}
	s.mu.Unlock()

	if s.interp.IsRunning() {
		if strings.EqualFold(strings.TrimSpace(line), "STOP") {
			s.interp.Stop()
			s.send(shared.MessageTypeText, "Stopped.")
			s.sendPrompt(promptReady)
		} else {
			s.send(shared.MessageTypeText, "Program is running. Type STOP to interrupt.")
		}
		return
	}

	s.mu.Lock()
	collecting := len(s.pending) > 0
	s.mu.Unlock()

	if !collecting && s.dispatchCommand(line) {
		return
	}

	s.mu.Lock()
	s.pending = append(s.pending, line)
	src := strings.Join(s.pending, "\n")
	if claro.NeedsContinuation(src) > 0 {
		s.mu.Unlock()
		s.sendPrompt(promptContinuation)
		return
	}
	s.pending = nil
	s.mu.Unlock()

	go s.executeDirect(src)
}

// executeDirect runs collected REPL input on the session interpreter.
func (s *Session) executeDirect(src string) {
	err := s.interp.ExecuteDirect(context.Background(), src)
	s.interp.TakeOutput() // already streamed
	if err != nil {
		for _, msg := range claro.FormatErrorAsMessages(err) {
			s.out(msg)
		}
	}
	s.sendPrompt(promptReady)
}

// dispatchCommand handles the session-level commands. It reports
// whether the line was consumed.
func (s *Session) dispatchCommand(line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		s.sendPrompt(promptReady)
		return true
	}
	cmd := strings.ToUpper(fields[0])
	args := fields[1:]

	switch cmd {
	case "RUN":
		if len(args) != 1 {
			s.send(shared.MessageTypeText, "Usage: RUN <script>")
			s.sendPrompt(promptReady)
			return true
		}
		s.runScript(args[0])
		return true

	case "SCRIPTS":
		s.listScripts()
		return true

	case "DELETE":
		if len(args) != 1 {
			s.send(shared.MessageTypeText, "Usage: DELETE <script>")
			s.sendPrompt(promptReady)
			return true
		}
		s.deleteScript(args[0])
		return true

	case "NEW":
		s.interp.Reset()
		s.send(shared.MessageTypeText, "Ready.")
		s.sendPrompt(promptReady)
		return true

	case "VARS":
		s.listVars()
		return true

	case "FUNCS":
		s.listFuncs()
		return true

	case "HELP":
		s.sendHelp()
		return true
	}
	return false
}

// runScript loads a stored script and runs it asynchronously.
func (s *Session) runScript(name string) {
	if s.store == nil {
		s.send(shared.MessageTypeError, "No script store available.")
		s.sendPrompt(promptReady)
		return
	}
	content, err := s.store.LoadScript(s.scriptOwner(), name)
	if err != nil {
		s.send(shared.MessageTypeError, fmt.Sprintf("Cannot load %s: %v", name, err))
		s.sendPrompt(promptReady)
		return
	}

	s.interp.Load(content)
	s.out(shared.Message{Type: shared.MessageTypeMode, Mode: "run", SessionID: s.ID})
	go func() {
		err := s.interp.Run(context.Background())
		s.interp.TakeOutput()
		if err != nil {
			logger.Debug(logger.AreaSession, "script %s in session %s failed: %v", name, s.ID, err)
		}
		s.out(shared.Message{Type: shared.MessageTypeMode, Mode: "repl", SessionID: s.ID})
		s.sendPrompt(promptReady)
	}()
}

func (s *Session) listScripts() {
	if s.store == nil {
		s.send(shared.MessageTypeError, "No script store available.")
		s.sendPrompt(promptReady)
		return
	}
	scripts, err := s.store.ListScripts(s.scriptOwner())
	if err != nil {
		s.send(shared.MessageTypeError, fmt.Sprintf("Cannot list scripts: %v", err))
		s.sendPrompt(promptReady)
		return
	}
	if len(scripts) == 0 {
		s.send(shared.MessageTypeText, "No scripts saved.")
	}
	for _, script := range scripts {
		s.send(shared.MessageTypeText,
			fmt.Sprintf("%-24s %6d bytes  %s", script.Name, script.Size, script.UpdatedAt.Format("2006-01-02 15:04")))
	}
	s.sendPrompt(promptReady)
}

func (s *Session) deleteScript(name string) {
	if s.store == nil {
		s.send(shared.MessageTypeError, "No script store available.")
		s.sendPrompt(promptReady)
		return
	}
	if err := s.store.DeleteScript(s.scriptOwner(), name); err != nil {
		s.send(shared.MessageTypeError, fmt.Sprintf("Cannot delete %s: %v", name, err))
	} else {
		s.send(shared.MessageTypeText, fmt.Sprintf("Deleted %s.", name))
	}
	s.sendPrompt(promptReady)
}

func (s *Session) listVars() {
	globals := s.interp.Globals()
	names := make([]string, 0, len(globals))
	for name := range globals {
		names = append(names, name)
	}
	sort.Strings(names)
	if len(names) == 0 {
		s.send(shared.MessageTypeText, "No variables defined.")
	}
	for _, name := range names {
		s.send(shared.MessageTypeText, fmt.Sprintf("%s = %s", name, globals[name].String()))
	}
	s.sendPrompt(promptReady)
}

func (s *Session) listFuncs() {
	defs := s.interp.Functions()
	if len(defs) == 0 {
		s.send(shared.MessageTypeText, "No functions defined.")
	}
	names := make([]string, 0, len(defs))
	byName := make(map[string]string, len(defs))
	for _, def := range defs {
		names = append(names, def.Name)
		byName[def.Name] = strings.Join(def.Params, " ")
	}
	sort.Strings(names)
	for _, name := range names {
		s.send(shared.MessageTypeText, fmt.Sprintf("FUNC %s %s", name, byName[name]))
	}
	s.sendPrompt(promptReady)
}

func (s *Session) sendHelp() {
	help := []string{
		"Session commands:",
		"  RUN <script>     run a saved script",
		"  SCRIPTS          list saved scripts",
		"  DELETE <script>  delete a saved script",
		"  NEW              clear variables and functions",
		"  VARS             show defined variables",
		"  FUNCS            show defined functions",
		"  STOP             interrupt a running program",
		"Anything else is executed as Claro source.",
	}
	for _, line := range help {
		s.send(shared.MessageTypeText, line)
	}
	s.sendPrompt(promptReady)
}
