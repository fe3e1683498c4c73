package terminal

import (
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/clarolang/claroterm/pkg/shared"
	"github.com/clarolang/claroterm/pkg/storage"
)

// capture collects session output so tests can assert on it without a
// websocket.
type capture struct {
	mu      sync.Mutex
	msgs    []shared.Message
	prompts chan string
	inputs  chan string
}

func newCapture() *capture {
	return &capture{
		prompts: make(chan string, 32),
		inputs:  make(chan string, 32),
	}
}

func (c *capture) sink(msg shared.Message) {
	c.mu.Lock()
	c.msgs = append(c.msgs, msg)
	c.mu.Unlock()
	switch msg.Type {
	case shared.MessageTypePrompt:
		c.prompts <- msg.PromptSymbol
	case shared.MessageTypeInput:
		c.inputs <- msg.Content
	}
}

// waitText polls until a message containing want has arrived.
func (c *capture) waitText(t *testing.T, want string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		c.mu.Lock()
		for _, msg := range c.msgs {
			if strings.Contains(msg.Content, want) {
				c.mu.Unlock()
				return
			}
		}
		c.mu.Unlock()
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("no message containing %q arrived", want)
}

func (c *capture) hasText(want string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, msg := range c.msgs {
		if strings.Contains(msg.Content, want) {
			return true
		}
	}
	return false
}

func waitPrompt(t *testing.T, c *capture) string {
	t.Helper()
	select {
	case symbol := <-c.prompts:
		return symbol
	case <-time.After(2 * time.Second):
		t.Fatal("no prompt arrived")
		return ""
	}
}

func newTestSession(t *testing.T, store *storage.Store) (*Session, *capture) {
	t.Helper()
	cap := newCapture()
	s := NewSession("test-session", "", store, cap.sink)
	t.Cleanup(s.Close)
	return s, cap
}

func TestSessionExecutesSource(t *testing.T) {
	s, cap := newTestSession(t, nil)

	s.HandleLine("PRINT 6 * 7")
	if symbol := waitPrompt(t, cap); symbol != promptReady {
		t.Errorf("prompt = %q", symbol)
	}
	cap.waitText(t, "42")
}

func TestSessionCollectsOpenBlocks(t *testing.T) {
	s, cap := newTestSession(t, nil)

	s.HandleLine("IF 1")
	if symbol := waitPrompt(t, cap); symbol != promptContinuation {
		t.Fatalf("prompt after open block = %q", symbol)
	}
	s.HandleLine("PRINT \"inside\"")
	if symbol := waitPrompt(t, cap); symbol != promptContinuation {
		t.Fatalf("prompt while still open = %q", symbol)
	}
	s.HandleLine("END")
	if symbol := waitPrompt(t, cap); symbol != promptReady {
		t.Errorf("prompt after close = %q", symbol)
	}
	cap.waitText(t, "inside")
}

func TestSessionKeepsStateBetweenLines(t *testing.T) {
	s, cap := newTestSession(t, nil)

	s.HandleLine("VARIABLE x = 20")
	waitPrompt(t, cap)
	s.HandleLine("PRINT x + 1")
	waitPrompt(t, cap)
	cap.waitText(t, "21")
}

func TestSessionReportsErrors(t *testing.T) {
	s, cap := newTestSession(t, nil)

	s.HandleLine("PRINT 1 / 0")
	waitPrompt(t, cap)
	cap.waitText(t, "DIVISION")

	// The session keeps working afterwards.
	s.HandleLine("PRINT 2")
	waitPrompt(t, cap)
	cap.waitText(t, "2")
}

func TestSessionAnswersInput(t *testing.T) {
	s, cap := newTestSession(t, nil)

	s.HandleLine("INPUT name \"Who are you?\"")
	select {
	case prompt := <-cap.inputs:
		if prompt != "Who are you?" {
			t.Errorf("input prompt = %q", prompt)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no input request arrived")
	}

	s.HandleLine("claro")
	waitPrompt(t, cap)

	s.HandleLine("PRINT name")
	waitPrompt(t, cap)
	cap.waitText(t, "claro")
}

func TestSessionVarsCommand(t *testing.T) {
	s, cap := newTestSession(t, nil)

	s.HandleLine("VARIABLE answer = 42")
	waitPrompt(t, cap)
	s.HandleLine("VARS")
	waitPrompt(t, cap)
	cap.waitText(t, "answer = 42")
}

func TestSessionFuncsCommand(t *testing.T) {
	s, cap := newTestSession(t, nil)

	s.HandleLine("FUNC add a b")
	waitPrompt(t, cap)
	s.HandleLine("RETURN a + b")
	waitPrompt(t, cap)
	s.HandleLine("END")
	waitPrompt(t, cap)

	s.HandleLine("FUNCS")
	waitPrompt(t, cap)
	cap.waitText(t, "FUNC add a b")
}

func TestSessionNewClearsState(t *testing.T) {
	s, cap := newTestSession(t, nil)

	s.HandleLine("VARIABLE x = 1")
	waitPrompt(t, cap)
	s.HandleLine("NEW")
	waitPrompt(t, cap)
	s.HandleLine("VARS")
	waitPrompt(t, cap)
	cap.waitText(t, "No variables defined.")
}

func TestSessionScriptCommands(t *testing.T) {
	store, err := storage.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	s, cap := newTestSession(t, store)
	if err := store.SaveScript(s.scriptOwner(), "hello.claro", "PRINT \"from script\""); err != nil {
		t.Fatalf("save script: %v", err)
	}

	s.HandleLine("SCRIPTS")
	waitPrompt(t, cap)
	cap.waitText(t, "hello.claro")

	s.HandleLine("RUN hello.claro")
	waitPrompt(t, cap)
	cap.waitText(t, "from script")

	s.HandleLine("DELETE hello.claro")
	waitPrompt(t, cap)
	cap.waitText(t, "Deleted hello.claro.")
}

func TestSessionRunMissingScript(t *testing.T) {
	store, err := storage.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	s, cap := newTestSession(t, store)
	s.HandleLine("RUN nothere.claro")
	waitPrompt(t, cap)
	cap.waitText(t, "Cannot load nothere.claro")
}

func TestSessionHandleFrame(t *testing.T) {
	s, cap := newTestSession(t, nil)

	s.HandleFrame([]byte(`{"content": "PRINT 9"}`))
	waitPrompt(t, cap)
	cap.waitText(t, "9")

	// Keepalives and garbage are ignored without output.
	s.HandleFrame([]byte(`{"type": "keepalive"}`))
	s.HandleFrame([]byte(`not json`))
}
