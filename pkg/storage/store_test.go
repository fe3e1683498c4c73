package storage

import (
	"errors"
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCreateUserAndAuthenticate(t *testing.T) {
	s := openTestStore(t)

	if err := s.CreateUser("alice", "secret99"); err != nil {
		t.Fatalf("create user: %v", err)
	}
	if err := s.Authenticate("alice", "secret99"); err != nil {
		t.Errorf("authenticate: %v", err)
	}
	if err := s.Authenticate("alice", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("expected ErrInvalidCredentials, got %v", err)
	}
	if err := s.Authenticate("nobody", "x"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("expected ErrUserNotFound, got %v", err)
	}
}

func TestCreateUserRejectsDuplicate(t *testing.T) {
	s := openTestStore(t)

	if err := s.CreateUser("bob", "secret99"); err != nil {
		t.Fatalf("create user: %v", err)
	}
	if err := s.CreateUser("bob", "other"); !errors.Is(err, ErrUserExists) {
		t.Errorf("expected ErrUserExists, got %v", err)
	}
}

func TestScriptRoundTrip(t *testing.T) {
	s := openTestStore(t)

	if err := s.SaveScript("alice", "hello.claro", "PRINT 1"); err != nil {
		t.Fatalf("save: %v", err)
	}
	content, err := s.LoadScript("alice", "hello.claro")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if content != "PRINT 1" {
		t.Errorf("content = %q", content)
	}

	// Saving again replaces the content.
	if err := s.SaveScript("alice", "hello.claro", "PRINT 2"); err != nil {
		t.Fatalf("resave: %v", err)
	}
	content, err = s.LoadScript("alice", "hello.claro")
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if content != "PRINT 2" {
		t.Errorf("content after resave = %q", content)
	}
}

func TestScriptsAreScopedPerUser(t *testing.T) {
	s := openTestStore(t)

	if err := s.SaveScript("alice", "x.claro", "PRINT 1"); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := s.LoadScript("bob", "x.claro"); !errors.Is(err, ErrScriptNotFound) {
		t.Errorf("expected ErrScriptNotFound for other user, got %v", err)
	}
}

func TestListAndDeleteScripts(t *testing.T) {
	s := openTestStore(t)

	if err := s.SaveScript("alice", "a.claro", "PRINT 1"); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := s.SaveScript("alice", "b.claro", "PRINT 22"); err != nil {
		t.Fatalf("save: %v", err)
	}

	scripts, err := s.ListScripts("alice")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(scripts) != 2 {
		t.Fatalf("got %d scripts", len(scripts))
	}

	if err := s.DeleteScript("alice", "a.claro"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.DeleteScript("alice", "a.claro"); !errors.Is(err, ErrScriptNotFound) {
		t.Errorf("expected ErrScriptNotFound, got %v", err)
	}

	scripts, err = s.ListScripts("alice")
	if err != nil {
		t.Fatalf("list after delete: %v", err)
	}
	if len(scripts) != 1 || scripts[0].Name != "b.claro" {
		t.Errorf("scripts after delete = %+v", scripts)
	}
}

func TestScriptFSImplementsFileAccess(t *testing.T) {
	s := openTestStore(t)
	fs := NewScriptFS(s, "alice")

	if err := fs.WriteText("lib.claro", "VARIABLE x = 1"); err != nil {
		t.Fatalf("write: %v", err)
	}
	content, err := fs.ReadText("lib.claro")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if content != "VARIABLE x = 1" {
		t.Errorf("content = %q", content)
	}
	if _, err := fs.ReadText("missing.claro"); !errors.Is(err, ErrScriptNotFound) {
		t.Errorf("expected ErrScriptNotFound, got %v", err)
	}
}
