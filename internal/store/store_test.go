package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	// Verify file was created
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path)
		if err != nil {
			t.Fatalf("Open() iteration %d failed: %v", i, err)
		}
		s.Close()
	}

	s, err := Open(path)
	if err != nil {
		t.Fatalf("final Open() failed: %v", err)
	}
	defer s.Close()

	tables := []string{"DataSources", "GenEvents", "GenVertices", "GenParticles", "MCVertices", "MCParticles"}
	for _, table := range tables {
		var name string
		err := s.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?",
			table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %q not found after idempotent opens: %v", table, err)
		}
	}
}

func TestOpen_WithoutSchema(t *testing.T) {
	s := createTestStore(t, WithoutSchema())

	tables, err := Tables(context.Background(), s.db)
	if err != nil {
		t.Fatalf("Tables() failed: %v", err)
	}
	if len(tables) != 0 {
		t.Errorf("expected no tables, got %v", tables)
	}
}

func TestOpen_FailureIsOpenError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "dir", "test.db")

	_, err := Open(path)
	if err == nil {
		t.Fatal("expected Open() to fail for missing directory")
	}

	var openErr *OpenError
	if !errors.As(err, &openErr) {
		t.Fatalf("expected *OpenError, got %T: %v", err, err)
	}
	if openErr.Path != path {
		t.Errorf("OpenError.Path = %q, want %q", openErr.Path, path)
	}
}

func TestOpen_Pragmas(t *testing.T) {
	s := createTestStore(t)

	if err := s.verifyPragma("journal_mode", "wal"); err != nil {
		t.Error(err)
	}
	if err := s.verifyPragma("busy_timeout", "5000"); err != nil {
		t.Error(err)
	}
	if err := s.verifyPragma("synchronous", "1"); err != nil {
		t.Error(err)
	}
}

func TestOpen_SchemaVersion(t *testing.T) {
	s := createTestStore(t)

	if err := s.verifyPragma("user_version", "1"); err != nil {
		t.Error(err)
	}
}

func TestOpen_GenvertexUniqueness(t *testing.T) {
	s := createTestStore(t)
	mustExec(t, s, "INSERT INTO MCVertices (genvertex_id, genevent_id) VALUES (7, 1)")

	_, err := s.db.Exec("INSERT INTO MCVertices (genvertex_id, genevent_id) VALUES (7, 1)")
	if err == nil {
		t.Fatal("expected UNIQUE violation on MCVertices.genvertex_id")
	}
	if !strings.Contains(err.Error(), "UNIQUE") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestResolvePath(t *testing.T) {
	tests := []struct {
		path   string
		shared bool
		memory bool
	}{
		{":memory:", false, true},
		{"file:sim?mode=memory&cache=shared", true, true},
		{"file::memory:", false, true},
		{"file:events.db?mode=rwc", true, false},
		{"events.db", true, false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			uri, shared, memory := resolvePath(tt.path)
			if uri != tt.path {
				t.Errorf("uri = %q, want %q", uri, tt.path)
			}
			if shared != tt.shared {
				t.Errorf("shared = %v, want %v", shared, tt.shared)
			}
			if memory != tt.memory {
				t.Errorf("memory = %v, want %v", memory, tt.memory)
			}
		})
	}
}

func TestResolvePath_EmptyIsUniqueSharedMemory(t *testing.T) {
	a, shared, memory := resolvePath("")
	b, _, _ := resolvePath("")

	if !shared || !memory {
		t.Errorf("empty path: shared=%v memory=%v, want both true", shared, memory)
	}
	if a == b {
		t.Errorf("empty path resolved to the same URI twice: %q", a)
	}
	if !strings.Contains(a, "cache=shared") {
		t.Errorf("uri %q is not shared-cache", a)
	}
}

func TestClose_ExactlyOnce(t *testing.T) {
	s, err := Open("")
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}

	if err := s.Close(); err != nil {
		t.Fatalf("first Close() failed: %v", err)
	}
	if err := s.Close(); !errors.Is(err, ErrUseAfterClose) {
		t.Errorf("second Close() = %v, want ErrUseAfterClose", err)
	}
	if !s.Closed() {
		t.Error("Closed() = false after Close")
	}
}

func TestClose_RejectsFurtherOperations(t *testing.T) {
	s, err := Open("")
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	s.Close()

	ctx := context.Background()
	if _, err := s.Handle(); !errors.Is(err, ErrUseAfterClose) {
		t.Errorf("Handle() = %v, want ErrUseAfterClose", err)
	}
	if err := s.Seed(1); !errors.Is(err, ErrUseAfterClose) {
		t.Errorf("Seed() = %v, want ErrUseAfterClose", err)
	}
	if _, err := s.Random(); !errors.Is(err, ErrUseAfterClose) {
		t.Errorf("Random() = %v, want ErrUseAfterClose", err)
	}
	if err := s.Refresh(ctx); !errors.Is(err, ErrUseAfterClose) {
		t.Errorf("Refresh() = %v, want ErrUseAfterClose", err)
	}
	called := false
	err = s.WithConnection(ctx, func(*sql.DB) error {
		called = true
		return nil
	})
	if !errors.Is(err, ErrUseAfterClose) {
		t.Errorf("WithConnection() = %v, want ErrUseAfterClose", err)
	}
	if called {
		t.Error("WithConnection() called fn on a closed store")
	}
}

func TestRefresh_DropsTemporaryTables(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	mustExec(t, s,
		"INSERT INTO GenEvents (genevent_id) VALUES (1)",
		"CREATE TEMP TABLE scratch (x REAL)",
	)

	if err := s.Refresh(ctx); err != nil {
		t.Fatalf("Refresh() failed: %v", err)
	}

	db, _ := s.Handle()
	n, err := CountRows(ctx, db, "GenEvents")
	if err != nil {
		t.Fatalf("CountRows() failed: %v", err)
	}
	if n != 1 {
		t.Errorf("GenEvents rows = %d after refresh, want 1", n)
	}

	tables, err := Tables(ctx, db)
	if err != nil {
		t.Fatalf("Tables() failed: %v", err)
	}
	for _, table := range tables {
		if table == "scratch" {
			t.Error("temporary table survived refresh")
		}
	}
}

func TestRefresh_ExclusiveMemoryUnavailable(t *testing.T) {
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	if err := s.Refresh(context.Background()); !errors.Is(err, ErrConnectionUnavailable) {
		t.Errorf("Refresh() = %v, want ErrConnectionUnavailable", err)
	}
}
