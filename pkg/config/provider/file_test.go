package provider

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestParseType(t *testing.T) {
	tests := []struct {
		input   string
		want    Type
		wantErr bool
	}{
		{"file", TypeFile, false},
		{"", TypeFile, false},
		{"consul", TypeConsul, false},
		{"etcd", TypeEtcd, false},
		{"zookeeper", TypeZookeeper, false},
		{"zk", TypeZookeeper, false},
		{"redis", "", true},
	}

	for _, tt := range tests {
		got, err := ParseType(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseType(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseType(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestNew_RequiresPath(t *testing.T) {
	if _, err := New(ProviderConfig{Type: TypeFile}); err == nil {
		t.Error("expected error for missing path")
	}
}

func TestNew_UnknownType(t *testing.T) {
	if _, err := New(ProviderConfig{Type: "redis", Path: "key"}); err == nil {
		t.Error("expected error for unknown type")
	}
}

func TestFileProvider_Load(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := []byte("server:\n  port: 8080\n")
	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	p, err := NewFileProvider(path)
	if err != nil {
		t.Fatalf("NewFileProvider() error = %v", err)
	}
	defer p.Close()

	if p.Type() != TypeFile {
		t.Errorf("Type() = %v, want file", p.Type())
	}

	data, err := p.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if string(data) != string(content) {
		t.Errorf("Load() = %q, want %q", data, content)
	}
}

func TestFileProvider_Load_Missing(t *testing.T) {
	p, err := NewFileProvider(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("NewFileProvider() error = %v", err)
	}
	defer p.Close()

	if _, err := p.Load(context.Background()); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestFileProvider_Watch_SignalsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("a: 1\n"), 0644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	p, err := NewFileProvider(path)
	if err != nil {
		t.Fatalf("NewFileProvider() error = %v", err)
	}
	defer p.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes, err := p.Watch(ctx)
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}
	if changes == nil {
		t.Fatal("Watch() returned nil channel")
	}

	// Let the watcher arm before touching the file.
	time.Sleep(200 * time.Millisecond)

	if err := os.WriteFile(path, []byte("a: 2\n"), 0644); err != nil {
		t.Fatalf("failed to rewrite file: %v", err)
	}

	select {
	case <-changes:
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for change signal")
	}
}

func TestFileProvider_Watch_DebouncesBursts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("a: 1\n"), 0644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	p, err := NewFileProvider(path)
	if err != nil {
		t.Fatalf("NewFileProvider() error = %v", err)
	}
	defer p.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes, err := p.Watch(ctx)
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}

	time.Sleep(200 * time.Millisecond)

	// A burst of writes should coalesce into at most one or two signals,
	// not one per write.
	for i := 0; i < 5; i++ {
		if err := os.WriteFile(path, []byte("a: 2\n"), 0644); err != nil {
			t.Fatalf("failed to rewrite file: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	select {
	case <-changes:
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for debounced signal")
	}

	// Drain any second signal, then confirm the channel stays quiet.
	select {
	case <-changes:
	case <-time.After(300 * time.Millisecond):
	}
	select {
	case <-changes:
		t.Error("burst of writes produced more than two signals")
	case <-time.After(300 * time.Millisecond):
	}
}

func TestFileProvider_Watch_StopsOnCancel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("a: 1\n"), 0644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	p, err := NewFileProvider(path)
	if err != nil {
		t.Fatalf("NewFileProvider() error = %v", err)
	}
	defer p.Close()

	ctx, cancel := context.WithCancel(context.Background())

	changes, err := p.Watch(ctx)
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}

	cancel()

	select {
	case _, ok := <-changes:
		if ok {
			t.Error("expected channel close after cancel, got signal")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("channel not closed after cancel")
	}
}

func TestFileProvider_Watch_AfterClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("a: 1\n"), 0644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	p, err := NewFileProvider(path)
	if err != nil {
		t.Fatalf("NewFileProvider() error = %v", err)
	}

	if err := p.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if _, err := p.Watch(context.Background()); err == nil {
		t.Error("expected error watching a closed provider")
	}
}
