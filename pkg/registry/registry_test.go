package registry

import (
	"fmt"
	"testing"
)

type testProvider struct {
	Name  string
	Model string
}

func TestBaseRegistry_Register(t *testing.T) {
	reg := NewBaseRegistry[testProvider]()

	tests := []struct {
		name    string
		key     string
		item    testProvider
		wantErr bool
	}{
		{
			name:    "register valid item",
			key:     "openai",
			item:    testProvider{Name: "openai", Model: "gpt-4o-mini"},
			wantErr: false,
		},
		{
			name:    "register with empty name",
			key:     "",
			item:    testProvider{Name: "unnamed"},
			wantErr: true,
		},
		{
			name:    "register duplicate name",
			key:     "openai",
			item:    testProvider{Name: "openai", Model: "gpt-4o"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := reg.Register(tt.key, tt.item)
			if (err != nil) != tt.wantErr {
				t.Errorf("Register() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestBaseRegistry_Replace(t *testing.T) {
	reg := NewBaseRegistry[testProvider]()

	if err := reg.Replace("openai", testProvider{Name: "openai", Model: "gpt-4o-mini"}); err != nil {
		t.Fatalf("Replace() error = %v", err)
	}
	if err := reg.Replace("openai", testProvider{Name: "openai", Model: "gpt-4o"}); err != nil {
		t.Fatalf("Replace() overwrite error = %v", err)
	}

	item, ok := reg.Get("openai")
	if !ok {
		t.Fatal("Get() after Replace() returned ok = false")
	}
	if item.Model != "gpt-4o" {
		t.Errorf("Get() model = %q, want %q", item.Model, "gpt-4o")
	}
	if count := reg.Count(); count != 1 {
		t.Errorf("Count() = %d, want 1", count)
	}

	if err := reg.Replace("", testProvider{}); err == nil {
		t.Error("Replace() with empty name expected error, got nil")
	}
}

func TestBaseRegistry_Get(t *testing.T) {
	reg := NewBaseRegistry[testProvider]()

	want := testProvider{Name: "anthropic", Model: "claude-sonnet-4-20250514"}
	if err := reg.Register("anthropic", want); err != nil {
		t.Fatalf("failed to register item: %v", err)
	}

	item, ok := reg.Get("anthropic")
	if !ok {
		t.Fatal("Get() existing item returned ok = false")
	}
	if item != want {
		t.Errorf("Get() = %+v, want %+v", item, want)
	}

	if _, ok := reg.Get("missing"); ok {
		t.Error("Get() non-existing item returned ok = true")
	}
}

func TestBaseRegistry_Names(t *testing.T) {
	reg := NewBaseRegistry[testProvider]()

	for _, name := range []string{"gemini", "anthropic", "openai"} {
		if err := reg.Register(name, testProvider{Name: name}); err != nil {
			t.Fatalf("failed to register %s: %v", name, err)
		}
	}

	names := reg.Names()
	want := []string{"anthropic", "gemini", "openai"}
	if len(names) != len(want) {
		t.Fatalf("Names() length = %d, want %d", len(names), len(want))
	}
	for i, name := range want {
		if names[i] != name {
			t.Errorf("Names()[%d] = %q, want %q (sorted order)", i, names[i], name)
		}
	}
}

func TestBaseRegistry_Remove(t *testing.T) {
	reg := NewBaseRegistry[testProvider]()

	if err := reg.Register("openai", testProvider{Name: "openai"}); err != nil {
		t.Fatalf("failed to register item: %v", err)
	}

	if err := reg.Remove("openai"); err != nil {
		t.Errorf("Remove() existing item error = %v", err)
	}
	if _, ok := reg.Get("openai"); ok {
		t.Error("item still present after Remove()")
	}
	if err := reg.Remove("openai"); err == nil {
		t.Error("Remove() non-existing item expected error, got nil")
	}
}

func TestBaseRegistry_Clear(t *testing.T) {
	reg := NewBaseRegistry[testProvider]()

	for i := 0; i < 3; i++ {
		name := fmt.Sprintf("provider-%d", i)
		if err := reg.Register(name, testProvider{Name: name}); err != nil {
			t.Fatalf("failed to register %s: %v", name, err)
		}
	}

	reg.Clear()

	if count := reg.Count(); count != 0 {
		t.Errorf("Count() after Clear() = %d, want 0", count)
	}
	if items := reg.List(); len(items) != 0 {
		t.Errorf("List() after Clear() length = %d, want 0", len(items))
	}
}

func TestBaseRegistry_Concurrency(t *testing.T) {
	reg := NewBaseRegistry[testProvider]()

	done := make(chan bool, 2)

	go func() {
		defer func() { done <- true }()
		for i := 0; i < 100; i++ {
			name := fmt.Sprintf("concurrent-%d", i)
			_ = reg.Register(name, testProvider{Name: name})
		}
	}()

	go func() {
		defer func() { done <- true }()
		for i := 0; i < 100; i++ {
			reg.Get(fmt.Sprintf("concurrent-%d", i))
			reg.Count()
			reg.List()
		}
	}()

	<-done
	<-done

	if count := reg.Count(); count != 100 {
		t.Errorf("Count() after concurrent access = %d, want 100", count)
	}
}
