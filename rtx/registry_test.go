package rtx

import (
	"errors"
	"testing"
)

func TestBackendRegistry(t *testing.T) {
	expErr := errors.New("no device")
	Register("test-backend", func() (Context, error) {
		return nil, expErr
	})

	found := false
	for _, name := range Backends() {
		if name == "test-backend" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected registered backend to be listed")
	}

	if _, err := Open("test-backend"); err != expErr {
		t.Fatalf("expected factory error %v; got %v", expErr, err)
	}

	_, err := Open("missing-backend")
	if !errors.Is(err, ErrUnknownBackend) {
		t.Fatalf("expected ErrUnknownBackend; got %v", err)
	}
}

func TestModuleRegistryCopiesEntries(t *testing.T) {
	entries := map[string]Program{
		"__raygen__test": func(DeviceContext) {},
	}
	RegisterModule("test-module", entries)
	entries["__miss__test"] = func(DeviceContext) {}

	registered, exists := LookupModule("test-module")
	if !exists {
		t.Fatal("expected module to be registered")
	}
	if len(registered) != 1 {
		t.Fatalf("expected module to have 1 entry point; got %d", len(registered))
	}
}

func TestAlignUp(t *testing.T) {
	type spec struct {
		v, align, exp uint64
	}

	specs := []spec{
		{0, 16, 0},
		{1, 16, 16},
		{32, 16, 32},
		{33, 16, 48},
		{129, 128, 256},
	}

	for index, s := range specs {
		if out := AlignUp(s.v, s.align); out != s.exp {
			t.Errorf("[spec %d] expected AlignUp(%d, %d) to be %d; got %d", index, s.v, s.align, s.exp, out)
		}
	}
}
