package backend

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"

	"github.com/gogpu/sprite/gpucore"
	"github.com/gogpu/sprite/internal/gputest"
)

func registerRecorder(t *testing.T, name string) {
	t.Helper()
	Register(name, func() (gpucore.Backend, error) {
		return gputest.NewRecorder(), nil
	})
	t.Cleanup(func() { Unregister(name) })
}

func TestRegistryRegisterAndGet(t *testing.T) {
	registerRecorder(t, "test-get")

	if !IsRegistered("test-get") {
		t.Fatal("test-get should be registered")
	}
	b, err := Get("test-get")
	if err != nil {
		t.Fatalf("Get(test-get) error = %v", err)
	}
	if b.Name() != "recorder" {
		t.Errorf("Get(test-get).Name() = %q, want %q", b.Name(), "recorder")
	}
}

func TestRegistryGetUnregistered(t *testing.T) {
	_, err := Get("nonexistent")
	if !errors.Is(err, ErrBackendNotAvailable) {
		t.Errorf("Get(nonexistent) error = %v, want ErrBackendNotAvailable", err)
	}
}

func TestRegistryAvailableSorted(t *testing.T) {
	registerRecorder(t, "test-b")
	registerRecorder(t, "test-a")

	var got []string
	for _, name := range Available() {
		if name == "test-a" || name == "test-b" {
			got = append(got, name)
		}
	}
	if len(got) != 2 || got[0] != "test-a" || got[1] != "test-b" {
		t.Errorf("Available() test entries = %v, want [test-a test-b]", got)
	}
}

func TestRegistryDefaultPriority(t *testing.T) {
	Register(NameLegacy, func() (gpucore.Backend, error) {
		r := gputest.NewRecorder()
		r.Caps.FlipY = true
		return r, nil
	})
	Register(NameExplicit, func() (gpucore.Backend, error) {
		return gputest.NewRecorder(), nil
	})
	t.Cleanup(func() {
		Unregister(NameLegacy)
		Unregister(NameExplicit)
	})

	b, err := Default()
	if err != nil {
		t.Fatalf("Default() error = %v", err)
	}
	if b.Capabilities().FlipY {
		t.Error("Default() picked the legacy backend while explicit is registered")
	}
}

func TestRegistryDefaultSkipsFailingFactory(t *testing.T) {
	Register(NameExplicit, func() (gpucore.Backend, error) {
		return nil, errors.New("no adapter")
	})
	Register(NameLegacy, func() (gpucore.Backend, error) {
		return gputest.NewRecorder(), nil
	})
	t.Cleanup(func() {
		Unregister(NameLegacy)
		Unregister(NameExplicit)
	})

	b, err := Default()
	if err != nil {
		t.Fatalf("Default() error = %v", err)
	}
	if b == nil {
		t.Fatal("Default() returned nil backend")
	}
}

func TestRegistryMustDefaultPanicsWhenEmpty(t *testing.T) {
	for _, name := range Available() {
		t.Skipf("registry not empty (%s registered)", name)
	}
	defer func() {
		if recover() == nil {
			t.Error("MustDefault() did not panic with an empty registry")
		}
	}()
	MustDefault()
}

func TestRegistryUnregister(t *testing.T) {
	Register("test-backend", func() (gpucore.Backend, error) {
		return gputest.NewRecorder(), nil
	})
	if !IsRegistered("test-backend") {
		t.Error("test-backend should be registered")
	}

	Unregister("test-backend")

	if IsRegistered("test-backend") {
		t.Error("test-backend should be unregistered")
	}
}

func TestRegistryNilFactoryResult(t *testing.T) {
	Register("test-nil", func() (gpucore.Backend, error) { return nil, nil })
	t.Cleanup(func() { Unregister("test-nil") })

	if _, err := Get("test-nil"); !errors.Is(err, ErrBackendNotAvailable) {
		t.Errorf("Get(test-nil) error = %v, want ErrBackendNotAvailable", err)
	}
}

func TestGetPropagatesLogger(t *testing.T) {
	t.Cleanup(func() { SetLogger(nil) })

	var buf bytes.Buffer
	custom := slog.New(slog.NewTextHandler(&buf, nil))
	SetLogger(custom)

	rec := gputest.NewRecorder()
	Register("test-logger", func() (gpucore.Backend, error) { return rec, nil })
	t.Cleanup(func() { Unregister("test-logger") })

	if _, err := Get("test-logger"); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if rec.Logger != custom {
		t.Error("Get() did not hand the registry logger to the backend")
	}
	if !bytes.Contains(buf.Bytes(), []byte("backend selected")) {
		t.Errorf("expected selection log, got %q", buf.String())
	}
}
