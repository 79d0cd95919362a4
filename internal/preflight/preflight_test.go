package preflight

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func TestCheckDirectoryAccessOK(t *testing.T) {
	result := CheckDirectoryAccess("test", t.TempDir())
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccessNotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccessNotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckDiskSpace(t *testing.T) {
	result := CheckDiskSpace("space", t.TempDir())
	if result.Detail == "" {
		t.Fatal("expected detail with free space")
	}
}

func TestCheckBinary(t *testing.T) {
	if result := CheckBinary("shell", "sh"); !result.Passed {
		t.Fatalf("expected sh on PATH, got: %s", result.Detail)
	}
	if result := CheckBinary("missing", "cliply-no-such-binary"); result.Passed {
		t.Fatal("expected failure for unknown binary")
	}
	if result := CheckBinary("unset", " "); result.Passed {
		t.Fatal("expected failure for unconfigured command")
	}
}

func TestCheckEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	if result := CheckEndpoint(context.Background(), "api", srv.URL); !result.Passed {
		t.Fatalf("expected any HTTP response to pass, got: %s", result.Detail)
	}
	if result := CheckEndpoint(context.Background(), "api", ""); result.Passed {
		t.Fatal("expected failure for missing url")
	}
	if result := CheckEndpoint(context.Background(), "api", "http://127.0.0.1:1"); result.Passed {
		t.Fatal("expected failure for refused connection")
	}
}

func TestCheckCredentialedEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	if result := CheckCredentialedEndpoint(context.Background(), "api", srv.URL, "key"); !result.Passed {
		t.Fatalf("expected pass, got: %s", result.Detail)
	}
	if result := CheckCredentialedEndpoint(context.Background(), "api", srv.URL, ""); result.Passed {
		t.Fatal("expected failure for missing key")
	}
}

func TestAllPassed(t *testing.T) {
	if !AllPassed([]Result{{Passed: true}, {Passed: true}}) {
		t.Fatal("expected all passed")
	}
	if AllPassed([]Result{{Passed: true}, {}}) {
		t.Fatal("expected failure to be reported")
	}
	if !AllPassed(nil) {
		t.Fatal("empty result set should pass")
	}
}
