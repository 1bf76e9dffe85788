package tools

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/vinayprograms/warden/internal/faults"
	"github.com/vinayprograms/warden/internal/permission"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	return NewRegistry(t.TempDir(), Options{CommandTimeout: 5 * time.Second})
}

func call(t *testing.T, r *Registry, name string, args map[string]interface{}) (interface{}, error) {
	t.Helper()
	tool, ok := r.Get(name)
	if !ok {
		t.Fatalf("tool %s not registered", name)
	}
	return tool.Call(context.Background(), args)
}

func TestRegistry_BuiltinsDeclareActions(t *testing.T) {
	r := newTestRegistry(t)
	want := map[string]permission.Action{
		"read_file":   permission.ActionRead,
		"list_files":  permission.ActionRead,
		"write_file":  permission.ActionWrite,
		"modify_file": permission.ActionModify,
		"delete_file": permission.ActionDelete,
		"bash":        permission.ActionExecute,
		"http_get":    permission.ActionNetwork,
	}
	for name, action := range want {
		tool, ok := r.Get(name)
		if !ok {
			t.Errorf("missing tool %s", name)
			continue
		}
		if tool.Action() != action {
			t.Errorf("%s: expected %s, got %s", name, action, tool.Action())
		}
	}
	if len(r.Names()) != len(want) {
		t.Errorf("unexpected tool set %v", r.Names())
	}
}

func TestResolvePath_RejectsTraversal(t *testing.T) {
	r := newTestRegistry(t)
	for _, p := range []string{"../outside", "/etc/passwd", "a/../../b", ""} {
		_, err := r.ResolvePath(p)
		if !faults.IsKind(err, faults.KindAccessDenied) {
			t.Errorf("%q: expected access denied, got %v", p, err)
		}
	}
	// A sibling directory sharing the workspace prefix is still outside.
	if _, err := r.ResolvePath(r.Workspace() + "-evil/x"); !faults.IsKind(err, faults.KindAccessDenied) {
		t.Errorf("prefix sibling should be rejected, got %v", err)
	}
	got, err := r.ResolvePath("sub/file.txt")
	if err != nil {
		t.Fatal(err)
	}
	if got != filepath.Join(r.Workspace(), "sub", "file.txt") {
		t.Errorf("unexpected resolution %s", got)
	}
}

func TestFileTools(t *testing.T) {
	r := newTestRegistry(t)

	if _, err := call(t, r, "write_file", map[string]interface{}{"path": "dir/a.txt", "content": "hello world"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	out, err := call(t, r, "read_file", map[string]interface{}{"path": "dir/a.txt"})
	if err != nil || out != "hello world" {
		t.Fatalf("read: %v %v", out, err)
	}
	if _, err := call(t, r, "modify_file", map[string]interface{}{"path": "dir/a.txt", "old": "world", "new": "go"}); err != nil {
		t.Fatalf("modify: %v", err)
	}
	out, _ = call(t, r, "read_file", map[string]interface{}{"path": "dir/a.txt"})
	if out != "hello go" {
		t.Errorf("expected modified content, got %v", out)
	}
	if _, err := call(t, r, "modify_file", map[string]interface{}{"path": "dir/a.txt", "old": "absent", "new": "x"}); err == nil {
		t.Error("modify with missing text should fail")
	}

	listed, err := call(t, r, "list_files", map[string]interface{}{"pattern": "dir/*.txt"})
	if err != nil {
		t.Fatal(err)
	}
	if files := listed.([]interface{}); len(files) != 1 || files[0] != filepath.Join("dir", "a.txt") {
		t.Errorf("unexpected listing %v", files)
	}

	if _, err := call(t, r, "delete_file", map[string]interface{}{"path": "dir/a.txt"}); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := os.Stat(filepath.Join(r.Workspace(), "dir", "a.txt")); !os.IsNotExist(err) {
		t.Error("file should be gone")
	}
	if _, err := call(t, r, "delete_file", map[string]interface{}{"path": "."}); err == nil {
		t.Error("deleting the workspace root must fail")
	}
}

func TestFileTools_MissingArgs(t *testing.T) {
	r := newTestRegistry(t)
	if _, err := call(t, r, "write_file", map[string]interface{}{"path": "x"}); err == nil {
		t.Error("expected missing content error")
	}
	if _, err := call(t, r, "read_file", map[string]interface{}{"path": 3}); err == nil {
		t.Error("expected type error")
	}
}

func TestBash(t *testing.T) {
	r := newTestRegistry(t)

	out, err := call(t, r, "bash", map[string]interface{}{"command": "echo hi && pwd"})
	if err != nil {
		t.Fatalf("bash: %v", err)
	}
	if !strings.HasPrefix(out.(string), "hi") || !strings.Contains(out.(string), filepath.Base(r.Workspace())) {
		t.Errorf("unexpected output %q", out)
	}

	_, err = call(t, r, "bash", map[string]interface{}{"command": "echo oops >&2; exit 3"})
	if !faults.IsKind(err, faults.KindCommandExecutionFailure) {
		t.Fatalf("expected execution failure, got %v", err)
	}
	if !strings.Contains(err.Error(), "exited 3") || !strings.Contains(err.Error(), "oops") {
		t.Errorf("error should carry exit code and stderr: %v", err)
	}
}

func TestBash_Timeout(t *testing.T) {
	r := NewRegistry(t.TempDir(), Options{CommandTimeout: 100 * time.Millisecond})
	start := time.Now()
	_, err := call(t, r, "bash", map[string]interface{}{"command": "sleep 5"})
	if !faults.IsKind(err, faults.KindCommandTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}
	if time.Since(start) > 3*time.Second {
		t.Error("process was not killed promptly")
	}
}

func TestHTTPGet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		switch req.URL.Path {
		case "/page":
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			w.Write([]byte(`<html><head><style>p{}</style><script>var x=1;</script></head><body><h1>Title</h1><p>Some   text</p></body></html>`))
		case "/plain":
			w.Write([]byte("raw body"))
		default:
			http.NotFound(w, req)
		}
	}))
	defer srv.Close()

	r := newTestRegistry(t)
	out, err := call(t, r, "http_get", map[string]interface{}{"url": srv.URL + "/page"})
	if err != nil {
		t.Fatal(err)
	}
	if out != "Title Some text" {
		t.Errorf("unexpected text %q", out)
	}

	out, _ = call(t, r, "http_get", map[string]interface{}{"url": srv.URL + "/plain"})
	if out != "raw body" {
		t.Errorf("unexpected body %q", out)
	}

	if _, err := call(t, r, "http_get", map[string]interface{}{"url": srv.URL + "/missing"}); err == nil {
		t.Error("expected error for 404")
	}
	tool, _ := r.Get("http_get")
	if _, err := tool.Resource(map[string]interface{}{"url": "file:///etc/passwd"}); err == nil {
		t.Error("non-http scheme should be rejected")
	}
}
