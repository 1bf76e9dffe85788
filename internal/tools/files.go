package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/vinayprograms/warden/internal/permission"
)

// pathResource resolves the "path" argument.
func pathResource(r *Registry, args map[string]interface{}) (string, error) {
	p, err := stringArg(args, "path")
	if err != nil {
		return "", err
	}
	return r.ResolvePath(p)
}

type readFile struct{ r *Registry }

func (t *readFile) Name() string              { return "read_file" }
func (t *readFile) Action() permission.Action { return permission.ActionRead }
func (t *readFile) Resource(args map[string]interface{}) (string, error) {
	return pathResource(t.r, args)
}

func (t *readFile) Call(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	path, err := pathResource(t.r, args)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read_file: %w", err)
	}
	return string(data), nil
}

type listFiles struct{ r *Registry }

func (t *listFiles) Name() string              { return "list_files" }
func (t *listFiles) Action() permission.Action { return permission.ActionRead }
func (t *listFiles) Resource(args map[string]interface{}) (string, error) {
	return stringArg(args, "pattern")
}

// Call returns matches relative to the workspace.
func (t *listFiles) Call(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	pattern, err := stringArg(args, "pattern")
	if err != nil {
		return nil, err
	}
	matches, err := t.r.Glob(pattern)
	if err != nil {
		return nil, err
	}
	out := make([]interface{}, 0, len(matches))
	for _, m := range matches {
		rel, err := filepath.Rel(t.r.Workspace(), m)
		if err != nil {
			rel = m
		}
		out = append(out, rel)
	}
	return out, nil
}

type writeFile struct{ r *Registry }

func (t *writeFile) Name() string              { return "write_file" }
func (t *writeFile) Action() permission.Action { return permission.ActionWrite }
func (t *writeFile) Resource(args map[string]interface{}) (string, error) {
	return pathResource(t.r, args)
}

func (t *writeFile) Call(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	path, err := pathResource(t.r, args)
	if err != nil {
		return nil, err
	}
	content, err := stringArg(args, "content")
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("write_file: %w", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return nil, fmt.Errorf("write_file: %w", err)
	}
	return fmt.Sprintf("wrote %d bytes to %s", len(content), path), nil
}

type modifyFile struct{ r *Registry }

func (t *modifyFile) Name() string              { return "modify_file" }
func (t *modifyFile) Action() permission.Action { return permission.ActionModify }
func (t *modifyFile) Resource(args map[string]interface{}) (string, error) {
	return pathResource(t.r, args)
}

// Call replaces every occurrence of "old" with "new". Missing text is an error.
func (t *modifyFile) Call(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	path, err := pathResource(t.r, args)
	if err != nil {
		return nil, err
	}
	oldText, err := stringArg(args, "old")
	if err != nil {
		return nil, err
	}
	newText, err := stringArg(args, "new")
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("modify_file: %w", err)
	}
	n := strings.Count(string(data), oldText)
	if oldText == "" || n == 0 {
		return nil, fmt.Errorf("modify_file: text not found in %s", path)
	}
	updated := strings.ReplaceAll(string(data), oldText, newText)
	if err := os.WriteFile(path, []byte(updated), 0644); err != nil {
		return nil, fmt.Errorf("modify_file: %w", err)
	}
	return fmt.Sprintf("replaced %d occurrence(s) in %s", n, path), nil
}

type deleteFile struct{ r *Registry }

func (t *deleteFile) Name() string              { return "delete_file" }
func (t *deleteFile) Action() permission.Action { return permission.ActionDelete }
func (t *deleteFile) Resource(args map[string]interface{}) (string, error) {
	return pathResource(t.r, args)
}

func (t *deleteFile) Call(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	path, err := pathResource(t.r, args)
	if err != nil {
		return nil, err
	}
	if path == t.r.Workspace() {
		return nil, fmt.Errorf("delete_file: refusing to delete the workspace root")
	}
	if err := os.Remove(path); err != nil {
		return nil, fmt.Errorf("delete_file: %w", err)
	}
	return fmt.Sprintf("deleted %s", path), nil
}
