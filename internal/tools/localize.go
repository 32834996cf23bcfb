// Package tools builds the three phase-scoped tool registries
// (localize, patch, verify) by binding toolruntime.ToolDef callables to a
// workdir, a retrieval index, and the local patch applier/benchmark
// adapter — grounded on the teacher's builtin_tools.go (file read/search
// surface) and git_tool.go (sandboxed shell-out shape).
package tools

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/aprbench/aprloop/internal/retrieval"
	"github.com/aprbench/aprloop/internal/toolruntime"
)

const maxReadSpanLines = 400

// NewLocalizeRegistry builds the Localize phase's tool registry: file
// reads, text search, and (when idx is non-nil) symbol lookup/find
// references against the retrieval index.
func NewLocalizeRegistry(workdir string, idx *retrieval.Index) *toolruntime.Registry {
	reg := toolruntime.NewRegistry(toolruntime.PhaseLocalize)

	reg.Register(toolruntime.ToolDef{
		Name:        "read_file",
		Description: "Read the full contents of a file relative to the working directory.",
		Func: func(ctx context.Context, args map[string]any) (map[string]any, error) {
			path, _ := args["path"].(string)
			data, err := os.ReadFile(resolvePath(workdir, path))
			if err != nil {
				return map[string]any{"ok": false, "error": err.Error()}, nil
			}
			return map[string]any{"ok": true, "content": string(data)}, nil
		},
	})

	reg.Register(toolruntime.ToolDef{
		Name:        "read_span",
		Description: "Read a line range [start_line, end_line] from a file, 1-based inclusive.",
		Func: func(ctx context.Context, args map[string]any) (map[string]any, error) {
			path, _ := args["path"].(string)
			start := intArg(args, "start_line", 1)
			end := intArg(args, "end_line", start+maxReadSpanLines)
			data, err := os.ReadFile(resolvePath(workdir, path))
			if err != nil {
				return map[string]any{"ok": false, "error": err.Error()}, nil
			}
			lines := strings.Split(string(data), "\n")
			if start < 1 {
				start = 1
			}
			if end > len(lines) {
				end = len(lines)
			}
			if start > end {
				return map[string]any{"ok": false, "error": "start_line after end_line"}, nil
			}
			return map[string]any{"ok": true, "content": strings.Join(lines[start-1:end], "\n")}, nil
		},
	})

	reg.Register(toolruntime.ToolDef{
		Name:        "search_in_files",
		Description: "Search for a literal or regex pattern across the working directory using grep.",
		Func: func(ctx context.Context, args map[string]any) (map[string]any, error) {
			pattern, _ := args["pattern"].(string)
			if pattern == "" {
				return map[string]any{"ok": false, "error": "pattern is required"}, nil
			}
			out, err := exec.CommandContext(ctx, "grep", "-rn", "--include=*.java", "--include=*.py", pattern, workdir).CombinedOutput()
			if err != nil && len(out) == 0 {
				return map[string]any{"ok": true, "matches": ""}, nil
			}
			return map[string]any{"ok": true, "matches": string(out)}, nil
		},
	})

	if idx != nil {
		reg.Register(toolruntime.ToolDef{
			Name:        "symbol_lookup",
			Description: "Look up a symbol's definition location in the retrieval index.",
			Func: func(ctx context.Context, args map[string]any) (map[string]any, error) {
				symbol, _ := args["symbol"].(string)
				hits, err := idx.LookupSymbol(ctx, symbol)
				if err != nil {
					return map[string]any{"ok": false, "error": err.Error()}, nil
				}
				return map[string]any{"ok": true, "hits": hits}, nil
			},
		})
		reg.Register(toolruntime.ToolDef{
			Name:        "find_references",
			Description: "Find reference sites for a symbol in the retrieval index.",
			Func: func(ctx context.Context, args map[string]any) (map[string]any, error) {
				symbol, _ := args["symbol"].(string)
				hits, err := idx.FindReferences(ctx, symbol)
				if err != nil {
					return map[string]any{"ok": false, "error": err.Error()}, nil
				}
				return map[string]any{"ok": true, "hits": hits}, nil
			},
		})
	}

	return reg
}

func resolvePath(workdir, path string) string {
	if strings.HasPrefix(path, "/") {
		return path
	}
	return fmt.Sprintf("%s/%s", workdir, path)
}

func intArg(args map[string]any, key string, def int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return def
	}
}
