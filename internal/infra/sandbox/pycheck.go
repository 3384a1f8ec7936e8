package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"multimodal-agent/internal/domain"
	"multimodal-agent/internal/domain/ports/adapter"
)

var _ adapter.SyntaxChecker = (*PySyntaxChecker)(nil)

// PySyntaxChecker verifies that generated code parses as Python by running
// ast.parse in a short-lived interpreter. Parsing never executes the code.
type PySyntaxChecker struct {
	pythonPath string
}

func NewPySyntaxChecker(pythonPath string) *PySyntaxChecker {
	if pythonPath == "" {
		pythonPath = "python3"
	}
	return &PySyntaxChecker{pythonPath: pythonPath}
}

const parseSnippet = `import ast, sys
with open(sys.argv[1]) as f:
    ast.parse(f.read())
`

func (c *PySyntaxChecker) Check(ctx context.Context, source string) error {
	dir, err := os.MkdirTemp("", "pycheck-")
	if err != nil {
		return fmt.Errorf("pycheck scratch: %w", err)
	}
	defer os.RemoveAll(dir)

	file := filepath.Join(dir, "snippet.py")
	if err := os.WriteFile(file, []byte(source), 0o600); err != nil {
		return fmt.Errorf("write snippet: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, c.pythonPath, "-I", "-c", parseSnippet, file)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("pycheck interpreter: %w", ctx.Err())
		}
		return fmt.Errorf("%w: %s", domain.ErrSyntaxInvalid, lastLine(stderr.String()))
	}
	return nil
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) == 0 {
		return ""
	}
	return lines[len(lines)-1]
}
