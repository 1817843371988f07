package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// counterProgram increments n on INC, sets it from the payload on SET and
// defers an INC for every PING.
const counterProgram = `package programs

program: counter: {
	messages: ["INC", "SET", "PING"]
	initial: { n: 0 }

	reductions: [
		{ on: "INC", ops: [{ op: "inc", field: "n" }] },
		{ on: "SET", ops: [{ op: "set", field: "n", value: "${payload.n}" }] },
	]

	effects: [{ on: "PING", dispatch: "INC" }]
}
`

// writeProgramDir writes each file into a fresh temp dir and returns it.
func writeProgramDir(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	return dir
}

// counterDir returns a programs dir holding only counterProgram.
func counterDir(t *testing.T) string {
	t.Helper()
	return writeProgramDir(t, map[string]string{"counter.cue": counterProgram})
}

// cliRun is the captured outcome of one command invocation.
type cliRun struct {
	out    string
	errOut string
	err    error
}

// execute runs the root command with args and stdin.
func execute(t *testing.T, stdin string, args ...string) cliRun {
	t.Helper()
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}

	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)

	err := cmd.ExecuteContext(context.Background())
	return cliRun{out: out.String(), errOut: errOut.String(), err: err}
}
