package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/fluxgear/internal/compiler"
	"github.com/roach88/fluxgear/internal/rules"
)

// loadProgram compiles dir, selects the named program and validates it.
// Every failure is a command error (exit code 2).
func loadProgram(dir, name string) (*rules.Program, error) {
	loadResult, loadErrors := compiler.LoadDir(dir, compiler.LoadModeFailFast)
	if len(loadErrors) > 0 {
		return nil, WrapExitError(ExitCommandError, "failed to load programs", errors.Join(loadErrors...))
	}

	prog, err := loadResult.Program(name)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to select program", err)
	}

	if verrs := compiler.Validate(prog); len(verrs) > 0 {
		msgs := make([]string, len(verrs))
		for i, v := range verrs {
			msgs[i] = v.Error()
		}
		return nil, NewExitError(ExitCommandError,
			fmt.Sprintf("program %s is invalid:\n  %s", prog.Name, strings.Join(msgs, "\n  ")))
	}
	return prog, nil
}
