package compiler

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/roach88/fluxgear/internal/rules"
)

// LoadMode controls how errors are handled during program loading.
type LoadMode int

const (
	// LoadModeFailFast stops on the first error encountered.
	LoadModeFailFast LoadMode = iota
	// LoadModeCollectAll collects all errors before returning.
	LoadModeCollectAll
)

// Load error codes, shared by every command that reads programs.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeScanError   = "E002" // Directory scan error
	ErrCodeNoFiles     = "E003" // No CUE files found
	ErrCodeLoadFailed  = "E004" // CUE load failed
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeBuildFailed = "E006" // CUE build failed
	ErrCodeNoPrograms  = "E007" // No program blocks
	ErrCodeAmbiguous   = "E008" // Several programs, none selected

	// Shape errors raised by CompileProgram
	ErrCodeMessages   = "E021" // messages list
	ErrCodeTransforms = "E022" // transforms list
	ErrCodeReductions = "E023" // reductions list
	ErrCodeEffects    = "E024" // effects list
	ErrCodeInitial    = "E025" // initial state
	ErrCodeFloat      = "E026" // float literal
)

// LoadResult contains the programs found in a directory.
type LoadResult struct {
	Programs  []*rules.Program // sorted by name
	CUEValue  cue.Value        // The raw CUE value for additional processing
	FileCount int              // Number of CUE files found
}

// Program returns the named program. An empty name selects the only
// program when there is exactly one.
func (r *LoadResult) Program(name string) (*rules.Program, error) {
	if name == "" {
		switch len(r.Programs) {
		case 0:
			return nil, &LoadError{Code: ErrCodeNoPrograms, Message: "no programs loaded"}
		case 1:
			return r.Programs[0], nil
		default:
			return nil, &LoadError{
				Code:    ErrCodeAmbiguous,
				Message: fmt.Sprintf("%d programs loaded, choose one of: %s", len(r.Programs), strings.Join(r.Names(), ", ")),
			}
		}
	}
	for _, p := range r.Programs {
		if p.Name == name {
			return p, nil
		}
	}
	return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("program %q not found", name)}
}

// Names lists the loaded program names.
func (r *LoadResult) Names() []string {
	names := make([]string, len(r.Programs))
	for i, p := range r.Programs {
		names[i] = p.Name
	}
	return names
}

// LoadError represents an error that occurred during program loading.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// LoadDir loads and compiles every `program: <name>: {...}` block in a
// directory of CUE files.
// If mode is LoadModeFailFast, returns on first error.
// If mode is LoadModeCollectAll, collects all errors.
func LoadDir(dir string, mode LoadMode) (*LoadResult, []error) {
	var errs []error

	// Verify directory exists
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("programs directory not found: %s", dir)}}
	}
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing programs directory: %v", err)}}
	}
	if !info.IsDir() {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a directory: %s", dir)}}
	}

	cueFiles, err := FindCUEFiles(dir)
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}}
	}
	if len(cueFiles) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", dir)}}
	}

	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, []error{&LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}}
	}

	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, []error{&LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("building CUE value: %v", err)}}
	}

	result := &LoadResult{
		CUEValue:  value,
		FileCount: len(cueFiles),
	}

	programs := value.LookupPath(cue.ParsePath("program"))
	if programs.Exists() {
		iter, iterErr := programs.Fields()
		if iterErr != nil {
			return result, []error{&LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("iterating programs: %v", iterErr)}}
		}
		for iter.Next() {
			prog, compileErr := CompileProgram(iter.Value())
			if compileErr != nil {
				errs = append(errs, convertCompileError(compileErr, "program."+iter.Label()))
				if mode == LoadModeFailFast {
					return result, errs
				}
				continue
			}
			result.Programs = append(result.Programs, prog)
		}
	}

	sort.Slice(result.Programs, func(i, j int) bool {
		return result.Programs[i].Name < result.Programs[j].Name
	})

	if len(result.Programs) == 0 && len(errs) == 0 {
		errs = append(errs, &LoadError{Code: ErrCodeNoPrograms, Message: "no programs found in " + dir})
	}

	return result, errs
}

// FindCUEFiles walks the directory and returns all .cue file paths.
func FindCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// convertCompileError converts a compiler error to a LoadError with position info.
func convertCompileError(err error, context string) *LoadError {
	var compileErr *CompileError
	if errors.As(err, &compileErr) {
		return &LoadError{
			Code:    MapFieldToErrorCode(compileErr.Field, compileErr.Message),
			Message: fmt.Sprintf("%s: %s: %s", context, compileErr.Field, compileErr.Message),
			Pos:     compileErr.Pos,
		}
	}
	return &LoadError{
		Code:    ErrCodeGeneric,
		Message: fmt.Sprintf("%s: %v", context, err),
	}
}

// MapFieldToErrorCode maps a compiler error field to an error code.
func MapFieldToErrorCode(field, message string) string {
	if strings.Contains(message, "float") {
		return ErrCodeFloat
	}
	root, _, _ := strings.Cut(field, "[")
	root, _, _ = strings.Cut(root, ".")
	switch root {
	case "messages":
		return ErrCodeMessages
	case "transforms":
		return ErrCodeTransforms
	case "reductions":
		return ErrCodeReductions
	case "effects":
		return ErrCodeEffects
	case "initial":
		return ErrCodeInitial
	default:
		return ErrCodeGeneric
	}
}
