package compiler

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/roach88/fluxgear/internal/engine"
	"github.com/roach88/fluxgear/internal/ir"
	"github.com/roach88/fluxgear/internal/rules"
)

// Validation error codes (E100-E199)
const (
	// Program errors (E101-E109)
	ErrProgramNameEmpty   = "E101" // name is required
	ErrNoMessages         = "E102" // at least one message required
	ErrDuplicateMessage   = "E103" // message listed twice
	ErrReservedMessage    = "E104" // INIT or CHANGE declared as a user message
	ErrInvalidMessageName = "E105" // name does not match messageNamePattern
	ErrUnknownMessage     = "E106" // rule references an undeclared message

	// Rule errors (E110-E119)
	ErrInvalidOp          = "E110" // unknown op kind
	ErrMissingOpField     = "E111" // op has no target field
	ErrInvalidOpValue     = "E112" // value required, forbidden or of the wrong type
	ErrInvalidTemplate    = "E113" // template references an unavailable root
	ErrEmptyEffect        = "E114" // effect has neither dispatch nor log
	ErrUnreachableRule    = "E115" // transform on CHANGE never runs
	ErrReservedDispatch   = "E116" // effect dispatches INIT or CHANGE
	ErrInvalidCondition   = "E117" // when clause without a field
	ErrInitialStateFormat = "E118" // initial state is not an object
)

// ValidationError represents a schema validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// messageNamePattern: identifiers, optionally dotted or dashed ("Cart.ADD").
var messageNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.-]*$`)

// Validate checks a compiled program's cross-references.
// Returns all errors found (does not fail-fast).
func Validate(p *rules.Program) []ValidationError {
	var errs []ValidationError

	// E101: name is required
	if strings.TrimSpace(p.Name) == "" {
		errs = append(errs, ValidationError{
			Field:   "name",
			Message: "program name is required",
			Code:    ErrProgramNameEmpty,
		})
	}

	// E102: at least one message
	if len(p.Messages) == 0 {
		errs = append(errs, ValidationError{
			Field:   "messages",
			Message: "at least one message is required",
			Code:    ErrNoMessages,
		})
	}

	reserved := engine.Reserved()
	declared := make(map[string]bool, len(p.Messages))
	for i, name := range p.Messages {
		field := fmt.Sprintf("messages[%d]", i)
		switch {
		case !messageNamePattern.MatchString(name):
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("invalid message name %q", name),
				Code:    ErrInvalidMessageName,
			})
		case declared[name]:
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("duplicate message %q", name),
				Code:    ErrDuplicateMessage,
			})
		default:
			if _, ok := reserved[name]; ok {
				errs = append(errs, ValidationError{
					Field:   field,
					Message: fmt.Sprintf("%q is reserved by the engine", name),
					Code:    ErrReservedMessage,
				})
			}
		}
		declared[name] = true
	}

	known := func(name string) bool {
		if _, ok := reserved[name]; ok {
			return true
		}
		return declared[name]
	}
	checkRef := func(field, name string) {
		if !known(name) {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("unknown message %q", name),
				Code:    ErrUnknownMessage,
			})
		}
	}

	for i, r := range p.Transforms {
		field := fmt.Sprintf("transforms[%d]", i)
		checkRef(field+".on", r.On)

		// E115: CHANGE bypasses the transformer
		if r.On == engine.Change.Name() {
			errs = append(errs, ValidationError{
				Field:   field + ".on",
				Message: "CHANGE is never transformed; this rule cannot run",
				Code:    ErrUnreachableRule,
			})
		}

		for j, e := range r.Emit {
			emitField := fmt.Sprintf("%s.emit[%d]", field, j)
			checkRef(emitField+".type", e.Type)
			// E113: emissions are built before any state is read
			errs = append(errs, validateTemplates(emitField+".payload", e.Payload, rules.RootPayload)...)
		}
	}

	for i, r := range p.Reductions {
		field := fmt.Sprintf("reductions[%d]", i)
		checkRef(field+".on", r.On)
		for j, op := range r.Ops {
			errs = append(errs, validateOp(fmt.Sprintf("%s.ops[%d]", field, j), op)...)
		}
	}

	for i, r := range p.Effects {
		field := fmt.Sprintf("effects[%d]", i)
		checkRef(field+".on", r.On)

		// E114: an effect must do something
		if r.Dispatch == "" && r.Log == "" {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: "effect needs dispatch or log",
				Code:    ErrEmptyEffect,
			})
		}
		if r.Dispatch != "" {
			checkRef(field+".dispatch", r.Dispatch)
			// E116: reserved types are produced by the engine only
			if _, ok := reserved[r.Dispatch]; ok {
				errs = append(errs, ValidationError{
					Field:   field + ".dispatch",
					Message: fmt.Sprintf("%s cannot be dispatched by an effect", r.Dispatch),
					Code:    ErrReservedDispatch,
				})
			}
		}
		errs = append(errs, validateTemplates(field+".payload", r.Payload, rules.RootPayload, rules.RootState)...)

		// E117: conditions need a field
		if r.When != nil && strings.TrimSpace(r.When.Field) == "" {
			errs = append(errs, ValidationError{
				Field:   field + ".when.field",
				Message: "when clause requires a field",
				Code:    ErrInvalidCondition,
			})
		}
	}

	// E118: templates have no meaning in the initial state
	if refs := rules.Refs(p.Initial); len(refs) > 0 {
		errs = append(errs, ValidationError{
			Field:   "initial",
			Message: fmt.Sprintf("initial state cannot contain references, found ${%s}", refs[0]),
			Code:    ErrInitialStateFormat,
		})
	}

	return errs
}

// validateOp checks one reduction op.
func validateOp(field string, op rules.Op) []ValidationError {
	var errs []ValidationError

	// E110: known op
	if !rules.ValidOps[op.Kind] {
		errs = append(errs, ValidationError{
			Field:   field + ".op",
			Message: fmt.Sprintf("invalid op %q, must be set, inc, append or delete", op.Kind),
			Code:    ErrInvalidOp,
		})
		return errs
	}

	// E111: target field
	if strings.TrimSpace(op.Field) == "" {
		errs = append(errs, ValidationError{
			Field:   field + ".field",
			Message: "op requires a field",
			Code:    ErrMissingOpField,
		})
	}

	// E112: value presence and type
	switch op.Kind {
	case rules.OpSet, rules.OpAppend:
		if op.Value == nil {
			errs = append(errs, ValidationError{
				Field:   field + ".value",
				Message: fmt.Sprintf("%s requires a value", op.Kind),
				Code:    ErrInvalidOpValue,
			})
		}
	case rules.OpDelete:
		if op.Value != nil {
			errs = append(errs, ValidationError{
				Field:   field + ".value",
				Message: "delete takes no value",
				Code:    ErrInvalidOpValue,
			})
		}
	case rules.OpInc:
		if op.Value != nil {
			_, isInt := op.Value.(ir.Int)
			s, isStr := op.Value.(ir.String)
			_, _, isRef := rules.ParseRef(string(s))
			if !isInt && !(isStr && isRef) {
				errs = append(errs, ValidationError{
					Field:   field + ".value",
					Message: "inc value must be an integer or a reference",
					Code:    ErrInvalidOpValue,
				})
			}
		}
	}

	errs = append(errs, validateTemplates(field+".value", op.Value, rules.RootPayload, rules.RootState)...)
	return errs
}

// validateTemplates reports references to roots outside allowed.
func validateTemplates(field string, v ir.Value, allowed ...string) []ValidationError {
	var errs []ValidationError
	for _, ref := range rules.Refs(v) {
		root, _, _ := strings.Cut(ref, ".")
		ok := false
		for _, a := range allowed {
			if root == a {
				ok = true
				break
			}
		}
		if !ok {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("reference ${%s} is not available here (allowed: %s)", ref, strings.Join(allowed, ", ")),
				Code:    ErrInvalidTemplate,
			})
		}
	}
	return errs
}
