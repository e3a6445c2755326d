package vm

import (
	"fmt"
	"unsafe"
)

// ---------------------------------------------------------------------------
// Errors as values
// ---------------------------------------------------------------------------

// ErrorKind classifies in-language errors. Errors are ordinary heap values;
// the evaluator propagates them by checking IsError at every step and
// returning early, so a kind is data, not control flow.
type ErrorKind uint8

const (
	ErrTokenizer ErrorKind = iota + 1
	ErrParseUnexpectedEOF
	ErrParseUnclosedDelimiter
	ErrParseUnexpectedToken
	ErrParseInvalidNumber
	ErrParseInvalidString
	ErrUndefinedSymbol
	ErrArityMismatch
	ErrEval
	ErrStaleHandle
	ErrCancelled
	ErrUserDefined
)

// String returns the kind name used in error rendering and snapshots.
func (k ErrorKind) String() string {
	switch k {
	case ErrTokenizer:
		return "tokenizer"
	case ErrParseUnexpectedEOF:
		return "parse/unexpected-eof"
	case ErrParseUnclosedDelimiter:
		return "parse/unclosed-delimiter"
	case ErrParseUnexpectedToken:
		return "parse/unexpected-token"
	case ErrParseInvalidNumber:
		return "parse/invalid-number"
	case ErrParseInvalidString:
		return "parse/invalid-string"
	case ErrUndefinedSymbol:
		return "undefined-symbol"
	case ErrArityMismatch:
		return "arity-mismatch"
	case ErrEval:
		return "eval"
	case ErrStaleHandle:
		return "stale-handle"
	case ErrCancelled:
		return "cancelled"
	case ErrUserDefined:
		return "user"
	default:
		return "unknown"
	}
}

// SourcePos is a 1-based line/column position attached to errors that
// originate from source text.
type SourcePos struct {
	Line uint32
	Col  uint32
}

// ErrorObject is the heap layout for an error value.
type ErrorObject struct {
	hdr     Header
	Kind    ErrorKind
	Message string

	// Name is the offending symbol for undefined-symbol errors, Nil
	// otherwise.
	Name Value

	// Payload carries the user value for user-defined errors, Nil
	// otherwise.
	Payload Value

	// Expected and Got carry arities for arity-mismatch errors.
	Expected int
	Got      int

	// Pos is the source position, if known.
	Pos *SourcePos
}

func (e *ErrorObject) header() *Header { return &e.hdr }

func (e *ErrorObject) traceRefs(visit func(Value)) {
	visit(e.Name)
	visit(e.Payload)
}

// Render formats the error for display.
func (e *ErrorObject) Render() string {
	if e.Pos != nil {
		return fmt.Sprintf("%s error at %d:%d: %s", e.Kind, e.Pos.Line, e.Pos.Col, e.Message)
	}
	return fmt.Sprintf("%s error: %s", e.Kind, e.Message)
}

func (m *Mutator) newError(e *ErrorObject) Value {
	e.hdr.typeTag = TagError
	return m.adopt(e, unsafe.Sizeof(*e))
}

// NewError allocates a generic error value of the given kind.
func (m *Mutator) NewError(kind ErrorKind, message string) Value {
	return m.newError(&ErrorObject{Kind: kind, Message: message, Name: Nil, Payload: Nil})
}

// NewEvalError allocates an evaluation error with a formatted message.
func (m *Mutator) NewEvalError(format string, args ...any) Value {
	return m.newError(&ErrorObject{
		Kind:    ErrEval,
		Message: fmt.Sprintf(format, args...),
		Name:    Nil,
		Payload: Nil,
	})
}

// NewUndefinedSymbolError allocates an undefined-symbol error naming the
// symbol that failed to resolve.
func (m *Mutator) NewUndefinedSymbolError(sym Value, name string) Value {
	return m.newError(&ErrorObject{
		Kind:    ErrUndefinedSymbol,
		Message: fmt.Sprintf("undefined symbol: %s", name),
		Name:    sym,
		Payload: Nil,
	})
}

// NewArityError allocates an arity-mismatch error.
func (m *Mutator) NewArityError(form string, expected, got int) Value {
	return m.newError(&ErrorObject{
		Kind:     ErrArityMismatch,
		Message:  fmt.Sprintf("%s expects %d arguments, got %d", form, expected, got),
		Name:     Nil,
		Payload:  Nil,
		Expected: expected,
		Got:      got,
	})
}

// NewUserError allocates a user-defined error carrying an arbitrary payload.
func (m *Mutator) NewUserError(payload Value, message string) Value {
	return m.newError(&ErrorObject{
		Kind:    ErrUserDefined,
		Message: message,
		Name:    Nil,
		Payload: payload,
	})
}

// NewStaleHandleError allocates the recoverable error returned when a
// generation-checked handle no longer matches its registry slot.
func (m *Mutator) NewStaleHandleError(what string) Value {
	return m.newError(&ErrorObject{
		Kind:    ErrStaleHandle,
		Message: fmt.Sprintf("stale %s handle", what),
		Name:    Nil,
		Payload: Nil,
	})
}

// NewCancelledError allocates the error delivered to a cancelled task.
func (m *Mutator) NewCancelledError() Value {
	return m.newError(&ErrorObject{
		Kind:    ErrCancelled,
		Message: "task cancelled",
		Name:    Nil,
		Payload: Nil,
	})
}
