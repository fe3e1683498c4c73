package claro

import (
	"errors"
	"fmt"
	"strings"

	"github.com/clarolang/claroterm/pkg/shared"
)

// Error definitions specific to Claro operations.
var (
	ErrProgramAlreadyRunning = errors.New("program already running")
	ErrNoProgramLoaded       = errors.New("no program loaded")
	ErrInputNotExpected      = errors.New("no input expected")
	ErrNilFileSystem         = errors.New("filesystem not available")
	ErrNilInputReader        = errors.New("input reader not available")
)

// Error categories.
const (
	// ErrCategorySyntax marks statement-shape errors.
	ErrCategorySyntax = "SYNTAX ERROR"
	// ErrCategoryRuntime marks control-flow and call errors.
	ErrCategoryRuntime = "RUNTIME ERROR"
	// ErrCategoryEvaluation marks expression evaluator errors.
	ErrCategoryEvaluation = "EVALUATION ERROR"
	// ErrCategoryIO marks filesystem and input collaborator errors.
	ErrCategoryIO = "I/O ERROR"
	// ErrCategoryInternal marks interpreter bugs. Never recoverable.
	ErrCategoryInternal = "INTERNAL ERROR"
)

// Error codes. These are the stable identifiers tests and the terminal
// layer match on; the friendly texts below are presentation only.
const (
	CodeInvalidStatement   = "INVALID_STATEMENT"
	CodeMissingArgument    = "MISSING_ARGUMENT"
	CodeFunctionDefinition = "FUNCTION_DEFINITION"
	CodeUnterminatedBlock  = "UNTERMINATED_BLOCK"
	CodeUndefinedFunction  = "UNDEFINED_FUNCTION"
	CodeArityMismatch      = "ARITY_MISMATCH"
	CodeTypeMismatch       = "TYPE_MISMATCH"
	CodeNotIterable        = "NOT_ITERABLE"
	CodeExpressionError    = "EXPRESSION_ERROR"
	CodeRecursionLimit     = "RECURSION_LIMIT_EXCEEDED"
	CodeUnknownVariable    = "UNKNOWN_VARIABLE"
	CodeDivisionByZero     = "DIVISION_BY_ZERO"
	CodeUnexpectedToken    = "UNEXPECTED_TOKEN"
	CodeIndexOutOfRange    = "INDEX_OUT_OF_RANGE"
	CodeReturnOutsideFunc  = "RETURN_OUTSIDE_FUNCTION"
	CodeFileError          = "FILE_ERROR"
	CodeInputError         = "INPUT_ERROR"
	CodeSignalLeak         = "SIGNAL_LEAK"
)

// friendlyErrorTexts map error codes to user-facing messages.
var friendlyErrorTexts = map[string]string{
	CodeInvalidStatement:   "STATEMENT NOT RECOGNIZED",
	CodeMissingArgument:    "REQUIRED ARGUMENT IS MISSING",
	CodeFunctionDefinition: "MALFORMED FUNCTION DEFINITION",
	CodeUnterminatedBlock:  "BLOCK HAS NO MATCHING END",
	CodeUndefinedFunction:  "FUNCTION NOT DEFINED",
	CodeArityMismatch:      "WRONG NUMBER OF CALL ARGUMENTS",
	CodeTypeMismatch:       "TYPE MISMATCH",
	CodeNotIterable:        "VALUE IS NOT ITERABLE",
	CodeExpressionError:    "EXPRESSION CANNOT BE EVALUATED",
	CodeRecursionLimit:     "MAXIMUM CALL DEPTH EXCEEDED",
	CodeUnknownVariable:    "VARIABLE NOT DEFINED",
	CodeDivisionByZero:     "DIVISION BY ZERO",
	CodeUnexpectedToken:    "UNEXPECTED TOKEN IN EXPRESSION",
	CodeIndexOutOfRange:    "INDEX OUT OF RANGE",
	CodeReturnOutsideFunc:  "RETURN OUTSIDE OF A FUNCTION",
	CodeFileError:          "FILE OPERATION FAILED",
	CodeInputError:         "FAILED TO READ INPUT",
	CodeSignalLeak:         "CONTROL SIGNAL ESCAPED ITS LOOP",
}

// ClaroError is the structured error produced by the interpreter.
// LineNumber always refers to the 1-based line in the original source,
// before comment and blank stripping.
type ClaroError struct {
	Category   string // e.g. "SYNTAX ERROR"
	Code       string // stable identifier, e.g. CodeTypeMismatch
	Detail     string // optional extra context appended to the message
	Command    string // statement keyword the error occurred in
	LineNumber int    // 1-based source line (0 in direct mode)
	DirectMode bool   // true when raised outside a program run
}

func (ce *ClaroError) Error() string {
	friendly, ok := friendlyErrorTexts[ce.Code]
	if !ok {
		friendly = ce.Code
	}
	msg := ce.Category + ": " + friendly
	if !ce.DirectMode && ce.LineNumber > 0 {
		msg = ce.Category + " IN LINE " + fmt.Sprint(ce.LineNumber) + ": " + friendly
	}
	if ce.Detail != "" {
		msg += " (" + ce.Detail + ")"
	}
	return msg
}

// NewClaroError creates a structured error instance.
func NewClaroError(category, code string, directMode bool, lineNumber int) *ClaroError {
	return &ClaroError{
		Category:   category,
		Code:       code,
		DirectMode: directMode,
		LineNumber: lineNumber,
	}
}

// WithCommand attaches the statement keyword to the error.
func (ce *ClaroError) WithCommand(cmd string) *ClaroError {
	ce.Command = cmd
	return ce
}

// WithDetail attaches free-form context to the error.
func (ce *ClaroError) WithDetail(format string, args ...interface{}) *ClaroError {
	ce.Detail = fmt.Sprintf(format, args...)
	return ce
}

// WrapError converts an arbitrary error into a ClaroError, preserving
// an existing one.
func WrapError(err error, command string, directMode bool, lineNumber int) *ClaroError {
	if ce, ok := err.(*ClaroError); ok {
		if command != "" && ce.Command == "" {
			ce.Command = command
		}
		return ce
	}
	return &ClaroError{
		Category:   ErrCategoryRuntime,
		Code:       CodeExpressionError,
		Detail:     err.Error(),
		Command:    command,
		DirectMode: directMode,
		LineNumber: lineNumber,
	}
}

// IsRecoverable reports whether a TRY region may catch the error.
// Internal invariant violations and context cancellation always
// propagate to the program driver.
func IsRecoverable(err error) bool {
	var ce *ClaroError
	if errors.As(err, &ce) {
		return ce.Category != ErrCategoryInternal
	}
	return false
}

// FormatErrorAsMessages converts an error into terminal messages.
func FormatErrorAsMessages(err error) []shared.Message {
	if err == nil {
		return nil
	}
	lines := strings.Split(err.Error(), "\n")
	msgs := make([]shared.Message, 0, len(lines))
	for _, l := range lines {
		msgs = append(msgs, shared.Message{Type: shared.MessageTypeText, Content: l})
	}
	return msgs
}
