package ledger

import (
	"errors"
	"fmt"
)

// Code is a stable numeric ledger error code. Clients match on the number.
type Code uint32

const (
	CodeInvalidConfidence     Code = 1
	CodeDuplicateVerification Code = 2
	CodeUnauthorized          Code = 3
	CodeNotFound              Code = 4
	CodeInvalidHash           Code = 5
	CodeCounterExhausted      Code = 6
)

var codeNames = map[Code]string{
	CodeInvalidConfidence:     "InvalidConfidence",
	CodeDuplicateVerification: "DuplicateVerification",
	CodeUnauthorized:          "Unauthorized",
	CodeNotFound:              "NotFound",
	CodeInvalidHash:           "InvalidHash",
	CodeCounterExhausted:      "CounterExhausted",
}

// String returns the code's name.
func (c Code) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("Code(%d)", uint32(c))
}

// Error is a ledger-level rejection. It always means the operation made no
// state change. Storage failures are never reported as an Error.
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s (%d): %s", e.Code, uint32(e.Code), e.Message)
}

func newError(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// CodeOf extracts the ledger code from err.
func CodeOf(err error) (Code, bool) {
	var le *Error
	if errors.As(err, &le) {
		return le.Code, true
	}
	return 0, false
}

func hasCode(err error, code Code) bool {
	c, ok := CodeOf(err)
	return ok && c == code
}

// IsInvalidConfidence reports whether err is a code 1 rejection.
func IsInvalidConfidence(err error) bool { return hasCode(err, CodeInvalidConfidence) }

// IsDuplicateVerification reports whether err is a code 2 rejection.
func IsDuplicateVerification(err error) bool { return hasCode(err, CodeDuplicateVerification) }

// IsUnauthorized reports whether err is a code 3 rejection.
func IsUnauthorized(err error) bool { return hasCode(err, CodeUnauthorized) }

// IsNotFound reports whether err is a code 4 rejection.
func IsNotFound(err error) bool { return hasCode(err, CodeNotFound) }

// IsInvalidHash reports whether err is a code 5 rejection.
func IsInvalidHash(err error) bool { return hasCode(err, CodeInvalidHash) }

// IsCounterExhausted reports whether err is a code 6 rejection.
func IsCounterExhausted(err error) bool { return hasCode(err, CodeCounterExhausted) }
