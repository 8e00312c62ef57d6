package counter

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

var (
	ErrInvalidFormat = fmt.Errorf("invalid wallet format")
	ErrNameNotFound  = fmt.Errorf("name does not resolve to an address")
	ErrUnavailable   = fmt.Errorf("external service unavailable")
	ErrNotRegistered = fmt.Errorf("recipient not in identity directory")
)

// ErrAlreadyCompleted is wrapped by completion stores asked to mark a record
// that is no longer pending.
var ErrAlreadyCompleted = fmt.Errorf("completion already marked done or missing")

// ConfigurationError is fatal: the run aborts before any processing.
type ConfigurationError struct {
	Missing []string
	Invalid map[string]error
}

func (e *ConfigurationError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing "+strings.Join(e.Missing, ", "))
	}
	keys := make([]string, 0, len(e.Invalid))
	for k := range e.Invalid {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("invalid %s: %s", k, e.Invalid[k]))
	}
	return "configuration error: " + strings.Join(parts, "; ")
}

func (e *ConfigurationError) Code() string { return "configuration" }

func (e *ConfigurationError) empty() bool {
	return len(e.Missing) == 0 && len(e.Invalid) == 0
}

func (e *ConfigurationError) invalid(key string, err error) {
	if e.Invalid == nil {
		e.Invalid = map[string]error{}
	}
	e.Invalid[key] = err
}

type ResolutionKind string

const (
	ResolutionInvalidFormat ResolutionKind = "invalid_format"
	ResolutionNameNotFound  ResolutionKind = "name_not_found"
	ResolutionUnavailable   ResolutionKind = "unavailable"
	// the handle has no entry in the identity directory
	ResolutionNotRegistered ResolutionKind = "not_registered"
)

// ResolutionError drops a single recipient from the output.
type ResolutionError struct {
	Identifier string
	Kind       ResolutionKind
	Err        error
}

func (e *ResolutionError) Error() string {
	switch e.Kind {
	case ResolutionInvalidFormat:
		return fmt.Sprintf("%s is an invalid wallet address", e.Identifier)
	case ResolutionNameNotFound:
		return fmt.Sprintf("ENS name %s doesn't resolve to an address", e.Identifier)
	case ResolutionNotRegistered:
		return fmt.Sprintf("could not find %s's wallet address", e.Identifier)
	}
	return fmt.Sprintf("failed resolving %s: %s", e.Identifier, e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

func (e *ResolutionError) Code() string { return string(e.Kind) }

// ParseError marks an activity record whose count token can't be read.
type ParseError struct {
	Recipient string
	Tag       string
	Reason    string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("malformed activity tag %q for %s: %s", e.Tag, e.Recipient, e.Reason)
}

func (e *ParseError) Code() string { return "parse" }

// ExternalCallError is returned once the retry budget for a call is spent.
type ExternalCallError struct {
	Op       string
	Attempts int
	Err      error
}

func (e *ExternalCallError) Error() string {
	return fmt.Sprintf("%s failed after %d attempts: %s", e.Op, e.Attempts, e.Err)
}

func (e *ExternalCallError) Unwrap() error { return e.Err }

func (e *ExternalCallError) Code() string { return "external_call" }

// WriteBackError leaves a completion record unmarked and uncredited.
type WriteBackError struct {
	RecordID string
	Err      error
}

func (e *WriteBackError) Error() string {
	return fmt.Sprintf("failed marking record %s as done: %s", e.RecordID, e.Err)
}

func (e *WriteBackError) Unwrap() error { return e.Err }

func (e *WriteBackError) Code() string { return "write_back" }

// OutputError is a distribution or audit file that could not be written.
type OutputError struct {
	Name string
	Err  error
}

func (e *OutputError) Error() string {
	return fmt.Sprintf("failed writing %s: %s", e.Name, e.Err)
}

func (e *OutputError) Unwrap() error { return e.Err }

func (e *OutputError) Code() string { return "output" }

// ErrorCode maps any error onto a stable label for logs and metrics.
func ErrorCode(err error) string {
	var coded interface{ Code() string }
	if errors.As(err, &coded) {
		return coded.Code()
	}
	if err == nil {
		return ""
	}
	return "unknown"
}
