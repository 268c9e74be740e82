package split

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Kind categorizes pruner errors. Values are stable and appear in logs and
// JSON output.
type Kind string

const (
	// KindBadConfiguration covers invalid arguments, config and plan files.
	KindBadConfiguration Kind = "BAD_CONFIGURATION"

	// KindMissingAncestor indicates a lineage references a structure that
	// could not be fetched and missing ancestors are not ignored.
	KindMissingAncestor Kind = "MISSING_ANCESTOR"

	// KindStoreUnavailable covers network, timeout and authentication
	// failures reported by a store adapter.
	KindStoreUnavailable Kind = "STORE_UNAVAILABLE"

	// KindInvalidPlanReference indicates a resume id that is not in the plan.
	KindInvalidPlanReference Kind = "INVALID_PLAN_REFERENCE"

	// KindPartialBatch indicates the store rejected part of a bulk write.
	KindPartialBatch Kind = "PARTIAL_BATCH"

	// KindLineageCycle indicates a previous_id walk did not terminate.
	KindLineageCycle Kind = "LINEAGE_CYCLE"
)

// Error is the structured error returned by every pruner component.
type Error struct {
	// Kind identifies the error category.
	Kind Kind

	// Message is a human-readable description.
	Message string

	// ID is the structure, branch or plan id the error is about, if any.
	ID string

	// Details carries ids and counts for the single log record emitted per
	// error.
	Details map[string]string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	b.WriteString(": ")
	b.WriteString(e.Message)
	if e.ID != "" {
		fmt.Fprintf(&b, " (id=%s)", e.ID)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// WithID sets the id the error refers to.
func (e *Error) WithID(id string) *Error {
	e.ID = id
	return e
}

// WithDetail attaches a key/value pair for logging.
func (e *Error) WithDetail(key, value string) *Error {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// LogAttrs flattens the error into slog-style key/value pairs.
func (e *Error) LogAttrs() []any {
	attrs := []any{"kind", string(e.Kind)}
	if e.ID != "" {
		attrs = append(attrs, "id", e.ID)
	}
	keys := make([]string, 0, len(e.Details))
	for k := range e.Details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		attrs = append(attrs, k, e.Details[k])
	}
	if e.Err != nil {
		attrs = append(attrs, "cause", e.Err.Error())
	}
	return attrs
}

// KindOf returns the Kind of the first *Error in err's chain, or "".
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err wraps an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// NewBadConfiguration creates a BAD_CONFIGURATION error.
func NewBadConfiguration(format string, args ...any) *Error {
	return &Error{Kind: KindBadConfiguration, Message: fmt.Sprintf(format, args...)}
}

// NewMissingAncestor creates a MISSING_ANCESTOR error for the branch whose
// lineage is broken at missingID.
func NewMissingAncestor(b Branch, missingID string) *Error {
	return &Error{
		Kind:    KindMissingAncestor,
		Message: "lineage references a structure that is not in the store",
		ID:      missingID,
		Details: map[string]string{
			"active_version_id": b.ActiveVersionID,
			"branch":            b.Name,
			"head":              b.StructureID,
		},
	}
}

// NewStoreUnavailable wraps a store failure.
func NewStoreUnavailable(op string, err error) *Error {
	return &Error{
		Kind:    KindStoreUnavailable,
		Message: op + " failed",
		Details: map[string]string{"op": op},
		Err:     err,
	}
}

// NewPartialBatch wraps a bulk write the store reported as failed.
func NewPartialBatch(op string, batch, requested int, err error) *Error {
	return &Error{
		Kind:    KindPartialBatch,
		Message: op + " batch failed",
		Details: map[string]string{
			"op":        op,
			"batch":     fmt.Sprintf("%d", batch),
			"requested": fmt.Sprintf("%d", requested),
		},
		Err: err,
	}
}

// NewInvalidPlanReference creates an INVALID_PLAN_REFERENCE error.
func NewInvalidPlanReference(startID string, planSize int) *Error {
	return &Error{
		Kind:    KindInvalidPlanReference,
		Message: "start id is not in the plan's delete list",
		ID:      startID,
		Details: map[string]string{"plan_deletes": fmt.Sprintf("%d", planSize)},
	}
}

// NewLineageCycle creates a LINEAGE_CYCLE error for a walk that exceeded
// limit steps starting at head.
func NewLineageCycle(head string, limit int) *Error {
	return &Error{
		Kind:    KindLineageCycle,
		Message: fmt.Sprintf("previous_id walk exceeded %d steps", limit),
		ID:      head,
		Details: map[string]string{"limit": fmt.Sprintf("%d", limit)},
	}
}
