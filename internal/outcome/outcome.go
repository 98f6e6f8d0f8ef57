// Package outcome classifies raw analysis-service responses into exactly one
// success or named error variant.
package outcome

import (
	"encoding/json"
	"fmt"
)

// Kind tags the active variant of an Outcome.
type Kind string

const (
	KindSuccess                Kind = "success"
	KindInsufficientDataPoints Kind = "insufficient_data_points"
	KindUnparsableDate         Kind = "unparsable_date"
	KindHighCardinalityTarget  Kind = "high_cardinality_target"
	KindIncompatibleColumnType Kind = "incompatible_column_type"
	KindValidationError        Kind = "validation_error"
	KindUnknown                Kind = "unknown"
)

// Outcome is the classified result of one analysis invocation.
// Implementations are the value types declared in this file; the set is closed.
type Outcome interface {
	Kind() Kind
	isOutcome()
}

// Success carries the tool-specific payload verbatim.
type Success struct {
	ToolID  string          `json:"tool_id"`
	Payload json.RawMessage `json:"payload"`
}

// InsufficientDataPoints reports that the dataset is too short for the requested analysis.
type InsufficientDataPoints struct {
	RequiredCount int    `json:"required_count"`
	Message       string `json:"message"`
}

// UnparsableDate reports that the selected column could not be read as dates.
type UnparsableDate struct {
	Message string `json:"message"`
}

// HighCardinalityTarget reports a target or dimension column with too many distinct classes.
type HighCardinalityTarget struct {
	TargetColumn string `json:"target_column"`
	ClassCount   int    `json:"class_count"`
	Message      string `json:"message"`
}

// IncompatibleColumnType reports a column whose detected type cannot serve the requested role.
type IncompatibleColumnType struct {
	Column       string `json:"column"`
	DetectedType string `json:"detected_type"`
	Message      string `json:"message"`
}

// ValidationError is a generic server-side validation failure.
type ValidationError struct {
	Message string `json:"message"`
}

// Unknown wraps a response that matched no known shape. RawPayload holds the body as
// received, which may not be valid JSON.
type Unknown struct {
	RawPayload []byte `json:"-"`
}

// MarshalJSON embeds the payload as JSON when it is valid and as a string otherwise.
func (u Unknown) MarshalJSON() ([]byte, error) {
	var payload any = string(u.RawPayload)
	if len(u.RawPayload) > 0 && json.Valid(u.RawPayload) {
		payload = json.RawMessage(u.RawPayload)
	}
	return json.Marshal(struct {
		RawPayload any `json:"raw_payload"`
	}{payload})
}

func (Success) Kind() Kind                { return KindSuccess }
func (InsufficientDataPoints) Kind() Kind { return KindInsufficientDataPoints }
func (UnparsableDate) Kind() Kind         { return KindUnparsableDate }
func (HighCardinalityTarget) Kind() Kind  { return KindHighCardinalityTarget }
func (IncompatibleColumnType) Kind() Kind { return KindIncompatibleColumnType }
func (ValidationError) Kind() Kind        { return KindValidationError }
func (Unknown) Kind() Kind                { return KindUnknown }

func (Success) isOutcome()                {}
func (InsufficientDataPoints) isOutcome() {}
func (UnparsableDate) isOutcome()         {}
func (HighCardinalityTarget) isOutcome()  {}
func (IncompatibleColumnType) isOutcome() {}
func (ValidationError) isOutcome()        {}
func (Unknown) isOutcome()                {}

// IsError reports whether o is one of the error variants.
func IsError(o Outcome) bool {
	return o != nil && o.Kind() != KindSuccess
}

// Message returns the human-readable server message of an error variant, if any.
func Message(o Outcome) string {
	switch v := o.(type) {
	case InsufficientDataPoints:
		return v.Message
	case UnparsableDate:
		return v.Message
	case HighCardinalityTarget:
		return v.Message
	case IncompatibleColumnType:
		return v.Message
	case ValidationError:
		return v.Message
	case Unknown:
		return "unrecognized response from the analysis service"
	}
	return ""
}

// envelope is the tagged JSON form used when outcomes are exported.
type envelope struct {
	Kind    Kind    `json:"kind"`
	Outcome Outcome `json:"outcome"`
}

// Marshal renders o as {"kind": ..., "outcome": {...}}.
func Marshal(o Outcome) ([]byte, error) {
	if o == nil {
		return nil, fmt.Errorf("marshal outcome: nil outcome")
	}
	return json.MarshalIndent(envelope{Kind: o.Kind(), Outcome: o}, "", "  ")
}
