// Package workflow drives one analysis session through upload, configuration, results and
// Pareto drill-down.
package workflow

import (
	"errors"
	"fmt"

	"github.com/KaramelBytes/analytica-cli/internal/outcome"
	"github.com/KaramelBytes/analytica-cli/internal/service"
)

// Phase is the coarse workflow position.
type Phase int

const (
	PhaseUpload Phase = iota
	PhaseConfiguring
	PhaseResults
	PhaseDrilldown
)

func (p Phase) String() string {
	switch p {
	case PhaseUpload:
		return "upload"
	case PhaseConfiguring:
		return "configuring"
	case PhaseResults:
		return "results"
	case PhaseDrilldown:
		return "drilldown"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// State is the workflow position with its payload. Tool is set in Configuring, Results and
// Drilldown; Outcome only in Results; Column only in Drilldown.
type State struct {
	Phase   Phase
	Tool    string
	Outcome outcome.Outcome
	Column  string
}

func (s State) String() string {
	switch s.Phase {
	case PhaseConfiguring:
		return fmt.Sprintf("configuring(%s)", s.Tool)
	case PhaseResults:
		kind := outcome.Kind("none")
		if s.Outcome != nil {
			kind = s.Outcome.Kind()
		}
		return fmt.Sprintf("results(%s, %s)", s.Tool, kind)
	case PhaseDrilldown:
		return fmt.Sprintf("drilldown(%s)", s.Column)
	}
	return s.Phase.String()
}

// Snapshot is a read-only copy of everything the presentation layer shows.
type Snapshot struct {
	State State
	// Loading is true while an upload, analysis or drill-down is in flight; submissions are
	// refused with ErrBusy until it clears.
	Loading bool
	// Banner is the transient message of the last failed call, cleared by the next event.
	Banner   string
	Metadata *service.FileMetadata
	Result   outcome.Outcome
	Pareto   *service.ParetoResult
}

var (
	// ErrBusy is returned when a submission arrives while another call is in flight.
	ErrBusy = errors.New("a request is already in progress")
	// ErrStaleResponse is returned to the caller of a request that was superseded before it
	// completed; its response was discarded.
	ErrStaleResponse = errors.New("response discarded: request was superseded")
	// ErrNoDataset is returned when an upload succeeds but the service names no stored file.
	ErrNoDataset = errors.New("upload returned no dataset")
)

// TransitionError reports an event the current state does not accept.
type TransitionError struct {
	From  State
	Event string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot %s while in %s", e.Event, e.From)
}
