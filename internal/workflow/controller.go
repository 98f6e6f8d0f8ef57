package workflow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/KaramelBytes/analytica-cli/internal/outcome"
	"github.com/KaramelBytes/analytica-cli/internal/request"
	"github.com/KaramelBytes/analytica-cli/internal/service"
	"github.com/KaramelBytes/analytica-cli/internal/session"
	"github.com/KaramelBytes/analytica-cli/internal/tools"
	"github.com/google/uuid"
)

// Controller is the only writer of its session context. Every event runs under one mutex;
// service calls run outside it and are applied afterwards only if their ticket is still
// current.
type Controller struct {
	svc      service.Service
	registry *tools.Registry
	builder  *request.Builder
	store    *session.Context
	logger   *slog.Logger

	mu      sync.Mutex
	state   State
	loading bool
	banner  string
	ticket  string
}

// Option customizes a Controller.
type Option func(*Controller)

// WithLogger sets the logger used for transition tracing.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

// New returns a controller in the Upload state. store is reset; a nil store gets a fresh one.
func New(svc service.Service, reg *tools.Registry, store *session.Context, opts ...Option) *Controller {
	if store == nil {
		store = session.New()
	}
	store.Reset()
	c := &Controller{
		svc:      svc,
		registry: reg,
		builder:  request.NewBuilder(reg),
		store:    store,
		logger:   slog.Default(),
		state:    State{Phase: PhaseUpload},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Upload reads the file at path and uploads it.
func (c *Controller) Upload(ctx context.Context, path string) (service.FileMetadata, error) {
	f, err := os.Open(path)
	if err != nil {
		return service.FileMetadata{}, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()
	return c.UploadReader(ctx, filepath.Base(path), f)
}

// UploadReader uploads a dataset. It is accepted only in the Upload state; on success the
// metadata replaces any previous file and the state stays Upload.
func (c *Controller) UploadReader(ctx context.Context, filename string, r io.Reader) (service.FileMetadata, error) {
	c.mu.Lock()
	if c.state.Phase != PhaseUpload {
		defer c.mu.Unlock()
		return service.FileMetadata{}, &TransitionError{From: c.state, Event: "upload a file"}
	}
	if c.loading {
		c.mu.Unlock()
		return service.FileMetadata{}, ErrBusy
	}
	ticket := c.begin()
	c.mu.Unlock()

	meta, err := c.svc.Upload(ctx, filename, r)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.finish(ticket, "upload"); err != nil {
		return service.FileMetadata{}, err
	}
	if err == nil && meta.Filename == "" {
		err = ErrNoDataset
	}
	if err != nil {
		c.banner = err.Error()
		return service.FileMetadata{}, err
	}
	c.store.Reset()
	c.store.SetMetadata(meta)
	c.logger.Debug("dataset loaded", "file", meta.Filename, "rows", meta.RowCount, "columns", len(meta.Columns))
	return meta, nil
}

// RemoveFile discards the loaded file and everything derived from it. Any in-flight call is
// superseded.
func (c *Controller) RemoveFile() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidate()
	c.store.Reset()
	c.transition(State{Phase: PhaseUpload}, "remove file")
}

// ChooseTool selects the tool to configure. It requires a loaded file and is accepted from
// Upload and from Configuring, where it supersedes an in-flight run.
func (c *Controller) ChooseTool(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Phase != PhaseUpload && c.state.Phase != PhaseConfiguring {
		return &TransitionError{From: c.state, Event: "choose a tool"}
	}
	if _, ok := c.store.Metadata(); !ok {
		return request.ErrNoFile
	}
	d, err := c.registry.Lookup(id)
	if err != nil {
		return err
	}
	c.invalidate()
	c.transition(State{Phase: PhaseConfiguring, Tool: d.ID}, "choose tool")
	return nil
}

// Run builds the request for the configured tool and submits it. Build errors return at once
// without a service call or state change. A failed call leaves the state in Configuring with
// a banner; a completed call moves to Results with the classified outcome.
func (c *Controller) Run(ctx context.Context, sel request.Selections) (outcome.Outcome, error) {
	c.mu.Lock()
	if c.state.Phase != PhaseConfiguring {
		defer c.mu.Unlock()
		return nil, &TransitionError{From: c.state, Event: "run an analysis"}
	}
	if c.loading {
		c.mu.Unlock()
		return nil, ErrBusy
	}
	meta, _ := c.store.Metadata()
	tool := c.state.Tool
	req, err := c.builder.Build(meta, tool, sel)
	if err != nil {
		c.mu.Unlock()
		return nil, err
	}
	ticket := c.begin()
	c.mu.Unlock()

	raw, err := c.svc.RunAnalysis(ctx, req)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.finish(ticket, "analysis"); err != nil {
		return nil, err
	}
	if err != nil {
		c.banner = err.Error()
		c.logger.Debug("analysis failed", "tool", tool, "transport", service.IsTransport(err), "error", err)
		return nil, err
	}
	o := outcome.Classify(raw, tool)
	c.store.SetResult(o)
	c.transition(State{Phase: PhaseResults, Tool: tool, Outcome: o}, "analysis resolved")
	return o, nil
}

// Adjust returns from a successful result to its configuration.
func (c *Controller) Adjust() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Phase != PhaseResults || outcome.IsError(c.state.Outcome) {
		return &TransitionError{From: c.state, Event: "adjust"}
	}
	c.invalidate()
	c.transition(State{Phase: PhaseConfiguring, Tool: c.state.Tool}, "adjust")
	return nil
}

// Dismiss closes the dialog of an error result and returns to Configuring so the input can
// be corrected. Outside an error result it only clears the banner, if there is one.
func (c *Controller) Dismiss() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Phase == PhaseResults && outcome.IsError(c.state.Outcome) {
		c.transition(State{Phase: PhaseConfiguring, Tool: c.state.Tool}, "dismiss")
		return nil
	}
	if c.banner != "" {
		c.banner = ""
		return nil
	}
	return &TransitionError{From: c.state, Event: "dismiss"}
}

// Drilldown runs the Pareto analysis of column on the uploaded file. It is accepted from a
// successful result and from an existing drill-down. While it runs the state does not move;
// on success it becomes Drilldown(column), on failure a banner is set and the state is kept.
func (c *Controller) Drilldown(ctx context.Context, column string) (service.ParetoResult, error) {
	c.mu.Lock()
	ok := c.state.Phase == PhaseDrilldown ||
		(c.state.Phase == PhaseResults && !outcome.IsError(c.state.Outcome))
	if !ok {
		defer c.mu.Unlock()
		return service.ParetoResult{}, &TransitionError{From: c.state, Event: "drill down"}
	}
	if c.loading {
		c.mu.Unlock()
		return service.ParetoResult{}, ErrBusy
	}
	meta, _ := c.store.Metadata()
	req, err := request.BuildPareto(meta, column)
	if err != nil {
		c.mu.Unlock()
		return service.ParetoResult{}, err
	}
	tool := c.state.Tool
	ticket := c.begin()
	c.mu.Unlock()

	res, err := c.svc.RunPareto(ctx, req)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.finish(ticket, "pareto"); err != nil {
		return service.ParetoResult{}, err
	}
	if err != nil {
		c.banner = err.Error()
		return service.ParetoResult{}, err
	}
	c.store.SetPareto(res)
	c.transition(State{Phase: PhaseDrilldown, Tool: tool, Column: req.Column}, "pareto resolved")
	return res, nil
}

// Back leaves the drill-down for the configuration of the tool that produced the result.
func (c *Controller) Back() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Phase != PhaseDrilldown {
		return &TransitionError{From: c.state, Event: "go back"}
	}
	c.invalidate()
	c.transition(State{Phase: PhaseConfiguring, Tool: c.state.Tool}, "back")
	return nil
}

// State returns the current workflow state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Snapshot returns copies of the state and the session context.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := Snapshot{State: c.state, Loading: c.loading, Banner: c.banner}
	if m, ok := c.store.Metadata(); ok {
		s.Metadata = &m
	}
	if o, ok := c.store.Result(); ok {
		s.Result = o
	}
	if p, ok := c.store.Pareto(); ok {
		s.Pareto = &p
	}
	return s
}

// begin marks a call in flight and returns its ticket. Callers hold mu.
func (c *Controller) begin() string {
	c.ticket = uuid.NewString()
	c.loading = true
	c.banner = ""
	return c.ticket
}

// finish ends the call identified by ticket, or reports it stale. Callers hold mu.
func (c *Controller) finish(ticket, op string) error {
	if ticket != c.ticket {
		c.logger.Warn("discarding stale response", "op", op, "ticket", ticket, "state", c.state.String())
		return ErrStaleResponse
	}
	c.ticket = ""
	c.loading = false
	return nil
}

// invalidate supersedes any in-flight call. Callers hold mu.
func (c *Controller) invalidate() {
	c.ticket = ""
	c.loading = false
	c.banner = ""
}

func (c *Controller) transition(to State, event string) {
	c.logger.Debug("workflow transition", "from", c.state.String(), "to", to.String(), "event", event)
	c.state = to
}

// IsTransition reports whether err is a rejected state transition.
func IsTransition(err error) bool {
	var te *TransitionError
	return errors.As(err, &te)
}
