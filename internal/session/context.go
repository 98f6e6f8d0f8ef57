// Package session holds the state of one dashboard session: the loaded file, the latest
// classified analysis outcome and the latest Pareto drill-down.
//
// A Context has exactly one writer, the workflow controller that owns it. It performs no
// locking of its own; readers outside the controller go through the controller's snapshot.
package session

import (
	"github.com/KaramelBytes/analytica-cli/internal/outcome"
	"github.com/KaramelBytes/analytica-cli/internal/service"
)

// Context is the session-scoped analysis state. The zero value is an empty context.
type Context struct {
	metadata  *service.FileMetadata
	result    outcome.Outcome
	hasResult bool
	pareto    *service.ParetoResult
}

// New returns an empty context.
func New() *Context { return &Context{} }

// SetMetadata replaces the loaded file's metadata.
func (c *Context) SetMetadata(m service.FileMetadata) {
	m = cloneMetadata(m)
	c.metadata = &m
}

// Metadata returns the loaded file's metadata; ok is false before the first upload.
func (c *Context) Metadata() (service.FileMetadata, bool) {
	if c.metadata == nil {
		return service.FileMetadata{}, false
	}
	return cloneMetadata(*c.metadata), true
}

// SetResult replaces the latest analysis outcome.
func (c *Context) SetResult(o outcome.Outcome) {
	c.result = o
	c.hasResult = o != nil
}

// Result returns the latest analysis outcome; ok is false when none has been recorded.
func (c *Context) Result() (outcome.Outcome, bool) {
	if !c.hasResult {
		return nil, false
	}
	return c.result, true
}

// SetPareto replaces the latest drill-down result.
func (c *Context) SetPareto(p service.ParetoResult) {
	p.Items = append([]service.ParetoItem(nil), p.Items...)
	c.pareto = &p
}

// Pareto returns the latest drill-down result; ok is false when none has been recorded.
func (c *Context) Pareto() (service.ParetoResult, bool) {
	if c.pareto == nil {
		return service.ParetoResult{}, false
	}
	p := *c.pareto
	p.Items = append([]service.ParetoItem(nil), p.Items...)
	return p, true
}

// ClearResults drops the analysis and drill-down results but keeps the loaded file.
func (c *Context) ClearResults() {
	c.result = nil
	c.hasResult = false
	c.pareto = nil
}

// Reset returns the context to its initial, empty state.
func (c *Context) Reset() {
	*c = Context{}
}

func cloneMetadata(m service.FileMetadata) service.FileMetadata {
	out := m
	out.Columns = append([]string(nil), m.Columns...)
	if m.Preview != nil {
		out.Preview = make(map[string]map[string]any, len(m.Preview))
		for col, rows := range m.Preview {
			cp := make(map[string]any, len(rows))
			for k, v := range rows {
				cp[k] = v
			}
			out.Preview[col] = cp
		}
	}
	return out
}
