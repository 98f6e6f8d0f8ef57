package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/KaramelBytes/analytica-cli/internal/outcome"
	"github.com/KaramelBytes/analytica-cli/internal/request"
	"github.com/KaramelBytes/analytica-cli/internal/service"
	"github.com/KaramelBytes/analytica-cli/internal/session"
	"github.com/KaramelBytes/analytica-cli/internal/tools"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockService struct{ mock.Mock }

func (m *mockService) Upload(ctx context.Context, filename string, r io.Reader) (service.FileMetadata, error) {
	args := m.Called(ctx, filename, r)
	return args.Get(0).(service.FileMetadata), args.Error(1)
}

func (m *mockService) RunAnalysis(ctx context.Context, req service.AnalysisRequest) (json.RawMessage, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(json.RawMessage), args.Error(1)
}

func (m *mockService) RunPareto(ctx context.Context, req service.ParetoRequest) (service.ParetoResult, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(service.ParetoResult), args.Error(1)
}

var salesMeta = service.FileMetadata{
	Filename: "sales.csv",
	RowCount: 120,
	Columns:  []string{"region", "sales"},
	Preview:  map[string]map[string]any{"region": {"0": "north"}, "sales": {"0": 10.0}},
}

var regionPareto = service.ParetoResult{
	AnalyzedColumn: "region",
	TotalRecords:   120,
	Items: []service.ParetoItem{
		{Label: "north", Frequency: 100, Percentage: 83.3, CumulativePercentage: 83.3, Class: service.ClassB},
		{Label: "south", Frequency: 20, Percentage: 16.7, CumulativePercentage: 100, Class: service.ClassC},
	},
}

func newController(t *testing.T, svc service.Service) *Controller {
	t.Helper()
	return New(svc, tools.Default(), session.New())
}

// loaded returns a controller with sales.csv uploaded.
func loaded(t *testing.T, m *mockService) *Controller {
	t.Helper()
	m.On("Upload", mock.Anything, "sales.csv", mock.Anything).Return(salesMeta, nil).Once()
	c := newController(t, m)
	_, err := c.UploadReader(context.Background(), "sales.csv", nil)
	require.NoError(t, err)
	return c
}

// configured returns a controller in Configuring(tool).
func configured(t *testing.T, m *mockService, tool string) *Controller {
	t.Helper()
	c := loaded(t, m)
	require.NoError(t, c.ChooseTool(tool))
	return c
}

func TestInitialState(t *testing.T) {
	c := newController(t, &mockService{})
	s := c.Snapshot()
	assert.Equal(t, State{Phase: PhaseUpload}, s.State)
	assert.False(t, s.Loading)
	assert.Nil(t, s.Metadata)
	assert.Nil(t, s.Result)
	assert.Nil(t, s.Pareto)
}

func TestUploadFromDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sales.csv")
	require.NoError(t, os.WriteFile(path, []byte("region,sales\nnorth,10\n"), 0o644))
	m := &mockService{}
	m.On("Upload", mock.Anything, "sales.csv", mock.Anything).Return(salesMeta, nil)
	c := newController(t, m)

	meta, err := c.Upload(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "sales.csv", meta.Filename)
	s := c.Snapshot()
	assert.Equal(t, PhaseUpload, s.State.Phase, "upload keeps the Upload state")
	require.NotNil(t, s.Metadata)
	assert.Equal(t, 120, s.Metadata.RowCount)
	m.AssertExpectations(t)

	_, err = c.Upload(context.Background(), filepath.Join(t.TempDir(), "missing.csv"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestUploadWithoutFilenameIsRejected(t *testing.T) {
	m := &mockService{}
	m.On("Upload", mock.Anything, "blank.csv", mock.Anything).Return(service.FileMetadata{}, nil).Once()
	c := newController(t, m)

	_, err := c.UploadReader(context.Background(), "blank.csv", nil)
	assert.ErrorIs(t, err, ErrNoDataset)
	s := c.Snapshot()
	assert.Nil(t, s.Metadata)
	assert.Equal(t, ErrNoDataset.Error(), s.Banner)
	assert.ErrorIs(t, c.ChooseTool(tools.Correlation), request.ErrNoFile)
	assert.Equal(t, PhaseUpload, c.State().Phase)
}

func TestUnsupportedFormatKeepsPreviousFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f, hdr, err := r.FormFile("file")
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f.Close()
		if hdr.Filename != "sales.csv" {
			_, _ = io.WriteString(w, `{"error":"Formato no soportado"}`)
			return
		}
		_, _ = io.WriteString(w, `{"filename":"sales.csv","rows":2,"columns":["region","sales"],"preview":{}}`)
	}))
	defer srv.Close()
	c := newController(t, service.NewClient(srv.URL, 2*time.Second, 1, time.Millisecond, time.Millisecond))

	_, err := c.UploadReader(context.Background(), "notes.pdf", strings.NewReader("%PDF"))
	var bre *service.BadRequestError
	require.True(t, errors.As(err, &bre), "got %v", err)
	assert.Nil(t, c.Snapshot().Metadata)
	assert.Contains(t, c.Snapshot().Banner, "Formato no soportado")
	assert.ErrorIs(t, c.ChooseTool(tools.Correlation), request.ErrNoFile)

	_, err = c.UploadReader(context.Background(), "sales.csv", strings.NewReader("region,sales\nnorth,1\n"))
	require.NoError(t, err)
	_, err = c.UploadReader(context.Background(), "notes.pdf", strings.NewReader("%PDF"))
	require.Error(t, err)
	s := c.Snapshot()
	require.NotNil(t, s.Metadata)
	assert.Equal(t, "sales.csv", s.Metadata.Filename, "a rejected upload leaves the loaded file in place")
	require.NoError(t, c.ChooseTool(tools.Correlation))
}

func TestFullSession(t *testing.T) {
	m := &mockService{}
	c := configured(t, m, tools.Correlation)
	assert.Equal(t, State{Phase: PhaseConfiguring, Tool: tools.Correlation}, c.State())

	m.On("RunAnalysis", mock.Anything, mock.MatchedBy(func(r service.AnalysisRequest) bool {
		return r.ToolID == tools.Correlation && len(r.FeatureColumns) == 0 && r.TargetColumn == nil
	})).Return(json.RawMessage(`{"variables":["sales"],"matriz":[]}`), nil).Once()

	o, err := c.Run(context.Background(), request.Selections{})
	require.NoError(t, err)
	require.Equal(t, outcome.KindSuccess, o.Kind())
	assert.Equal(t, tools.Correlation, o.(outcome.Success).ToolID)
	s := c.Snapshot()
	assert.Equal(t, PhaseResults, s.State.Phase)
	assert.Equal(t, o, s.Result)

	m.On("RunPareto", mock.Anything, service.ParetoRequest{Filename: "sales.csv", Column: "region"}).Return(regionPareto, nil).Once()
	res, err := c.Drilldown(context.Background(), "region")
	require.NoError(t, err)
	assert.Equal(t, regionPareto, res)
	s = c.Snapshot()
	assert.Equal(t, State{Phase: PhaseDrilldown, Tool: tools.Correlation, Column: "region"}, s.State)
	require.NotNil(t, s.Pareto)
	assert.Equal(t, "region", s.Pareto.AnalyzedColumn)

	require.NoError(t, c.Back())
	assert.Equal(t, State{Phase: PhaseConfiguring, Tool: tools.Correlation}, c.State())
	m.AssertExpectations(t)
}

func TestChooseToolGuards(t *testing.T) {
	c := newController(t, &mockService{})
	assert.ErrorIs(t, c.ChooseTool(tools.Correlation), request.ErrNoFile)

	m := &mockService{}
	c = loaded(t, m)
	assert.ErrorIs(t, c.ChooseTool("outliers"), tools.ErrUnknownTool)
	assert.Equal(t, PhaseUpload, c.State().Phase)

	require.NoError(t, c.ChooseTool(tools.KMeans))
	require.NoError(t, c.ChooseTool(tools.PCA), "switching tools while configuring")
	assert.Equal(t, tools.PCA, c.State().Tool)
}

func TestRejectedTransitionsKeepState(t *testing.T) {
	c := newController(t, &mockService{})
	_, err := c.Run(context.Background(), request.Selections{})
	assert.True(t, IsTransition(err))
	assert.True(t, IsTransition(c.Adjust()))
	assert.True(t, IsTransition(c.Back()))
	assert.True(t, IsTransition(c.Dismiss()))
	_, err = c.Drilldown(context.Background(), "region")
	assert.True(t, IsTransition(err))
	assert.Equal(t, State{Phase: PhaseUpload}, c.State())

	m := &mockService{}
	c = configured(t, m, tools.Summary)
	_, err = c.UploadReader(context.Background(), "other.csv", nil)
	var te *TransitionError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, PhaseConfiguring, te.From.Phase)
	assert.Contains(t, te.Error(), "configuring(resumen)")
}

func TestBuildErrorsNeverReachService(t *testing.T) {
	m := &mockService{}
	c := configured(t, m, tools.TTest)

	_, err := c.Run(context.Background(), request.Selections{})
	assert.ErrorIs(t, err, request.ErrMissingSelection)

	_, err = c.Run(context.Background(), request.Selections{Features: []string{"sales"}, Target: "ghost"})
	var uce *request.UnknownColumnError
	assert.True(t, errors.As(err, &uce))

	m.AssertNotCalled(t, "RunAnalysis", mock.Anything, mock.Anything)
	s := c.Snapshot()
	assert.Equal(t, PhaseConfiguring, s.State.Phase)
	assert.False(t, s.Loading)
}

func TestErrorOutcomeDismissReturnsToConfiguring(t *testing.T) {
	bodies := []json.RawMessage{
		json.RawMessage(`{"error":"Se necesitan al menos 24 puntos de datos (meses/días) para descomponer."}`),
		json.RawMessage(`{"error":"No se pudo convertir la columna a fecha."}`),
		json.RawMessage(`{"error":"Demasiadas clases","columna_target":"region","num_clases":120}`),
		json.RawMessage(`{"error":"tipo","columna":"region","dtype":"object"}`),
		json.RawMessage(`{"error":"La variable 'region' debe tener exactamente 2 categorías. Encontradas: 3"}`),
		json.RawMessage(`[1,2,3]`),
	}
	for _, body := range bodies {
		m := &mockService{}
		c := configured(t, m, tools.LinearRegression)
		m.On("RunAnalysis", mock.Anything, mock.Anything).Return(body, nil).Once()

		o, err := c.Run(context.Background(), request.Selections{Features: []string{"region"}, Target: "sales"})
		require.NoError(t, err)
		require.True(t, outcome.IsError(o), string(body))
		assert.Equal(t, PhaseResults, c.State().Phase)

		assert.True(t, IsTransition(c.Adjust()), "adjust needs a success")
		_, err = c.Drilldown(context.Background(), "region")
		assert.True(t, IsTransition(err), "drill-down needs a success")

		require.NoError(t, c.Dismiss())
		assert.Equal(t, State{Phase: PhaseConfiguring, Tool: tools.LinearRegression}, c.State())
	}
}

func TestAdjustFromSuccess(t *testing.T) {
	m := &mockService{}
	c := configured(t, m, tools.Summary)
	m.On("RunAnalysis", mock.Anything, mock.Anything).Return(json.RawMessage(`{"sales":{"mean":3}}`), nil)
	_, err := c.Run(context.Background(), request.Selections{Features: []string{"sales"}})
	require.NoError(t, err)

	assert.True(t, IsTransition(c.Dismiss()), "nothing to dismiss after a success")
	require.NoError(t, c.Adjust())
	s := c.Snapshot()
	assert.Equal(t, State{Phase: PhaseConfiguring, Tool: tools.Summary}, s.State)
	assert.NotNil(t, s.Result, "the last result stays readable")
}

func TestTransportFailureStaysConfiguring(t *testing.T) {
	m := &mockService{}
	c := configured(t, m, tools.Summary)
	terr := &service.TransportError{Op: "analysis", Err: errors.New("connection refused")}
	m.On("RunAnalysis", mock.Anything, mock.Anything).Return(json.RawMessage(nil), terr).Once()

	_, err := c.Run(context.Background(), request.Selections{Features: []string{"sales"}})
	assert.True(t, service.IsTransport(err))
	s := c.Snapshot()
	assert.Equal(t, State{Phase: PhaseConfiguring, Tool: tools.Summary}, s.State)
	assert.False(t, s.Loading)
	assert.Contains(t, s.Banner, "connection refused")
	assert.Nil(t, s.Result)

	require.NoError(t, c.Dismiss(), "dismissing the banner")
	assert.Empty(t, c.Snapshot().Banner)

	m.On("RunAnalysis", mock.Anything, mock.Anything).Return(json.RawMessage(`{"sales":{}}`), nil).Once()
	_, err = c.Run(context.Background(), request.Selections{Features: []string{"sales"}})
	require.NoError(t, err, "retry after a transient failure")
	assert.Equal(t, PhaseResults, c.State().Phase)
}

func TestDrilldownFailureKeepsResults(t *testing.T) {
	m := &mockService{}
	c := configured(t, m, tools.Summary)
	m.On("RunAnalysis", mock.Anything, mock.Anything).Return(json.RawMessage(`{"sales":{}}`), nil)
	_, err := c.Run(context.Background(), request.Selections{Features: []string{"sales"}})
	require.NoError(t, err)

	_, err = c.Drilldown(context.Background(), "")
	assert.ErrorIs(t, err, request.ErrMissingSelection)

	m.On("RunPareto", mock.Anything, mock.Anything).Return(service.ParetoResult{}, &service.TransportError{Op: "pareto", Err: io.ErrUnexpectedEOF}).Once()
	_, err = c.Drilldown(context.Background(), "region")
	require.Error(t, err)
	s := c.Snapshot()
	assert.Equal(t, PhaseResults, s.State.Phase)
	assert.NotEmpty(t, s.Banner)
	assert.Nil(t, s.Pareto)
}

func TestRemoveFileResets(t *testing.T) {
	m := &mockService{}
	c := configured(t, m, tools.Summary)
	m.On("RunAnalysis", mock.Anything, mock.Anything).Return(json.RawMessage(`{"sales":{}}`), nil)
	_, err := c.Run(context.Background(), request.Selections{Features: []string{"sales"}})
	require.NoError(t, err)

	c.RemoveFile()
	s := c.Snapshot()
	assert.Equal(t, State{Phase: PhaseUpload}, s.State)
	assert.Nil(t, s.Metadata)
	assert.Nil(t, s.Result)
	assert.ErrorIs(t, c.ChooseTool(tools.Summary), request.ErrNoFile)
}

// gatedService blocks every analysis until released, so tests can act while it is in flight.
type gatedService struct {
	started chan struct{}
	release chan struct{}
	body    json.RawMessage
}

func newGated(body string) *gatedService {
	return &gatedService{started: make(chan struct{}, 4), release: make(chan struct{}), body: json.RawMessage(body)}
}

func (g *gatedService) Upload(context.Context, string, io.Reader) (service.FileMetadata, error) {
	return salesMeta, nil
}

func (g *gatedService) RunAnalysis(context.Context, service.AnalysisRequest) (json.RawMessage, error) {
	g.started <- struct{}{}
	<-g.release
	return g.body, nil
}

func (g *gatedService) RunPareto(context.Context, service.ParetoRequest) (service.ParetoResult, error) {
	return regionPareto, nil
}

type runResult struct {
	o   outcome.Outcome
	err error
}

func startRun(c *Controller, sel request.Selections) <-chan runResult {
	ch := make(chan runResult, 1)
	go func() {
		o, err := c.Run(context.Background(), sel)
		ch <- runResult{o, err}
	}()
	return ch
}

func waitStarted(t *testing.T, g *gatedService) {
	t.Helper()
	select {
	case <-g.started:
	case <-time.After(2 * time.Second):
		t.Fatal("analysis never reached the service")
	}
}

func gatedConfigured(t *testing.T, g *gatedService, tool string) *Controller {
	t.Helper()
	c := newController(t, g)
	_, err := c.UploadReader(context.Background(), "sales.csv", nil)
	require.NoError(t, err)
	require.NoError(t, c.ChooseTool(tool))
	return c
}

func TestSecondRunWhileLoadingIsBusy(t *testing.T) {
	g := newGated(`{"sales":{"mean":1}}`)
	c := gatedConfigured(t, g, tools.Summary)
	sel := request.Selections{Features: []string{"sales"}}

	first := startRun(c, sel)
	waitStarted(t, g)
	assert.True(t, c.Snapshot().Loading)

	_, err := c.Run(context.Background(), sel)
	assert.ErrorIs(t, err, ErrBusy)

	close(g.release)
	r := <-first
	require.NoError(t, r.err)
	s := c.Snapshot()
	assert.False(t, s.Loading)
	assert.Equal(t, PhaseResults, s.State.Phase)
}

func TestSupersededRunIsDiscarded(t *testing.T) {
	g := newGated(`{"sales":{"mean":1}}`)
	c := gatedConfigured(t, g, tools.Summary)

	first := startRun(c, request.Selections{Features: []string{"sales"}})
	waitStarted(t, g)

	require.NoError(t, c.ChooseTool(tools.Correlation))
	close(g.release)
	r := <-first
	assert.ErrorIs(t, r.err, ErrStaleResponse)
	assert.Nil(t, r.o)

	s := c.Snapshot()
	assert.Equal(t, State{Phase: PhaseConfiguring, Tool: tools.Correlation}, s.State)
	assert.Nil(t, s.Result, "stale response never reaches the context")
	assert.False(t, s.Loading)
}

func TestRemoveFileDiscardsInFlightRun(t *testing.T) {
	g := newGated(`{"sales":{"mean":1}}`)
	c := gatedConfigured(t, g, tools.Summary)

	first := startRun(c, request.Selections{Features: []string{"sales"}})
	waitStarted(t, g)
	c.RemoveFile()
	close(g.release)

	assert.ErrorIs(t, (<-first).err, ErrStaleResponse)
	s := c.Snapshot()
	assert.Equal(t, State{Phase: PhaseUpload}, s.State)
	assert.Nil(t, s.Result)
	assert.Nil(t, s.Metadata)
}
