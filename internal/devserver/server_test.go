package devserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/KaramelBytes/analytica-cli/internal/outcome"
	"github.com/KaramelBytes/analytica-cli/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const ordersCSV = "region,sales,units\nnorth,10,3\nsouth,20,4\nnorth,7,2\neast,5,1\nnorth,3,1\nsouth,8,2\n"

func newStack(t *testing.T, opt Options) (*httptest.Server, *service.Client) {
	t.Helper()
	local, err := service.NewLocal(service.LocalOptions{DataDir: t.TempDir()})
	require.NoError(t, err)
	srv := httptest.NewServer(New(local, opt).Handler())
	t.Cleanup(srv.Close)
	client := service.NewClient(srv.URL+Prefix, 5*time.Second, 1, time.Millisecond, time.Millisecond)
	return srv, client
}

func TestHealth(t *testing.T) {
	_, client := newStack(t, Options{})
	require.NoError(t, client.Health(context.Background()))
}

func TestClientRoundTrip(t *testing.T) {
	_, client := newStack(t, Options{})
	ctx := context.Background()

	meta, err := client.Upload(ctx, "orders.csv", strings.NewReader(ordersCSV))
	require.NoError(t, err)
	assert.Equal(t, "orders.csv", meta.Filename)
	assert.Equal(t, 6, meta.RowCount)
	assert.Equal(t, []string{"region", "sales", "units"}, meta.Columns)
	assert.Len(t, meta.PreviewRows(), 5)

	raw, err := client.RunAnalysis(ctx, service.AnalysisRequest{
		Filename: "orders.csv", ToolID: "correlacion", FeatureColumns: []string{"sales", "units"},
	})
	require.NoError(t, err)
	o := outcome.Classify(raw, "correlacion")
	require.IsType(t, outcome.Success{}, o)

	p, err := client.RunPareto(ctx, service.ParetoRequest{Filename: "orders.csv", Column: "region"})
	require.NoError(t, err)
	assert.Equal(t, "region", p.AnalyzedColumn)
	assert.Equal(t, 6, p.TotalRecords)
	require.NotEmpty(t, p.Items)
	assert.Equal(t, "north", p.Items[0].Label)
	assert.Equal(t, 3, p.Items[0].Frequency)
}

func TestEngineRejectionsArriveAsOutcomes(t *testing.T) {
	_, client := newStack(t, Options{})
	ctx := context.Background()
	_, err := client.Upload(ctx, "orders.csv", strings.NewReader(ordersCSV))
	require.NoError(t, err)

	raw, err := client.RunAnalysis(ctx, service.AnalysisRequest{Filename: "orders.csv", ToolID: "no_such_tool"})
	require.NoError(t, err)
	assert.IsType(t, outcome.ValidationError{}, outcome.Classify(raw, "no_such_tool"))

	raw, err = client.RunAnalysis(ctx, service.AnalysisRequest{Filename: "missing.csv", ToolID: "resumen", FeatureColumns: []string{"x"}})
	require.NoError(t, err)
	assert.IsType(t, outcome.ValidationError{}, outcome.Classify(raw, "resumen"))
}

func TestServiceErrorsMapToStatus(t *testing.T) {
	_, client := newStack(t, Options{})
	ctx := context.Background()

	_, err := client.Upload(ctx, "notes.pdf", strings.NewReader("x"))
	var bre *service.BadRequestError
	require.True(t, errors.As(err, &bre), "got %v", err)
	assert.Equal(t, http.StatusBadRequest, bre.StatusCode)
	assert.Equal(t, "Formato no soportado", bre.Message)

	_, err = client.RunPareto(ctx, service.ParetoRequest{Filename: "missing.csv", Column: "region"})
	require.True(t, errors.As(err, &bre), "got %v", err)
	assert.Equal(t, http.StatusNotFound, bre.StatusCode)
	assert.NotEmpty(t, bre.RequestID)
}

func TestMalformedBodies(t *testing.T) {
	srv, _ := newStack(t, Options{})
	for _, path := range []string{"/analizar/cuantitativo", "/analizar/pareto"} {
		resp, err := http.Post(srv.URL+Prefix+path, "application/json", strings.NewReader("{"))
		require.NoError(t, err)
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode, path)
		var d detail
		require.NoError(t, json.Unmarshal(body, &d))
		assert.NotEmpty(t, d.Detail)
	}

	resp, err := http.Post(srv.URL+Prefix+"/upload", "text/plain", bytes.NewReader([]byte("x")))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRequestIDEchoed(t *testing.T) {
	srv, _ := newStack(t, Options{})
	req, _ := http.NewRequest(http.MethodGet, srv.URL+Prefix+"/health", nil)
	req.Header.Set("X-Request-Id", "abc-123")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "abc-123", resp.Header.Get("X-Request-Id"))

	resp, err = http.Get(srv.URL + Prefix + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.NotEmpty(t, resp.Header.Get("X-Request-Id"))
}

func TestRateLimit(t *testing.T) {
	srv, _ := newStack(t, Options{RateLimit: 0.5, Burst: 1})
	post := func() *http.Response {
		resp, err := http.Post(srv.URL+Prefix+"/analizar/pareto", "application/json", strings.NewReader(`{"filename":"a.csv","columna":"x"}`))
		require.NoError(t, err)
		resp.Body.Close()
		return resp
	}
	assert.Equal(t, http.StatusNotFound, post().StatusCode)
	limited := post()
	assert.Equal(t, http.StatusTooManyRequests, limited.StatusCode)
	assert.Equal(t, "2", limited.Header.Get("Retry-After"))

	resp, err := http.Get(srv.URL + Prefix + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode, "health is never limited")
}

func TestListenAndServeStopsOnCancel(t *testing.T) {
	local, err := service.NewLocal(service.LocalOptions{DataDir: t.TempDir()})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	addrCh := make(chan net.Addr, 1)
	done := make(chan error, 1)
	go func() {
		done <- New(local, Options{}).ListenAndServe(ctx, "127.0.0.1:0", func(a net.Addr) { addrCh <- a })
	}()
	addr := <-addrCh
	client := service.NewClient("http://"+addr.String()+Prefix, time.Second, 1, time.Millisecond, time.Millisecond)
	require.NoError(t, client.Health(context.Background()))
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
