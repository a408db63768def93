package support

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	"github.com/MeKo-Tech/shipscan/internal/catalog"
	"github.com/MeKo-Tech/shipscan/internal/pipeline"
	"github.com/MeKo-Tech/shipscan/internal/raster"
	"github.com/MeKo-Tech/shipscan/internal/server"
	"github.com/cucumber/godog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// startTestServer serves the fixture scene over a real listener.
func (testCtx *TestContext) startTestServer(limits server.RateLimitConfig) error {
	if testCtx.Scene == nil {
		return errors.New("no scene catalog; add \"Given a scene catalog with one ship\"")
	}
	cat, err := catalog.LoadFileCatalog(testCtx.Scene.ManifestPath)
	if err != nil {
		return err
	}
	occ, err := raster.Load(testCtx.Scene.OccurrencePath, raster.LoadOptions{})
	if err != nil {
		return err
	}

	params := pipeline.DefaultParams()
	params.ThresholdDB = 0
	params.MinPixels = 5
	params.MorphRadiusPx = 0
	params.MinLengthM = 10
	params.CoastErodePx = 0

	reg := prometheus.NewRegistry()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv, err := server.NewServer(server.Config{
		CORSOrigin: "*",
		TimeoutSec: 30,
		Catalog:    cat,
		Occurrence: occ,
		Pipeline: pipeline.New(
			pipeline.WithLogger(logger),
			pipeline.WithMetrics(pipeline.NewMetrics(reg)),
		),
		Params: params,
		Query: catalog.Query{
			Window:       6 * 24 * time.Hour,
			Pass:         catalog.PassAny,
			Polarization: catalog.DefaultPolarization,
			Mode:         catalog.DefaultMode,
		},
		Parallel:       pipeline.ParallelConfig{MaxWorkers: 2},
		RateLimit:      limits,
		Logger:         logger,
		MetricsHandler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	testCtx.HTTPTestServer = httptest.NewServer(srv.Handler())
	return nil
}

func (testCtx *TestContext) theDetectionServerIsRunning() error {
	return testCtx.startTestServer(server.RateLimitConfig{})
}

func (testCtx *TestContext) theDetectionServerIsRunningWithRequestsPerMinute(n int) error {
	return testCtx.startTestServer(server.RateLimitConfig{RequestsPerMinute: n})
}

func (testCtx *TestContext) doRequest(method, path, body string) error {
	if testCtx.HTTPTestServer == nil {
		return errors.New("server is not running")
	}
	req, err := http.NewRequest(method, testCtx.HTTPTestServer.URL+path, strings.NewReader(body))
	if err != nil {
		return err
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := testCtx.HTTPTestServer.Client().Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	testCtx.LastHTTPStatusCode = resp.StatusCode
	testCtx.LastHTTPResponse = string(data)
	testCtx.LastHTTPHeaders = resp.Header
	testCtx.lastBody = testCtx.LastHTTPResponse
	return nil
}

func (testCtx *TestContext) iGET(path string) error {
	return testCtx.doRequest(http.MethodGet, path, "")
}

func (testCtx *TestContext) iPOSTTo(body, path string) error {
	return testCtx.doRequest(http.MethodPost, path, body)
}

func (testCtx *TestContext) iPOSTTimesTo(n int, body, path string) error {
	for range n {
		if err := testCtx.iPOSTTo(body, path); err != nil {
			return err
		}
	}
	return nil
}

func (testCtx *TestContext) theResponseStatusShouldBe(code int) error {
	if testCtx.LastHTTPStatusCode != code {
		return fmt.Errorf("status %d, want %d\nBody: %s", testCtx.LastHTTPStatusCode, code, testCtx.LastHTTPResponse)
	}
	return nil
}

func (testCtx *TestContext) theResponseShouldContain(expected string) error {
	if !strings.Contains(testCtx.LastHTTPResponse, expected) {
		return fmt.Errorf("response does not contain '%s'\nBody: %s", expected, testCtx.LastHTTPResponse)
	}
	return nil
}

func (testCtx *TestContext) theResponseHeaderShouldBe(name, expected string) error {
	if got := testCtx.LastHTTPHeaders.Get(name); got != expected {
		return fmt.Errorf("header %s is %q, want %q", name, got, expected)
	}
	return nil
}

// RegisterServerSteps registers the HTTP API steps.
func (testCtx *TestContext) RegisterServerSteps(sc *godog.ScenarioContext) {
	sc.Step(`^the detection server is running$`, testCtx.theDetectionServerIsRunning)
	sc.Step(`^the detection server is running with (\d+) requests? per minute$`,
		testCtx.theDetectionServerIsRunningWithRequestsPerMinute)
	sc.Step(`^I GET "([^"]*)"$`, testCtx.iGET)
	sc.Step(`^I POST '([^']*)' to "([^"]*)"$`, testCtx.iPOSTTo)
	sc.Step(`^I POST (\d+) times '([^']*)' to "([^"]*)"$`, testCtx.iPOSTTimesTo)
	sc.Step(`^the response status should be (\d+)$`, testCtx.theResponseStatusShouldBe)
	sc.Step(`^the response should contain "([^"]*)"$`, testCtx.theResponseShouldContain)
	sc.Step(`^the response header "([^"]*)" should be "([^"]*)"$`, testCtx.theResponseHeaderShouldBe)
}
