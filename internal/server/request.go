package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/MeKo-Tech/shipscan/internal/catalog"
	"github.com/MeKo-Tech/shipscan/internal/detector"
	"github.com/MeKo-Tech/shipscan/internal/pipeline"
	"github.com/MeKo-Tech/shipscan/internal/raster"
)

// errBadRequest marks malformed request bodies.
var errBadRequest = errors.New("bad request")

// Error codes returned in the "error" field of failed responses.
const (
	codeInvalidRequest   = "invalid_request"
	codeNoAcquisition    = "no_acquisition"
	codeMisaligned       = "misaligned_rasters"
	codeResourceExceeded = "resource_exceeded"
	codeTimeout          = "timeout"
	codeCancelled        = "cancelled"
	codeProcessingError  = "processing_error"
)

// parseDate accepts 2006-01-02 or RFC 3339.
func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: missing date", errBadRequest)
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date %q is neither YYYY-MM-DD nor RFC 3339", errBadRequest, s)
	}
	return t, nil
}

// buildRequest applies dr over the server defaults.
func (s *Server) buildRequest(dr DetectRequest) (pipeline.Request, error) {
	target, err := parseDate(dr.Date)
	if err != nil {
		return pipeline.Request{}, err
	}

	q := s.query
	q.Target = target
	if dr.WindowDays != nil {
		q.Window = time.Duration(*dr.WindowDays) * 24 * time.Hour
	}
	if dr.Pass != "" {
		if q.Pass, err = catalog.ParsePass(dr.Pass); err != nil {
			return pipeline.Request{}, err
		}
	}
	if dr.Polarization != "" {
		q.Polarization = dr.Polarization
	}
	if dr.Mode != "" {
		q.Mode = dr.Mode
	}
	if isSet(dr.Region) {
		if q.Region, err = pipeline.ParseRegion(dr.Region); err != nil {
			return pipeline.Request{}, err
		}
	}

	params := s.params
	if isSet(dr.Params) {
		dec := json.NewDecoder(bytes.NewReader(dr.Params))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&params); err != nil {
			return pipeline.Request{}, fmt.Errorf("%w: params: %v", errBadRequest, err)
		}
		if err := s.checkLimits(params); err != nil {
			return pipeline.Request{}, err
		}
		params.Workers = s.params.Workers
	}

	return pipeline.Request{Query: q, Occurrence: s.occurrence, Params: params}, nil
}

// checkLimits keeps client params within the server's vectorization
// budget. A client may lower max_pixels but never raise or disable it.
func (s *Server) checkLimits(p pipeline.Params) error {
	limit := s.params.MaxPixels
	if limit <= 0 {
		return nil
	}
	if p.MaxPixels <= 0 || p.MaxPixels > limit {
		return fmt.Errorf("%w: params: max_pixels must be between 1 and %d, got %d",
			errBadRequest, limit, p.MaxPixels)
	}
	return nil
}

func isSet(raw json.RawMessage) bool {
	t := bytes.TrimSpace(raw)
	return len(t) > 0 && !bytes.Equal(t, []byte("null"))
}

// classify maps a detection error to an HTTP status and error code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, pipeline.ErrNoAcquisitionAvailable):
		return http.StatusNotFound, codeNoAcquisition
	case errors.Is(err, errBadRequest),
		errors.Is(err, pipeline.ErrInvalidParams),
		errors.Is(err, pipeline.ErrInvalidRegion),
		errors.Is(err, catalog.ErrInvalidQuery),
		errors.Is(err, raster.ErrUnsupportedRegion):
		return http.StatusBadRequest, codeInvalidRequest
	case errors.Is(err, raster.ErrMisaligned):
		return http.StatusUnprocessableEntity, codeMisaligned
	case errors.Is(err, detector.ErrVectorizationResourceExceeded):
		return http.StatusUnprocessableEntity, codeResourceExceeded
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, codeTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable, codeCancelled
	default:
		return http.StatusInternalServerError, codeProcessingError
	}
}

// outcome is the metrics label for a finished request.
func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	_, code := classify(err)
	return code
}

// requestContext bounds a request by the configured timeout.
func (s *Server) requestContext(parent context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, s.timeout)
}
