package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/MeKo-Tech/shipscan/internal/catalog"
	"github.com/MeKo-Tech/shipscan/internal/pipeline"
	"github.com/MeKo-Tech/shipscan/internal/version"
)

// healthHandler returns server health status.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := HealthResponse{
		Status:  "healthy",
		Version: version.Version,
		Time:    time.Now().UTC().Format(time.RFC3339),
	}
	if fc, ok := s.catalog.(interface{ Scenes() []*catalog.Acquisition }); ok {
		response.Scenes = len(fc.Scenes())
	}
	s.writeJSON(w, http.StatusOK, response)
}

// scenesHandler lists the acquisitions matching date, window_days and pass
// query parameters, closest first. Without a date every scene is listed.
func (s *Server) scenesHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	qs := r.URL.Query()
	if qs.Get("date") == "" {
		fc, ok := s.catalog.(interface{ Scenes() []*catalog.Acquisition })
		if !ok {
			s.writeErrorResponse(w, http.StatusBadRequest, codeInvalidRequest, "date is required for this catalog")
			return
		}
		scenes := fc.Scenes()
		s.writeJSON(w, http.StatusOK, ScenesResponse{Scenes: scenes, Count: len(scenes)})
		return
	}

	dr := DetectRequest{Date: qs.Get("date"), Pass: qs.Get("pass")}
	if v := qs.Get("window_days"); v != "" {
		var days int
		if _, err := fmt.Sscanf(v, "%d", &days); err != nil {
			s.writeErrorResponse(w, http.StatusBadRequest, codeInvalidRequest, "window_days must be an integer")
			return
		}
		dr.WindowDays = &days
	}
	req, err := s.buildRequest(dr)
	if err == nil {
		err = req.Query.Validate()
	}
	if err != nil {
		status, code := classify(err)
		s.writeErrorResponse(w, status, code, err.Error())
		return
	}

	scenes, err := s.catalog.Search(r.Context(), req.Query)
	if err != nil {
		status, code := classify(err)
		s.writeErrorResponse(w, status, code, err.Error())
		return
	}
	if scenes == nil {
		scenes = []*catalog.Acquisition{}
	}
	s.writeJSON(w, http.StatusOK, ScenesResponse{Scenes: scenes, Count: len(scenes)})
}

// detectHandler runs one detection. The response format follows the
// request's format field, or the format query parameter.
func (s *Server) detectHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var dr DetectRequest
	if !s.decodeBody(w, r, &dr) {
		return
	}
	if dr.Format == "" {
		dr.Format = r.URL.Query().Get("format")
	}
	format, err := pipeline.ParseFormat(dr.Format)
	if err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, codeInvalidRequest, err.Error())
		return
	}

	start := time.Now()
	res, err := s.detect(r, dr)
	detectDuration.WithLabelValues("http").Observe(time.Since(start).Seconds())
	detectRequestsTotal.WithLabelValues("http", outcome(err)).Inc()
	if err != nil {
		status, code := classify(err)
		if status >= http.StatusInternalServerError {
			s.logger.Error("detection failed", "error", err)
		}
		s.writeErrorResponse(w, status, code, err.Error())
		return
	}
	candidatesReturned.WithLabelValues("http").Observe(float64(len(res.Candidates)))

	if format == pipeline.FormatJSON {
		s.writeJSON(w, http.StatusOK, DetectResponse{Success: true, Result: res})
		return
	}
	w.Header().Set("Content-Type", contentType(format))
	if err := pipeline.Write(w, res, format, s.export); err != nil {
		s.logger.Error("failed to write detection response", "error", err)
	}
}

func (s *Server) detect(r *http.Request, dr DetectRequest) (*pipeline.Result, error) {
	req, err := s.buildRequest(dr)
	if err != nil {
		return nil, err
	}
	ctx, cancel := s.requestContext(r.Context())
	defer cancel()
	return s.pipeline.Detect(ctx, s.catalog, req)
}

// batchDetectHandler runs up to maxBatchSize detections concurrently and
// reports each outcome in request order.
func (s *Server) batchDetectHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var br BatchDetectRequest
	if !s.decodeBody(w, r, &br) {
		return
	}
	if len(br.Requests) == 0 {
		s.writeErrorResponse(w, http.StatusBadRequest, codeInvalidRequest, "no requests provided in batch")
		return
	}
	if len(br.Requests) > maxBatchSize {
		s.writeErrorResponse(w, http.StatusBadRequest, codeInvalidRequest,
			fmt.Sprintf("batch size too large (maximum %d items)", maxBatchSize))
		return
	}

	results := make([]BatchDetectResult, len(br.Requests))
	reqs := make([]pipeline.Request, 0, len(br.Requests))
	index := make([]int, 0, len(br.Requests))
	for i, dr := range br.Requests {
		results[i].Index = i
		req, err := s.buildRequest(dr)
		if err != nil {
			_, code := classify(err)
			results[i].Error, results[i].Message = code, err.Error()
			continue
		}
		reqs = append(reqs, req)
		index = append(index, i)
	}

	start := time.Now()
	if len(reqs) > 0 {
		ctx, cancel := s.requestContext(r.Context())
		defer cancel()
		items, err := s.pipeline.DetectMany(ctx, s.catalog, reqs, s.parallel)
		if err != nil {
			status, code := classify(err)
			s.writeErrorResponse(w, status, code, err.Error())
			return
		}
		for j, it := range items {
			res := &results[index[j]]
			if it.Err != nil {
				_, code := classify(it.Err)
				res.Error, res.Message = code, it.Err.Error()
				continue
			}
			res.Success, res.Result = true, it.Result
		}
	}
	total := time.Since(start)
	detectDuration.WithLabelValues("batch").Observe(total.Seconds())

	summary := BatchSummary{TotalItems: len(results), TotalDuration: total.Seconds()}
	for _, res := range results {
		switch {
		case res.Success:
			summary.Successful++
			summary.Candidates += len(res.Result.Candidates)
			candidatesReturned.WithLabelValues("batch").Observe(float64(len(res.Result.Candidates)))
			detectRequestsTotal.WithLabelValues("batch", "ok").Inc()
		case res.Error == codeNoAcquisition:
			summary.NoAcquisition++
			detectRequestsTotal.WithLabelValues("batch", res.Error).Inc()
		default:
			summary.Failed++
			detectRequestsTotal.WithLabelValues("batch", res.Error).Inc()
		}
	}

	s.writeJSON(w, http.StatusOK, BatchDetectResponse{
		Success: summary.Failed == 0,
		Results: results,
		Summary: summary,
	})
}

// decodeBody decodes a size-limited JSON body into v, answering the client
// itself on failure.
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.ContentLength > 0 {
		requestSizeBytes.Observe(float64(r.ContentLength))
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadMB*1024*1024)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeErrorResponse(w, http.StatusRequestEntityTooLarge, codeInvalidRequest, "request body too large")
			return false
		}
		s.writeErrorResponse(w, http.StatusBadRequest, codeInvalidRequest,
			fmt.Sprintf("failed to parse JSON request: %v", err))
		return false
	}
	return true
}

func contentType(f pipeline.Format) string {
	switch f {
	case pipeline.FormatCSV:
		return "text/csv"
	case pipeline.FormatGeoJSON:
		return "application/geo+json"
	case pipeline.FormatText:
		return "text/plain; charset=utf-8"
	default:
		return "application/json"
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

// writeErrorResponse writes a JSON error response.
func (s *Server) writeErrorResponse(w http.ResponseWriter, status int, code, message string) {
	s.writeJSON(w, status, DetectResponse{Success: false, Error: code, Message: message})
}
