package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/MeKo-Tech/shipscan/internal/pipeline"
	"github.com/gorilla/websocket"
)

const (
	wsReadTimeout  = 60 * time.Second
	wsPingInterval = 30 * time.Second
	wsWriteTimeout = 10 * time.Second
)

// WebSocket upgrader. Origins are checked against the CORS origin.
func (s *Server) upgrader() *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return s.corsOrigin == "*" || origin == "" || origin == s.corsOrigin
		},
	}
}

// WebSocket message types sent by the server.
const (
	wsAccepted = "accepted"
	wsStage    = "stage"
	wsResult   = "result"
	wsError    = "error"
)

// WebSocketMessage is every message the server sends over /v1/ws.
type WebSocketMessage struct {
	Type      string           `json:"type"`
	RequestID string           `json:"request_id,omitempty"`
	Stage     string           `json:"stage,omitempty"`
	Index     int              `json:"index,omitempty"`
	Total     int              `json:"total,omitempty"`
	ElapsedMs float64          `json:"elapsed_ms,omitempty"`
	Progress  float64          `json:"progress,omitempty"`
	Result    *pipeline.Result `json:"result,omitempty"`
	Error     string           `json:"error,omitempty"`
	Message   string           `json:"message,omitempty"`
}

// WebSocketConnWriter is an interface for writing WebSocket messages.
type WebSocketConnWriter interface {
	WriteMessage(messageType int, data []byte) error
}

var wsRequestSeq atomic.Uint64

// detectWebSocketHandler serves /v1/ws. Each text message from the client is
// a DetectRequest; the server answers with an accepted message, one stage
// message per finished pipeline stage, and a final result or error.
func (s *Server) detectWebSocketHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader().Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("failed to upgrade connection to WebSocket", "error", err)
		return
	}
	defer func() { _ = conn.Close() }()

	websocketConnections.Inc()
	defer websocketConnections.Dec()

	s.logger.Info("WebSocket connection established", "remote_addr", r.RemoteAddr)
	s.handleWebSocketConnection(r.Context(), conn)
}

// handleWebSocketConnection processes messages until the client goes away.
func (s *Server) handleWebSocketConnection(ctx context.Context, conn *websocket.Conn) {
	_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	})

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(wsPingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout)); err != nil {
					return
				}
			}
		}
	}()

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("WebSocket error", "error", err)
			}
			return
		}
		websocketMessagesTotal.WithLabelValues("received").Inc()

		if messageType == websocket.TextMessage {
			s.handleWebSocketMessage(ctx, conn, data)
			_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		}
	}
}

// handleWebSocketMessage runs one detection and streams its progress.
func (s *Server) handleWebSocketMessage(ctx context.Context, conn WebSocketConnWriter, data []byte) {
	var dr DetectRequest
	if err := json.Unmarshal(data, &dr); err != nil {
		s.sendWebSocketMessage(conn, WebSocketMessage{
			Type: wsError, Error: codeInvalidRequest, Message: "failed to parse request: " + err.Error(),
		})
		return
	}

	requestID := strconv.FormatUint(wsRequestSeq.Add(1), 10)
	req, err := s.buildRequest(dr)
	if err != nil {
		s.sendWebSocketError(conn, requestID, err)
		return
	}
	s.sendWebSocketMessage(conn, WebSocketMessage{Type: wsAccepted, RequestID: requestID})

	progress := pipeline.StageFunc(func(stage string, index, total int, elapsed time.Duration) {
		s.sendWebSocketMessage(conn, WebSocketMessage{
			Type:      wsStage,
			RequestID: requestID,
			Stage:     stage,
			Index:     index,
			Total:     total,
			ElapsedMs: float64(elapsed) / float64(time.Millisecond),
			Progress:  float64(index) / float64(total),
		})
	})

	ctx, cancel := s.requestContext(ctx)
	defer cancel()
	start := time.Now()
	res, err := s.pipeline.WithProgress(progress).Detect(ctx, s.catalog, req)
	detectDuration.WithLabelValues("websocket").Observe(time.Since(start).Seconds())
	detectRequestsTotal.WithLabelValues("websocket", outcome(err)).Inc()
	if err != nil {
		s.sendWebSocketError(conn, requestID, err)
		return
	}
	candidatesReturned.WithLabelValues("websocket").Observe(float64(len(res.Candidates)))

	s.sendWebSocketMessage(conn, WebSocketMessage{Type: wsResult, RequestID: requestID, Progress: 1, Result: res})
}

// sendWebSocketMessage sends a message over WebSocket.
func (s *Server) sendWebSocketMessage(conn WebSocketConnWriter, msg WebSocketMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		s.logger.Error("failed to marshal WebSocket message", "error", err)
		return
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		s.logger.Warn("failed to send WebSocket message", "error", err)
		return
	}
	websocketMessagesTotal.WithLabelValues("sent").Inc()
}

// sendWebSocketError sends a classified error message over WebSocket.
func (s *Server) sendWebSocketError(conn WebSocketConnWriter, requestID string, err error) {
	_, code := classify(err)
	if code == codeProcessingError {
		s.logger.Error("detection failed", "request_id", requestID, "error", err)
	}
	s.sendWebSocketMessage(conn, WebSocketMessage{
		Type: wsError, RequestID: requestID, Error: code, Message: err.Error(),
	})
}
