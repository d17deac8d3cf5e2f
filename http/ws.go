package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"laborcond/inference"
)

const (
	formBenefit = "benefit"
	formWage    = "wage"

	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// FormMessage is the full state of a form. The client sends one every time
// a field changes and receives the recomputed result.
type FormMessage struct {
	Form string `json:"form"`
	ProfileRequest
	Benefit    string `json:"prestacion,omitempty"`
	Disability string `json:"tipo_discapacidad,omitempty"`
}

type FormResult struct {
	Form    string                       `json:"form"`
	Seq     int                          `json:"seq"`
	Benefit *inference.BenefitPrediction `json:"benefit,omitempty"`
	Wage    *inference.WageComparison    `json:"wage,omitempty"`
	Status  int                          `json:"status"`
	Error   string                       `json:"error,omitempty"`
	Fields  map[string]string            `json:"fields,omitempty"`
}

// FormSocket reruns the selected model whenever the form state changes.
type FormSocket struct {
	handlers *Handlers
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewFormSocket serves the live form over a websocket.
func NewFormSocket(h *Handlers, allowedOrigins []string) *FormSocket {
	return &FormSocket{
		handlers: h,
		logger:   h.logger,
		upgrader: websocket.Upgrader{
			CheckOrigin:     originChecker(allowedOrigins),
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

func originChecker(origins []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, allowed := range origins {
			if allowed == origin {
				return true
			}
		}
		return origin == "http://"+r.Host || origin == "https://"+r.Host
	}
}

func (s *FormSocket) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/ws/form", s.HandleWebSocket)
}

func (s *FormSocket) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	clientID := uuid.NewString()
	logger := s.logger.With(zap.String("client_id", clientID))
	logger.Debug("form client connected")

	// the request context is cancelled once the handler returns
	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	send := make(chan FormResult, 16)

	go s.writePump(conn, send, logger)
	s.readPump(ctx, conn, send, logger)

	cancel()
	close(send)
	logger.Debug("form client disconnected")
}

func (s *FormSocket) readPump(ctx context.Context, conn *websocket.Conn, send chan<- FormResult, logger *zap.Logger) {
	conn.SetReadLimit(64 * 1024)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	seq := 0
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("websocket read failed", zap.Error(err))
			}
			return
		}
		seq++

		var msg FormMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			send <- FormResult{Seq: seq, Status: http.StatusBadRequest, Error: "invalid form message"}
			continue
		}
		send <- s.evaluate(ctx, seq, msg)
	}
}

func (s *FormSocket) evaluate(ctx context.Context, seq int, msg FormMessage) FormResult {
	result := FormResult{Form: msg.Form, Seq: seq, Status: http.StatusOK}

	var err error
	switch msg.Form {
	case formBenefit:
		var prediction inference.BenefitPrediction
		prediction, err = s.handlers.classify(ctx, msg.Benefit, msg.ProfileRequest)
		if err == nil {
			result.Benefit = &prediction
		}
	case formWage:
		var comparison inference.WageComparison
		comparison, err = s.handlers.compare(ctx, msg.Disability, msg.ProfileRequest)
		if err == nil {
			result.Wage = &comparison
		}
	default:
		err = &ValidationError{Fields: map[string]string{"form": "debe ser benefit o wage"}}
	}

	if err != nil {
		result.Status = statusFor(err)
		result.Error = userMessage(err)
		result.Fields = fieldErrors(err)
	}
	return result
}

func (s *FormSocket) writePump(conn *websocket.Conn, send <-chan FormResult, logger *zap.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case result, ok := <-send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteJSON(result); err != nil {
				logger.Warn("websocket write failed", zap.Error(err))
				drain(conn, send)
				return
			}

		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				drain(conn, send)
				return
			}
		}
	}
}

// drain closes the connection so the reader unblocks, then discards results
// until the reader closes send.
func drain(conn *websocket.Conn, send <-chan FormResult) {
	conn.Close()
	for range send {
	}
}
