package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/becomeliminal/nim-memory/memory"
)

// Websocket operations.
const (
	OpAdd    = "add"
	OpDelete = "delete"
	OpSearch = "search"
)

const (
	writeTimeout = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = pongWait * 9 / 10
)

// Request is one websocket message from a client. ID is echoed back so
// clients can pipeline requests.
type Request struct {
	ID       string `json:"id"`
	Op       string `json:"op"`
	Key      string `json:"key"`
	Content  string `json:"content"`
	MemoryID string `json:"memory_id,omitempty"`
	Query    string `json:"query,omitempty"`
	Limit    int    `json:"limit,omitempty"`
}

// Response answers a Request.
type Response struct {
	ID       string            `json:"id"`
	MemoryID string            `json:"memory_id,omitempty"`
	Results  map[string]string `json:"results"`
	Error    string            `json:"error,omitempty"`
	Status   int               `json:"status"`
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[WS] Upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	log.Printf("[WS] Client connected from %s", r.RemoteAddr)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conn.SetReadLimit(s.maxContentBytes + 4096)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	// gorilla connections allow one concurrent writer
	var writeMu sync.Mutex
	write := func(msgType int, v interface{}) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if v == nil {
			return conn.WriteMessage(msgType, nil)
		}
		return conn.WriteJSON(v)
	}

	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := write(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	for {
		var req Request
		if err := conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[WS] Read failed: %v", err)
			}
			return
		}

		resp := s.dispatch(ctx, req)
		if err := write(websocket.TextMessage, resp); err != nil {
			log.Printf("[WS] Write failed: %v", err)
			return
		}
	}
}

// dispatch runs one websocket request against the provider.
func (s *Server) dispatch(ctx context.Context, req Request) Response {
	resp := Response{ID: req.ID, Status: http.StatusOK}

	fail := func(status int, err error) Response {
		resp.Status = status
		resp.Error = err.Error()
		return resp
	}

	switch req.Op {
	case OpAdd:
		if int64(len(req.Content)) > s.maxContentBytes {
			return fail(http.StatusRequestEntityTooLarge, fmt.Errorf("content exceeds %d bytes", s.maxContentBytes))
		}
		id, err := s.provider.Add(ctx, req.Key, req.Content)
		if err != nil {
			return fail(StatusFor(err), err)
		}
		resp.MemoryID = id

	case OpDelete:
		if err := s.provider.Delete(ctx, req.Key, req.MemoryID); err != nil {
			return fail(StatusFor(err), err)
		}

	case OpSearch:
		limit := req.Limit
		if limit == 0 {
			limit = memory.DefaultSearchLimit
		}
		results, err := s.provider.Search(ctx, req.Key, req.Query, limit)
		if err != nil {
			return fail(StatusFor(err), err)
		}
		resp.Results = results

	default:
		return fail(http.StatusBadRequest, fmt.Errorf("unknown op %q", req.Op))
	}

	return resp
}
