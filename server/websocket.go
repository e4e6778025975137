package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"

	"github.com/xhad/docsort/internal/models"
	"github.com/xhad/docsort/pkg/pipeline"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Message is the envelope for every websocket frame the server sends.
type Message struct {
	Type    string      `json:"type"`
	Content string      `json:"content"`
	Data    interface{} `json:"data,omitempty"`
}

// inbound is a client frame; Data is decoded according to Type.
type inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// UploadMessage is the data of an "upload" frame.
type UploadMessage struct {
	Consent bool         `json:"consent"`
	Files   []UploadFile `json:"files"`
}

type UploadFile struct {
	Filename string `json:"filename"`
	Path     string `json:"path,omitempty"`

	// Content is base64 in JSON.
	Content []byte `json:"content"`
}

type progress struct {
	Stage pipeline.Stage `json:"stage"`
	Done  int            `json:"done"`
	Total int            `json:"total"`
}

// conn serializes writes; progress callbacks arrive from worker goroutines.
type conn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

func (c *conn) send(msgType, content string, data interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ws.WriteJSON(Message{Type: msgType, Content: content, Data: data}); err != nil {
		log.Printf("[server] error sending message: %v", err)
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[server] websocket upgrade failed: %v", err)
		return
	}
	defer ws.Close()
	ws.SetReadLimit(int64(s.config.MaxUploadMB) << 21)

	// A closed socket cancels the batch in flight so no further remote calls
	// are made on its behalf.
	ctx, cancel := context.WithCancel(r.Context())
	var (
		wg   sync.WaitGroup
		busy atomic.Bool
	)
	defer wg.Wait()
	defer cancel()

	c := &conn{ws: ws}
	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[server] websocket read error: %v", err)
			}
			if busy.Load() {
				log.Printf("[server] client disconnected, cancelling batch")
			}
			return
		}

		var msg inbound
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.send("error", "invalid message format", nil)
			continue
		}
		if msg.Type != "upload" {
			c.send("error", fmt.Sprintf("unknown message type: %s", msg.Type), nil)
			continue
		}
		if !busy.CompareAndSwap(false, true) {
			c.send("error", "a batch is already running on this connection", nil)
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer busy.Store(false)
			s.runUpload(ctx, c, msg.Data)
		}()
	}
}

func (s *Server) runUpload(ctx context.Context, c *conn, data json.RawMessage) {
	var req UploadMessage
	if err := json.Unmarshal(data, &req); err != nil {
		c.send("error", fmt.Sprintf("invalid upload: %v", err), nil)
		return
	}
	if len(req.Files) == 0 {
		c.send("error", errNoFiles.Error(), nil)
		return
	}

	files := make([]models.Upload, len(req.Files))
	for i, f := range req.Files {
		files[i] = models.Upload{Filename: f.Filename, RelativePath: f.Path, Content: f.Content}
	}

	job := pipeline.Job{
		Files:   files,
		Consent: req.Consent,
		OnStage: func(stage pipeline.Stage) {
			c.send("status", string(stage), nil)
		},
		OnProgress: func(stage pipeline.Stage, done, total int) {
			c.send("progress", string(stage), progress{Stage: stage, Done: done, Total: total})
		},
	}

	err := s.organizer.Run(ctx, job, func(ctx context.Context, out *pipeline.Output) error {
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.ws.WriteJSON(Message{Type: "result", Content: out.Summary.Description, Data: responseFor(out)})
	})
	if err == nil {
		return
	}
	if ctx.Err() != nil {
		log.Printf("[server] batch abandoned: %v", err)
		return
	}
	c.send("error", err.Error(), map[string]int{"status": statusFor(err)})
}
