// Package server hosts the solver behind a websocket. Clients post pointer,
// config, reset and resize messages as JSON and receive display frames as
// PNG-encoded binary messages.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pthm-cable/plume/config"
	"github.com/pthm-cable/plume/display"
	"github.com/pthm-cable/plume/sim"
	"github.com/pthm-cable/plume/telemetry"
)

const (
	inboxSize   = 64
	sendBuffer  = 2
	writeWait   = 5 * time.Second
	statusType  = "status"
	framePeriod = time.Second
)

// request is a client message queued for the stepping goroutine.
type request struct {
	c   *client
	msg Message
}

// client is one websocket connection. Frames go through send so a slow
// client drops frames instead of stalling the solver.
type client struct {
	conn *websocket.Conn
	send chan []byte
	text chan []byte
	done chan struct{}
	once sync.Once
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// Server owns a simulator and steps it on a single goroutine.
type Server struct {
	cfg    config.Config
	sim    *sim.Simulator
	logger *slog.Logger
	params display.Params

	upgrader  websocket.Upgrader
	readLimit int64
	period    time.Duration

	perf      *telemetry.PerfCollector
	collector *telemetry.Collector

	inbox chan request

	mu      sync.Mutex
	clients map[*client]struct{}

	img *image.RGBA
	buf bytes.Buffer
	enc png.Encoder
}

// New creates a server for s. cfg is copied; the server keeps its own
// working snapshot.
func New(cfg *config.Config, s *sim.Simulator, logger *slog.Logger) (*Server, error) {
	params, err := display.ParamsFromConfig(cfg.Visualization)
	if err != nil {
		return nil, err
	}
	rate := max(cfg.Server.FrameRate, 1)
	srv := &Server{
		cfg:    *cfg,
		sim:    s,
		logger: logger,
		params: params,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		readLimit: cfg.Server.ReadLimit,
		period:    framePeriod / time.Duration(rate),
		perf:      telemetry.NewPerfCollector(cfg.Telemetry.PerfCollectorWindow),
		collector: telemetry.NewCollector(cfg.Telemetry.StatsWindow, cfg.Derived.DT32),
		inbox:     make(chan request, inboxSize),
		clients:   make(map[*client]struct{}),
		enc:       png.Encoder{CompressionLevel: png.BestSpeed},
	}
	s.SetPerfCollector(srv.perf)
	s.SetCollector(srv.collector)
	return srv, nil
}

// Handler returns the HTTP handler serving /ws.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	return mux
}

// Clients returns the number of connected clients.
func (s *Server) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	if s.readLimit > 0 {
		conn.SetReadLimit(s.readLimit)
	}

	c := &client{
		conn: conn,
		send: make(chan []byte, sendBuffer),
		text: make(chan []byte, sendBuffer),
		done: make(chan struct{}),
	}
	s.mu.Lock()
	s.clients[c] = struct{}{}
	n := len(s.clients)
	s.mu.Unlock()
	s.logger.Info("client connected", "remote", r.RemoteAddr, "clients", n)

	go s.writeLoop(c)
	s.inbox <- request{c: c, msg: Message{Type: statusType}}
	s.readLoop(c)

	s.mu.Lock()
	delete(s.clients, c)
	n = len(s.clients)
	s.mu.Unlock()
	c.close()
	s.logger.Info("client disconnected", "remote", r.RemoteAddr, "clients", n)
}

// readLoop decodes client messages until the connection fails. Pointer
// updates go straight to the simulator; everything else is queued.
func (s *Server) readLoop(c *client) {
	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("websocket read ended", "error", err)
			}
			return
		}
		if msg.Type == TypePointer {
			s.sim.PostPointer(sim.Pointer{X: msg.X, Y: msg.Y, Down: msg.Down})
			continue
		}
		select {
		case s.inbox <- request{c: c, msg: msg}:
		case <-c.done:
			return
		}
	}
}

func (s *Server) writeLoop(c *client) {
	for {
		var (
			mt   int
			data []byte
		)
		select {
		case <-c.done:
			return
		case data = <-c.text:
			mt = websocket.TextMessage
		case data = <-c.send:
			mt = websocket.BinaryMessage
		}
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(mt, data); err != nil {
			s.logger.Debug("websocket write failed", "error", err)
			c.close()
			return
		}
	}
}

// Run steps the simulator at the configured frame rate until ctx is done.
// It is the only goroutine that touches simulator state besides pointer and
// request posting.
func (s *Server) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.Tick()
		}
	}
}

// Tick drains queued messages, advances one frame and broadcasts it.
func (s *Server) Tick() {
	s.drain()

	s.perf.StartTick()
	if err := s.sim.Step(s.cfg.Derived.DT32); err != nil {
		s.logger.Error("step failed", "error", err)
	}
	s.perf.StartPhase(telemetry.PhaseDisplay)
	frame, err := s.encodeFrame()
	s.perf.EndTick()
	s.perf.RecordFrame()

	if err != nil {
		s.logger.Error("encoding frame failed", "error", err)
	} else {
		s.broadcast(frame)
	}

	if tick := s.sim.Frame(); s.collector.ShouldFlush(tick) {
		s.collector.Flush(tick, s.sim.Fields()).LogStats()
		s.perf.Stats().LogStats()
	}
}

func (s *Server) drain() {
	for {
		select {
		case req := <-s.inbox:
			s.process(req)
		default:
			return
		}
	}
}

func (s *Server) process(req request) {
	if req.msg.Type == statusType {
		s.reply(req.c, nil)
		return
	}
	if err := s.handle(req.msg); err != nil {
		s.logger.Warn("request rejected", "type", req.msg.Type, "error", err)
		s.reply(req.c, err)
	}
}

// reply sends the current status to one client.
func (s *Server) reply(c *client, err error) {
	if c == nil {
		return
	}
	w, h := s.sim.Size()
	st := Status{
		Type:  statusType,
		GridW: w,
		GridH: h,
		Mode:  s.params.Mode.String(),
		Frame: s.sim.Frame(),
	}
	if err != nil {
		st.Error = err.Error()
	}
	data, mErr := json.Marshal(st)
	if mErr != nil {
		return
	}
	select {
	case c.text <- data:
	default:
	}
}

// encodeFrame renders the selected field and returns it as PNG bytes.
func (s *Server) encodeFrame() ([]byte, error) {
	w, h := s.sim.Size()
	if w == 0 || h == 0 {
		return nil, sim.ErrNotReady
	}
	if s.img == nil || s.img.Rect.Dx() != w || s.img.Rect.Dy() != h {
		s.img = image.NewRGBA(image.Rect(0, 0, w, h))
	}
	if err := s.sim.RenderDisplay(s.params, s.img); err != nil {
		return nil, err
	}
	s.buf.Reset()
	if err := s.enc.Encode(&s.buf, s.img); err != nil {
		return nil, fmt.Errorf("png: %w", err)
	}
	return bytes.Clone(s.buf.Bytes()), nil
}

func (s *Server) broadcast(frame []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		select {
		case c.send <- frame:
		default:
		}
	}
}

// ListenAndServe serves addr and runs the stepping loop until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	hs := &http.Server{Addr: addr, Handler: s.Handler()}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "addr", addr, "frame_rate", s.cfg.Server.FrameRate)
		errc <- hs.ListenAndServe()
	}()

	runErr := make(chan error, 1)
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() { runErr <- s.Run(runCtx) }()

	var err error
	select {
	case <-ctx.Done():
	case err = <-errc:
	}
	cancel()
	<-runErr

	shutdownCtx, done := context.WithTimeout(context.Background(), writeWait)
	defer done()
	if sErr := hs.Shutdown(shutdownCtx); sErr != nil && err == nil {
		err = sErr
	}
	if errors.Is(err, http.ErrServerClosed) {
		err = nil
	}
	return err
}
