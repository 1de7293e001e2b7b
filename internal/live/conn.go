package live

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Options configures the live handlers.
type Options struct {
	AllowedOrigin string
	IsDev         bool
	// SendQueue is the per-connection outbound buffer.
	SendQueue int
	// FrameRate and FrameBurst pace inbound frames per connection.
	// A non-positive FrameRate disables pacing.
	FrameRate    float64
	FrameBurst   int
	WriteTimeout time.Duration
	PingInterval time.Duration
	Logger       *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.SendQueue <= 0 {
		o.SendQueue = DefaultSendQueue
	}
	if o.FrameBurst <= 0 {
		o.FrameBurst = 1
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 10 * time.Second
	}
	if o.PingInterval <= 0 {
		o.PingInterval = 30 * time.Second
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

func (o Options) limiter() *rate.Limiter {
	if o.FrameRate <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	return rate.NewLimiter(rate.Limit(o.FrameRate), o.FrameBurst)
}

// checkOrigin mirrors the CORS policy for websocket upgrades.
func (o Options) checkOrigin(r *http.Request) bool {
	if o.IsDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || o.AllowedOrigin == "*" || origin == o.AllowedOrigin {
		return true
	}
	o.Logger.Warn("WebSocket origin rejected", "origin", origin, "allowed", o.AllowedOrigin)
	return false
}

func (o Options) accept(w http.ResponseWriter, r *http.Request) (*websocket.Conn, bool) {
	if !o.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return nil, false
	}
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		o.Logger.Error("Failed to accept WebSocket", "error", err)
		return nil, false
	}
	return ws, true
}

// frameHandler processes one inbound frame. Frames of a connection are
// handled one at a time in arrival order.
type frameHandler func(ctx context.Context, data []byte)

// serve joins client to hub and pumps frames until either side goes away.
func serve(ctx context.Context, ws *websocket.Conn, hub *Broadcaster, client *Client, opts Options, handle frameHandler) error {
	hub.Join(client)
	defer hub.Leave(client)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		return readLoop(gctx, ws, opts.limiter(), handle)
	})
	g.Go(func() error {
		defer cancel()
		return writeLoop(gctx, ws, client, opts)
	})
	return g.Wait()
}

func readLoop(ctx context.Context, ws *websocket.Conn, limiter *rate.Limiter, handle frameHandler) error {
	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("websocket read: %w", err)
		}
		if err := limiter.Wait(ctx); err != nil {
			return nil
		}
		handle(ctx, data)
	}
}

func writeLoop(ctx context.Context, ws *websocket.Conn, client *Client, opts Options) error {
	ticker := time.NewTicker(opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case frame, ok := <-client.Outbound():
			if !ok {
				return nil
			}
			if err := writeFrame(ctx, ws, frame, opts.WriteTimeout); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("websocket write: %w", err)
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, opts.WriteTimeout)
			err := ws.Ping(pingCtx)
			cancel()
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("websocket ping: %w", err)
			}
		}
	}
}

func writeFrame(ctx context.Context, ws *websocket.Conn, frame []byte, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return ws.Write(ctx, websocket.MessageText, frame)
}
