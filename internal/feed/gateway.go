package feed

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"warden/internal/identity"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

const (
	wsSubprotocol = "warden.feed.v1"

	wsDefaultSendQueueSize = 16
	wsDefaultWriteTimeout  = 5 * time.Second

	// Only localhost is allowed by default (secure-by-default for dev).
	wsDefaultAllowedOrigins = "http://localhost,http://127.0.0.1"
)

// Gateway is the WebSocket entrypoint for the change feed.
//
// Connections are authenticated through the identity provider like any other
// endpoint and each connection only ever observes its own user's events.
type Gateway struct {
	log      *slog.Logger
	hub      *Hub
	sessions identity.SessionSource

	originPatterns []string
	writeTimeout   time.Duration
	sendQueueSize  int
}

// NewGateway constructs a Gateway with secure defaults.
func NewGateway(log *slog.Logger, hub *Hub, sessions identity.SessionSource) *Gateway {
	if log == nil {
		log = slog.Default()
	}
	if hub == nil {
		hub = NewHub(log)
	}

	g := &Gateway{
		log:           log,
		hub:           hub,
		sessions:      sessions,
		writeTimeout:  wsDefaultWriteTimeout,
		sendQueueSize: wsDefaultSendQueueSize,
	}
	g.originPatterns = originPatternsFromEnv()
	return g
}

// Hub returns the hub backing this gateway.
func (g *Gateway) Hub() *Hub { return g.hub }

// ServeHTTP adapter so the gateway mounts as an http.Handler.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.HandleWS(w, r)
}

// HandleWS upgrades the request and streams the user's session events until
// the peer disconnects or the server shuts down.
func (g *Gateway) HandleWS(w http.ResponseWriter, r *http.Request) {
	userID, err := g.sessions.UserID(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:   []string{wsSubprotocol},
		OriginPatterns: g.originPatterns,
	})
	if err != nil {
		g.log.Error("feed.accept.fail", "err", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "bye") }()

	if sp := conn.Subprotocol(); sp != wsSubprotocol {
		g.log.Info("feed.reject.subprotocol", "got", sp, "want", wsSubprotocol)
		_ = conn.Close(websocket.StatusPolicyViolation, "subprotocol required")
		return
	}

	client := g.hub.Subscribe(userID, g.sendQueueSize)
	defer g.hub.Unsubscribe(client)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// The feed is write-only; the read loop only surfaces peer closure.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				return
			}
		}
	}()

	g.log.Info("feed.subscribe", "user_id", userID)

	for {
		select {
		case <-ctx.Done():
			return
		case <-client.Done():
			return
		case ev := <-client.Send:
			wctx, wcancel := context.WithTimeout(ctx, g.writeTimeout)
			err := wsjson.Write(wctx, conn, ev)
			wcancel()
			if err != nil {
				if !errors.Is(err, context.Canceled) {
					g.log.Info("feed.write.fail", "err", err, "user_id", userID)
				}
				return
			}
		}
	}
}

func originPatternsFromEnv() []string {
	raw := strings.TrimSpace(os.Getenv("WARDEN_FEED_ALLOWED_ORIGINS"))
	if raw == "" {
		raw = wsDefaultAllowedOrigins
	}

	var patterns []string
	for _, o := range strings.Split(raw, ",") {
		o = strings.TrimSpace(o)
		if o == "" {
			continue
		}
		// websocket.Accept matches host patterns, not full origins.
		o = strings.TrimPrefix(o, "http://")
		o = strings.TrimPrefix(o, "https://")
		patterns = append(patterns, o, o+":*")
	}
	return patterns
}
