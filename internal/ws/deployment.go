package ws

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/saasplatform/backend/internal/domain"
	"github.com/saasplatform/backend/internal/progress"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 1024
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // CORS is handled at the HTTP level
	},
}

// TokenVerifier validates the token passed on the query string.
type TokenVerifier interface {
	VerifyToken(token string) (*domain.JWTClaims, error)
}

// clientMessage is sent by clients to change their topic membership.
type clientMessage struct {
	Action         string `json:"action"`
	SubscriptionID int    `json:"subscriptionId"`
}

// DeploymentHandler streams deployment progress events over WebSocket.
type DeploymentHandler struct {
	hub        *progress.Hub
	auth       TokenVerifier
	logger     *zap.Logger
	pingPeriod time.Duration
}

// NewDeploymentHandler creates a new DeploymentHandler.
func NewDeploymentHandler(hub *progress.Hub, auth TokenVerifier, logger *zap.Logger) *DeploymentHandler {
	return &DeploymentHandler{hub: hub, auth: auth, logger: logger, pingPeriod: pingPeriod}
}

// Handle upgrades HTTP to WebSocket and relays events for the joined topics.
// URL: /hubs/deployment?token=JWT_TOKEN[&subscriptionId=N]
func (h *DeploymentHandler) Handle(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "token required", http.StatusUnauthorized)
		return
	}
	claims, err := h.auth.VerifyToken(token)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	initial := 0
	if v := r.URL.Query().Get("subscriptionId"); v != "" {
		initial, err = strconv.Atoi(v)
		if err != nil || initial <= 0 {
			http.Error(w, "invalid subscriptionId", http.StatusBadRequest)
			return
		}
	}

	// Join before upgrading so no event published after the handshake is missed.
	sub := h.hub.NewSubscriber()
	if initial > 0 {
		h.hub.Join(sub, initial)
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.hub.Unsubscribe(sub)
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	log := h.logger.With(zap.String("subject", claims.Sub), zap.String("remote", r.RemoteAddr))
	log.Info("deployment hub client connected")

	ctx, cancel := context.WithCancel(r.Context())
	done := make(chan struct{})
	go func() {
		defer close(done)
		h.writeLoop(ctx, conn, sub, log)
	}()

	h.readLoop(conn, sub, log)

	cancel()
	<-done
	undelivered := sub.Pending()
	h.hub.Unsubscribe(sub)
	log.Info("deployment hub client disconnected", zap.Int("undelivered", undelivered))
}

// readLoop applies join and leave requests until the connection fails.
func (h *DeploymentHandler) readLoop(conn *websocket.Conn, sub *progress.Subscriber, log *zap.Logger) {
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg clientMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug("websocket read error", zap.Error(err))
			}
			return
		}
		if msg.SubscriptionID <= 0 {
			log.Debug("ignoring message without subscription id", zap.String("action", msg.Action))
			continue
		}
		switch msg.Action {
		case "join":
			h.hub.Join(sub, msg.SubscriptionID)
			log.Debug("joined deployment topic",
				zap.Int("subscriptionId", msg.SubscriptionID),
				zap.Int("members", h.hub.Members(msg.SubscriptionID)),
			)
		case "leave":
			h.hub.Leave(sub, msg.SubscriptionID)
			log.Debug("left deployment topic",
				zap.Int("subscriptionId", msg.SubscriptionID),
				zap.Int("members", h.hub.Members(msg.SubscriptionID)),
			)
		default:
			log.Debug("ignoring unknown action", zap.String("action", msg.Action))
		}
	}
}

// writeLoop is the only writer on conn. It forwards events and pings the client.
func (h *DeploymentHandler) writeLoop(ctx context.Context, conn *websocket.Conn, sub *progress.Subscriber, log *zap.Logger) {
	// Unblock the reader when writing fails.
	defer conn.Close()

	nextPing := time.Now().Add(h.pingPeriod)
	for {
		waitCtx, cancel := context.WithDeadline(ctx, nextPing)
		ev, err := sub.Next(waitCtx)
		cancel()

		switch {
		case err == nil:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(ev); err != nil {
				log.Debug("websocket write failed", zap.Error(err))
				return
			}
		case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				log.Debug("websocket ping failed", zap.Error(err))
				return
			}
			nextPing = time.Now().Add(h.pingPeriod)
		default:
			if errors.Is(err, progress.ErrSubscriberClosed) || ctx.Err() != nil {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			}
			return
		}
	}
}
