package echoapi

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/podium/core"
	"github.com/trezcool/podium/core/achievement"
)

const (
	msgAchievementUnlocked = "achievement_unlocked"

	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10

	defaultPollInterval = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// the handshake is authenticated by token, not by cookie
	CheckOrigin: func(r *http.Request) bool { return true },
}

type (
	wsMessage struct {
		Type    string      `json:"type"`
		Payload interface{} `json:"payload"`
	}

	// wsChannel presents achievements over a websocket connection.
	wsChannel struct {
		mu   sync.Mutex
		conn *websocket.Conn
	}
)

var _ achievement.DeliveryChannel = (*wsChannel)(nil)

func (ch *wsChannel) Present(ctx context.Context, p achievement.Presentation) error {
	return ch.write(wsMessage{Type: msgAchievementUnlocked, Payload: p})
}

func (ch *wsChannel) write(msg wsMessage) error {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	_ = ch.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return ch.conn.WriteJSON(msg)
}

func (ch *wsChannel) ping() error {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait))
}

// keepAlive pings the client every period until ctx is done, whether or not a batch is being delivered.
// onFailure is called when a ping cannot be sent.
func (ch *wsChannel) keepAlive(ctx context.Context, period time.Duration, onFailure func()) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := ch.ping(); err != nil {
				onFailure()
				return
			}
		}
	}
}

// stream pushes the user's new achievements as they are earned, staggered, and marks them displayed.
// The stream ends when the client goes away; what was not presented yet is delivered on the next connection or poll.
func (api *achievementApi) stream(ctx echo.Context) error {
	userID, err := getContextUserID(ctx)
	if err != nil {
		return err
	}
	conn, err := upgrader.Upgrade(ctx.Response(), ctx.Request(), nil)
	if err != nil {
		return nil // the upgrader replied already
	}
	defer func() { _ = conn.Close() }()

	sctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// reads are only used to detect disconnections
	go func() {
		defer cancel()
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
		conn.SetPongHandler(func(string) error { return conn.SetReadDeadline(time.Now().Add(wsPongWait)) })
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	pollInterval := api.conf.Achievements.PollInterval
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	poll := time.NewTicker(pollInterval)
	defer poll.Stop()

	ch := &wsChannel{conn: conn}
	go ch.keepAlive(sctx, wsPingPeriod, cancel)

	for {
		if err = api.deliverPending(sctx, userID, ch); err != nil {
			var markErr *achievement.MarkError
			if !errors.As(err, &markErr) {
				return nil // disconnected or canceled
			}
			// unmarked achievements are shown again on the next round
			api.logger.Warn("delivering achievements", err, core.UserID(userID))
		}

		select {
		case <-sctx.Done():
			return nil
		case <-poll.C:
		}
	}
}

func (api *achievementApi) deliverPending(ctx context.Context, userID string, ch achievement.DeliveryChannel) error {
	if _, err := api.svc.Evaluate(ctx, userID); err != nil {
		// whatever is already pending still gets delivered
		api.logger.Warn("evaluating achievements", err, core.UserID(userID))
	}
	pending, err := api.svc.NewAchievements(ctx, userID)
	if err != nil {
		api.logger.Error("querying new achievements", err, core.UserID(userID))
		return nil // next round
	}
	if len(pending) == 0 {
		return nil
	}
	return api.scheduler.Deliver(ctx, userID, pending, ch)
}
