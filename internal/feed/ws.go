package feed

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// pongWait 等待服务端消息的最长时间
	pongWait = 60 * time.Second

	// pingPeriod 必须小于 pongWait
	pingPeriod = (pongWait * 9) / 10

	writeWait = 10 * time.Second
)

// WSFeed 通过 websocket 接收行情，断线后自动重连
type WSFeed struct {
	logger    *zap.Logger
	url       string
	header    http.Header
	reconnect time.Duration
}

func NewWSFeed(logger *zap.Logger, url string, header http.Header, reconnect time.Duration) *WSFeed {
	if reconnect <= 0 {
		reconnect = 3 * time.Second
	}
	return &WSFeed{
		logger:    logger,
		url:       url,
		header:    header,
		reconnect: reconnect,
	}
}

var _ Source = (*WSFeed)(nil)

func (f *WSFeed) Run(ctx context.Context, handle Handler) error {
	for {
		err := f.runConnection(ctx, handle)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		f.logger.Warn("tick feed disconnected, reconnecting",
			zap.String("url", f.url),
			zap.Duration("delay", f.reconnect),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(f.reconnect):
		}
	}
}

func (f *WSFeed) runConnection(ctx context.Context, handle Handler) error {
	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, _, err := dialer.DialContext(ctx, f.url, f.header)
	if err != nil {
		return fmt.Errorf("feed: connect: %w", err)
	}
	defer conn.Close()

	f.logger.Info("tick feed connected", zap.String("url", f.url))

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				// 关闭连接使 ReadMessage 返回
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(writeWait))
				_ = conn.Close()
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
					return
				}
			}
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("feed: read: %w", err)
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		batch, err := DecodeBatch(data)
		if err != nil {
			f.logger.Warn("failed to decode tick message", zap.Error(err))
			continue
		}
		if len(batch) == 0 {
			continue
		}
		handle(ctx, batch)
	}
}
