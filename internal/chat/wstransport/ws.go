// Package wstransport implements the WebSocket chat transport variant from
// spec §6: JSON frames `{"type":"message","user","text","channel",...}`
// inbound, `{"id","type":"message","channel","text"}` outbound.
//
// Grounded on the teacher's internal/handler/ws/delivery.go (gorilla
// websocket upgrade + read/write pump loop), repurposed from an inbound
// server-side upgrade to an outbound client dial, since this daemon is the
// one initiating the chat connection rather than accepting browser
// sessions.
package wstransport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/signupwatch/daemon/internal/chat"
)

type inboundFrame struct {
	Type    string `json:"type"`
	User    string `json:"user"`
	Text    string `json:"text"`
	Channel string `json:"channel"`
}

type outboundFrame struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Channel string `json:"channel"`
	Text    string `json:"text"`
}

// Transport dials a single WebSocket connection and pumps inbound/outbound
// frames, per spec §6/§4.7.
type Transport struct {
	url       string
	botMarker string // e.g. "@bot "
	logger    *slog.Logger
	dialer    *websocket.Dialer

	mu   sync.Mutex
	conn *websocket.Conn
}

// New builds a Transport. botMarker is the mention prefix matched against
// incoming text (spec §4.7: "prefix match on an @bot mention or
// equivalent").
func New(url, botMarker string, logger *slog.Logger) *Transport {
	return &Transport{
		url:       url,
		botMarker: botMarker,
		logger:    logger,
		dialer:    websocket.DefaultDialer,
	}
}

var _ chat.Transport = (*Transport)(nil)

// Run dials, reads frames until the connection breaks or ctx is canceled,
// and returns the terminal error (the supervisor treats any return as
// "respawn me").
func (t *Transport) Run(ctx context.Context, handle func(chat.IncomingMessage), pinger chat.LivenessPinger) error {
	header := http.Header{}
	conn, _, err := t.dialer.DialContext(ctx, t.url, header)
	if err != nil {
		return fmt.Errorf("wstransport: dial: %w", err)
	}
	t.mu.Lock()
	t.conn = conn
	t.mu.Unlock()
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("wstransport: read: %w", err)
		}
		pinger.Ping()

		var frame inboundFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			t.logger.Warn("wstransport: malformed frame, skipping", "error", err)
			continue
		}
		if frame.Type != "message" {
			continue
		}
		if !strings.HasPrefix(frame.Text, t.botMarker) {
			continue
		}
		text := strings.TrimPrefix(frame.Text, t.botMarker)
		channel := frame.Channel
		handle(chat.IncomingMessage{
			Text: text,
			Reply: func(reply string) {
				t.send(channel, reply)
			},
		})
	}
}

// Post sends text to channel (the ws wire protocol has no separate
// topic/subject concept, so topic is ignored). Satisfies the same
// stream-targeted post shape lptransport.Transport exposes, so the
// composition root can address either transport identically.
func (t *Transport) Post(channel, topic, text string) error {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("wstransport: post attempted with no active connection")
	}
	t.send(channel, text)
	return nil
}

func (t *Transport) send(channel, text string) {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		t.logger.Warn("wstransport: send attempted with no active connection")
		return
	}
	frame := outboundFrame{ID: uuid.NewString(), Type: "message", Channel: channel, Text: text}
	data, err := json.Marshal(frame)
	if err != nil {
		t.logger.Error("wstransport: marshal outbound frame", "error", err)
		return
	}
	conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		t.logger.Error("wstransport: write", "error", err)
	}
}
