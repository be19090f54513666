package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/mhodzic/parley/internal/domain"
	"github.com/mhodzic/parley/internal/service"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

const (
	writeWait      = 10 * time.Second
	pingInterval   = 30 * time.Second
	maxMessageSize = 4096
	sendBufSize    = 256
)

// conversationStreams bundles the two live feeds a subscribed conversation
// keeps open: the ordered message log and the denormalized summary.
type conversationStreams struct {
	messages *service.MessageStream
	summary  *service.SummaryStream
}

func (s *conversationStreams) stop() {
	s.messages.Cancel()
	s.summary.Cancel()
}

// Client represents a single WebSocket connection.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	userID string
	log    *slog.Logger

	// streams tracks which conversations this client listens to.
	streams map[string]*conversationStreams
	inbox   *service.ConversationListStream
	// closed marks the client shut down; send is closed under the same
	// mutex, so enqueue can never write to a closed channel.
	closed bool
	mu     sync.Mutex

	send chan []byte
	done chan struct{}
}

func NewClient(hub *Hub, conn *websocket.Conn, userID string, log *slog.Logger) *Client {
	return &Client{
		hub:     hub,
		conn:    conn,
		userID:  userID,
		log:     log,
		streams: make(map[string]*conversationStreams),
		send:    make(chan []byte, sendBufSize),
		done:    make(chan struct{}),
	}
}

// ReadPump reads events from the WebSocket and routes them.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	c.conn.SetReadLimit(maxMessageSize)

	for {
		var event Event
		err := wsjson.Read(context.Background(), c.conn, &event)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				c.log.Debug("ws client disconnected", "user", c.userID)
			} else {
				c.log.Debug("ws read error", "user", c.userID, "error", err)
			}
			return
		}

		c.handleEvent(&event)
	}
}

// WritePump writes queued events to the WebSocket and keeps the
// connection alive with pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				return
			}
			ctx, cancel := context.WithTimeout(context.Background(), writeWait)
			err := c.conn.Write(ctx, websocket.MessageText, message)
			cancel()
			if err != nil {
				c.log.Debug("ws write error", "user", c.userID, "error", err)
				return
			}

		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), writeWait)
			err := c.conn.Ping(ctx)
			cancel()
			if err != nil {
				c.log.Debug("ws ping error", "user", c.userID, "error", err)
				return
			}

		case <-c.done:
			return
		}
	}
}

// handleEvent routes an incoming client event.
func (c *Client) handleEvent(event *Event) {
	switch event.Type {
	case EventTypeConversationSubscribe:
		var p ConversationPayload
		if err := json.Unmarshal(event.Payload, &p); err != nil || p.ConversationID == "" {
			c.sendError("INVALID_PAYLOAD", "invalid conversation.subscribe payload")
			return
		}
		c.subscribeConversation(p.ConversationID)

	case EventTypeConversationUnsubscribe:
		var p ConversationPayload
		if err := json.Unmarshal(event.Payload, &p); err != nil || p.ConversationID == "" {
			c.sendError("INVALID_PAYLOAD", "invalid conversation.unsubscribe payload")
			return
		}
		c.unsubscribeConversation(p.ConversationID)

	case EventTypeInboxSubscribe:
		c.subscribeInbox()

	case EventTypeInboxUnsubscribe:
		c.unsubscribeInbox()

	case EventTypePing:
		c.sendPong()

	default:
		c.sendError("UNKNOWN_EVENT", "unknown event type: "+event.Type)
	}
}

// subscribeConversation opens the message and summary streams for a
// conversation and pumps every snapshot down the socket.
func (c *Client) subscribeConversation(conversationID string) {
	c.mu.Lock()
	if _, ok := c.streams[conversationID]; ok {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	ctx := context.Background()

	msgStream, err := c.hub.messages.SubscribeMessages(ctx, conversationID, c.userID)
	if err != nil {
		c.sendSubscribeError(err)
		return
	}
	sumStream, err := c.hub.messages.SubscribeSummary(ctx, conversationID, c.userID)
	if err != nil {
		msgStream.Cancel()
		c.sendSubscribeError(err)
		return
	}

	streams := &conversationStreams{messages: msgStream, summary: sumStream}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		streams.stop()
		return
	}
	if _, ok := c.streams[conversationID]; ok {
		c.mu.Unlock()
		streams.stop()
		return
	}
	c.streams[conversationID] = streams
	c.mu.Unlock()

	go func() {
		for msgs := range msgStream.C {
			c.sendEvent(EventTypeMessagesSnapshot, conversationID, msgs)
		}
	}()
	go func() {
		for conv := range sumStream.C {
			item, err := conv.ListItemFor(c.userID)
			if err != nil {
				continue
			}
			c.sendEvent(EventTypeConversationSnapshot, conversationID, item)
		}
	}()
}

func (c *Client) unsubscribeConversation(conversationID string) {
	c.mu.Lock()
	streams, ok := c.streams[conversationID]
	if ok {
		delete(c.streams, conversationID)
	}
	c.mu.Unlock()

	if ok {
		streams.stop()
	}
}

// subscribeInbox streams the caller's full conversation list, newest
// activity first.
func (c *Client) subscribeInbox() {
	c.mu.Lock()
	if c.inbox != nil {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	stream, err := c.hub.directory.SubscribeConversations(context.Background(), c.userID)
	if err != nil {
		c.sendError("INTERNAL", "could not subscribe to inbox")
		return
	}

	c.mu.Lock()
	if c.closed || c.inbox != nil {
		c.mu.Unlock()
		stream.Cancel()
		return
	}
	c.inbox = stream
	c.mu.Unlock()

	go func() {
		for items := range stream.C {
			c.sendEvent(EventTypeInboxSnapshot, "", items)
		}
	}()
}

func (c *Client) unsubscribeInbox() {
	c.mu.Lock()
	stream := c.inbox
	c.inbox = nil
	c.mu.Unlock()

	if stream != nil {
		stream.Cancel()
	}
}

// shutdown tears down every live feed this client holds and closes its
// channels. Called by the hub when the client unregisters or is replaced
// by a reconnect; safe to call more than once. Pump goroutines racing a
// shutdown go through enqueue, which observes the closed flag under the
// same mutex, so no write can hit the closed send channel.
func (c *Client) shutdown() {
	c.mu.Lock()
	streams := c.streams
	c.streams = make(map[string]*conversationStreams)
	inbox := c.inbox
	c.inbox = nil
	if !c.closed {
		c.closed = true
		close(c.done)
		close(c.send)
	}
	c.mu.Unlock()

	for _, s := range streams {
		s.stop()
	}
	if inbox != nil {
		inbox.Cancel()
	}
}

// enqueue queues data for the write pump, dropping it when the buffer is
// full or the client has shut down.
func (c *Client) enqueue(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

func (c *Client) sendSubscribeError(err error) {
	switch {
	case errors.Is(err, service.ErrConversationNotFound):
		c.sendError("NOT_FOUND", "conversation not found")
	case errors.Is(err, domain.ErrNotParticipant):
		c.sendError("FORBIDDEN", "not a participant of this conversation")
	default:
		c.sendError("INTERNAL", "could not subscribe")
	}
}

func (c *Client) sendEvent(eventType, conversationID string, payload any) {
	evt, err := NewEvent(eventType, conversationID, payload)
	if err != nil {
		return
	}
	data, err := json.Marshal(evt)
	if err != nil {
		return
	}
	c.enqueue(data)
}

func (c *Client) sendPong() {
	data, _ := json.Marshal(Event{Type: EventTypePong})
	c.enqueue(data)
}

func (c *Client) sendError(code, message string) {
	evt, err := NewEvent(EventTypeError, "", ErrorPayload{Code: code, Message: message})
	if err != nil {
		return
	}
	data, err := json.Marshal(evt)
	if err != nil {
		return
	}
	c.enqueue(data)
}
