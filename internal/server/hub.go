package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/boardgames/wonders-server-go/internal/catalog"
	"github.com/boardgames/wonders-server-go/internal/config"
	"github.com/boardgames/wonders-server-go/internal/game"
	"github.com/boardgames/wonders-server-go/internal/game/combo"
)

// Client message types.
const (
	msgCreateGame          = "createGame"
	msgJoinGame            = "joinGame"
	msgListGames           = "listGames"
	msgAddBot              = "addBot"
	msgChooseWonderSide    = "chooseWonderSide"
	msgPlayCard            = "playCard"
	msgBuildWonder         = "buildWonder"
	msgDiscard             = "discard"
	msgRequestCombos       = "requestCombos"
	msgRequestWonderCombos = "requestWonderCombos"
)

// Server message types not produced by the game itself.
const (
	msgWelcome = "welcome"
	msgGames   = "games"
	msgError   = "error"
)

// Envelope is the inbound message frame.
type Envelope struct {
	Type   string          `json:"type"`
	GameID string          `json:"gameId,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// reply is the outbound frame for hub-originated messages. Game
// notifications are sent as game.Notification, which has the same shape.
type reply struct {
	Type      string      `json:"type"`
	GameID    string      `json:"gameId,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
}

type welcomeData struct {
	PlayerID string `json:"playerId"`
	Name     string `json:"name"`
}

type createGameData struct {
	Name       string `json:"name"`
	MaxPlayers int    `json:"maxPlayers"`
}

type sideData struct {
	Side catalog.Side `json:"side"`
}

type playData struct {
	Card  string      `json:"card"`
	Combo combo.Combo `json:"combo"`
}

// Hub accepts player WebSocket connections and bridges them to game seats.
type Hub struct {
	manager           *game.Manager
	issuer            *TokenIssuer
	cfg               config.WebSocketConfig
	defaultMaxPlayers int
	logger            *zap.Logger
	upgrader          websocket.Upgrader

	mu      sync.RWMutex
	clients map[*Client]bool
}

// NewHub creates a hub. A nil issuer lets clients name themselves.
func NewHub(manager *game.Manager, issuer *TokenIssuer, cfg config.WebSocketConfig, defaultMaxPlayers int, logger *zap.Logger) *Hub {
	return &Hub{
		manager:           manager,
		issuer:            issuer,
		cfg:               cfg,
		defaultMaxPlayers: defaultMaxPlayers,
		logger:            logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  cfg.ReadBufferSize,
			WriteBufferSize: cfg.WriteBufferSize,
			CheckOrigin:     originChecker(cfg.AllowedOrigins),
		},
		clients: make(map[*Client]bool),
	}
}

// originChecker accepts clients that send no Origin header, which browsers
// never omit, and origins on the allow list. With an empty list the
// upgrader falls back to its same-host check.
func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return nil
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, a := range allowed {
			if a == "*" || strings.EqualFold(strings.TrimSuffix(a, "/"), origin) {
				return true
			}
		}
		return false
	}
}

// ServeWS upgrades the request and serves the connection until it closes.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	claims, err := identify(h.issuer, r)
	if err != nil {
		http.Error(w, fmt.Sprintf("unauthorized: %v", err), http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		hub:      h,
		conn:     conn,
		send:     make(chan []byte, 256),
		done:     make(chan struct{}),
		ctx:      ctx,
		cancel:   cancel,
		playerID: claims.PlayerID(),
		name:     claims.Name,
		seats:    make(map[string]*game.Seat),
	}
	h.register(c)

	c.reply(msgWelcome, "", welcomeData{PlayerID: c.playerID, Name: c.name})

	go c.writePump()
	go c.readPump()
}

// ClientCount returns the number of open connections.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		c.close()
	}
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	h.clients[c] = true
	h.mu.Unlock()
	h.logger.Info("client connected", zap.String("player_id", c.playerID), zap.String("name", c.name))
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	h.logger.Info("client disconnected", zap.String("player_id", c.playerID))
}

// Client is one player connection.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	done   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once

	playerID string
	name     string

	mu    sync.Mutex
	seats map[string]*game.Seat
}

func (c *Client) close() {
	c.once.Do(func() {
		c.cancel()
		close(c.done)
		c.hub.unregister(c)
	})
}

func (c *Client) readPump() {
	defer func() {
		c.close()
		c.conn.Close()
	}()

	cfg := c.hub.cfg
	pongWait := cfg.PingInterval * 2
	c.conn.SetReadLimit(cfg.MaxMessageSize)
	if pongWait > 0 {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		c.conn.SetPongHandler(func(string) error {
			return c.conn.SetReadDeadline(time.Now().Add(pongWait))
		})
	}

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Debug("websocket read error", zap.String("player_id", c.playerID), zap.Error(err))
			}
			return
		}

		var env Envelope
		if err := json.Unmarshal(message, &env); err != nil {
			c.replyError("", "parse", fmt.Errorf("malformed message: %w", err))
			continue
		}
		if err := c.handle(env); err != nil && c.shouldReport(env.GameID, err) {
			c.replyError(env.GameID, env.Type, err)
		}
	}
}

func (c *Client) writePump() {
	cfg := c.hub.cfg
	var ping <-chan time.Time
	if cfg.PingInterval > 0 {
		ticker := time.NewTicker(cfg.PingInterval)
		defer ticker.Stop()
		ping = ticker.C
	}
	defer c.conn.Close()

	for {
		select {
		case message := <-c.send:
			_ = c.conn.SetWriteDeadline(c.writeDeadline())
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.close()
				return
			}
		case <-ping:
			_ = c.conn.SetWriteDeadline(c.writeDeadline())
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				c.writeDeadline())
			return
		}
	}
}

func (c *Client) writeDeadline() time.Time {
	if c.hub.cfg.WriteTimeout <= 0 {
		return time.Time{}
	}
	return time.Now().Add(c.hub.cfg.WriteTimeout)
}

func (c *Client) enqueue(v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		c.hub.logger.Error("failed to marshal message", zap.Error(err))
		return
	}
	select {
	case <-c.done:
	case c.send <- data:
	default:
		c.hub.logger.Warn("client send buffer full, dropping message", zap.String("player_id", c.playerID))
	}
}

func (c *Client) reply(typ, gameID string, data interface{}) {
	c.enqueue(reply{Type: typ, GameID: gameID, Timestamp: time.Now(), Data: data})
}

func (c *Client) replyError(gameID, action string, err error) {
	c.reply(msgError, gameID, game.ErrorMessage{Action: action, Message: err.Error()})
}

// shouldReport is false for rule errors the game has already sent to the
// player's seat.
func (c *Client) shouldReport(gameID string, err error) bool {
	if _, seated := c.seat(gameID); !seated {
		return true
	}
	return !errors.Is(err, game.ErrInvalidAction) &&
		!errors.Is(err, game.ErrPersistence) &&
		!errors.Is(err, game.ErrScoringInconsistency)
}

func (c *Client) seat(gameID string) (*game.Seat, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.seats[gameID]
	return s, ok
}

func (c *Client) handle(env Envelope) error {
	ctx := c.ctx

	switch env.Type {
	case msgListGames:
		c.reply(msgGames, "", c.hub.manager.OpenGames())
		return nil

	case msgCreateGame:
		var data createGameData
		if err := decode(env.Data, &data); err != nil {
			return err
		}
		if data.MaxPlayers == 0 {
			data.MaxPlayers = c.hub.defaultMaxPlayers
		}
		g, err := c.hub.manager.CreateGame(ctx, data.Name, c.playerID, data.MaxPlayers)
		if err != nil {
			return err
		}
		return c.join(g)

	case msgJoinGame:
		g, ok := c.hub.manager.GetGame(env.GameID)
		if !ok {
			return fmt.Errorf("%w: %s", game.ErrGameNotFound, env.GameID)
		}
		return c.join(g)

	case msgAddBot:
		_, err := c.hub.manager.AddBot(ctx, env.GameID, c.playerID)
		return err
	}

	seat, ok := c.seat(env.GameID)
	if !ok {
		return fmt.Errorf("not seated in game %q", env.GameID)
	}

	switch env.Type {
	case msgChooseWonderSide:
		var data sideData
		if err := decode(env.Data, &data); err != nil {
			return err
		}
		return seat.ChooseWonderSide(ctx, data.Side)

	case msgPlayCard, msgBuildWonder, msgDiscard:
		var data playData
		if err := decode(env.Data, &data); err != nil {
			return err
		}
		switch env.Type {
		case msgPlayCard:
			return seat.SubmitPlay(ctx, data.Card, data.Combo)
		case msgBuildWonder:
			return seat.SubmitBuildWonder(ctx, data.Card, data.Combo)
		default:
			return seat.SubmitDiscard(ctx, data.Card)
		}

	case msgRequestCombos:
		var data playData
		if err := decode(env.Data, &data); err != nil {
			return err
		}
		_, err := seat.RequestCombos(ctx, data.Card)
		return err

	case msgRequestWonderCombos:
		_, err := seat.RequestWonderCombos(ctx)
		return err
	}

	return fmt.Errorf("unknown message type %q", env.Type)
}

func (c *Client) join(g *game.Game) error {
	seat, err := g.Join(c.ctx, c.playerID, c.name)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.seats[g.ID] = seat
	c.mu.Unlock()

	go c.forward(seat)
	return nil
}

// forward relays a seat's notifications until the game stops or the
// connection closes.
func (c *Client) forward(seat *game.Seat) {
	for {
		select {
		case n, ok := <-seat.Notifications():
			if !ok {
				c.mu.Lock()
				delete(c.seats, seat.GameID())
				c.mu.Unlock()
				return
			}
			c.enqueue(n)
		case <-c.done:
			return
		}
	}
}

func decode(raw json.RawMessage, v interface{}) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("malformed data: %w", err)
	}
	return nil
}
