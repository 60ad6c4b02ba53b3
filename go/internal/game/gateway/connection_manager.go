package gateway

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mcdev12/escaperoom/go/internal/game/session"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// StateProvider supplies the snapshot sent to newly connected clients
type StateProvider interface {
	Snapshot() session.Snapshot
}

// CommandProcessor applies a raw client frame
type CommandProcessor interface {
	HandleRaw(data []byte) error
}

// ConnectionManager fans session snapshots out to every websocket connection.
// A single hub goroutine owns registration, unregistration and all sends
// into connection buffers, so each connection sees snapshots in order.
type ConnectionManager struct {
	connections map[*Connection]bool
	mu          sync.RWMutex

	upgrader websocket.Upgrader
	config   ConnectionConfig

	state    StateProvider
	commands CommandProcessor

	broadcastCh  chan session.Snapshot
	registerCh   chan *Connection
	unregisterCh chan *Connection
	done         chan struct{}
}

// Connection represents a websocket connection to a client
type Connection struct {
	ID       string
	ClientID string
	Conn     *websocket.Conn
	Send     chan []byte
	Manager  *ConnectionManager

	ConnectedAt time.Time

	limiter *rate.Limiter
	// lastVersion is owned by the hub goroutine.
	lastVersion uint64
}

// ConnectionConfig holds configuration for websocket connections
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	SendBufferSize  int
	BroadcastBuffer int
	CommandRate     rate.Limit
	CommandBurst    int
	CheckOrigin     func(r *http.Request) bool
}

// DefaultConnectionConfig returns default websocket configuration
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  4096,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		SendBufferSize:  256,
		BroadcastBuffer: 1000,
		CommandRate:     20,
		CommandBurst:    40,
		CheckOrigin: func(r *http.Request) bool {
			// Access control is done by the gatekeeper in front of the gateway
			return true
		},
	}
}

// NewConnectionManager creates a new websocket connection manager
func NewConnectionManager(config ConnectionConfig, state StateProvider, commands CommandProcessor) *ConnectionManager {
	// The initial snapshot must always fit
	if config.SendBufferSize < 1 {
		config.SendBufferSize = 1
	}

	return &ConnectionManager{
		connections: make(map[*Connection]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:       config,
		state:        state,
		commands:     commands,
		broadcastCh:  make(chan session.Snapshot, config.BroadcastBuffer),
		registerCh:   make(chan *Connection),
		unregisterCh: make(chan *Connection),
		done:         make(chan struct{}),
	}
}

// Start runs the hub until ctx is cancelled
func (cm *ConnectionManager) Start(ctx context.Context) {
	log.Info().Msg("connection manager started")
	defer close(cm.done)

	for {
		select {
		case <-ctx.Done():
			cm.closeAll()
			log.Info().Msg("connection manager shutting down")
			return
		case conn := <-cm.registerCh:
			cm.handleRegister(conn)
		case conn := <-cm.unregisterCh:
			cm.handleUnregister(conn)
		case snap := <-cm.broadcastCh:
			cm.handleBroadcast(snap)
		}
	}
}

// Publish queues a change for broadcast. It never blocks the session store.
func (cm *ConnectionManager) Publish(change session.Change) {
	select {
	case cm.broadcastCh <- change.Snapshot:
	default:
		log.Warn().
			Str("change", string(change.Kind)).
			Uint64("version", change.Snapshot.Version).
			Msg("broadcast channel full, dropping snapshot")
	}
}

// UpgradeConnection upgrades an HTTP connection to websocket and registers it
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request, clientID string) error {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	connection := &Connection{
		ID:          uuid.New().String(),
		ClientID:    clientID,
		Conn:        conn,
		Send:        make(chan []byte, cm.config.SendBufferSize),
		Manager:     cm,
		ConnectedAt: time.Now(),
		limiter:     rate.NewLimiter(cm.config.CommandRate, cm.config.CommandBurst),
	}

	select {
	case cm.registerCh <- connection:
	case <-cm.done:
		conn.Close()
		return fmt.Errorf("connection manager stopped")
	}

	go connection.writePump()
	go connection.readPump()

	log.Info().
		Str("connection_id", connection.ID).
		Str("client_id", clientID).
		Msg("websocket connection established")

	return nil
}

// handleRegister adds a connection and sends it the current snapshot
func (cm *ConnectionManager) handleRegister(conn *Connection) {
	cm.mu.Lock()
	cm.connections[conn] = true
	total := len(cm.connections)
	cm.mu.Unlock()

	snap := cm.state.Snapshot()
	data, err := NewGameStateMessage(snap)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal initial snapshot")
		return
	}
	conn.Send <- data
	conn.lastVersion = snap.Version

	log.Debug().
		Str("connection_id", conn.ID).
		Int("total_connections", total).
		Uint64("version", snap.Version).
		Msg("connection registered")
}

// unregister asks the hub to drop a connection
func (cm *ConnectionManager) unregister(conn *Connection) {
	select {
	case cm.unregisterCh <- conn:
	case <-cm.done:
	}
}

func (cm *ConnectionManager) handleUnregister(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if _, exists := cm.connections[conn]; !exists {
		return
	}
	delete(cm.connections, conn)
	close(conn.Send)

	log.Info().
		Str("connection_id", conn.ID).
		Str("client_id", conn.ClientID).
		Dur("connected_for", time.Since(conn.ConnectedAt)).
		Msg("connection unregistered")
}

// handleBroadcast sends a snapshot to every connection that has not seen it
func (cm *ConnectionManager) handleBroadcast(snap session.Snapshot) {
	data, err := NewGameStateMessage(snap)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal snapshot for broadcast")
		return
	}

	cm.mu.RLock()
	targets := make([]*Connection, 0, len(cm.connections))
	for conn := range cm.connections {
		targets = append(targets, conn)
	}
	cm.mu.RUnlock()

	sent := 0
	for _, conn := range targets {
		if snap.Version <= conn.lastVersion {
			continue
		}
		select {
		case conn.Send <- data:
			conn.lastVersion = snap.Version
			sent++
		default:
			// Slow or dead client. It gets a fresh snapshot when it reconnects.
			log.Warn().
				Str("connection_id", conn.ID).
				Str("client_id", conn.ClientID).
				Msg("connection send buffer full, closing connection")
			cm.handleUnregister(conn)
			conn.Conn.Close()
		}
	}

	log.Debug().
		Uint64("version", snap.Version).
		Str("status", string(snap.Status)).
		Int("connections", sent).
		Msg("snapshot broadcasted")
}

func (cm *ConnectionManager) closeAll() {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	for conn := range cm.connections {
		delete(cm.connections, conn)
		close(conn.Send)
	}
}

// ConnectionStats describes the current connections
type ConnectionStats struct {
	TotalConnections int `json:"total_connections"`
}

// GetConnectionStats returns statistics about active connections
func (cm *ConnectionManager) GetConnectionStats() ConnectionStats {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	return ConnectionStats{TotalConnections: len(cm.connections)}
}

// writePump handles sending messages to the websocket connection
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to write message to websocket")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Debug().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to send ping")
				return
			}
		}
	}
}

// readPump reads client events until the connection fails
func (c *Connection) readPump() {
	defer func() {
		c.Manager.unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.Manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("unexpected websocket close error")
			}
			break
		}

		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
		c.handleClientMessage(message)
	}
}

// handleClientMessage applies a client event. Bad events are logged and dropped.
func (c *Connection) handleClientMessage(message []byte) {
	if !c.limiter.Allow() {
		log.Warn().
			Str("connection_id", c.ID).
			Str("client_id", c.ClientID).
			Msg("client event rate exceeded, dropping event")
		return
	}

	if err := c.Manager.commands.HandleRaw(message); err != nil {
		log.Debug().
			Err(err).
			Str("connection_id", c.ID).
			Str("client_id", c.ClientID).
			Msg("client event ignored")
	}
}
