package chainws

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Head is a minimal new-block header notification.
type Head struct {
	Number     uint64
	Hash       common.Hash
	ParentHash common.Hash
}

// Manager maintains one WebSocket JSON-RPC connection subscribed to newHeads
// and newPendingTransactions. Decoding stays off ethclient on purpose; the
// monitor only needs hashes and three header fields on this path.
type Manager struct {
	url          string
	conn         *websocket.Conn
	logger       *zap.Logger
	reconnectMgr *ReconnectManager
	config       Config

	headChan    chan *Head
	pendingChan chan common.Hash

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.RWMutex

	connected    atomic.Bool
	lastPongTime atomic.Int64

	// Subscription IDs assigned by the node, set on (re)connect.
	headsSubID   string
	pendingSubID string

	reqID    atomic.Uint64
	respMu   sync.Mutex
	respWait map[uint64]chan rpcResponse
}

// Config holds WebSocket manager configuration.
type Config struct {
	URL                   string
	DialTimeout           time.Duration
	PongTimeout           time.Duration
	PingInterval          time.Duration
	ReconnectInitialDelay time.Duration
	ReconnectMaxDelay     time.Duration
	ReconnectBackoffMult  float64
	ReconnectJitter       float64 // fraction of each delay, defaults to 0.2
	MessageBufferSize     int
	Logger                *zap.Logger
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcResponse struct {
	ID     uint64          `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcNotification struct {
	Method string `json:"method"`
	Params struct {
		Subscription string          `json:"subscription"`
		Result       json.RawMessage `json:"result"`
	} `json:"params"`
}

type headPayload struct {
	Number     string `json:"number"`
	Hash       string `json:"hash"`
	ParentHash string `json:"parentHash"`
}

// New creates a new subscription manager.
func New(cfg Config) *Manager {
	ctx, cancel := context.WithCancel(context.Background())

	jitter := cfg.ReconnectJitter
	if jitter <= 0 {
		jitter = 0.2
	}

	reconnectCfg := ReconnectConfig{
		InitialDelay:      cfg.ReconnectInitialDelay,
		MaxDelay:          cfg.ReconnectMaxDelay,
		BackoffMultiplier: cfg.ReconnectBackoffMult,
		JitterPercent:     jitter,
	}

	return &Manager{
		url:          cfg.URL,
		logger:       cfg.Logger,
		reconnectMgr: NewReconnectManager(reconnectCfg, cfg.Logger),
		config:       cfg,
		headChan:     make(chan *Head, cfg.MessageBufferSize),
		pendingChan:  make(chan common.Hash, cfg.MessageBufferSize),
		ctx:          ctx,
		cancel:       cancel,
		respWait:     make(map[uint64]chan rpcResponse),
	}
}

// Start connects and subscribes.
func (m *Manager) Start() error {
	m.logger.Info("chainws-starting", zap.String("url", m.url))

	err := m.connect(m.ctx)
	if err != nil {
		return fmt.Errorf("initial connection: %w", err)
	}

	m.wg.Add(2)
	go m.pingLoop()
	go m.reconnectLoop()

	err = m.subscribeAll(m.ctx)
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	return nil
}

// connect establishes the WebSocket connection and starts its read loop.
func (m *Manager) connect(ctx context.Context) error {
	dialer := websocket.Dialer{
		HandshakeTimeout: m.config.DialTimeout,
	}

	conn, _, err := dialer.DialContext(ctx, m.url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}

	conn.SetPongHandler(func(string) error {
		m.lastPongTime.Store(time.Now().Unix())
		return nil
	})

	m.mu.Lock()
	m.conn = conn
	m.mu.Unlock()

	m.connected.Store(true)
	m.lastPongTime.Store(time.Now().Unix())
	ActiveConnections.Set(1)

	m.wg.Add(1)
	go m.readLoop(conn)

	m.logger.Info("chainws-connected")

	return nil
}

// subscribeAll issues eth_subscribe for both feeds.
func (m *Manager) subscribeAll(ctx context.Context) error {
	headsID, err := m.subscribe(ctx, "newHeads")
	if err != nil {
		return fmt.Errorf("subscribe newHeads: %w", err)
	}

	pendingID, err := m.subscribe(ctx, "newPendingTransactions")
	if err != nil {
		return fmt.Errorf("subscribe newPendingTransactions: %w", err)
	}

	m.mu.Lock()
	m.headsSubID = headsID
	m.pendingSubID = pendingID
	m.mu.Unlock()

	m.logger.Info("chainws-subscribed",
		zap.String("heads_sub", headsID),
		zap.String("pending_sub", pendingID))

	return nil
}

// subscribe sends one eth_subscribe call and waits for the subscription ID.
func (m *Manager) subscribe(ctx context.Context, topic string) (string, error) {
	id := m.reqID.Add(1)

	respChan := make(chan rpcResponse, 1)
	m.respMu.Lock()
	m.respWait[id] = respChan
	m.respMu.Unlock()

	defer func() {
		m.respMu.Lock()
		delete(m.respWait, id)
		m.respMu.Unlock()
	}()

	req := rpcRequest{
		JSONRPC: "2.0",
		ID:      id,
		Method:  "eth_subscribe",
		Params:  []interface{}{topic},
	}

	m.mu.RLock()
	conn := m.conn
	m.mu.RUnlock()

	if conn == nil {
		return "", fmt.Errorf("not connected")
	}

	err := conn.WriteJSON(req)
	if err != nil {
		return "", fmt.Errorf("write subscribe: %w", err)
	}

	select {
	case resp := <-respChan:
		if resp.Error != nil {
			return "", fmt.Errorf("subscribe rejected: %s (%d)", resp.Error.Message, resp.Error.Code)
		}
		var subID string
		err = json.Unmarshal(resp.Result, &subID)
		if err != nil {
			return "", fmt.Errorf("decode subscription id: %w", err)
		}
		return subID, nil
	case <-time.After(m.config.DialTimeout):
		return "", fmt.Errorf("subscribe timed out")
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// readLoop reads frames from one connection until it errors or is closed.
func (m *Manager) readLoop(conn *websocket.Conn) {
	defer m.wg.Done()

	for {
		select {
		case <-m.ctx.Done():
			return
		default:
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			if m.ctx.Err() == nil {
				m.logger.Warn("read-error", zap.Error(err))
			}
			m.connected.Store(false)
			ActiveConnections.Set(0)
			return
		}

		m.handleMessage(message)
	}
}

// handleMessage routes a frame to either a pending request or a feed channel.
func (m *Manager) handleMessage(message []byte) {
	var notif rpcNotification
	err := json.Unmarshal(message, &notif)
	if err == nil && notif.Method == "eth_subscription" {
		m.handleNotification(&notif)
		return
	}

	var resp rpcResponse
	err = json.Unmarshal(message, &resp)
	if err != nil {
		m.logger.Debug("unparseable-message", zap.Int("bytes", len(message)))
		return
	}

	m.respMu.Lock()
	waiter, ok := m.respWait[resp.ID]
	m.respMu.Unlock()

	if ok {
		waiter <- resp
	}
}

func (m *Manager) handleNotification(notif *rpcNotification) {
	m.mu.RLock()
	headsID := m.headsSubID
	pendingID := m.pendingSubID
	m.mu.RUnlock()

	switch notif.Params.Subscription {
	case headsID:
		var payload headPayload
		err := json.Unmarshal(notif.Params.Result, &payload)
		if err != nil {
			m.logger.Debug("bad-head-payload", zap.Error(err))
			return
		}

		number, err := parseHexUint(payload.Number)
		if err != nil {
			m.logger.Debug("bad-head-number", zap.String("number", payload.Number))
			return
		}

		head := &Head{
			Number:     number,
			Hash:       common.HexToHash(payload.Hash),
			ParentHash: common.HexToHash(payload.ParentHash),
		}

		MessagesReceivedTotal.WithLabelValues("head").Inc()

		select {
		case m.headChan <- head:
		default:
			MessagesDroppedTotal.WithLabelValues("head").Inc()
			m.logger.Warn("head-channel-full", zap.Uint64("number", head.Number))
		}

	case pendingID:
		var hashHex string
		err := json.Unmarshal(notif.Params.Result, &hashHex)
		if err != nil {
			m.logger.Debug("bad-pending-payload", zap.Error(err))
			return
		}

		MessagesReceivedTotal.WithLabelValues("pending_tx").Inc()

		select {
		case m.pendingChan <- common.HexToHash(hashHex):
		default:
			MessagesDroppedTotal.WithLabelValues("pending_tx").Inc()
		}

	default:
		m.logger.Debug("unknown-subscription",
			zap.String("subscription", notif.Params.Subscription))
	}
}

// pingLoop sends periodic PING messages.
func (m *Manager) pingLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			if !m.connected.Load() {
				continue
			}

			m.mu.RLock()
			conn := m.conn
			m.mu.RUnlock()

			if conn == nil {
				continue
			}

			err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(time.Second))
			if err != nil {
				m.logger.Warn("ping-error", zap.Error(err))
			}
		}
	}
}

// reconnectLoop re-establishes the connection and subscriptions after drops.
func (m *Manager) reconnectLoop() {
	defer m.wg.Done()

	for {
		select {
		case <-m.ctx.Done():
			return
		default:
		}

		if m.connected.Load() {
			time.Sleep(time.Second)
			continue
		}

		m.logger.Warn("connection-lost-initiating-reconnect")

		err := m.reconnectMgr.Reconnect(m.ctx, m.connect)
		if err != nil {
			if err == context.Canceled {
				return
			}
			m.logger.Error("reconnection-failed", zap.Error(err))
			continue
		}

		err = m.subscribeAll(m.ctx)
		if err != nil {
			m.logger.Error("resubscribe-failed", zap.Error(err))
			m.connected.Store(false)
			continue
		}

		m.logger.Info("reconnection-complete")
	}
}

// Heads returns the new-head notification channel.
func (m *Manager) Heads() <-chan *Head {
	return m.headChan
}

// PendingTxs returns the pending-transaction hash channel.
func (m *Manager) PendingTxs() <-chan common.Hash {
	return m.pendingChan
}

// Connected reports whether the connection is currently up.
func (m *Manager) Connected() bool {
	return m.connected.Load()
}

// Close gracefully closes the manager.
func (m *Manager) Close() error {
	m.logger.Info("closing-chainws")

	m.cancel()

	m.mu.RLock()
	if m.conn != nil {
		m.conn.Close()
	}
	m.mu.RUnlock()

	m.wg.Wait()

	close(m.headChan)
	close(m.pendingChan)

	ActiveConnections.Set(0)

	m.logger.Info("chainws-closed")

	return nil
}

func parseHexUint(s string) (uint64, error) {
	return strconv.ParseUint(strings.TrimPrefix(s, "0x"), 16, 64)
}
