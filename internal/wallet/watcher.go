package wallet

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Watcher maintains one websocket connection to the blockchain
// notification service and fans incoming address events out to
// subscribers. Subscriptions registered while the connection is down are
// replayed after (re)connect.
type Watcher struct {
	url string
	log *zap.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	callbacks map[string][]func(hash string, confirmations int)

	quit chan struct{}
}

// subMessage is the subscribe frame for one address.
type subMessage struct {
	Op      string `json:"op"`
	Address string `json:"addr"`
}

// notification is one pushed address event.
type notification struct {
	Op            string `json:"op"`
	Address       string `json:"addr"`
	TxHash        string `json:"txHash"`
	Confirmations int    `json:"confirmations"`
}

// NewWatcher creates a watcher for the given websocket endpoint.
func NewWatcher(url string, log *zap.Logger) *Watcher {
	return &Watcher{
		url:       url,
		log:       log,
		callbacks: make(map[string][]func(hash string, confirmations int)),
		quit:      make(chan struct{}),
	}
}

// Start connects and begins dispatching notifications. It returns once the
// initial connection is up; the read loop runs until Stop.
func (w *Watcher) Start() error {
	conn, err := w.connect()
	if err != nil {
		return err
	}
	w.mu.Lock()
	w.conn = conn
	w.mu.Unlock()

	go w.readLoop()
	return nil
}

// Stop closes the connection and ends the read loop.
func (w *Watcher) Stop() {
	close(w.quit)
	w.mu.Lock()
	if w.conn != nil {
		_ = w.conn.Close()
	}
	w.mu.Unlock()
}

// Subscribe registers a callback for deposits on the address. Multiple
// callbacks per address are allowed; each observation reaches all of them.
func (w *Watcher) Subscribe(address string, callback func(hash string, confirmations int)) error {
	w.mu.Lock()
	w.callbacks[address] = append(w.callbacks[address], callback)
	conn := w.conn
	w.mu.Unlock()

	if conn == nil {
		// Not connected yet; the subscription is replayed on connect.
		return nil
	}
	return w.sendSubscribe(conn, address)
}

func (w *Watcher) connect() (*websocket.Conn, error) {
	conn, _, err := websocket.DefaultDialer.Dial(w.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to notification service: %w", err)
	}

	// Replay existing subscriptions on the fresh connection.
	w.mu.Lock()
	addresses := make([]string, 0, len(w.callbacks))
	for address := range w.callbacks {
		addresses = append(addresses, address)
	}
	w.mu.Unlock()

	for _, address := range addresses {
		if err := w.sendSubscribe(conn, address); err != nil {
			_ = conn.Close()
			return nil, err
		}
	}
	return conn, nil
}

func (w *Watcher) sendSubscribe(conn *websocket.Conn, address string) error {
	msg := subMessage{Op: "addr_sub", Address: address}
	if err := conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", address, err)
	}
	w.log.Debug("Subscribed to address notifications", zap.String("address", address))
	return nil
}

// readLoop dispatches pushed events and reconnects when the connection
// drops.
func (w *Watcher) readLoop() {
	for {
		w.mu.Lock()
		conn := w.conn
		w.mu.Unlock()

		_, raw, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-w.quit:
				return
			default:
			}

			w.log.Warn("Connection dropped unexpectedly. Trying to reconnect...", zap.Error(err))
			next, connErr := w.connect()
			if connErr != nil {
				w.log.Error("Reconnect failed, retrying", zap.Error(connErr))
				select {
				case <-w.quit:
					return
				case <-time.After(5 * time.Second):
				}
				continue
			}
			w.mu.Lock()
			w.conn = next
			w.mu.Unlock()
			continue
		}

		var event notification
		if err := json.Unmarshal(raw, &event); err != nil {
			w.log.Warn("Discarding malformed notification", zap.Error(err))
			continue
		}
		if event.Op != "utx" && event.Op != "addr" {
			continue
		}

		w.dispatch(event)
	}
}

func (w *Watcher) dispatch(event notification) {
	w.mu.Lock()
	callbacks := make([]func(hash string, confirmations int), len(w.callbacks[event.Address]))
	copy(callbacks, w.callbacks[event.Address])
	w.mu.Unlock()

	for _, cb := range callbacks {
		cb(event.TxHash, event.Confirmations)
	}
}
