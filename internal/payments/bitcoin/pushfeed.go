package bitcoin

import (
	"context"
	"time"

	"bettabuckz/internal/logging"

	"github.com/gorilla/websocket"
)

const (
	pushWriteWait = 10 * time.Second
	pushPingEvery = 20 * time.Second
)

// PushFeed subscribes to address notifications over a BlockCypher-style
// websocket and hands every payment it sees to a handler. It reconnects until
// its context ends.
type PushFeed struct {
	url            string
	confirmations  int
	dialer         *websocket.Dialer
	logger         logging.Logger
	subscribe      chan string
	reconnectDelay time.Duration
}

func NewPushFeed(url string, confirmations int, logger logging.Logger) *PushFeed {
	return &PushFeed{
		url:            url,
		confirmations:  confirmations,
		dialer:         websocket.DefaultDialer,
		logger:         logger,
		subscribe:      make(chan string, 64),
		reconnectDelay: 5 * time.Second,
	}
}

// Subscribe adds an address to the live session. Addresses dropped here are
// picked up again from the address source on the next reconnect.
func (f *PushFeed) Subscribe(address string) {
	select {
	case f.subscribe <- address:
	default:
	}
}

type subscription struct {
	Event         string `json:"event"`
	Address       string `json:"address"`
	Confirmations int    `json:"confirmations,omitempty"`
}

// Run blocks until ctx is done. addresses is consulted on every (re)connect.
func (f *PushFeed) Run(ctx context.Context, addresses func(context.Context) ([]string, error), handle func(context.Context, ChainTx)) error {
	for {
		err := f.session(ctx, addresses, handle)
		if ctx.Err() != nil {
			return nil
		}
		f.logger.WithError(err).Warn("bitcoin push feed disconnected")
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(f.reconnectDelay):
		}
	}
}

func (f *PushFeed) session(ctx context.Context, addresses func(context.Context) ([]string, error), handle func(context.Context, ChainTx)) error {
	initial, err := addresses(ctx)
	if err != nil {
		return err
	}
	conn, _, err := f.dialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	watched := make(map[string]struct{}, len(initial))
	incoming := make(chan apiTx, 16)
	readErr := make(chan error, 1)
	go func() {
		for {
			var tx apiTx
			if err := conn.ReadJSON(&tx); err != nil {
				readErr <- err
				return
			}
			if tx.Hash == "" {
				continue
			}
			select {
			case incoming <- tx:
			case <-ctx.Done():
				return
			}
		}
	}()

	for _, address := range initial {
		if err := f.watch(conn, watched, address); err != nil {
			return err
		}
	}
	f.logger.WithFields(logging.Fields{"addresses": len(watched)}).Info("bitcoin push feed connected")

	ping := time.NewTicker(pushPingEvery)
	defer ping.Stop()
	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(pushWriteWait))
			return ctx.Err()
		case err := <-readErr:
			return err
		case address := <-f.subscribe:
			if err := f.watch(conn, watched, address); err != nil {
				return err
			}
		case tx := <-incoming:
			for address := range watched {
				if amount := tx.paidTo(address); amount > 0 {
					handle(ctx, ChainTx{Hash: tx.Hash, Address: address, AmountSats: amount, Confirmations: tx.Confirmations})
				}
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(pushWriteWait))
			if err := conn.WriteJSON(map[string]string{"event": "ping"}); err != nil {
				return err
			}
		}
	}
}

// watch sends both subscriptions for an address once per session.
func (f *PushFeed) watch(conn *websocket.Conn, watched map[string]struct{}, address string) error {
	if address == "" {
		return nil
	}
	if _, ok := watched[address]; ok {
		return nil
	}
	_ = conn.SetWriteDeadline(time.Now().Add(pushWriteWait))
	if err := conn.WriteJSON(subscription{Event: "unconfirmed-tx", Address: address}); err != nil {
		return err
	}
	if err := conn.WriteJSON(subscription{Event: "tx-confirmation", Address: address, Confirmations: f.confirmations}); err != nil {
		return err
	}
	watched[address] = struct{}{}
	return nil
}

// Enabled reports whether a feed URL is configured.
func (f *PushFeed) Enabled() bool {
	return f != nil && f.url != ""
}
