package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	methodGetBalance     = "ledger_getBalance"
	methodSubmitTransfer = "ledger_submitTransfer"
	methodTransferStatus = "ledger_transferStatus"
)

// DialError reports that no connection was made, so nothing was submitted.
type DialError struct {
	Endpoint string
	Err      error
}

func (e *DialError) Error() string {
	return fmt.Sprintf("ledger dial %s: %v", e.Endpoint, e.Err)
}

func (e *DialError) Unwrap() error { return e.Err }

const defaultCallTimeout = 30 * time.Second

// WSClient speaks JSON-RPC 2.0 over a websocket to the chain signing
// endpoint. Each call uses its own connection. CallTimeout bounds a request
// and its response; a transfer's status stream is not bounded by it.
type WSClient struct {
	Endpoint    string
	CallTimeout time.Duration
	dialer      websocket.Dialer
}

func NewWSClient(endpoint string) *WSClient {
	return &WSClient{
		Endpoint:    endpoint,
		CallTimeout: defaultCallTimeout,
		dialer:      websocket.Dialer{HandshakeTimeout: 10 * time.Second},
	}
}

func (c *WSClient) connect(ctx context.Context) (*websocket.Conn, error) {
	conn, _, err := c.dialer.DialContext(ctx, c.Endpoint, nil)
	if err != nil {
		return nil, &DialError{Endpoint: c.Endpoint, Err: err}
	}
	return conn, nil
}

func (c *WSClient) GetBalance(ctx context.Context, address string, assetID uint32) (Balance, error) {
	conn, err := c.connect(ctx)
	if err != nil {
		return Balance{}, err
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	raw, err := c.call(conn, methodGetBalance, balanceParams{Address: address, AssetID: assetID})
	if err != nil {
		return Balance{}, err
	}
	return decodeBalance(raw)
}

// Transfer submits a signed transfer and streams its status. The stream ends
// after the first terminal status, on connection loss, or when ctx is done.
func (c *WSClient) Transfer(ctx context.Context, req TransferRequest) (<-chan TransferUpdate, error) {
	if req.Amount == nil || req.Amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	conn, err := c.connect(ctx)
	if err != nil {
		return nil, err
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })

	raw, err := c.call(conn, methodSubmitTransfer, transferParams{
		Signer:      req.Signer,
		Destination: req.Destination,
		Amount:      req.Amount.String(),
		AssetID:     req.AssetID,
	})
	if err != nil {
		stop()
		_ = conn.Close()
		return nil, err
	}
	var subID string
	if err := json.Unmarshal(raw, &subID); err != nil || subID == "" {
		stop()
		_ = conn.Close()
		return nil, fmt.Errorf("%w: subscription id %s", errUnexpectedResult, string(raw))
	}
	_ = conn.SetReadDeadline(time.Time{})

	updates := make(chan TransferUpdate, 4)
	go func() {
		defer close(updates)
		defer stop()
		defer conn.Close()
		for {
			var msg rpcMessage
			if err := conn.ReadJSON(&msg); err != nil {
				if ctx.Err() == nil {
					updates <- TransferUpdate{Status: StatusError, Error: "connection lost: " + err.Error()}
				}
				return
			}
			if msg.Method != methodTransferStatus || msg.Params == nil || msg.Params.Subscription != subID {
				continue
			}
			u := msg.Params.Result
			select {
			case updates <- u:
			case <-ctx.Done():
				return
			}
			if u.Status.terminal() {
				return
			}
		}
	}()
	return updates, nil
}

// call writes one request and reads until the matching response arrives or
// CallTimeout passes.
func (c *WSClient) call(conn *websocket.Conn, method string, params any) (json.RawMessage, error) {
	timeout := c.CallTimeout
	if timeout <= 0 {
		timeout = defaultCallTimeout
	}
	deadline := time.Now().Add(timeout)
	_ = conn.SetWriteDeadline(deadline)
	_ = conn.SetReadDeadline(deadline)

	req := rpcRequest{JSONRPC: "2.0", ID: uuid.NewString(), Method: method, Params: params}
	if err := conn.WriteJSON(req); err != nil {
		return nil, err
	}
	for {
		var msg rpcMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return nil, err
		}
		if msg.ID != req.ID {
			continue
		}
		if msg.Error != nil {
			return nil, msg.Error
		}
		return msg.Result, nil
	}
}

// IsRPCError reports whether err came back from the remote end rather than
// the transport.
func IsRPCError(err error) bool {
	var rpcErr *rpcError
	return errors.As(err, &rpcErr)
}
