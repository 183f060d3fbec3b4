package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
)

var (
	ErrDispatch         = errors.New("transfer dispatch error")
	ErrStreamClosed     = errors.New("transfer status stream closed before inclusion")
	ErrFinalityTimeout  = errors.New("finality not observed")
	ErrInvalidAmount    = errors.New("invalid native amount")
	ErrAccountNotFound  = errors.New("account not found")
	ErrNoEndpoints      = errors.New("ledger endpoints is empty")
	errUnexpectedResult = errors.New("unexpected rpc result")
)

// Client is the boundary to the chain: balance reads and signed transfers.
type Client interface {
	GetBalance(ctx context.Context, address string, assetID uint32) (Balance, error)
	Transfer(ctx context.Context, req TransferRequest) (<-chan TransferUpdate, error)
}

// Balance amounts are in the token's native integer unit. Free includes the
// frozen portion; reserved is held outside free.
type Balance struct {
	Free     *big.Int
	Reserved *big.Int
	Frozen   *big.Int
}

func ZeroBalance() Balance {
	return Balance{Free: new(big.Int), Reserved: new(big.Int), Frozen: new(big.Int)}
}

type TransferRequest struct {
	Signer      string
	Destination string
	Amount      *big.Int
	AssetID     uint32
}

type TransferStatus string

const (
	StatusReady     TransferStatus = "ready"
	StatusBroadcast TransferStatus = "broadcast"
	StatusInBlock   TransferStatus = "inBlock"
	StatusFinalized TransferStatus = "finalized"
	StatusError     TransferStatus = "error"
)

func (s TransferStatus) terminal() bool {
	return s == StatusInBlock || s == StatusFinalized || s == StatusError
}

type TransferUpdate struct {
	Status   TransferStatus `json:"status"`
	BlockRef string         `json:"blockRef,omitempty"`
	Error    string         `json:"error,omitempty"`
}

// AwaitInBlock consumes updates until the transfer is included in a block or
// fails. The block hash is returned on inclusion.
func AwaitInBlock(ctx context.Context, updates <-chan TransferUpdate) (string, error) {
	for {
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("%w: %v", ErrFinalityTimeout, ctx.Err())
		case u, ok := <-updates:
			if !ok {
				return "", ErrStreamClosed
			}
			switch u.Status {
			case StatusInBlock, StatusFinalized:
				return u.BlockRef, nil
			case StatusError:
				return "", fmt.Errorf("%w: %s", ErrDispatch, u.Error)
			}
		}
	}
}

// JSON-RPC wire types

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      string `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

type rpcMessage struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      string          `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
	Params  *struct {
		Subscription string         `json:"subscription"`
		Result       TransferUpdate `json:"result"`
	} `json:"params,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

type balanceParams struct {
	Address string `json:"address"`
	AssetID uint32 `json:"assetId"`
}

type balanceResult struct {
	Free     string `json:"free"`
	Reserved string `json:"reserved"`
	Frozen   string `json:"frozen"`
}

type transferParams struct {
	Signer      string `json:"signer"`
	Destination string `json:"dest"`
	Amount      string `json:"amount"`
	AssetID     uint32 `json:"assetId"`
}

func parseNative(v string) (*big.Int, error) {
	if v == "" {
		return new(big.Int), nil
	}
	n, ok := new(big.Int).SetString(v, 10)
	if !ok || n.Sign() < 0 {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, v)
	}
	return n, nil
}

func decodeBalance(raw json.RawMessage) (Balance, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return ZeroBalance(), nil
	}
	var res balanceResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return Balance{}, err
	}
	free, err := parseNative(res.Free)
	if err != nil {
		return Balance{}, err
	}
	reserved, err := parseNative(res.Reserved)
	if err != nil {
		return Balance{}, err
	}
	frozen, err := parseNative(res.Frozen)
	if err != nil {
		return Balance{}, err
	}
	return Balance{Free: free, Reserved: reserved, Frozen: frozen}, nil
}
