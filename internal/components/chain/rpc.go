package chain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-resty/resty/v2"
)

// ErrRPC wraps every ledger reader failure.
var ErrRPC = errors.New("ledger rpc error")

// Reader reads ledger state. GetObject returns (nil, nil) for a missing object.
type Reader interface {
	GetObject(ctx context.Context, id string) (*Object, error)
	GetOwnedObjects(ctx context.Context, owner, structType string) ([]*Object, error)
	QueryEvents(ctx context.Context, eventType string, limit int, descending bool) ([]Event, error)
}

// RPCError is a JSON-RPC error object.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
}

type objectResponse struct {
	Data  *Object `json:"data"`
	Error *struct {
		Code     string `json:"code"`
		ObjectID string `json:"object_id"`
	} `json:"error"`
}

var objectOptions = map[string]bool{
	"showType":    true,
	"showOwner":   true,
	"showContent": true,
}

// RPCClient is a Sui JSON-RPC 2.0 client.
type RPCClient struct {
	rc     *resty.Client
	url    string
	nextID atomic.Uint64
}

// NewRPCClient returns a client for the node at url. A nil hc uses resty's
// default transport.
func NewRPCClient(url string, hc *http.Client, timeout time.Duration) *RPCClient {
	rc := resty.New()
	if hc != nil {
		rc = resty.NewWithClient(hc)
	}
	if timeout > 0 {
		rc.SetTimeout(timeout)
	}
	rc.SetHeader("Content-Type", "application/json")
	return &RPCClient{rc: rc, url: url}
}

func (c *RPCClient) call(ctx context.Context, method string, params []any, result any) error {
	var out rpcResponse
	resp, err := c.rc.R().
		SetContext(ctx).
		SetBody(rpcRequest{JSONRPC: "2.0", ID: c.nextID.Add(1), Method: method, Params: params}).
		SetResult(&out).
		SetError(&out).
		Post(c.url)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrRPC, method, err)
	}
	if out.Error != nil {
		return fmt.Errorf("%w: %s: %v", ErrRPC, method, out.Error)
	}
	if resp.IsError() {
		return fmt.Errorf("%w: %s: http %d", ErrRPC, method, resp.StatusCode())
	}
	if result == nil || len(out.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(out.Result, result); err != nil {
		return fmt.Errorf("%w: %s: decode result: %v", ErrRPC, method, err)
	}
	return nil
}

// GetObject fetches an object with type, owner and content.
func (c *RPCClient) GetObject(ctx context.Context, id string) (*Object, error) {
	var res objectResponse
	if err := c.call(ctx, "sui_getObject", []any{id, objectOptions}, &res); err != nil {
		return nil, err
	}
	if res.Error != nil {
		switch res.Error.Code {
		case "notExists", "deleted":
			return nil, nil
		}
		return nil, fmt.Errorf("%w: sui_getObject %s: %s", ErrRPC, id, res.Error.Code)
	}
	return res.Data, nil
}

// GetOwnedObjects lists objects of structType owned by owner (first page).
func (c *RPCClient) GetOwnedObjects(ctx context.Context, owner, structType string) ([]*Object, error) {
	query := map[string]any{
		"filter":  map[string]string{"StructType": structType},
		"options": objectOptions,
	}
	var page struct {
		Data []objectResponse `json:"data"`
	}
	if err := c.call(ctx, "suix_getOwnedObjects", []any{owner, query, nil, nil}, &page); err != nil {
		return nil, err
	}
	objects := make([]*Object, 0, len(page.Data))
	for _, item := range page.Data {
		if item.Data != nil {
			objects = append(objects, item.Data)
		}
	}
	return objects, nil
}

// QueryEvents returns up to limit events of eventType.
func (c *RPCClient) QueryEvents(ctx context.Context, eventType string, limit int, descending bool) ([]Event, error) {
	filter := map[string]string{"MoveEventType": eventType}
	var page struct {
		Data []Event `json:"data"`
	}
	if err := c.call(ctx, "suix_queryEvents", []any{filter, nil, limit, descending}, &page); err != nil {
		return nil, err
	}
	return page.Data, nil
}

var _ Reader = (*RPCClient)(nil)
