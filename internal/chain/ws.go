package chain

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gorilla/websocket"
)

type WSClient struct {
	Endpoint string
	Conn     *websocket.Conn
}

func NewWSClient(endpoint string) *WSClient {
	return &WSClient{Endpoint: endpoint}
}

func (c *WSClient) Connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, c.Endpoint, nil)
	if err != nil {
		return err
	}
	c.Conn = conn
	return nil
}

func (c *WSClient) Close() {
	if c.Conn != nil {
		_ = c.Conn.Close()
	}
}

func (c *WSClient) SubscribeNewHeads(ctx context.Context) error {
	payload := map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "eth_subscribe",
		"params":  []string{"newHeads"},
	}
	return c.Conn.WriteJSON(payload)
}

func (c *WSClient) Read(ctx context.Context) ([]byte, error) {
	_, msg, err := c.Conn.ReadMessage()
	return msg, err
}

type Head struct {
	Number    uint64
	Hash      string
	Timestamp time.Time
}

// ParseWSHead decodes an eth_subscription newHeads notification.
// Subscription acknowledgements and other messages return ok=false.
func ParseWSHead(msg []byte) (*Head, bool, error) {
	var env struct {
		Method string `json:"method"`
		Params struct {
			Result json.RawMessage `json:"result"`
		} `json:"params"`
		Error *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(msg, &env); err != nil {
		return nil, false, err
	}
	if env.Error != nil {
		return nil, false, errors.New(env.Error.Message)
	}
	if env.Method != "eth_subscription" || len(env.Params.Result) == 0 {
		return nil, false, nil
	}

	var data struct {
		Number    string `json:"number"`
		Hash      string `json:"hash"`
		Timestamp string `json:"timestamp"`
	}
	if err := json.Unmarshal(env.Params.Result, &data); err != nil {
		return nil, false, err
	}
	number, err := hexutil.DecodeUint64(data.Number)
	if err != nil {
		return nil, false, err
	}
	ts, err := hexutil.DecodeUint64(data.Timestamp)
	if err != nil {
		return nil, false, err
	}
	return &Head{
		Number:    number,
		Hash:      data.Hash,
		Timestamp: time.Unix(int64(ts), 0).UTC(),
	}, true, nil
}
