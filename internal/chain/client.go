package chain

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
)

// MultiClient spreads calls over several RPC endpoints and rotates away from
// the primary after failThreshold consecutive failures. It implements
// bind.ContractBackend so bound contracts fail over too.
type MultiClient struct {
	clients       []*ethclient.Client
	urls          []string
	index         int
	failCount     int
	failThreshold int
	mu            sync.Mutex

	// OnRotate, when set, is called with the endpoint that became primary.
	OnRotate func(url string)
}

func DialMulti(ctx context.Context, endpoints []string, failThreshold int) (*MultiClient, error) {
	list := sanitizeEndpoints(endpoints)
	if len(list) == 0 {
		return nil, errors.New("rpc endpoints is empty")
	}
	if failThreshold <= 0 {
		failThreshold = 3
	}
	clients := make([]*ethclient.Client, 0, len(list))
	for _, ep := range list {
		c, err := ethclient.DialContext(ctx, ep)
		if err != nil {
			for _, opened := range clients {
				opened.Close()
			}
			return nil, err
		}
		clients = append(clients, c)
	}
	return &MultiClient{
		clients:       clients,
		urls:          list,
		failThreshold: failThreshold,
	}, nil
}

func (m *MultiClient) BaseURL() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.urls[m.index]
}

// Primary returns the endpoint currently in use.
func (m *MultiClient) Primary() *ethclient.Client {
	c, _ := m.currentClient()
	return c
}

func (m *MultiClient) Close() {
	for _, c := range m.clients {
		c.Close()
	}
}

var _ bind.ContractBackend = (*MultiClient)(nil)

func (m *MultiClient) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	return withFailover(ctx, m, func(c *ethclient.Client) (*types.Receipt, error) {
		return c.TransactionReceipt(ctx, hash)
	})
}

func (m *MultiClient) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	return withFailover(ctx, m, func(c *ethclient.Client) (*types.Header, error) {
		return c.HeaderByNumber(ctx, number)
	})
}

// SendTransaction broadcasts a signed transaction. Resending the same transaction
// to a second node cannot double spend: the hash and nonce are fixed by the signature.
func (m *MultiClient) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	_, err := withFailover(ctx, m, func(c *ethclient.Client) (struct{}, error) {
		return struct{}{}, c.SendTransaction(ctx, tx)
	})
	return err
}

func (m *MultiClient) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	return withFailover(ctx, m, func(c *ethclient.Client) (uint64, error) {
		return c.PendingNonceAt(ctx, account)
	})
}

func (m *MultiClient) PendingCodeAt(ctx context.Context, account common.Address) ([]byte, error) {
	return withFailover(ctx, m, func(c *ethclient.Client) ([]byte, error) {
		return c.PendingCodeAt(ctx, account)
	})
}

func (m *MultiClient) CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error) {
	return withFailover(ctx, m, func(c *ethclient.Client) ([]byte, error) {
		return c.CodeAt(ctx, account, blockNumber)
	})
}

func (m *MultiClient) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	return withFailover(ctx, m, func(c *ethclient.Client) ([]byte, error) {
		return c.CallContract(ctx, msg, blockNumber)
	})
}

func (m *MultiClient) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	return withFailover(ctx, m, func(c *ethclient.Client) (uint64, error) {
		return c.EstimateGas(ctx, msg)
	})
}

func (m *MultiClient) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return withFailover(ctx, m, func(c *ethclient.Client) (*big.Int, error) {
		return c.SuggestGasPrice(ctx)
	})
}

func (m *MultiClient) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	return withFailover(ctx, m, func(c *ethclient.Client) (*big.Int, error) {
		return c.SuggestGasTipCap(ctx)
	})
}

func (m *MultiClient) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	return withFailover(ctx, m, func(c *ethclient.Client) ([]types.Log, error) {
		return c.FilterLogs(ctx, q)
	})
}

// SubscribeFilterLogs stays on the primary; a subscription cannot move between nodes.
func (m *MultiClient) SubscribeFilterLogs(ctx context.Context, q ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error) {
	return m.Primary().SubscribeFilterLogs(ctx, q, ch)
}

// withFailover starts at the primary and tries each other endpoint at most once
// within the call. Only primary failures count toward rotation, and the primary
// changes after failThreshold consecutive ones. A JSON-RPC error response or
// ethereum.NotFound is an answer from a live node, not a failure.
func withFailover[T any](ctx context.Context, m *MultiClient, fn func(c *ethclient.Client) (T, error)) (T, error) {
	var zero T
	var lastErr error
	_, start := m.currentClient()
	for i := 0; i < len(m.clients); i++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		idx := (start + i) % len(m.clients)
		out, err := fn(m.clients[idx])
		if err == nil || isAnswer(err) {
			m.resetFailures(idx)
			return out, err
		}
		if ctx.Err() != nil {
			return zero, err
		}
		lastErr = err
		m.noteFailure(idx)
	}
	return zero, lastErr
}

func isAnswer(err error) bool {
	if errors.Is(err, ethereum.NotFound) {
		return true
	}
	var rpcErr rpc.Error
	return errors.As(err, &rpcErr)
}

func (m *MultiClient) currentClient() (*ethclient.Client, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.clients[m.index], m.index
}

func (m *MultiClient) resetFailures(idx int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.index == idx {
		m.failCount = 0
	}
}

// noteFailure counts a failure of the primary and rotates once the threshold is reached.
func (m *MultiClient) noteFailure(idx int) {
	m.mu.Lock()
	if m.index != idx {
		m.mu.Unlock()
		return
	}
	m.failCount++
	if m.failCount < m.failThreshold || len(m.clients) < 2 {
		m.mu.Unlock()
		return
	}
	m.index = (m.index + 1) % len(m.clients)
	m.failCount = 0
	url := m.urls[m.index]
	m.mu.Unlock()

	if m.OnRotate != nil {
		m.OnRotate(url)
	}
}

func sanitizeEndpoints(endpoints []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(endpoints))
	for _, ep := range endpoints {
		ep = strings.TrimSpace(ep)
		if ep == "" {
			continue
		}
		ep = strings.TrimRight(ep, "/")
		if _, ok := seen[ep]; ok {
			continue
		}
		seen[ep] = struct{}{}
		out = append(out, ep)
	}
	return out
}
