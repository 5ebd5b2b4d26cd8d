package chain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseWSHead(t *testing.T) {
	msg := []byte(`{"jsonrpc":"2.0","method":"eth_subscription","params":{"subscription":"0xcd0c","result":{"number":"0x1b4","hash":"0xdc0818cf","timestamp":"0x6553f100"}}}`)

	head, ok, err := ParseWSHead(msg)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(436), head.Number)
	assert.Equal(t, "0xdc0818cf", head.Hash)
	assert.Equal(t, time.Unix(0x6553f100, 0).UTC(), head.Timestamp)
}

func TestParseWSHeadIgnoresAck(t *testing.T) {
	head, ok, err := ParseWSHead([]byte(`{"jsonrpc":"2.0","id":1,"result":"0xcd0c3e8af590364c09d0fa6a1210faf5"}`))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, head)
}

func TestParseWSHeadError(t *testing.T) {
	_, ok, err := ParseWSHead([]byte(`{"jsonrpc":"2.0","id":1,"error":{"code":-32601,"message":"subscriptions not supported"}}`))
	assert.False(t, ok)
	assert.EqualError(t, err, "subscriptions not supported")
}

func TestDefaultWSEndpoint(t *testing.T) {
	assert.Equal(t, "wss://rpc.chiliz.com", DefaultWSEndpoint("https://rpc.chiliz.com/"))
	assert.Equal(t, "ws://localhost:8545", DefaultWSEndpoint("http://localhost:8545"))
	assert.Equal(t, "wss://node.example/ws", DefaultWSEndpoint("wss://node.example/ws"))
	assert.Equal(t, "", DefaultWSEndpoint("localhost:8545"))
}

func TestSanitizeEndpoints(t *testing.T) {
	got := sanitizeEndpoints([]string{" https://a.example/ ", "", "https://a.example", "https://b.example"})
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, got)
}
