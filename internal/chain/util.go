package chain

import "strings"

// DefaultWSEndpoint maps an HTTP RPC endpoint to its websocket form.
func DefaultWSEndpoint(rpc string) string {
	rpc = strings.TrimRight(rpc, "/")
	switch {
	case strings.HasPrefix(rpc, "ws://"), strings.HasPrefix(rpc, "wss://"):
		return rpc
	case strings.HasPrefix(rpc, "https://"):
		return "wss://" + strings.TrimPrefix(rpc, "https://")
	case strings.HasPrefix(rpc, "http://"):
		return "ws://" + strings.TrimPrefix(rpc, "http://")
	}
	return ""
}
