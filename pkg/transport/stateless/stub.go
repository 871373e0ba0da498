package stateless

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	serverpkg "github.com/spacegate/spacegate/pkg/server"
)

// stubResponder answers protocol bookkeeping (ping, notifications, logging)
// without building a scoped server. It carries no tools, so it is safe to
// share across requests.
type stubResponder struct {
	srv *server.MCPServer
}

func newStubResponder() *stubResponder {
	return &stubResponder{
		srv: server.NewMCPServer(serverpkg.Name, "stub"),
	}
}

func (s *stubResponder) handle(ctx context.Context, body []byte) mcp.JSONRPCMessage {
	return s.srv.HandleMessage(ctx, body)
}
