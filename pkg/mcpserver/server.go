// Package mcpserver exposes the tool registry over the Model Context
// Protocol.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/sipeed/hybridmem/pkg/logger"
	"github.com/sipeed/hybridmem/pkg/tools"
)

const (
	TransportStdio = "stdio"
	TransportHTTP  = "http"
)

type Options struct {
	Name    string
	Version string
	// Transport is stdio (default) or http.
	Transport string
	// Addr is the listen address for the http transport.
	Addr string
}

type Server struct {
	srv  *mcp.Server
	opts Options
}

// New registers every tool in reg on a fresh MCP server.
func New(reg *tools.ToolRegistry, opts Options) *Server {
	if opts.Name == "" {
		opts.Name = "hybridmem"
	}
	if opts.Version == "" {
		opts.Version = "0.1.0"
	}

	srv := mcp.NewServer(&mcp.Implementation{
		Name:    opts.Name,
		Version: opts.Version,
	}, nil)

	for _, t := range reg.Tools() {
		srv.AddTool(&mcp.Tool{
			Name:        t.Name(),
			Description: t.Description(),
			InputSchema: t.Parameters(),
		}, handler(reg, t.Name()))
	}

	logger.InfoCF("mcp", "Tools registered", map[string]interface{}{
		"count": reg.Count(),
	})
	return &Server{srv: srv, opts: opts}
}

// MCP returns the underlying server, for in-process transports.
func (s *Server) MCP() *mcp.Server {
	return s.srv
}

// handler adapts a registry tool to an MCP tool handler. Tool failures are
// reported as error results so the client sees the message.
func handler(reg *tools.ToolRegistry, name string) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := map[string]interface{}{}
		if raw := req.Params.Arguments; len(raw) > 0 {
			if err := json.Unmarshal(raw, &args); err != nil {
				return errorResult(fmt.Sprintf("invalid arguments: %v", err)), nil
			}
		}

		out, err := reg.ExecuteWithContext(ctx, name, args, sessionKey(req))
		if err != nil {
			return errorResult(err.Error()), nil
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: out}},
		}, nil
	}
}

func errorResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: msg}},
		IsError: true,
	}
}

// sessionKey gives every MCP session its own working memory. Stdio
// sessions have no id and share the default one.
func sessionKey(req *mcp.CallToolRequest) string {
	if req.Session == nil {
		return ""
	}
	if id := req.Session.ID(); id != "" {
		return "mcp:" + id
	}
	return ""
}

// Run serves until ctx is cancelled or the client disconnects.
func (s *Server) Run(ctx context.Context) error {
	switch s.opts.Transport {
	case "", TransportStdio:
		logger.InfoC("mcp", "Serving on stdio")
		return s.srv.Run(ctx, &mcp.StdioTransport{})
	case TransportHTTP:
		return s.serveHTTP(ctx)
	default:
		return fmt.Errorf("unknown transport %q (use stdio or http)", s.opts.Transport)
	}
}

func (s *Server) Handler() http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return s.srv
	}, nil)
}

func (s *Server) serveHTTP(ctx context.Context) error {
	addr := s.opts.Addr
	if addr == "" {
		addr = ":8081"
	}
	hs := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.InfoCF("mcp", "Serving streamable HTTP", map[string]interface{}{
			"addr": addr,
		})
		errCh <- hs.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := hs.Shutdown(shutdownCtx); err != nil {
			return err
		}
		<-errCh
		return nil
	}
}
