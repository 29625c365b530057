package mcptools

import (
	"context"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	clientName    = "cricket"
	clientVersion = "0.1.0"

	// healthCheckTimeout bounds the probe on a cached session.
	healthCheckTimeout = 2 * time.Second
	// connectTimeout bounds a fresh handshake plus its first listing.
	connectTimeout = 10 * time.Second
)

// Pool keeps a single MCP client session alive across tool calls.
// Sessions are verified with a tools listing before reuse and replaced
// when the probe fails, so a restarted server is picked up on the next
// call instead of poisoning every request.
type Pool struct {
	mu      sync.Mutex
	baseURL string
	session *mcp.ClientSession
	logger  zerolog.Logger
}

// NewPool builds a pool for the MCP server rooted at baseURL. The
// protocol endpoint lives under /mcp on that base.
func NewPool(baseURL string) *Pool {
	return &Pool{
		baseURL: baseURL,
		logger:  log.With().Str("component", "mcp-pool").Str("server", baseURL).Logger(),
	}
}

// Endpoint returns the full URL the pool connects to.
func (p *Pool) Endpoint() string {
	return p.baseURL + "/mcp"
}

// Session returns a healthy client session, reconnecting if the cached
// one no longer answers.
func (p *Pool) Session(ctx context.Context) (*mcp.ClientSession, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.session != nil {
		hctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
		_, err := p.session.ListTools(hctx, &mcp.ListToolsParams{})
		cancel()
		if err == nil {
			return p.session, nil
		}
		p.logger.Warn().Err(err).Msg("cached MCP session failed health check, reconnecting")
		_ = p.session.Close()
		p.session = nil
	}
	return p.connectLocked(ctx)
}

func (p *Pool) connectLocked(ctx context.Context) (*mcp.ClientSession, error) {
	cctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	client := mcp.NewClient(&mcp.Implementation{Name: clientName, Version: clientVersion}, nil)
	transport := mcp.NewSSEClientTransport(p.Endpoint(), nil)
	session, err := client.Connect(cctx, transport)
	if err != nil {
		return nil, errors.Wrapf(err, "connect to MCP server at %s", p.Endpoint())
	}
	if _, err := session.ListTools(cctx, &mcp.ListToolsParams{}); err != nil {
		_ = session.Close()
		return nil, errors.Wrap(err, "list tools on new MCP session")
	}

	p.logger.Info().Msg("connected to MCP server")
	p.session = session
	return session, nil
}

// Close drops the cached session, if any.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.session == nil {
		return nil
	}
	err := p.session.Close()
	p.session = nil
	return errors.Wrap(err, "close MCP session")
}
