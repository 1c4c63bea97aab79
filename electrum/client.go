// Package electrum implements the subset of the Electrum protocol needed to
// fund transactions: unspent outputs, raw transactions, fee estimates and
// the chain tip.
package electrum

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-hclog"
)

const (
	// DefaultTimeout bounds dialing and each request without a context deadline.
	DefaultTimeout = 30 * time.Second

	// ProtocolVersion is the protocol version negotiated with the server.
	ProtocolVersion = "1.4"

	clientName = "vault-plugin-stamps"
)

var (
	// ErrClosed indicates a call on a closed client or a connection that
	// dropped while the call was waiting.
	ErrClosed = errors.New("electrum: connection closed")

	// ErrTimeout indicates a request that got no response in time.
	ErrTimeout = errors.New("electrum: request timeout")
)

// Options configures a Client.
type Options struct {
	// Timeout defaults to DefaultTimeout.
	Timeout time.Duration
	Logger  hclog.Logger
}

// Client is a connection to one Electrum server. Requests are pipelined and
// matched to responses by id, so a Client is safe for concurrent use.
type Client struct {
	url     string
	timeout time.Duration
	logger  hclog.Logger

	conn    net.Conn
	writeMu sync.Mutex
	nextID  atomic.Uint64

	mu      sync.Mutex
	pending map[uint64]chan rpcResponse
	done    bool
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcResponse struct {
	ID     uint64          `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// ServerError is an error object returned by the server.
type ServerError struct {
	Code    int
	Message string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("electrum error %d: %s", e.Code, e.Message)
}

// endpoint is a parsed server URL.
type endpoint struct {
	tls  bool
	host string
	port string
}

func (e endpoint) addr() string {
	return net.JoinHostPort(e.host, e.port)
}

// parseEndpoint accepts ssl://host:port, tcp://host:port or a bare
// host:port, which uses TLS.
func parseEndpoint(url string) (endpoint, error) {
	ep := endpoint{tls: true}
	switch {
	case strings.HasPrefix(url, "ssl://"):
		url = strings.TrimPrefix(url, "ssl://")
	case strings.HasPrefix(url, "tcp://"):
		ep.tls = false
		url = strings.TrimPrefix(url, "tcp://")
	}

	host, port, err := net.SplitHostPort(url)
	if err != nil || host == "" || port == "" {
		return endpoint{}, fmt.Errorf("invalid electrum URL %q: expected [ssl://|tcp://]host:port", url)
	}
	ep.host, ep.port = host, port
	return ep, nil
}

// NewClient connects to url and negotiates the protocol version.
func NewClient(ctx context.Context, url string, opts Options) (*Client, error) {
	ep, err := parseEndpoint(url)
	if err != nil {
		return nil, err
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Logger == nil {
		opts.Logger = hclog.NewNullLogger()
	}

	conn, err := dial(ctx, ep, opts.Timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Electrum server: %w", err)
	}

	c := &Client{
		url:     url,
		timeout: opts.Timeout,
		logger:  opts.Logger,
		conn:    conn,
		pending: make(map[uint64]chan rpcResponse),
	}
	go c.readLoop()

	var version []string
	if err := c.request(ctx, "server.version", &version, clientName, ProtocolVersion); err != nil {
		c.Close()
		return nil, fmt.Errorf("version negotiation failed: %w", err)
	}
	c.logger.Debug("electrum version negotiated", "url", url, "version", version)

	return c, nil
}

func dial(ctx context.Context, ep endpoint, timeout time.Duration) (net.Conn, error) {
	d := &net.Dialer{Timeout: timeout}
	if !ep.tls {
		return d.DialContext(ctx, "tcp", ep.addr())
	}
	td := &tls.Dialer{
		NetDialer: d,
		Config: &tls.Config{
			MinVersion: tls.VersionTLS12,
			ServerName: ep.host,
		},
	}
	return td.DialContext(ctx, "tcp", ep.addr())
}

// readLoop delivers responses until the connection fails, then releases
// every waiting call.
func (c *Client) readLoop() {
	dec := json.NewDecoder(c.conn)
	for {
		var resp rpcResponse
		if err := dec.Decode(&resp); err != nil {
			c.shutdown(err)
			return
		}

		c.mu.Lock()
		ch, ok := c.pending[resp.ID]
		delete(c.pending, resp.ID)
		c.mu.Unlock()
		if ok {
			ch <- resp
		}
	}
}

// shutdown marks the client done and closes all pending calls.
func (c *Client) shutdown(cause error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.done {
		c.logger.Debug("electrum connection lost", "url", c.url, "error", cause)
	}
	c.done = true
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
}

// register allocates an id and a response slot, failing on a closed client.
func (c *Client) register() (uint64, chan rpcResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done {
		return 0, nil, ErrClosed
	}
	id := c.nextID.Add(1)
	ch := make(chan rpcResponse, 1)
	c.pending[id] = ch
	return id, ch, nil
}

func (c *Client) forget(id uint64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// call sends method and waits for its raw result. Without a context
// deadline the client timeout applies.
func (c *Client) call(ctx context.Context, method string, params ...interface{}) (json.RawMessage, error) {
	id, ch, err := c.register()
	if err != nil {
		return nil, err
	}

	if params == nil {
		params = []interface{}{}
	}
	line, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params})
	if err != nil {
		c.forget(id)
		return nil, err
	}

	c.writeMu.Lock()
	_, err = c.conn.Write(append(line, '\n'))
	c.writeMu.Unlock()
	if err != nil {
		c.forget(id)
		return nil, fmt.Errorf("failed to send %s: %w", method, err)
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	select {
	case resp, ok := <-ch:
		switch {
		case !ok:
			return nil, ErrClosed
		case resp.Error != nil:
			return nil, &ServerError{Code: resp.Error.Code, Message: resp.Error.Message}
		}
		return resp.Result, nil
	case <-ctx.Done():
		c.forget(id)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%s: %w", method, ErrTimeout)
		}
		return nil, ctx.Err()
	}
}

// request calls method and decodes the result into out.
func (c *Client) request(ctx context.Context, method string, out interface{}, params ...interface{}) error {
	result, err := c.call(ctx, method, params...)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(result, out); err != nil {
		return fmt.Errorf("failed to parse %s response: %w", method, err)
	}
	return nil
}

// Close closes the connection. Pending calls fail with ErrClosed.
func (c *Client) Close() {
	c.mu.Lock()
	wasDone := c.done
	c.done = true
	c.mu.Unlock()
	if !wasDone {
		c.conn.Close()
	}
}
