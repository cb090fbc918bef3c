package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	stdpath "path"
	"time"

	"github.com/charmbracelet/mirror/internal/proto"
)

// DummyHost is used to satisfy the http.Client's requirement for a URL.
const DummyHost = "api.mirror.localhost"

// Client talks to an agent server over HTTP on a TCP address, a Unix socket
// or a Windows named pipe.
type Client struct {
	h       *http.Client
	network string
	addr    string
}

// DefaultClient creates a new [Client] connected to the default server address.
func DefaultClient() (*Client, error) {
	return New(DefaultHost())
}

// New creates a new [Client] for a host such as "unix:///tmp/crush.sock" or
// "tcp://127.0.0.1:8080".
func New(host string) (*Client, error) {
	u, err := ParseHostURL(host)
	if err != nil {
		return nil, err
	}
	return NewClient(u.Scheme, u.Host)
}

// NewClient creates a new [Client] connected to the server at the given
// network and address.
func NewClient(network, address string) (*Client, error) {
	c := new(Client)
	c.network = network
	c.addr = address
	p := &http.Protocols{}
	p.SetHTTP1(true)
	p.SetUnencryptedHTTP2(true)
	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.Protocols = p
	tr.DialContext = c.dialer
	if c.network == "npipe" || c.network == "unix" {
		// We don't need compression for local connections.
		tr.DisableCompression = true
	}
	c.h = &http.Client{
		Transport: loggingTransport{next: tr},
		Timeout:   0, // we need this to be 0 for long-lived connections and SSE streams
	}
	return c, nil
}

// Addr returns the address the client dials.
func (c *Client) Addr() string {
	return c.network + "://" + c.addr
}

// Health checks the server's health status.
func (c *Client) Health(ctx context.Context) error {
	rsp, err := c.get(ctx, "/health", nil, nil)
	if err != nil {
		return err
	}
	defer rsp.Body.Close()
	if rsp.StatusCode != http.StatusOK {
		return fmt.Errorf("server health check failed: %s", rsp.Status)
	}
	return nil
}

// VersionInfo retrieves the server's version information.
func (c *Client) VersionInfo(ctx context.Context) (*proto.VersionInfo, error) {
	var vi proto.VersionInfo
	if err := c.getJSON(ctx, "get version", "/version", nil, &vi); err != nil {
		return nil, err
	}
	return &vi, nil
}

func (c *Client) dialer(ctx context.Context, network, address string) (net.Conn, error) {
	d := net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	// It's important to use the client's addr for npipe/unix and not the
	// address param because the address param is always "localhost:port" for
	// HTTP clients and npipe/unix don't have a concept of ports.
	switch c.network {
	case "npipe":
		ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		return dialPipeContext(ctx, c.addr)
	case "unix":
		return d.DialContext(ctx, "unix", c.addr)
	default:
		return d.DialContext(ctx, network, address)
	}
}

// getJSON performs a GET and decodes a 200 response into v. op names the
// operation in returned errors.
func (c *Client) getJSON(ctx context.Context, op, path string, query url.Values, v any) error {
	rsp, err := c.get(ctx, path, query, nil)
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	defer rsp.Body.Close()
	if rsp.StatusCode != http.StatusOK {
		return newStatusError(op, rsp)
	}
	if err := json.NewDecoder(rsp.Body).Decode(v); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", op, err)
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, headers http.Header) (*http.Response, error) {
	return c.sendReq(ctx, http.MethodGet, path, query, nil, headers)
}

func (c *Client) sendReq(ctx context.Context, method, path string, query url.Values, body io.Reader, headers http.Header) (*http.Response, error) {
	url := (&url.URL{
		Path:     stdpath.Join("/v1", path), // Right now, we only have v1
		RawQuery: query.Encode(),
	}).String()
	req, err := c.buildReq(ctx, method, url, body, headers)
	if err != nil {
		return nil, err
	}

	return c.doReq(req)
}

func (c *Client) doReq(req *http.Request) (*http.Response, error) {
	rsp, err := c.h.Do(req)
	if err != nil {
		return nil, err
	}
	return rsp, nil
}

func (c *Client) buildReq(ctx context.Context, method, url string, body io.Reader, headers http.Header) (*http.Request, error) {
	r, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}

	for k, v := range headers {
		r.Header[http.CanonicalHeaderKey(k)] = v
	}

	r.URL.Scheme = "http" // This is always http because we don't use TLS
	r.URL.Host = c.addr
	if c.network == "npipe" || c.network == "unix" {
		// We use a dummy host for non-tcp connections.
		r.Host = DummyHost
	}

	if body != nil && r.Header.Get("Content-Type") == "" {
		r.Header.Set("Content-Type", "application/json")
	}

	return r, nil
}
