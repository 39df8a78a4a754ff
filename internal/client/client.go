// Package client implements the store's network client. It keeps only
// the server address; every call opens a fresh connection, sends one
// request, half-closes its write side, and reads one response.
package client

import (
	"fmt"
	"io"
	"net"

	"github.com/aiifabbf/kvs/internal/errdefs"
	"github.com/aiifabbf/kvs/internal/format"
)

// Client talks to a kvs server. The zero cost of holding it comes from
// holding no socket: connections live for exactly one request.
type Client struct {
	address string
}

// New returns a client for the server at address.
func New(address string) *Client {
	return &Client{address: address}
}

// Address returns the server address this client talks to.
func (c *Client) Address() string {
	return c.address
}

// roundTrip performs the single-shot protocol: write the request, shut
// down the write side so the server sees end-of-request, then read the
// response until the server closes.
func (c *Client) roundTrip(req format.Request) (format.Response, error) {
	conn, err := net.Dial("tcp", c.address)
	if err != nil {
		return format.Response{}, fmt.Errorf("failed to connect to %s: %w", c.address, err)
	}
	defer conn.Close()

	payload, err := format.EncodeRequest(req)
	if err != nil {
		return format.Response{}, err
	}
	if _, err := conn.Write(payload); err != nil {
		return format.Response{}, fmt.Errorf("failed to send request: %w", err)
	}
	// Without the half-close the server cannot tell end-of-request
	// from a pause and both sides deadlock.
	if err := conn.(*net.TCPConn).CloseWrite(); err != nil {
		return format.Response{}, fmt.Errorf("failed to close write side: %w", err)
	}

	data, err := io.ReadAll(conn)
	if err != nil {
		return format.Response{}, fmt.Errorf("failed to read response: %w", err)
	}
	return format.DecodeResponse(data)
}

// call runs one request and maps a Failed response to a remote error
// carrying the server's message.
func (c *Client) call(req format.Request) (*string, error) {
	resp, err := c.roundTrip(req)
	if err != nil {
		return nil, err
	}
	if !resp.Done {
		return nil, errdefs.Remote(resp.Reason)
	}
	return resp.Value, nil
}

// Get fetches the value bound to key; ok reports whether a binding
// exists on the server.
func (c *Client) Get(key string) (string, bool, error) {
	value, err := c.call(format.Request{Kind: format.ReqGet, Key: key})
	if err != nil {
		return "", false, err
	}
	if value == nil {
		return "", false, nil
	}
	return *value, true, nil
}

// Set binds key to value on the server.
func (c *Client) Set(key, value string) error {
	_, err := c.call(format.Request{Kind: format.ReqSet, Key: key, Value: value})
	return err
}

// Remove unbinds key on the server. Removing an absent key surfaces as
// a remote error carrying the server's not-found message.
func (c *Client) Remove(key string) error {
	_, err := c.call(format.Request{Kind: format.ReqRemove, Key: key})
	return err
}
