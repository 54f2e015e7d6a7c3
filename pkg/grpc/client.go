package grpc

import (
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"
)

// dialTimeout bounds connection establishment. Clients dial lazily on the
// request path, so a blackholed address must fail fast rather than hang a
// request for the OS connect timeout.
const dialTimeout = 3 * time.Second

// Client issues calls over a single persistent connection. Calls are
// serialised, so each reply pairs with the one request in flight.
type Client struct {
	mu     sync.Mutex
	conn   net.Conn
	enc    *json.Encoder
	dec    *json.Decoder
	nextID int64
}

// Dial connects to the RPC server at addr.
func Dial(addr string) (*Client, error) {
	conn, err := net.DialTimeout("tcp", addr, dialTimeout)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return &Client{
		conn: conn,
		enc:  json.NewEncoder(conn),
		dec:  json.NewDecoder(conn),
	}, nil
}

// Call invokes method with params and decodes the reply into result, which
// may be nil when only success matters. Safe for concurrent use.
func (c *Client) Call(method string, params, result any) error {
	raw, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("encode params: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextID++
	req := Request{Method: method, ID: strconv.FormatInt(c.nextID, 10), Params: raw}
	if err := c.enc.Encode(req); err != nil {
		return fmt.Errorf("send %s: %w", method, err)
	}

	var resp Response
	if err := c.dec.Decode(&resp); err != nil {
		return fmt.Errorf("read %s reply: %w", method, err)
	}
	if resp.ID != req.ID {
		return fmt.Errorf("%s reply id %q does not match request id %q", method, resp.ID, req.ID)
	}
	if resp.Error != "" {
		return fmt.Errorf("rpc %s: %s", method, resp.Error)
	}
	if result != nil && len(resp.Data) > 0 {
		if err := json.Unmarshal(resp.Data, result); err != nil {
			return fmt.Errorf("decode %s reply: %w", method, err)
		}
	}
	return nil
}

// Close closes the connection. A Call blocked on a read returns with an
// error once the connection drops.
func (c *Client) Close() error {
	return c.conn.Close()
}
