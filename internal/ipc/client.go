package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/flo-mic/niri-single-output/internal/api"
)

// maxReplySize bounds a single reply line. An Outputs reply for a
// handful of monitors with all their modes is well under this.
const maxReplySize = 4 * 1024 * 1024

// Client talks to the niri socket. Each Send opens a new connection,
// writes one request line, reads one reply line and closes the
// connection, which is how niri serves non-streaming requests.
type Client struct {
	socketPath string
}

// New returns a client for the socket at socketPath. The path is not
// checked until the first Send.
func New(socketPath string) *Client {
	return &Client{socketPath: socketPath}
}

// SocketPath returns the socket the client dials.
func (c *Client) SocketPath() string {
	return c.socketPath
}

// Send writes req and returns the Ok payload of the reply.
//
// Errors match ErrConnectionFailed when the socket cannot be reached,
// ErrProtocol when the reply cannot be read or decoded, and
// ErrRequestRejected (as a *RejectedError) when niri answers with Err.
func (c *Client) Send(ctx context.Context, req api.Request) (json.RawMessage, error) {
	if c.socketPath == "" {
		return nil, fmt.Errorf("%w: no socket path (is NIRI_SOCKET set?)", ErrConnectionFailed)
	}

	line, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encoding %s request: %w", req.Kind(), err)
	}
	line = append(line, '\n')

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "unix", c.socketPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrConnectionFailed, c.socketPath, err)
	}
	defer conn.Close()

	// Unblock reads and writes when the caller gives up.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	if _, err := conn.Write(line); err != nil {
		return nil, fmt.Errorf("%w: writing %s request: %v", ErrConnectionFailed, req.Kind(), err)
	}

	reader := bufio.NewReader(io.LimitReader(conn, maxReplySize))
	replyLine, err := reader.ReadBytes('\n')
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: %s reply: connection closed before a full line", ErrProtocol, req.Kind())
		}
		return nil, fmt.Errorf("%w: reading %s reply: %v", ErrProtocol, req.Kind(), err)
	}

	return decodeReply(req, replyLine)
}

func decodeReply(req api.Request, line []byte) (json.RawMessage, error) {
	var reply api.Reply
	if err := json.Unmarshal(line, &reply); err != nil {
		return nil, fmt.Errorf("%w: decoding %s reply: %v", ErrProtocol, req.Kind(), err)
	}
	hasOk := len(reply.Ok) > 0
	switch {
	case hasOk && reply.Err != nil:
		return nil, fmt.Errorf("%w: %s reply has both Ok and Err", ErrProtocol, req.Kind())
	case reply.Err != nil:
		return nil, &RejectedError{Request: req.Kind(), Message: *reply.Err}
	case !hasOk:
		return nil, fmt.Errorf("%w: %s reply has neither Ok nor Err", ErrProtocol, req.Kind())
	}
	return reply.Ok, nil
}
