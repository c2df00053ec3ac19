package fastview

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	channerics "github.com/niceyeti/channerics/channels"
	"golang.org/x/sync/errgroup"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 1 * time.Second
	// Maximum message size allowed from peer.
	maxMessageSize = 8192

	// The rate at which updates are sent to the client, so as not to overburden it.
	pubResolution  = time.Millisecond * 100
	pingResolution = time.Millisecond * 200
	// The number of pings to tolerate losing before concluding the peer is gone.
	pongWait = pingResolution * 4
)

var upgrader = websocket.Upgrader{}

// Client publishes ele-updates unidirectionally to one browser over a websocket.
// Updates arriving faster than the publication rate are coalesced per element; only the
// latest update of each element is sent on the next tick.
type Client struct {
	updates <-chan []EleUpdate
	ws      *websock
	rootCtx context.Context
}

// NewClient upgrades the request to a websocket and returns a client publishing updates on it.
func NewClient(
	updates <-chan []EleUpdate,
	w http.ResponseWriter,
	r *http.Request,
) (*Client, error) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("upgrade: %w", err)
	}
	ws.SetReadLimit(maxMessageSize)

	return &Client{
		updates: updates,
		ws:      newWebSocket(ws),
		rootCtx: r.Context(),
	}, nil
}

// Sync runs the read, ping and publish loops until the client disconnects, the updates
// channel closes or an unexpected error occurs. A normal disconnect returns nil.
func (cli *Client) Sync() error {
	defer cli.ws.Close()

	group, groupCtx := errgroup.WithContext(cli.rootCtx)
	group.Go(func() error {
		return cli.readMessages(groupCtx)
	})
	group.Go(func() error {
		return cli.pingPong(groupCtx)
	})
	group.Go(func() error {
		return cli.publish(groupCtx)
	})

	if err := group.Wait(); err != nil && !isClosure(err) && !errors.Is(err, errPublisherDone) {
		return err
	}
	return nil
}

var (
	ErrPongDeadlineExceeded error = errors.New("client disconnect, pong deadline exceeded")
	// errPublisherDone stops the sibling loops once the update source is exhausted.
	errPublisherDone = errors.New("publisher done")
)

// Runs the ping-pong for the client liveness check.
// NOTE: this requires readMessages to be running so that the pong handler is called.
func (cli *Client) pingPong(ctx context.Context) error {
	pong := make(chan struct{}, 1)
	cli.ws.Conn().SetPongHandler(func(_ string) error {
		select {
		case pong <- struct{}{}:
		default:
		}
		return nil
	})

	pinger := channerics.NewTicker(ctx.Done(), pingResolution)
	lastPong := time.Now()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-pinger:
			if time.Since(lastPong) > pongWait {
				return ErrPongDeadlineExceeded
			}
			if err := cli.ping(ctx); err != nil {
				return err
			}
		case <-pong:
			lastPong = time.Now()
		}
	}
}

func (cli *Client) ping(ctx context.Context) error {
	return cli.ws.Write(
		ctx,
		func(ws *websocket.Conn) (err error) {
			if err = ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				if isError(err) {
					err = fmt.Errorf("ping failed: %w", err)
				}
			}
			return
		})
}

// readMessages drains client messages. Errors returned by websocket Read methods are
// permanent, hence any error must trigger full teardown.
func (cli *Client) readMessages(ctx context.Context) error {
	// Unblock the pending read once the group is torn down.
	stop := context.AfterFunc(ctx, func() {
		_ = cli.ws.Conn().SetReadDeadline(time.Now())
	})
	defer stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		_, _, err := cli.ws.Conn().ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

func (cli *Client) publish(ctx context.Context) error {
	pending := newCoalescer()
	ticker := channerics.NewTicker(ctx.Done(), pubResolution)
	for {
		select {
		case <-ctx.Done():
			return nil
		case updates, ok := <-cli.updates:
			if !ok {
				if !pending.empty() {
					if err := cli.send(ctx, pending.take()); err != nil {
						return err
					}
				}
				return errPublisherDone
			}
			pending.add(updates)
		case <-ticker:
			if pending.empty() {
				break
			}
			if err := cli.send(ctx, pending.take()); err != nil {
				return err
			}
		}
	}
}

func (cli *Client) send(ctx context.Context, updates []EleUpdate) error {
	return cli.ws.Write(
		ctx,
		func(ws *websocket.Conn) (writeErr error) {
			if writeErr = ws.SetWriteDeadline(time.Now().Add(writeWait)); writeErr != nil {
				return fmt.Errorf("failed to set deadline: %w", writeErr)
			}
			if writeErr = ws.WriteJSON(updates); writeErr != nil && isError(writeErr) {
				writeErr = fmt.Errorf("publish failed: %w", writeErr)
			}
			return
		})
}

func isError(err error) bool {
	return err != nil && websocket.IsUnexpectedCloseError(
		err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway)
}

func isClosure(err error) bool {
	return err != nil && websocket.IsCloseError(
		err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway)
}

// ErrSockCongestion indicates there are too many waiters on the socket for a given op.
var ErrSockCongestion = errors.New("sock op failed due to congestion")

const (
	writeDeadline    = time.Second
	closeGracePeriod = time.Second
)

// websock serializes writes to the websocket, which allows only one concurrent writer.
// Reads happen on a single goroutine and need no guard.
type websock struct {
	// A mutex, but channel semantics allow timing out.
	writeSem chan struct{}
	ws       *websocket.Conn
}

func newWebSocket(ws *websocket.Conn) *websock {
	return &websock{
		writeSem: make(chan struct{}, 1),
		ws:       ws,
	}
}

// Conn returns the underlying websocket.
// This should only be used for setup, e.g. adding handlers, or by the single reader.
func (sock *websock) Conn() *websocket.Conn {
	return sock.ws
}

// Close sends a close frame and closes the connection once no writer holds the socket.
func (sock *websock) Close() {
	sock.writeSem <- struct{}{}
	defer func() { <-sock.writeSem }()

	_ = sock.ws.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(closeGracePeriod))
	sock.ws.Close()
}

// Write serializes write operations to the websocket.
func (sock *websock) Write(
	ctx context.Context,
	writeFn func(*websocket.Conn) error,
) error {
	select {
	case <-ctx.Done():
		return nil
	case sock.writeSem <- struct{}{}:
		defer func() { <-sock.writeSem }()
		return writeFn(sock.ws)
	case <-time.After(writeDeadline):
		return ErrSockCongestion
	}
}
