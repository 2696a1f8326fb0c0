package transport

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/quic-go/quic-go"

	"github.com/zsiec/ctv/internal/certs"
	"github.com/zsiec/ctv/internal/ctv"
)

// DefaultMaxBlobSize caps the compressed stream a client accepts.
const DefaultMaxBlobSize = 1 << 30

const streamCodeCancelled quic.StreamErrorCode = 0x10

// Client issues requests over a single QUIC connection.
type Client struct {
	conn        quic.Connection
	log         *slog.Logger
	MaxBlobSize uint64
}

// Dial connects to addr, accepting only a server certificate whose SHA-256
// matches fingerprint. If log is nil, slog.Default() is used.
func Dial(ctx context.Context, addr string, fingerprint [32]byte, log *slog.Logger) (*Client, error) {
	if log == nil {
		log = slog.Default()
	}
	conn, err := quic.DialAddr(ctx, addr, certs.ClientConfig(fingerprint, ALPN), &quic.Config{
		MaxIdleTimeout: 30 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", addr, err)
	}
	return &Client{
		conn:        conn,
		log:         log.With("component", "transport-client", "remote", addr),
		MaxBlobSize: DefaultMaxBlobSize,
	}, nil
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.CloseWithError(connCodeShutdown, "")
}

// Fetch downloads the compressed stream stored under name.
func (c *Client) Fetch(ctx context.Context, name string) (StreamInfo, []byte, error) {
	var info StreamInfo
	br, done, err := c.request(ctx, MsgFetch, SerializeFetch(Fetch{Name: name}))
	if err != nil {
		return info, nil, err
	}
	defer done()

	msgType, payload, err := ReadMsg(br)
	if err != nil {
		return info, nil, fmt.Errorf("transport: fetch %s: %w", name, err)
	}
	switch msgType {
	case MsgStreamInfo:
		info, err = ParseStreamInfo(payload)
		if err != nil {
			return info, nil, err
		}
	case MsgFetchError:
		return info, nil, remoteError(payload)
	default:
		return info, nil, fmt.Errorf("%w %#x in reply to fetch", ErrUnexpectedMsg, msgType)
	}

	if info.Size > c.MaxBlobSize {
		return info, nil, fmt.Errorf("%w: %d > %d bytes", ErrBlobTooLarge, info.Size, c.MaxBlobSize)
	}
	blob := make([]byte, info.Size)
	if _, err := io.ReadFull(br, blob); err != nil {
		return info, nil, fmt.Errorf("transport: fetch %s: read stream: %w", name, err)
	}
	c.log.Debug("stream fetched", "name", name, "bytes", len(blob), "frames", info.FrameCount)
	return info, blob, nil
}

// FetchDecoder downloads name and prepares a decoder for it.
func (c *Client) FetchDecoder(ctx context.Context, name string) (*ctv.Decoder, error) {
	_, blob, err := c.Fetch(ctx, name)
	if err != nil {
		return nil, err
	}
	return ctv.Decompress(blob)
}

// List returns the streams the server offers.
func (c *Client) List(ctx context.Context) ([]ListEntry, error) {
	br, done, err := c.request(ctx, MsgList, nil)
	if err != nil {
		return nil, err
	}
	defer done()

	msgType, payload, err := ReadMsg(br)
	if err != nil {
		return nil, fmt.Errorf("transport: list: %w", err)
	}
	switch msgType {
	case MsgListOK:
		return ParseListOK(payload)
	case MsgFetchError:
		return nil, remoteError(payload)
	default:
		return nil, fmt.Errorf("%w %#x in reply to list", ErrUnexpectedMsg, msgType)
	}
}

// request opens a stream, sends one message and closes the send side. The
// returned func releases the stream; cancelling ctx aborts it.
func (c *Client) request(ctx context.Context, msgType uint64, payload []byte) (*bufio.Reader, func(), error) {
	str, err := c.conn.OpenStreamSync(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("transport: open stream: %w", err)
	}
	stop := context.AfterFunc(ctx, func() {
		str.CancelRead(streamCodeCancelled)
		str.CancelWrite(streamCodeCancelled)
	})
	done := func() {
		stop()
		str.CancelRead(0)
	}

	if err := WriteMsg(str, msgType, payload); err != nil {
		done()
		return nil, nil, fmt.Errorf("transport: write request: %w", err)
	}
	if err := str.Close(); err != nil {
		done()
		return nil, nil, fmt.Errorf("transport: close request: %w", err)
	}
	return bufio.NewReader(str), done, nil
}

func remoteError(payload []byte) error {
	fe, err := ParseFetchError(payload)
	if err != nil {
		return err
	}
	return &RemoteError{FetchError: fe}
}
