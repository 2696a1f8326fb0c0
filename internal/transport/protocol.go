package transport

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/quic-go/quic-go/quicvarint"
)

// ALPN is the TLS application protocol negotiated by client and server.
const ALPN = "ctv/1"

// Message type IDs.
const (
	MsgFetch      uint64 = 0x01
	MsgStreamInfo uint64 = 0x02
	MsgFetchError uint64 = 0x03
	MsgList       uint64 = 0x04
	MsgListOK     uint64 = 0x05
)

// Error codes carried by FETCH_ERROR.
const (
	CodeNotFound   uint64 = 0x01
	CodeBadRequest uint64 = 0x02
	CodeInternal   uint64 = 0x03
)

// Fetch asks for the compressed stream stored under Name.
type Fetch struct {
	Name string
}

// StreamInfo answers a Fetch. Size raw bytes of the compressed stream follow
// the message on the same QUIC stream.
type StreamInfo struct {
	Framerate  uint32
	FrameCount uint32
	Size       uint64
}

// FetchError rejects a request.
type FetchError struct {
	Code   uint64
	Reason string
}

// ListEntry describes one stream in a ListOK.
type ListEntry struct {
	Name       string
	Framerate  uint32
	FrameCount uint32
	Size       uint64
}

// ReadMsg reads one control message from a ctv stream.
// Wire format: [message_type (varint)] [message_length (uint16 big-endian)] [payload].
// Every request and reply header is one such message. A FETCH reply's blob
// follows its STREAM_INFO unframed, so the 64 KiB bound applies to control
// data only. A short read is a *ParseError naming the field it cut: "type",
// "length" or "payload".
func ReadMsg(r io.Reader) (uint64, []byte, error) {
	br, ok := r.(byteReader)
	if !ok {
		br = bufio.NewReader(r)
	}
	msgType, err := quicvarint.Read(br)
	if err != nil {
		return 0, nil, &ParseError{Field: "type", Err: err}
	}
	var hdr [2]byte
	if _, err := io.ReadFull(br, hdr[:]); err != nil {
		return 0, nil, &ParseError{Field: "length", Err: err}
	}
	payload := make([]byte, binary.BigEndian.Uint16(hdr[:]))
	if _, err := io.ReadFull(br, payload); err != nil {
		return 0, nil, &ParseError{Field: "payload", Err: err}
	}
	return msgType, payload, nil
}

type byteReader interface {
	io.Reader
	io.ByteReader
}

// WriteMsg writes one message in a single Write call.
func WriteMsg(w io.Writer, msgType uint64, payload []byte) error {
	if len(payload) > math.MaxUint16 {
		return fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(payload))
	}
	buf := make([]byte, 0, quicvarint.Len(msgType)+2+len(payload))
	buf = quicvarint.Append(buf, msgType)
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(payload)))
	buf = append(buf, payload...)

	_, err := w.Write(buf)
	return err
}

// SerializeFetch serializes a FETCH payload.
func SerializeFetch(f Fetch) []byte {
	return appendVarIntBytes(nil, []byte(f.Name))
}

// ParseFetch parses a FETCH payload.
func ParseFetch(data []byte) (Fetch, error) {
	r := newBufReader(data)
	name, err := r.readVarIntBytes()
	if err != nil {
		return Fetch{}, &ParseError{Field: "name", Err: err}
	}
	return Fetch{Name: string(name)}, nil
}

// SerializeStreamInfo serializes a STREAM_INFO payload.
func SerializeStreamInfo(si StreamInfo) []byte {
	var buf []byte
	buf = quicvarint.Append(buf, uint64(si.Framerate))
	buf = quicvarint.Append(buf, uint64(si.FrameCount))
	buf = quicvarint.Append(buf, si.Size)
	return buf
}

// ParseStreamInfo parses a STREAM_INFO payload.
func ParseStreamInfo(data []byte) (StreamInfo, error) {
	r := newBufReader(data)
	var si StreamInfo

	framerate, err := r.readUint32()
	if err != nil {
		return si, &ParseError{Field: "framerate", Err: err}
	}
	frameCount, err := r.readUint32()
	if err != nil {
		return si, &ParseError{Field: "frame_count", Err: err}
	}
	size, err := r.readVarint()
	if err != nil {
		return si, &ParseError{Field: "size", Err: err}
	}
	si.Framerate, si.FrameCount, si.Size = framerate, frameCount, size
	return si, nil
}

// SerializeFetchError serializes a FETCH_ERROR payload.
func SerializeFetchError(fe FetchError) []byte {
	var buf []byte
	buf = quicvarint.Append(buf, fe.Code)
	buf = appendVarIntBytes(buf, []byte(fe.Reason))
	return buf
}

// ParseFetchError parses a FETCH_ERROR payload.
func ParseFetchError(data []byte) (FetchError, error) {
	r := newBufReader(data)
	var fe FetchError

	code, err := r.readVarint()
	if err != nil {
		return fe, &ParseError{Field: "code", Err: err}
	}
	reason, err := r.readVarIntBytes()
	if err != nil {
		return fe, &ParseError{Field: "reason", Err: err}
	}
	fe.Code, fe.Reason = code, string(reason)
	return fe, nil
}

// SerializeListOK serializes a LIST_OK payload.
func SerializeListOK(entries []ListEntry) []byte {
	var buf []byte
	buf = quicvarint.Append(buf, uint64(len(entries)))
	for _, e := range entries {
		buf = appendVarIntBytes(buf, []byte(e.Name))
		buf = quicvarint.Append(buf, uint64(e.Framerate))
		buf = quicvarint.Append(buf, uint64(e.FrameCount))
		buf = quicvarint.Append(buf, e.Size)
	}
	return buf
}

// ParseListOK parses a LIST_OK payload.
func ParseListOK(data []byte) ([]ListEntry, error) {
	r := newBufReader(data)
	count, err := r.readVarint()
	if err != nil {
		return nil, &ParseError{Field: "count", Err: err}
	}
	// Each entry takes at least four bytes, which bounds the allocation.
	if count > uint64(len(data)) {
		return nil, &ParseError{Field: "count", Err: io.ErrUnexpectedEOF}
	}

	entries := make([]ListEntry, 0, count)
	for i := uint64(0); i < count; i++ {
		var e ListEntry
		name, err := r.readVarIntBytes()
		if err != nil {
			return nil, &ParseError{Field: "name", Err: err}
		}
		e.Name = string(name)
		if e.Framerate, err = r.readUint32(); err != nil {
			return nil, &ParseError{Field: "framerate", Err: err}
		}
		if e.FrameCount, err = r.readUint32(); err != nil {
			return nil, &ParseError{Field: "frame_count", Err: err}
		}
		if e.Size, err = r.readVarint(); err != nil {
			return nil, &ParseError{Field: "size", Err: err}
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// appendVarIntBytes appends a varint-length-prefixed byte string to buf.
func appendVarIntBytes(buf []byte, data []byte) []byte {
	buf = quicvarint.Append(buf, uint64(len(data)))
	return append(buf, data...)
}

// bufReader wraps a byte slice for sequential varint reading.
type bufReader struct {
	data []byte
	pos  int
}

func newBufReader(data []byte) *bufReader {
	return &bufReader{data: data}
}

// readVarint reads a QUIC variable-length integer. Counts, sizes and codes
// in every ctv payload use this encoding; running off the end of the
// payload is always io.ErrUnexpectedEOF.
func (b *bufReader) readVarint() (uint64, error) {
	val, n, err := quicvarint.Parse(b.data[b.pos:])
	if err != nil {
		return 0, io.ErrUnexpectedEOF
	}
	b.pos += n
	return val, nil
}

func (b *bufReader) readUint32() (uint32, error) {
	v, err := b.readVarint()
	if err != nil {
		return 0, err
	}
	if v > math.MaxUint32 {
		return 0, fmt.Errorf("value %d overflows uint32", v)
	}
	return uint32(v), nil
}

func (b *bufReader) readVarIntBytes() ([]byte, error) {
	length, err := b.readVarint()
	if err != nil {
		return nil, err
	}
	if length > uint64(len(b.data)-b.pos) {
		return nil, io.ErrUnexpectedEOF
	}
	data := b.data[b.pos : b.pos+int(length)]
	b.pos += int(length)
	return data, nil
}
