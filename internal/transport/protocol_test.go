package transport

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/quic-go/quic-go/quicvarint"
)

func TestMsgRoundTrip(t *testing.T) {
	t.Parallel()
	payload := SerializeFetch(Fetch{Name: "intro"})
	var buf bytes.Buffer
	if err := WriteMsg(&buf, MsgFetch, payload); err != nil {
		t.Fatal(err)
	}

	msgType, got, err := ReadMsg(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if msgType != MsgFetch {
		t.Fatalf("message type = %#x, want %#x", msgType, MsgFetch)
	}
	f, err := ParseFetch(got)
	if err != nil {
		t.Fatal(err)
	}
	if f.Name != "intro" {
		t.Fatalf("name = %q, want %q", f.Name, "intro")
	}
}

func TestMsgEmptyPayload(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	if err := WriteMsg(&buf, MsgList, nil); err != nil {
		t.Fatal(err)
	}
	if buf.Len() != 3 {
		t.Fatalf("encoded length = %d, want 3", buf.Len())
	}

	msgType, got, err := ReadMsg(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if msgType != MsgList || len(got) != 0 {
		t.Fatalf("got (%#x, %d bytes), want (%#x, 0 bytes)", msgType, len(got), MsgList)
	}
}

func TestMsgPayloadTooLarge(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	err := WriteMsg(&buf, MsgListOK, make([]byte, 1<<16))
	if !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("err = %v, want ErrPayloadTooLarge", err)
	}
	if buf.Len() != 0 {
		t.Fatal("oversized message was partially written")
	}
}

func TestMsgTruncated(t *testing.T) {
	t.Parallel()

	full := quicvarint.Append(nil, 0x4000)
	full = binary.BigEndian.AppendUint16(full, 10)
	full = append(full, 1, 2, 3)

	tests := []struct {
		cut   int
		field string
	}{
		{0, "type"},
		{1, "type"},
		{2, "type"},
		{3, "type"},
		{4, "length"},
		{5, "length"},
		{6, "payload"},
		{len(full), "payload"},
	}
	for _, tt := range tests {
		_, _, err := ReadMsg(bytes.NewReader(full[:tt.cut]))
		var pe *ParseError
		if !errors.As(err, &pe) {
			t.Fatalf("cut at %d: err = %v, want *ParseError", tt.cut, err)
		}
		if pe.Field != tt.field {
			t.Errorf("cut at %d: field = %q, want %q", tt.cut, pe.Field, tt.field)
		}
	}
	if _, _, err := ReadMsg(bytes.NewReader(full)); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("short payload: err = %v, want io.ErrUnexpectedEOF", err)
	}
}

func TestMsgReadsFromPlainReader(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	if err := WriteMsg(&buf, MsgFetch, SerializeFetch(Fetch{Name: "a"})); err != nil {
		t.Fatal(err)
	}
	msgType, payload, err := ReadMsg(io.MultiReader(&buf))
	if err != nil {
		t.Fatal(err)
	}
	if msgType != MsgFetch || len(payload) != 2 {
		t.Fatalf("got (%#x, %d bytes), want (%#x, 2 bytes)", msgType, len(payload), MsgFetch)
	}
}

func TestStreamInfoRoundTrip(t *testing.T) {
	t.Parallel()
	want := StreamInfo{Framerate: 30, FrameCount: 1 << 20, Size: 1 << 33}
	got, err := ParseStreamInfo(SerializeStreamInfo(want))
	if err != nil {
		t.Fatal(err)
	}
	if got != want {
		t.Fatalf("StreamInfo = %+v, want %+v", got, want)
	}
}

func TestStreamInfoOverflow(t *testing.T) {
	t.Parallel()
	var buf []byte
	buf = quicvarint.Append(buf, 1<<32)
	buf = quicvarint.Append(buf, 0)
	buf = quicvarint.Append(buf, 0)

	_, err := ParseStreamInfo(buf)
	var pe *ParseError
	if !errors.As(err, &pe) || pe.Field != "framerate" {
		t.Fatalf("err = %v, want ParseError on framerate", err)
	}
}

func TestFetchErrorRoundTrip(t *testing.T) {
	t.Parallel()
	want := FetchError{Code: CodeNotFound, Reason: "stream not found"}
	got, err := ParseFetchError(SerializeFetchError(want))
	if err != nil {
		t.Fatal(err)
	}
	if got != want {
		t.Fatalf("FetchError = %+v, want %+v", got, want)
	}

	re := &RemoteError{FetchError: got}
	if !errors.Is(re, ErrNotFound) {
		t.Error("not-found remote error should match ErrNotFound")
	}
	if errors.Is(&RemoteError{FetchError: FetchError{Code: CodeInternal}}, ErrNotFound) {
		t.Error("internal remote error should not match ErrNotFound")
	}
}

func TestListOKRoundTrip(t *testing.T) {
	t.Parallel()
	want := []ListEntry{
		{Name: "a", Framerate: 24, FrameCount: 100, Size: 5000},
		{Name: "bee", Framerate: 60, FrameCount: 1, Size: 20},
	}
	got, err := ParseListOK(SerializeListOK(want))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("entry %d = %+v, want %+v", i, got[i], want[i])
		}
	}

	empty, err := ParseListOK(SerializeListOK(nil))
	if err != nil || len(empty) != 0 {
		t.Fatalf("empty list = %v, %v", empty, err)
	}
}

func TestParseErrors(t *testing.T) {
	t.Parallel()
	huge := quicvarint.Append(nil, 1000)

	tests := []struct {
		name  string
		parse func() error
		field string
	}{
		{"fetch empty", func() error { _, err := ParseFetch(nil); return err }, "name"},
		{"fetch short name", func() error { _, err := ParseFetch(append(quicvarint.Append(nil, 5), 'a')); return err }, "name"},
		{"stream info empty", func() error { _, err := ParseStreamInfo(nil); return err }, "framerate"},
		{"fetch error no reason", func() error { _, err := ParseFetchError(quicvarint.Append(nil, 1)); return err }, "reason"},
		{"list count too large", func() error { _, err := ParseListOK(huge); return err }, "count"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.parse()
			var pe *ParseError
			if !errors.As(err, &pe) {
				t.Fatalf("err = %v, want *ParseError", err)
			}
			if pe.Field != tt.field {
				t.Errorf("field = %q, want %q", pe.Field, tt.field)
			}
			if !strings.HasPrefix(pe.Error(), "transport: parse ") {
				t.Errorf("Error() = %q", pe.Error())
			}
		})
	}
}

func FuzzParseListOK(f *testing.F) {
	f.Add(SerializeListOK([]ListEntry{{Name: "x", Framerate: 1, FrameCount: 2, Size: 3}}))
	f.Add([]byte{})
	f.Add([]byte{0xff})
	f.Fuzz(func(t *testing.T, data []byte) {
		ParseListOK(data)
		ParseStreamInfo(data)
		ParseFetchError(data)
	})
}
