// Package protocol implements the driver wire envelope: a
// length-prefixed MessagePack payload behind a fixed handshake. The core
// query engine never imports this package; it is the thin transport
// layer a network-facing driver front-end wraps around exec.Executor.
package protocol

import (
	"encoding/binary"
	"io"

	"github.com/hashicorp/go-msgpack/v2/codec"

	"github.com/solisoft/solidb/dberr"
	"github.com/solisoft/solidb/value"
)

// Magic is the fixed handshake both ends exchange before any envelope
// traffic.
const Magic = "solidb-drv-v1\x00"

// MaxMessageSize bounds a single envelope's encoded payload.
const MaxMessageSize = 16 * 1024 * 1024

var msgpackHandle = &codec.MsgpackHandle{}

// Handshake writes Magic to w, the client side of the driver handshake.
func Handshake(w io.Writer) error {
	_, err := io.WriteString(w, Magic)
	return err
}

// ExpectHandshake reads len(Magic) bytes from r and verifies they match
// Magic, the server side of the driver handshake.
func ExpectHandshake(r io.Reader) error {
	buf := make([]byte, len(Magic))
	if _, err := io.ReadFull(r, buf); err != nil {
		return dberr.Wrap(dberr.ProtocolError, err, "reading driver handshake")
	}
	if string(buf) != Magic {
		return dberr.New(dberr.ProtocolError, "unexpected handshake magic %q", buf)
	}
	return nil
}

// CommandKind identifies a driver command's payload shape.
type CommandKind string

const (
	CommandQuery CommandKind = "query"
	CommandPing  CommandKind = "ping"
	CommandBatch CommandKind = "batch"
)

// Command is one request frame's decoded payload: a DBQL query with its
// bind variables, a liveness ping, or a batch of further commands.
type Command struct {
	Kind     CommandKind            `codec:"kind"`
	Query    string                 `codec:"query,omitempty"`
	BindVars map[string]interface{} `codec:"bind_vars,omitempty"`
	Commands []Command              `codec:"commands,omitempty"`
}

// ResponseKind identifies which of the four response variants a
// Response carries.
type ResponseKind string

const (
	ResponseOk    ResponseKind = "ok"
	ResponseError ResponseKind = "error"
	ResponsePong  ResponseKind = "pong"
	ResponseBatch ResponseKind = "batch"
)

// Response is one reply frame. The four variants (`Ok`, `Error`, `Pong`,
// `Batch`) are carried as one tagged struct with Kind selecting which
// fields are meaningful, mirroring how value.Value itself is one tagged
// union rather than four wire shapes.
type Response struct {
	Kind ResponseKind `codec:"kind"`

	// Ok fields.
	Data  interface{} `codec:"data,omitempty"`
	Count *int64      `codec:"count,omitempty"`
	TxID  string      `codec:"tx_id,omitempty"`

	// Error fields.
	ErrorKind string `codec:"error_kind,omitempty"`
	Message   string `codec:"message,omitempty"`

	// Pong fields.
	TimestampMs int64 `codec:"timestamp_ms,omitempty"`

	// Batch fields.
	Responses []Response `codec:"responses,omitempty"`
}

// OkResponse builds an `Ok { data?, count?, tx_id? }` response from a
// query result.
func OkResponse(data value.Value, count *int64, txID string) Response {
	return Response{Kind: ResponseOk, Data: valueToGo(data), Count: count, TxID: txID}
}

// ErrorResponse builds an `Error { kind, message }` response, preferring
// the dberr.Kind the core already classified the failure under and
// falling back to Internal for errors it didn't tag.
func ErrorResponse(err error) Response {
	kind := dberr.Internal
	msg := err.Error()
	if derr, ok := err.(*dberr.Error); ok {
		kind = derr.Kind
		msg = derr.Message
	}
	return Response{Kind: ResponseError, ErrorKind: string(kind), Message: msg}
}

// PongResponse builds a `Pong { timestamp_ms }` response.
func PongResponse(timestampMs int64) Response {
	return Response{Kind: ResponsePong, TimestampMs: timestampMs}
}

// BatchResponse builds a `Batch { responses[] }` response.
func BatchResponse(responses []Response) Response {
	return Response{Kind: ResponseBatch, Responses: responses}
}

// WriteEnvelope MessagePack-encodes v and writes it behind a 4-byte
// big-endian length prefix.
func WriteEnvelope(w io.Writer, v interface{}) error {
	var buf []byte
	if err := codec.NewEncoderBytes(&buf, msgpackHandle).Encode(v); err != nil {
		return dberr.Wrap(dberr.ProtocolError, err, "encoding envelope payload")
	}
	if len(buf) > MaxMessageSize {
		return dberr.New(dberr.MessageTooLarge, "envelope payload %d bytes exceeds max %d", len(buf), MaxMessageSize)
	}
	var length [4]byte
	binary.BigEndian.PutUint32(length[:], uint32(len(buf)))
	if _, err := w.Write(length[:]); err != nil {
		return dberr.Wrap(dberr.ProtocolError, err, "writing envelope length")
	}
	_, err := w.Write(buf)
	return err
}

// ReadEnvelope reads one length-prefixed MessagePack payload from r and
// decodes it into v, rejecting anything past MaxMessageSize before it is
// read into memory.
func ReadEnvelope(r io.Reader, v interface{}) error {
	var length [4]byte
	if _, err := io.ReadFull(r, length[:]); err != nil {
		return dberr.Wrap(dberr.ProtocolError, err, "reading envelope length")
	}
	n := binary.BigEndian.Uint32(length[:])
	if n > MaxMessageSize {
		return dberr.New(dberr.MessageTooLarge, "envelope payload %d bytes exceeds max %d", n, MaxMessageSize)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return dberr.Wrap(dberr.ProtocolError, err, "reading envelope payload")
	}
	if err := codec.NewDecoderBytes(buf, msgpackHandle).Decode(v); err != nil {
		return dberr.Wrap(dberr.ProtocolError, err, "decoding envelope payload")
	}
	return nil
}

// valueToGo unwraps a Value tree into plain Go maps/slices/scalars so the
// msgpack codec (which only knows Go's built-in kinds) can encode it,
// the same flattening cmd/solidb's valueAsGo does for pp/v3.
func valueToGo(v value.Value) interface{} {
	switch v.Kind() {
	case value.KindArray:
		out := make([]interface{}, len(v.AsArray()))
		for i, e := range v.AsArray() {
			out[i] = valueToGo(e)
		}
		return out
	case value.KindObject:
		out := make(map[string]interface{}, len(v.Keys()))
		for _, k := range v.Keys() {
			fv, _ := v.Get(k)
			out[k] = valueToGo(fv)
		}
		return out
	case value.KindNull:
		return nil
	case value.KindBool:
		return v.AsBool()
	case value.KindInt:
		return v.AsInt()
	case value.KindFloat:
		return v.AsFloat()
	case value.KindString:
		return v.AsString()
	default:
		return v.String()
	}
}
