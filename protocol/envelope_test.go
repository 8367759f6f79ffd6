package protocol

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/solisoft/solidb/dberr"
	"github.com/solisoft/solidb/value"
)

func TestHandshakeRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	if err := Handshake(&buf); err != nil {
		t.Fatal(err)
	}
	if err := ExpectHandshake(&buf); err != nil {
		t.Errorf("ExpectHandshake: %v", err)
	}
}

func TestHandshakeRejectsWrongMagic(t *testing.T) {
	buf := bytes.NewBufferString("not-the-magic-xx")
	err := ExpectHandshake(buf)
	if !dberr.Is(err, dberr.ProtocolError) {
		t.Errorf("err = %v, want ProtocolError", err)
	}
}

func TestEnvelopeRoundTrip(t *testing.T) {
	cmd := Command{
		Kind:     CommandQuery,
		Query:    "FOR d IN users RETURN d",
		BindVars: map[string]interface{}{"minAge": int64(30)},
	}
	var buf bytes.Buffer
	if err := WriteEnvelope(&buf, cmd); err != nil {
		t.Fatal(err)
	}
	var got Command
	if err := ReadEnvelope(&buf, &got); err != nil {
		t.Fatal(err)
	}
	if got.Kind != CommandQuery || got.Query != cmd.Query {
		t.Errorf("got %+v", got)
	}
}

func TestBatchCommandRoundTrip(t *testing.T) {
	cmd := Command{
		Kind: CommandBatch,
		Commands: []Command{
			{Kind: CommandPing},
			{Kind: CommandQuery, Query: "RETURN 1"},
		},
	}
	var buf bytes.Buffer
	if err := WriteEnvelope(&buf, cmd); err != nil {
		t.Fatal(err)
	}
	var got Command
	if err := ReadEnvelope(&buf, &got); err != nil {
		t.Fatal(err)
	}
	if len(got.Commands) != 2 || got.Commands[0].Kind != CommandPing {
		t.Errorf("got %+v", got)
	}
}

func TestReadEnvelopeRejectsOversizedFrame(t *testing.T) {
	var length [4]byte
	binary.BigEndian.PutUint32(length[:], MaxMessageSize+1)
	buf := bytes.NewBuffer(length[:])
	var v map[string]interface{}
	err := ReadEnvelope(buf, &v)
	if !dberr.Is(err, dberr.MessageTooLarge) {
		t.Errorf("err = %v, want MessageTooLarge", err)
	}
}

func TestErrorResponseCarriesKind(t *testing.T) {
	resp := ErrorResponse(dberr.New(dberr.ParseError, "bad token"))
	if resp.Kind != ResponseError || resp.ErrorKind != string(dberr.ParseError) {
		t.Errorf("resp = %+v", resp)
	}
	if resp.Message != "bad token" {
		t.Errorf("message = %q", resp.Message)
	}
}

func TestErrorResponseFallsBackToInternal(t *testing.T) {
	resp := ErrorResponse(bytes.ErrTooLarge)
	if resp.ErrorKind != string(dberr.Internal) {
		t.Errorf("kind = %q, want Internal", resp.ErrorKind)
	}
}

func TestOkResponseFlattensValues(t *testing.T) {
	arr := value.Array([]value.Value{
		value.Object([]string{"n"}, []value.Value{value.Int(1)}),
	})
	count := int64(1)
	resp := OkResponse(arr, &count, "")
	var buf bytes.Buffer
	if err := WriteEnvelope(&buf, resp); err != nil {
		t.Fatalf("ok response should encode as plain msgpack types: %v", err)
	}
	var got Response
	if err := ReadEnvelope(&buf, &got); err != nil {
		t.Fatal(err)
	}
	if got.Kind != ResponseOk || got.Count == nil || *got.Count != 1 {
		t.Errorf("got %+v", got)
	}
}

func TestPongResponse(t *testing.T) {
	resp := PongResponse(1700000000000)
	if resp.Kind != ResponsePong || resp.TimestampMs != 1700000000000 {
		t.Errorf("resp = %+v", resp)
	}
}
