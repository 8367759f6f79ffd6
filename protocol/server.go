package protocol

import (
	"context"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/solisoft/solidb/util"
)

// Handler executes a decoded query Command and produces a Response. It is the
// boundary between this package's wire framing and whatever interprets
// Command.Query, normally the DBQL executor. Ping and Batch commands are
// handled by Serve itself and never reach a Handler.
type Handler func(ctx context.Context, cmd Command) Response

// Serve accepts connections on ln and runs the driver protocol on each
// until ctx is cancelled or ln.Accept fails, the same accept-loop shape
// as net/http's Server.Serve.
func Serve(ctx context.Context, ln net.Listener, handle Handler) error {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
				return err
			}
		}
		go serveConn(ctx, conn, handle)
	}
}

func serveConn(ctx context.Context, conn net.Conn, handle Handler) {
	defer conn.Close()
	if err := ExpectHandshake(conn); err != nil {
		slog.Warn("driver handshake rejected", "remote", conn.RemoteAddr(), "error", err)
		return
	}
	if err := Handshake(conn); err != nil {
		return
	}
	for {
		var cmd Command
		if err := ReadEnvelope(conn, &cmd); err != nil {
			if err != io.EOF {
				slog.Debug("driver connection closed", "remote", conn.RemoteAddr(), "error", err)
			}
			return
		}
		if err := WriteEnvelope(conn, dispatch(ctx, cmd, handle)); err != nil {
			return
		}
	}
}

func dispatch(ctx context.Context, cmd Command, handle Handler) Response {
	switch cmd.Kind {
	case CommandPing:
		return PongResponse(time.Now().UnixMilli())
	case CommandBatch:
		return BatchResponse(util.TransformSlice(cmd.Commands, func(c Command) Response {
			return dispatch(ctx, c, handle)
		}))
	default:
		return handle(ctx, cmd)
	}
}
