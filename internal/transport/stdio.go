package transport

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/wheattoast11/deepresearch-mcp/internal/mcpcore"
)

// RunStdio serves one MCP session over newline-delimited JSON on r/w,
// the transport Claude Desktop and most local MCP clients launch a
// server with. The parent process is trusted, so there is no session
// header negotiation and no auth: stdout carries nothing but JSON-RPC,
// and the caller is expected to route its own diagnostic logging to
// stderr (§4.8 "Stdio").
//
// RunStdio blocks until the reader returns EOF or another read error, or
// the context is cancelled. Write failures are logged and do not end it.
func RunStdio(ctx context.Context, core *mcpcore.Core, r io.Reader, w io.Writer, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "transport.stdio")

	out := &lineWriter{w: w}
	sess := mcpcore.NewSession(func(n *mcpcore.Notification) {
		if err := out.writeJSON(n); err != nil {
			logger.Error("failed to write notification", "error", err)
		}
	})

	reader := bufio.NewReaderSize(r, 1024*1024)
	readCh := make(chan lineResult, 1)
	go stdioReadLoop(reader, readCh)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case res, ok := <-readCh:
			if !ok {
				return nil
			}
			if res.err != nil {
				if errors.Is(res.err, io.EOF) {
					return nil
				}
				return res.err
			}
			if len(res.line) == 0 {
				continue
			}
			handleStdioLine(ctx, core, sess, out, res.line, logger)
		}
	}
}

type lineResult struct {
	line []byte
	err  error
}

func stdioReadLoop(reader *bufio.Reader, out chan<- lineResult) {
	defer close(out)
	for {
		line, err := reader.ReadBytes('\n')
		if len(line) > 0 {
			line = trimNewline(line)
		}
		out <- lineResult{line: line, err: err}
		if err != nil {
			return
		}
	}
}

func trimNewline(line []byte) []byte {
	if n := len(line); n > 0 && line[n-1] == '\n' {
		line = line[:n-1]
	}
	if n := len(line); n > 0 && line[n-1] == '\r' {
		line = line[:n-1]
	}
	return line
}

func handleStdioLine(ctx context.Context, core *mcpcore.Core, sess *mcpcore.Session, out *lineWriter, line []byte, logger *slog.Logger) {
	var req mcpcore.Request
	if err := json.Unmarshal(line, &req); err != nil {
		_ = out.writeJSON(map[string]any{
			"jsonrpc": "2.0",
			"error":   map[string]any{"code": mcpcore.RPCParseError, "message": "invalid JSON-RPC message"},
		})
		return
	}

	resp := core.Dispatch(ctx, sess, &req)
	if resp == nil {
		return
	}
	if err := out.writeJSON(resp); err != nil {
		logger.Error("failed to write response", "error", err)
	}
}

// lineWriter serializes writes of newline-terminated JSON values to the
// underlying writer; it is shared between the dispatch loop (responses)
// and the session's progress/logging notifications, which can fire from
// within a tool handler on the same goroutine as the in-flight request.
type lineWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lineWriter) writeJSON(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.w.Write(b); err != nil {
		return err
	}
	_, err = l.w.Write([]byte("\n"))
	return err
}
