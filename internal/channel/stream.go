package channel

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// MaxMessageSize caps one envelope on the stream and HTTP transports.
const MaxMessageSize = 1 << 20

// Envelope is a call addressed to a channel.
type Envelope struct {
	ID        json.RawMessage `json:"id,omitempty"`
	Channel   string          `json:"channel"`
	Method    string          `json:"method"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// Response is the wire form of a Reply.
type Response struct {
	ID      json.RawMessage `json:"id,omitempty"`
	Channel string          `json:"channel"`
	Status  Status          `json:"status"`
	Result  any             `json:"result"`
	Error   *ErrorPayload   `json:"error,omitempty"`
}

func newResponse(env Envelope, reply Reply) Response {
	return Response{
		ID:      env.ID,
		Channel: env.Channel,
		Status:  reply.Status,
		Result:  reply.Result,
		Error:   reply.Error,
	}
}

func badEnvelope(id json.RawMessage, detail string) Response {
	return Response{
		ID:     id,
		Status: StatusError,
		Error:  &ErrorPayload{Code: CodeBadEnvelope, Message: detail},
	}
}

// Dispatch decodes one envelope, delivers it and returns the response.
func (m *Messenger) Dispatch(ctx context.Context, raw []byte) Response {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return badEnvelope(nil, fmt.Sprintf("invalid envelope: %v", err))
	}
	if env.Channel == "" || env.Method == "" {
		return badEnvelope(env.ID, "envelope requires channel and method")
	}

	reply := m.Send(ctx, env.Channel, MethodCall{Method: env.Method, Arguments: env.Arguments})
	return newResponse(env, reply)
}

// ServeStream answers line-delimited JSON envelopes from r on w until r is
// exhausted or ctx is cancelled. Blank lines are skipped. Requests are handled
// in order, one at a time.
//
// Lines are read on a separate goroutine so cancellation does not wait for
// input. After a cancelled return that goroutine stays blocked in r until r
// yields or is closed.
func (m *Messenger) ServeStream(ctx context.Context, r io.Reader, w io.Writer) error {
	lines := make(chan streamLine)
	done := make(chan struct{})
	defer close(done)
	go readLines(bufio.NewReader(r), lines, done)

	enc := json.NewEncoder(w)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		var next streamLine
		select {
		case <-ctx.Done():
			return ctx.Err()
		case next = <-lines:
		}

		var resp Response
		switch err := next.err; {
		case errors.Is(err, io.EOF):
			return nil
		case errors.Is(err, errMessageTooLarge):
			resp = badEnvelope(nil, err.Error())
		case err != nil:
			return fmt.Errorf("read envelope: %w", err)
		case len(next.line) == 0:
			continue
		default:
			resp = m.Dispatch(ctx, next.line)
		}

		if err := enc.Encode(resp); err != nil {
			return fmt.Errorf("write response: %w", err)
		}
	}
}

// streamLine is one read result handed from readLines to ServeStream.
type streamLine struct {
	line []byte
	err  error
}

// readLines feeds lines into out until a read fails or done is closed.
// Oversized lines are reported and reading continues.
func readLines(reader *bufio.Reader, out chan<- streamLine, done <-chan struct{}) {
	for {
		line, err := readLine(reader)
		select {
		case out <- streamLine{line: line, err: err}:
		case <-done:
			return
		}
		if err != nil && !errors.Is(err, errMessageTooLarge) {
			return
		}
	}
}

var errMessageTooLarge = fmt.Errorf("envelope exceeds %d bytes", MaxMessageSize)

// readLine returns the next trimmed line. An overlong line is consumed and
// reported as errMessageTooLarge, including one cut short by EOF.
func readLine(reader *bufio.Reader) ([]byte, error) {
	var buf []byte
	tooLarge := false

	for {
		chunk, isPrefix, err := reader.ReadLine()
		if err != nil {
			if errors.Is(err, io.EOF) {
				if tooLarge {
					return nil, errMessageTooLarge
				}
				if len(buf) > 0 {
					return bytes.TrimSpace(buf), nil
				}
			}
			return nil, err
		}

		if !tooLarge {
			buf = append(buf, chunk...)
			if len(buf) > MaxMessageSize {
				tooLarge = true
				buf = nil
			}
		}

		if !isPrefix {
			break
		}
	}

	if tooLarge {
		return nil, errMessageTooLarge
	}
	return bytes.TrimSpace(buf), nil
}
