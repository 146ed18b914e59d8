// ABOUTME: Tool-invocation entry point consumed by the MCP layer.
// ABOUTME: Assigns a correlation id, routes the command, and awaits the single reply.

package bridge

import (
	"context"
	"errors"
)

// ErrChannelClosed indicates the reply channel was dropped without ever
// delivering a value.
var ErrChannelClosed = errors.New("reply channel closed without a response")

// Submit routes a tool call and blocks until its single reply arrives or
// ctx is done. It carries no timeout of its own: the long-poll deadline on
// the delivering side and the forwarder's transport timeout bound the wait.
func (s *State) Submit(ctx context.Context, args ToolArgs) (string, error) {
	cmd, id := NewCommand(args)
	reply := make(chan Reply, 1)
	if err := s.PushToolCall(cmd, reply); err != nil {
		return "", err
	}
	s.logger.Debug("awaiting tool response", "tool", args.Name(), "id", id)

	select {
	case r, ok := <-reply:
		if !ok {
			return "", ErrChannelClosed
		}
		return r.Text, r.Err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
