package main

import (
	"encoding/json"
	"fmt"
)

// ClientHandler dispatches one inbound frame. It runs on the
// connection's read pump, so frames from one sender are handled in
// arrival order and per-pair relay order matches send order.
func (n *Node) ClientHandler(c *Client, data []byte) {
	f := Frame{}
	defer func() {
		if err := recover(); err != nil {
			c.log.Errorf("handler panic:%v\n", err)
			c.push(errorFrame(f.TempID, fmt.Sprint(err)))
		}
	}()

	if err := json.Unmarshal(data, &f); err != nil {
		c.log.Errorf("handler:json unmarshal: %+v\n", err.Error())
		c.push(errorFrame("", "malformed frame"))
		return
	}

	switch f.Type {
	case FrameSendMessage:
		n.SendMessage(c, &f)
	case FrameTyping:
		n.RelayTyping(c.user, f.ReceiverID, true)
	case FrameStopTyping:
		n.RelayTyping(c.user, f.ReceiverID, false)
	default:
		c.log.Errorf("handler error: unknown type:%v\n", f.Type)
		c.push(errorFrame(f.TempID, "unknown frame type"))
	}
}

func errorFrame(tempID, msg string) []byte {
	f := Frame{Type: FrameError, TempID: tempID, Error: msg}
	return f.encode()
}
