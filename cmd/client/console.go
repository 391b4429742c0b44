package main

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/gookit/color"
	"github.com/omkarshukla84/klymo-client/domain"
)

// console serialises terminal output between the update listener and the
// command loop.
type console struct {
	mu       sync.Mutex
	out      io.Writer
	deviceID string
}

func newConsole(out io.Writer, deviceID string) *console {
	return &console{out: out, deviceID: deviceID}
}

func (c *console) print(style color.Style, format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = fmt.Fprintln(c.out, style.Sprintf(format, args...))
}

func (c *console) info(format string, args ...any) {
	c.print(color.New(color.FgCyan), format, args...)
}

func (c *console) success(format string, args ...any) {
	c.print(color.New(color.FgGreen, color.OpBold), format, args...)
}

func (c *console) warn(format string, args ...any) {
	c.print(color.New(color.FgYellow), format, args...)
}

func (c *console) fail(format string, args ...any) {
	c.print(color.New(color.FgRed, color.OpBold), format, args...)
}

func (c *console) render(u domain.Update) {
	switch {
	case u.Message != nil:
		c.message(*u.Message)
		return
	case u.PartnerTyping:
		c.print(color.New(color.FgGray), "partner is typing...")
		return
	}

	if u.Err != nil {
		c.warn("[%s] %v", u.State, u.Err)
	}
	switch u.State {
	case domain.Connecting:
		if u.Err == nil {
			c.info("Connecting...")
		}
	case domain.Queued:
		c.info("Waiting for a partner...")
	case domain.Matched:
		if u.Room != nil {
			c.success("Matched with %s", u.Room.Partner.Nickname)
		}
	case domain.InChat:
		if u.Err == nil {
			c.success("Chat started. /leave, /report <reason>, /image <path>, /time, /quit")
		}
	case domain.Ended:
		if u.Ended != nil {
			c.fail("Session ended (%s). /retry to queue again, /block to block the last partner", u.Ended.Reason)
		}
	}
}

func (c *console) message(m domain.ChatMessage) {
	at := time.UnixMilli(m.Timestamp).Format("15:04:05")
	body := m.Text
	if m.IsImage() {
		body = fmt.Sprintf("[image, %d bytes encoded]", len(m.Image))
	}
	style := color.New(color.FgMagenta)
	who := "partner"
	if m.SenderID == c.deviceID {
		style = color.New(color.FgBlue)
		who = "you"
	}
	c.print(style, "%s %s: %s", at, who, body)
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}
