package main

import (
	"context"
	"os"
	"strings"

	"github.com/omkarshukla84/klymo-client/domain"
	"github.com/omkarshukla84/klymo-client/runtime"
)

const defaultReportReason = "inappropriate behaviour"

type commands struct {
	orchestrator *runtime.Orchestrator
	reports      *runtime.ReportChannel
	console      *console
	deviceID     string
	blockTarget  string
}

// handle runs one input line and reports whether the client should quit.
func (c *commands) handle(ctx context.Context, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	if !strings.HasPrefix(line, "/") {
		c.send(line)
		return false
	}

	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	switch name {
	case "/quit":
		return true
	case "/leave":
		c.end(domain.EndVoluntary)
	case "/report":
		c.report(arg)
	case "/block":
		c.block(ctx)
	case "/image":
		c.image(ctx, arg)
	case "/retry":
		if err := c.orchestrator.Retry(ctx); err != nil {
			c.console.fail("Cannot queue: %v", err)
		}
	case "/time":
		if left, ok := c.orchestrator.Remaining(); ok {
			c.console.info("%s left", left)
		} else {
			c.console.info("No time limit")
		}
	default:
		c.console.warn("Unknown command %s", name)
	}
	return false
}

func (c *commands) send(text string) {
	chat := c.orchestrator.Chat()
	if chat == nil {
		c.console.warn("Not in a chat")
		return
	}
	if err := chat.SendText(text); err != nil {
		c.console.warn("Message not sent: %v", err)
		return
	}
	c.console.message(domain.ChatMessage{SenderID: c.deviceID, Text: text, Timestamp: nowMillis()})
}

func (c *commands) end(reason domain.EndReason) {
	ended, ok := c.orchestrator.EndSession(reason)
	if !ok {
		return
	}
	switch {
	case ended.ReportTarget != "":
		c.blockTarget = ended.ReportTarget
	case ended.Room != nil:
		c.blockTarget = ended.Room.Partner.DeviceID
	}
}

// report flags the partner, then leaves. The target survives the teardown
// so /block still works on the post-chat prompt.
func (c *commands) report(reason string) {
	room, ok := c.orchestrator.Room()
	if !ok {
		c.console.warn("Nobody to report")
		return
	}
	if reason == "" {
		reason = defaultReportReason
	}
	c.reports.ReportUser(c.deviceID, room.Partner.DeviceID, reason)
	c.end(domain.EndReported)
	c.console.info("Report submitted")
}

func (c *commands) block(ctx context.Context) {
	target := c.blockTarget
	if pending, ok := c.reports.PendingTarget(); ok {
		target = pending
	}
	if err := c.reports.BlockUser(ctx, c.deviceID, target); err != nil {
		c.console.warn("Cannot block: %v", err)
		return
	}
	c.console.info("Block sent")
}

func (c *commands) image(ctx context.Context, path string) {
	chat := c.orchestrator.Chat()
	if chat == nil {
		c.console.warn("Not in a chat")
		return
	}
	data, err := os.ReadFile(path)
	if err != nil {
		c.console.warn("Cannot read image: %v", err)
		return
	}
	done, err := chat.SendImage(ctx, data)
	if err != nil {
		c.console.warn("Image rejected: %v", err)
		return
	}
	go func() {
		if err := <-done; err != nil {
			c.console.warn("Image not sent: %v", err)
			return
		}
		c.console.info("Image sent")
	}()
}
