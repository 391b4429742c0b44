package runtime

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/omkarshukla84/klymo-client/contract"
	"github.com/omkarshukla84/klymo-client/domain"
	"github.com/omkarshukla84/klymo-client/domain/mimetypes"
	"github.com/omkarshukla84/klymo-client/errors"
)

const DefaultMaxImageBytes = 1 << 20

// Chat holds the in-memory history of one room and frames outbound chat
// traffic. It only sends while active; inbound traffic is accepted as soon
// as the room exists.
type Chat struct {
	log           *slog.Logger
	emitter       contract.Emitter
	roomID        string
	selfID        string
	maxImageBytes int
	now           func() time.Time

	mu            sync.Mutex
	active        bool
	closed        bool
	messages      []domain.ChatMessage
	draft         string
	typing        bool
	partnerTyping bool
	uploading     bool
}

func NewChat(log *slog.Logger, emitter contract.Emitter, roomID, selfID string, maxImageBytes int) *Chat {
	if maxImageBytes <= 0 {
		maxImageBytes = DefaultMaxImageBytes
	}
	return &Chat{
		log:           log.With("room", roomID),
		emitter:       emitter,
		roomID:        roomID,
		selfID:        selfID,
		maxImageBytes: maxImageBytes,
		now:           time.Now,
	}
}

func (c *Chat) RoomID() string {
	return c.roomID
}

// SendText echoes the message locally and sends it to the room, then clears
// the typing state. Blank input is ignored.
func (c *Chat) SendText(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.active {
		return errors.ErrNoActiveChat
	}
	if err := c.emitter.Emit(domain.EventSendMessage, domain.SendMessage{RoomID: c.roomID, Message: text}); err != nil {
		return err
	}
	c.messages = append(c.messages, domain.ChatMessage{
		SenderID:  c.selfID,
		Text:      text,
		Timestamp: c.now().UnixMilli(),
	})
	c.draft = ""
	c.typing = false
	if err := c.emitter.Emit(domain.EventTyping, domain.Typing{RoomID: c.roomID, IsTyping: false}); err != nil {
		c.log.Warn("Typing reset not sent", "err", err)
	}
	return nil
}

// SetTypingDraft stores the input buffer and signals typing only when the
// draft flips between empty and non-empty. Before activation only the draft
// is kept; activate announces it.
func (c *Chat) SetTypingDraft(value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.draft = value
	typing := len(value) > 0
	if !c.active || typing == c.typing {
		return nil
	}
	c.typing = typing
	return c.emitter.Emit(domain.EventTyping, domain.Typing{RoomID: c.roomID, IsTyping: typing})
}

// SendImage rejects oversized payloads before anything else, then encodes
// and sends in the background. The returned channel yields the outcome once.
// Only one upload may be pending at a time.
func (c *Chat) SendImage(ctx context.Context, data []byte) (<-chan error, error) {
	if len(data) > c.maxImageBytes {
		return nil, errors.ErrImageTooLarge
	}
	c.mu.Lock()
	switch {
	case !c.active:
		c.mu.Unlock()
		return nil, errors.ErrNoActiveChat
	case c.uploading:
		c.mu.Unlock()
		return nil, errors.ErrUploadPending
	}
	c.uploading = true
	c.mu.Unlock()

	done := make(chan error, 1)
	go func() {
		done <- c.upload(ctx, data)
	}()
	return done, nil
}

func (c *Chat) upload(ctx context.Context, data []byte) error {
	image, encErr := mimetypes.DataURL(data, mimetypes.Attachment)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.uploading = false
	switch {
	case encErr != nil:
		return encErr
	case ctx.Err() != nil:
		return ctx.Err()
	case !c.active:
		return errors.ErrNoActiveChat
	}
	if err := c.emitter.Emit(domain.EventSendImage, domain.SendImage{RoomID: c.roomID, Image: image}); err != nil {
		return err
	}
	c.messages = append(c.messages, domain.ChatMessage{
		SenderID:  c.selfID,
		Image:     image,
		Timestamp: c.now().UnixMilli(),
	})
	c.log.Debug("Image sent", "bytes", len(data))
	return nil
}

// receive appends an inbound message in arrival order. Malformed messages
// are dropped.
func (c *Chat) receive(msg domain.ChatMessage) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	if !msg.Valid() {
		c.log.Warn("Dropping malformed message", "sender", msg.SenderID)
		return false
	}
	c.messages = append(c.messages, msg)
	c.partnerTyping = false
	return true
}

func (c *Chat) setPartnerTyping(typing bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.partnerTyping = typing
}

func (c *Chat) activate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.active {
		return
	}
	c.active = true
	if c.draft == "" {
		return
	}
	c.typing = true
	if err := c.emitter.Emit(domain.EventTyping, domain.Typing{RoomID: c.roomID, IsTyping: true}); err != nil {
		c.log.Warn("Typing signal not sent", "err", err)
	}
}

// close ends the chat and drops its history.
func (c *Chat) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.active = false
	c.closed = true
	c.messages = nil
	c.draft = ""
	c.partnerTyping = false
}

func (c *Chat) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Messages returns a copy of the history.
func (c *Chat) Messages() []domain.ChatMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.ChatMessage, len(c.messages))
	copy(out, c.messages)
	return out
}

func (c *Chat) PartnerTyping() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.partnerTyping
}

func (c *Chat) Draft() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.draft
}
