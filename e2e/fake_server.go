package e2e

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/omkarshukla84/klymo-client/contract"
	"github.com/omkarshukla84/klymo-client/domain"
)

// FakeServer is a minimal matching service: it pairs the first two queued
// peers, relays chat traffic inside a room and records moderation events.
type FakeServer struct {
	log      *slog.Logger
	upgrader websocket.Upgrader
	srv      *httptest.Server

	mu      sync.Mutex
	waiting *peer
	reports []domain.ReportUser
	blocks  []domain.BlockUser
}

type peer struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	join    domain.JoinQueue
	partner *peer
}

func (p *peer) send(eventType string, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return
	}
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	_ = p.conn.WriteJSON(contract.Event{Type: eventType, Payload: raw})
}

func NewFakeServer(log *slog.Logger) *FakeServer {
	f := &FakeServer{log: log}
	f.srv = httptest.NewServer(http.HandlerFunc(f.serve))
	return f
}

// URL is the ws:// address of the fake.
func (f *FakeServer) URL() string {
	return "ws" + strings.TrimPrefix(f.srv.URL, "http")
}

func (f *FakeServer) Close() {
	f.srv.Close()
}

func (f *FakeServer) Reports() []domain.ReportUser {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.ReportUser(nil), f.reports...)
}

func (f *FakeServer) Blocks() []domain.BlockUser {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.BlockUser(nil), f.blocks...)
}

func (f *FakeServer) serve(w http.ResponseWriter, r *http.Request) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	p := &peer{conn: conn}
	defer func() {
		f.mu.Lock()
		if f.waiting == p {
			f.waiting = nil
		}
		f.mu.Unlock()
		_ = conn.Close()
	}()

	for {
		var evt contract.Event
		if err := conn.ReadJSON(&evt); err != nil {
			return
		}
		f.log.Debug("Frame received", "type", evt.Type, "payload", string(evt.Payload))
		f.handle(p, evt)
	}
}

func (f *FakeServer) handle(p *peer, evt contract.Event) {
	switch evt.Type {
	case domain.EventJoinQueue:
		if err := evt.Decode(&p.join); err != nil {
			p.send(domain.EventError, domain.ServerError{Message: "bad join"})
			return
		}
		f.pair(p)
	case domain.EventSendMessage:
		var msg domain.SendMessage
		if evt.Decode(&msg) == nil {
			f.relay(p, domain.ChatMessage{SenderID: p.join.DeviceID, Text: msg.Message, Timestamp: time.Now().UnixMilli()})
		}
	case domain.EventSendImage:
		var img domain.SendImage
		if evt.Decode(&img) == nil {
			f.relay(p, domain.ChatMessage{SenderID: p.join.DeviceID, Image: img.Image, Timestamp: time.Now().UnixMilli()})
		}
	case domain.EventTyping:
		var typing domain.Typing
		if evt.Decode(&typing) == nil {
			if partner := f.partnerOf(p); partner != nil {
				partner.send(domain.EventPartnerTyping, domain.PartnerTyping{IsTyping: typing.IsTyping})
			}
		}
	case domain.EventLeaveChat:
		f.mu.Lock()
		partner := p.partner
		p.partner = nil
		if partner != nil {
			partner.partner = nil
		}
		f.mu.Unlock()
		if partner != nil {
			partner.send(domain.EventPartnerLeft, struct{}{})
		}
	case domain.EventReportUser:
		var report domain.ReportUser
		if evt.Decode(&report) == nil {
			f.mu.Lock()
			f.reports = append(f.reports, report)
			f.mu.Unlock()
		}
	case domain.EventBlockUser:
		var block domain.BlockUser
		if evt.Decode(&block) == nil {
			f.mu.Lock()
			f.blocks = append(f.blocks, block)
			f.mu.Unlock()
		}
	}
}

func (f *FakeServer) pair(p *peer) {
	f.mu.Lock()
	other := f.waiting
	if other == nil || other == p {
		f.waiting = p
		f.mu.Unlock()
		return
	}
	f.waiting = nil
	p.partner, other.partner = other, p
	f.mu.Unlock()

	roomID := uuid.NewString()
	p.send(domain.EventMatchFound, domain.MatchRoom{RoomID: roomID, Partner: partnerView(other.join)})
	other.send(domain.EventMatchFound, domain.MatchRoom{RoomID: roomID, Partner: partnerView(p.join)})
}

func (f *FakeServer) relay(p *peer, msg domain.ChatMessage) {
	if partner := f.partnerOf(p); partner != nil {
		partner.send(domain.EventReceiveMessage, msg)
	}
}

func (f *FakeServer) partnerOf(p *peer) *peer {
	f.mu.Lock()
	defer f.mu.Unlock()
	return p.partner
}

func partnerView(join domain.JoinQueue) domain.Partner {
	return domain.Partner{Nickname: join.Nickname, DeviceID: join.DeviceID, Gender: join.Gender, Bio: join.Bio}
}
