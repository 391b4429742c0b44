// Package runtime drives the client side of a chat session: the connection
// lifecycle, the chat protocol, the session clock and the report/block
// side-channel. All transitions are serialised on the orchestrator lock.
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/omkarshukla84/klymo-client/contract"
	"github.com/omkarshukla84/klymo-client/domain"
	"github.com/omkarshukla84/klymo-client/errors"
)

type Config struct {
	DailyLimit        int
	MatchDisplayDelay time.Duration
	// SessionDuration caps a chat. Zero disables the clock.
	SessionDuration   time.Duration
	ClockTick         time.Duration
	MaxImageBytes     int
	UpdatesBufferSize int
}

func DefaultConfig() Config {
	return Config{
		DailyLimit:        100,
		MatchDisplayDelay: 1500 * time.Millisecond,
		SessionDuration:   300 * time.Second,
		ClockTick:         time.Second,
		MaxImageBytes:     DefaultMaxImageBytes,
		UpdatesBufferSize: 64,
	}
}

// Orchestrator owns at most one primary connection at a time. Every
// connection is tagged with a generation; callbacks from an older
// generation are ignored.
type Orchestrator struct {
	log       *slog.Logger
	cfg       Config
	dialer    contract.Dialer
	identity  contract.IdentityStore
	session   contract.SessionStore
	validator contract.ProfileValidator
	updates   chan domain.Update
	now       func() time.Time

	mu         sync.Mutex
	closed     bool
	gen        uint64
	state      domain.State
	err        error
	sessionID  string
	profile    domain.SessionProfile
	deviceID   string
	conn       contract.Conn
	cancel     context.CancelFunc
	room       *domain.MatchRoom
	chat       *Chat
	clock      *SessionClock
	enterTimer *time.Timer
	lastEnded  *domain.EndedSession
}

func NewOrchestrator(log *slog.Logger, cfg Config, dialer contract.Dialer,
	identity contract.IdentityStore, session contract.SessionStore,
	validator contract.ProfileValidator) *Orchestrator {
	if cfg.UpdatesBufferSize <= 0 {
		cfg.UpdatesBufferSize = 64
	}
	return &Orchestrator{
		log:       log,
		cfg:       cfg,
		dialer:    dialer,
		identity:  identity,
		session:   session,
		validator: validator,
		updates:   make(chan domain.Update, cfg.UpdatesBufferSize),
		now:       time.Now,
		state:     domain.Idle,
	}
}

// Updates streams transitions. Updates are dropped when the buffer is full.
func (o *Orchestrator) Updates() <-chan domain.Update {
	return o.updates
}

// StartMatching checks the local preconditions, disposes of any previous
// connection and dials a new one. It returns as soon as the dial has been
// started; queueing happens on connect.
func (o *Orchestrator) StartMatching(ctx context.Context, profile domain.SessionProfile, deviceID string) error {
	if deviceID == "" {
		return errors.ErrMissingDeviceID
	}
	reached, err := o.identity.IsLimitReached(o.cfg.DailyLimit)
	if err != nil {
		return fmt.Errorf("%w: %w", errors.ErrPrecondition, err)
	}
	if reached {
		return errors.ErrDailyLimitReached
	}
	if o.validator != nil {
		if err := o.validator.Validate(profile); err != nil {
			return err
		}
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return errors.ErrConnectionClosed
	}
	o.teardownLocked(domain.EndVoluntary, nil)

	o.gen++
	o.sessionID = uuid.NewString()
	o.profile = profile
	o.deviceID = deviceID
	o.state = domain.Connecting
	o.err = nil
	o.room = nil
	o.lastEnded = nil

	connCtx, cancel := context.WithCancel(ctx)
	conn, err := o.dialer.Dial(connCtx, &sessionHandler{o: o, gen: o.gen})
	if err != nil {
		cancel()
		o.state = domain.Idle
		o.err = fmt.Errorf("%w: %v", errors.ErrTransport, err)
		o.publishLocked(domain.Update{})
		return o.err
	}
	o.conn = conn
	o.cancel = cancel
	o.log.Info("Matching started", "session", o.sessionID, "device", deviceID)
	o.publishLocked(domain.Update{})
	return nil
}

// Retry restarts matching with the last profile, typically after the
// transport gave up.
func (o *Orchestrator) Retry(ctx context.Context) error {
	o.mu.Lock()
	profile, deviceID := o.profile, o.deviceID
	o.mu.Unlock()
	return o.StartMatching(ctx, profile, deviceID)
}

// EndSession tears the session down. Only the first call after a session
// started has effects; it reports true and the summary of what ended.
func (o *Orchestrator) EndSession(reason domain.EndReason) (domain.EndedSession, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.teardownLocked(reason, nil)
}

// Close ends any live session and stops publishing updates.
func (o *Orchestrator) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return nil
	}
	o.teardownLocked(domain.EndVoluntary, nil)
	o.closed = true
	close(o.updates)
	return nil
}

// Emit sends on the primary connection, if any.
func (o *Orchestrator) Emit(event string, payload any) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.conn == nil {
		return errors.ErrNotConnected
	}
	return o.conn.Emit(event, payload)
}

func (o *Orchestrator) State() (domain.State, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state, o.err
}

func (o *Orchestrator) Room() (domain.MatchRoom, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.room == nil {
		return domain.MatchRoom{}, false
	}
	return *o.room, true
}

// Chat returns the chat of the current room, or nil.
func (o *Orchestrator) Chat() *Chat {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.chat
}

func (o *Orchestrator) SessionID() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.sessionID
}

// Remaining returns the chat time left, or false when no clock runs.
func (o *Orchestrator) Remaining() (time.Duration, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.clock == nil {
		return 0, false
	}
	return o.clock.Remaining(), true
}

// LastEnded returns the summary of the last teardown.
func (o *Orchestrator) LastEnded() (domain.EndedSession, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.lastEnded == nil {
		return domain.EndedSession{}, false
	}
	return *o.lastEnded, true
}

// RemainingMatches is the daily quota left.
func (o *Orchestrator) RemainingMatches() (int, error) {
	count, err := o.identity.GetDailyCount()
	if err != nil {
		return 0, err
	}
	return max(o.cfg.DailyLimit-count, 0), nil
}

func (o *Orchestrator) currentLocked(gen uint64) bool {
	return !o.closed && gen == o.gen && o.state != domain.Ended && o.state != domain.Idle
}

func (o *Orchestrator) onConnect(gen uint64, conn contract.Conn) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.currentLocked(gen) {
		return
	}
	if o.room != nil {
		// Reconnected mid-room: rejoin rather than queue again.
		if err := conn.Emit(domain.EventJoinRoom, domain.JoinRoom{RoomID: o.room.RoomID}); err != nil {
			o.err = err
			o.publishLocked(domain.Update{})
			return
		}
		o.err = nil
		o.log.Info("Rejoined room", "session", o.sessionID, "room", o.room.RoomID)
		o.publishLocked(domain.Update{})
		return
	}

	join := domain.JoinQueue{
		Nickname:        o.profile.Nickname,
		Gender:          o.profile.GenderValue(),
		MatchPreference: o.profile.MatchPreference,
		DeviceID:        o.deviceID,
		Bio:             o.profile.Bio,
	}
	if err := conn.Emit(domain.EventJoinQueue, join); err != nil {
		o.err = err
		o.publishLocked(domain.Update{})
		return
	}
	o.state = domain.Queued
	o.err = nil
	o.log.Info("Queued", "session", o.sessionID)
	o.publishLocked(domain.Update{})
}

func (o *Orchestrator) onConnectError(gen uint64, err error, attempt int, final bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.currentLocked(gen) {
		return
	}
	if final {
		err = fmt.Errorf("%w after %d attempts: %w", errors.ErrReconnectExhausted, attempt, err)
	}
	o.err = err
	if o.state == domain.Queued {
		o.state = domain.Connecting
	}
	o.log.Warn("Connection attempt failed", "session", o.sessionID, "attempt", attempt, "final", final)
	o.publishLocked(domain.Update{})
}

func (o *Orchestrator) onDisconnect(gen uint64, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.currentLocked(gen) {
		return
	}
	o.err = err
	if o.state == domain.Queued {
		o.state = domain.Connecting
	}
	o.log.Warn("Connection lost", "session", o.sessionID, "state", o.state, "err", err)
	o.publishLocked(domain.Update{})
}

func (o *Orchestrator) onEvent(gen uint64, evt contract.Event) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.currentLocked(gen) {
		return
	}
	switch evt.Type {
	case domain.EventMatchFound:
		o.matchFoundLocked(gen, evt)
	case domain.EventReceiveMessage:
		var msg domain.ChatMessage
		if err := evt.Decode(&msg); err != nil {
			o.log.Warn("Undecodable message", "err", err)
			return
		}
		if o.chat != nil && o.chat.receive(msg) {
			o.publishLocked(domain.Update{Message: &msg})
		}
	case domain.EventPartnerTyping:
		var typing domain.PartnerTyping
		if err := evt.Decode(&typing); err != nil {
			o.log.Warn("Undecodable typing signal", "err", err)
			return
		}
		if o.chat != nil {
			o.chat.setPartnerTyping(typing.IsTyping)
			o.publishLocked(domain.Update{PartnerTyping: typing.IsTyping})
		}
	case domain.EventPartnerLeft:
		o.teardownLocked(domain.EndPartnerLeft, nil)
	case domain.EventRoomExpired:
		o.teardownLocked(domain.EndExpired, errors.ErrRoomExpired)
	case domain.EventError:
		var serverErr domain.ServerError
		if err := evt.Decode(&serverErr); err != nil {
			o.log.Warn("Undecodable server error", "err", err)
		}
		o.teardownLocked(domain.EndVoluntary, fmt.Errorf("%w: %s", errors.ErrServerError, serverErr.Message))
	default:
		o.log.Debug("Ignoring event", "type", evt.Type)
	}
}

func (o *Orchestrator) matchFoundLocked(gen uint64, evt contract.Event) {
	if o.state != domain.Queued && o.state != domain.Connecting {
		o.log.Warn("Unexpected match", "state", o.state)
		return
	}
	var room domain.MatchRoom
	if err := evt.Decode(&room); err != nil || room.RoomID == "" {
		o.log.Warn("Invalid match payload", "err", err)
		return
	}
	o.state = domain.Matched
	o.room = &room
	o.err = nil
	if err := o.session.SaveRoom(room); err != nil {
		o.log.Warn("Room not stored", "room", room.RoomID, "err", err)
	}
	o.chat = NewChat(o.log, o.conn, room.RoomID, o.deviceID, o.cfg.MaxImageBytes)
	o.log.Info("Matched", "session", o.sessionID, "room", room.RoomID, "partner", room.Partner.Nickname)
	o.publishLocked(domain.Update{})

	if o.cfg.MatchDisplayDelay <= 0 {
		o.enterChatLocked(gen)
		return
	}
	o.enterTimer = time.AfterFunc(o.cfg.MatchDisplayDelay, func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		o.enterChatLocked(gen)
	})
}

// enterChatLocked only proceeds if nothing happened to the match in the
// meantime: a leave during the display delay wins.
func (o *Orchestrator) enterChatLocked(gen uint64) {
	if !o.currentLocked(gen) || o.state != domain.Matched || o.room == nil {
		return
	}
	if err := o.conn.Emit(domain.EventJoinRoom, domain.JoinRoom{RoomID: o.room.RoomID}); err != nil {
		o.log.Warn("Join room not sent", "room", o.room.RoomID, "err", err)
	}
	o.state = domain.InChat
	o.chat.activate()
	if o.cfg.SessionDuration > 0 {
		o.clock = NewSessionClock(o.cfg.SessionDuration, o.cfg.ClockTick, func() {
			o.mu.Lock()
			defer o.mu.Unlock()
			if !o.currentLocked(gen) || o.state != domain.InChat {
				return
			}
			o.log.Info("Session time is up", "room", o.room.RoomID)
			o.teardownLocked(domain.EndExpired, nil)
		})
		o.clock.Start()
	}
	o.log.Info("Chat started", "session", o.sessionID, "room", o.room.RoomID)
	o.publishLocked(domain.Update{})
}

// teardownLocked runs once per session. The leave signal is best-effort;
// ephemeral state is always cleared.
func (o *Orchestrator) teardownLocked(reason domain.EndReason, cause error) (domain.EndedSession, bool) {
	if o.state == domain.Idle || o.state == domain.Ended {
		return domain.EndedSession{}, false
	}
	if o.enterTimer != nil {
		o.enterTimer.Stop()
		o.enterTimer = nil
	}
	if o.clock != nil {
		o.clock.Stop()
		o.clock = nil
	}

	ended := domain.EndedSession{Reason: reason, Room: o.room, At: o.now()}
	if target, ok, err := o.session.ReportTarget(); err != nil {
		o.log.Warn("Report target unreadable", "err", err)
	} else if ok {
		ended.ReportTarget = target
	}

	if o.room != nil {
		if o.conn != nil {
			if err := o.conn.Emit(domain.EventLeaveChat, domain.LeaveChat{RoomID: o.room.RoomID}); err != nil {
				o.log.Warn("Leave not sent", "room", o.room.RoomID, "err", err)
			}
		}
		if err := o.identity.IncrementDailyCount(); err != nil {
			o.log.Warn("Daily count not updated", "err", err)
		} else {
			ended.Counted = true
		}
	}
	if err := o.session.Clear(); err != nil {
		o.log.Warn("Ephemeral state not cleared", "err", err)
	}
	if o.chat != nil {
		o.chat.close()
		o.chat = nil
	}
	if o.conn != nil {
		_ = o.conn.Close()
		o.conn = nil
	}
	if o.cancel != nil {
		o.cancel()
		o.cancel = nil
	}

	o.room = nil
	o.state = domain.Ended
	o.err = cause
	o.lastEnded = &ended
	o.log.Info("Session ended", "session", o.sessionID, "reason", reason, "counted", ended.Counted)
	o.publishLocked(domain.Update{Ended: &ended})
	return ended, true
}

// publishLocked never blocks: a slow consumer loses updates, not the
// session.
func (o *Orchestrator) publishLocked(u domain.Update) {
	if o.closed {
		return
	}
	u.SessionID = o.sessionID
	u.State = o.state
	if u.Err == nil {
		u.Err = o.err
	}
	if o.room != nil {
		room := *o.room
		u.Room = &room
	}
	select {
	case o.updates <- u:
	default:
		o.log.Warn("Update channel full, dropping update", "state", u.State)
	}
}

// sessionHandler binds transport callbacks to one generation.
type sessionHandler struct {
	o   *Orchestrator
	gen uint64
}

func (h *sessionHandler) OnConnect(conn contract.Conn) {
	h.o.onConnect(h.gen, conn)
}

func (h *sessionHandler) OnConnectError(err error, attempt int, final bool) {
	h.o.onConnectError(h.gen, err, attempt, final)
}

func (h *sessionHandler) OnEvent(evt contract.Event) {
	h.o.onEvent(h.gen, evt)
}

func (h *sessionHandler) OnDisconnect(err error) {
	h.o.onDisconnect(h.gen, err)
}
