package runtime_test

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/omkarshukla84/klymo-client/contract"
	"github.com/omkarshukla84/klymo-client/domain"
	"github.com/omkarshukla84/klymo-client/errors"
	"github.com/omkarshukla84/klymo-client/mocks"
	"github.com/omkarshukla84/klymo-client/repositories"
	"github.com/omkarshukla84/klymo-client/runtime"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

const deviceID = "device-a"

type fixture struct {
	orch     *runtime.Orchestrator
	dialer   *mocks.MockDialer
	identity *mocks.MockIdentityStore
	session  *repositories.SessionRepository
	handlers chan contract.Handler
}

func testConfig() runtime.Config {
	cfg := runtime.DefaultConfig()
	cfg.MatchDisplayDelay = 0
	cfg.SessionDuration = 0
	cfg.ClockTick = time.Millisecond
	return cfg
}

func newFixture(t *testing.T, ctrl *gomock.Controller, cfg runtime.Config) *fixture {
	t.Helper()
	db, err := repositories.OpenEphemeral()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	f := &fixture{
		dialer:   mocks.NewMockDialer(ctrl),
		identity: mocks.NewMockIdentityStore(ctrl),
		session:  repositories.NewSessionRepository(db),
		handlers: make(chan contract.Handler, 4),
	}
	f.orch = runtime.NewOrchestrator(log, cfg, f.dialer, f.identity, f.session, nil)
	return f
}

func testProfile() domain.SessionProfile {
	p := domain.SessionProfile{Nickname: "Owl", Bio: "night walks and tea", MatchPreference: domain.PreferAny}
	p.Verified(domain.Female, "token", time.Now())
	return p
}

func joinQueue() domain.JoinQueue {
	return domain.JoinQueue{
		Nickname:        "Owl",
		Gender:          "F",
		MatchPreference: domain.PreferAny,
		DeviceID:        deviceID,
		Bio:             "night walks and tea",
	}
}

func (f *fixture) expectDial(conn contract.Conn) *gomock.Call {
	return f.dialer.EXPECT().
		Dial(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, h contract.Handler) (contract.Conn, error) {
			f.handlers <- h
			return conn, nil
		})
}

// start runs StartMatching and returns the handler of the new connection.
func (f *fixture) start(t *testing.T) contract.Handler {
	t.Helper()
	f.identity.EXPECT().IsLimitReached(100).Return(false, nil)
	require.NoError(t, f.orch.StartMatching(context.Background(), testProfile(), deviceID))
	return <-f.handlers
}

// queue brings the fixture to Queued.
func (f *fixture) queue(t *testing.T, conn *mocks.MockConn) contract.Handler {
	t.Helper()
	f.expectDial(conn)
	h := f.start(t)
	conn.EXPECT().Emit(domain.EventJoinQueue, joinQueue()).Return(nil)
	h.OnConnect(conn)
	return h
}

func event(t *testing.T, name string, payload any) contract.Event {
	t.Helper()
	evt := contract.Event{Type: name}
	if payload != nil {
		data, err := json.Marshal(payload)
		require.NoError(t, err)
		evt.Payload = data
	}
	return evt
}

func drain(updates <-chan domain.Update) []domain.Update {
	var out []domain.Update
	for {
		select {
		case u, ok := <-updates:
			if !ok {
				return out
			}
			out = append(out, u)
		default:
			return out
		}
	}
}

func matchFound(t *testing.T, roomID string) contract.Event {
	return event(t, domain.EventMatchFound, domain.MatchRoom{
		RoomID:  roomID,
		Partner: domain.Partner{Nickname: "Fox", DeviceID: "device-b"},
	})
}

func TestStartMatching_Preconditions(t *testing.T) {
	t.Run("missing device id", func(t *testing.T) {
		req := require.New(t)
		f := newFixture(t, gomock.NewController(t), testConfig())
		err := f.orch.StartMatching(context.Background(), testProfile(), "")
		req.ErrorIs(err, errors.ErrMissingDeviceID)
		req.ErrorIs(err, errors.ErrPrecondition)
	})

	t.Run("daily limit reached", func(t *testing.T) {
		req := require.New(t)
		f := newFixture(t, gomock.NewController(t), testConfig())
		f.identity.EXPECT().IsLimitReached(100).Return(true, nil)

		err := f.orch.StartMatching(context.Background(), testProfile(), deviceID)
		req.ErrorIs(err, errors.ErrDailyLimitReached)
		req.ErrorIs(err, errors.ErrPrecondition)
		state, _ := f.orch.State()
		req.Equal(domain.Idle, state)
	})

	t.Run("identity store unavailable", func(t *testing.T) {
		req := require.New(t)
		f := newFixture(t, gomock.NewController(t), testConfig())
		f.identity.EXPECT().IsLimitReached(100).Return(false, errors.ErrStorageUnavailable)

		err := f.orch.StartMatching(context.Background(), testProfile(), deviceID)
		req.ErrorIs(err, errors.ErrPrecondition)
		req.ErrorIs(err, errors.ErrStorageUnavailable)
	})

	t.Run("invalid profile", func(t *testing.T) {
		req := require.New(t)
		ctrl := gomock.NewController(t)
		db, err := repositories.OpenEphemeral()
		req.NoError(err)
		defer db.Close()
		identity := mocks.NewMockIdentityStore(ctrl)
		validator := mocks.NewMockProfileValidator(ctrl)
		identity.EXPECT().IsLimitReached(100).Return(false, nil)
		validator.EXPECT().Validate(gomock.Any()).Return(errors.ErrIncompleteProfile)

		orch := runtime.NewOrchestrator(logs.GetLoggerFromLevel(slog.LevelDebug), testConfig(),
			mocks.NewMockDialer(ctrl), identity, repositories.NewSessionRepository(db), validator)
		req.ErrorIs(orch.StartMatching(context.Background(), testProfile(), deviceID), errors.ErrPrecondition)
	})
}

func TestStartMatching_QueuesOnConnect(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	f := newFixture(t, ctrl, testConfig())
	conn := mocks.NewMockConn(ctrl)

	f.expectDial(conn)
	h := f.start(t)
	state, err := f.orch.State()
	req.Equal(domain.Connecting, state)
	req.NoError(err)
	req.NotEmpty(f.orch.SessionID())

	conn.EXPECT().Emit(domain.EventJoinQueue, joinQueue()).Return(nil)
	h.OnConnect(conn)

	state, err = f.orch.State()
	req.Equal(domain.Queued, state)
	req.NoError(err)
}

func TestStartMatching_SingleFlight(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	f := newFixture(t, ctrl, testConfig())
	first := mocks.NewMockConn(ctrl)
	second := mocks.NewMockConn(ctrl)

	stale := f.queue(t, first)
	firstSession := f.orch.SessionID()

	// The previous connection is closed before the next dial.
	gomock.InOrder(
		first.EXPECT().Close().Return(nil),
		f.expectDial(second),
	)
	h := f.start(t)
	req.NotEqual(firstSession, f.orch.SessionID())

	// Callbacks of the disposed connection are ignored.
	stale.OnConnect(first)
	stale.OnEvent(matchFound(t, "stale"))

	second.EXPECT().Emit(domain.EventJoinQueue, joinQueue()).Return(nil)
	h.OnConnect(second)
	state, _ := f.orch.State()
	req.Equal(domain.Queued, state)
	_, ok := f.orch.Room()
	req.False(ok)
}

func TestMatchFound_EntersChatAfterDisplayDelay(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	cfg := testConfig()
	cfg.MatchDisplayDelay = 10 * time.Millisecond
	f := newFixture(t, ctrl, cfg)
	conn := mocks.NewMockConn(ctrl)

	h := f.queue(t, conn)
	joined := make(chan struct{})
	conn.EXPECT().Emit(domain.EventJoinRoom, domain.JoinRoom{RoomID: "r1"}).
		DoAndReturn(func(string, any) error {
			close(joined)
			return nil
		})

	h.OnEvent(matchFound(t, "r1"))

	state, _ := f.orch.State()
	req.Equal(domain.Matched, state)
	room, ok := f.orch.Room()
	req.True(ok)
	req.Equal("r1", room.RoomID)
	req.Equal("Fox", room.Partner.Nickname)
	stored, ok, err := f.session.Room()
	req.NoError(err)
	req.True(ok)
	req.Equal("r1", stored.RoomID)

	select {
	case <-joined:
	case <-time.After(time.Second):
		t.Fatal("chat never entered")
	}
	req.Eventually(func() bool {
		s, _ := f.orch.State()
		return s == domain.InChat
	}, time.Second, time.Millisecond)
	req.NotNil(f.orch.Chat())
	req.True(f.orch.Chat().Active())
}

func TestMatchFound_LeaveInSameTickWins(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	cfg := testConfig()
	cfg.MatchDisplayDelay = 20 * time.Millisecond
	f := newFixture(t, ctrl, cfg)
	conn := mocks.NewMockConn(ctrl)

	h := f.queue(t, conn)
	conn.EXPECT().Emit(domain.EventLeaveChat, domain.LeaveChat{RoomID: "r1"}).Return(nil)
	conn.EXPECT().Close().Return(nil)
	f.identity.EXPECT().IncrementDailyCount().Return(nil)

	h.OnEvent(matchFound(t, "r1"))
	ended, ok := f.orch.EndSession(domain.EndVoluntary)
	req.True(ok)
	req.Equal("r1", ended.Room.RoomID)

	// No join_room may follow once the display delay elapses.
	time.Sleep(50 * time.Millisecond)
	state, _ := f.orch.State()
	req.Equal(domain.Ended, state)
	_, ok = f.orch.Room()
	req.False(ok)
	_, ok, err := f.session.Room()
	req.NoError(err)
	req.False(ok)
	req.Nil(f.orch.Chat())
}

func TestEndSession_Idempotent(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	f := newFixture(t, ctrl, testConfig())
	conn := mocks.NewMockConn(ctrl)

	h := f.queue(t, conn)
	conn.EXPECT().Emit(domain.EventJoinRoom, domain.JoinRoom{RoomID: "r1"}).Return(nil)
	h.OnEvent(matchFound(t, "r1"))
	state, _ := f.orch.State()
	req.Equal(domain.InChat, state)

	req.NoError(f.session.SaveReportTarget("device-b"))
	conn.EXPECT().Emit(domain.EventLeaveChat, domain.LeaveChat{RoomID: "r1"}).Return(nil).Times(1)
	conn.EXPECT().Close().Return(nil).Times(1)
	f.identity.EXPECT().IncrementDailyCount().Return(nil).Times(1)

	ended, ok := f.orch.EndSession(domain.EndReported)
	req.True(ok)
	req.True(ended.Counted)
	req.Equal(domain.EndReported, ended.Reason)
	req.Equal("device-b", ended.ReportTarget)

	_, ok = f.orch.EndSession(domain.EndVoluntary)
	req.False(ok)

	_, ok, err := f.session.ReportTarget()
	req.NoError(err)
	req.False(ok)
	last, ok := f.orch.LastEnded()
	req.True(ok)
	req.Equal(domain.EndReported, last.Reason)
}

func TestEndSession_LeaveFailureStillClears(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	f := newFixture(t, ctrl, testConfig())
	conn := mocks.NewMockConn(ctrl)

	h := f.queue(t, conn)
	conn.EXPECT().Emit(domain.EventJoinRoom, gomock.Any()).Return(nil)
	h.OnEvent(matchFound(t, "r1"))

	conn.EXPECT().Emit(domain.EventLeaveChat, gomock.Any()).Return(errors.ErrNotConnected)
	conn.EXPECT().Close().Return(nil)
	f.identity.EXPECT().IncrementDailyCount().Return(nil)

	_, ok := f.orch.EndSession(domain.EndVoluntary)
	req.True(ok)
	_, ok, err := f.session.Room()
	req.NoError(err)
	req.False(ok)
}

func TestEndSession_WhileQueuedDoesNotCount(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	f := newFixture(t, ctrl, testConfig())
	conn := mocks.NewMockConn(ctrl)

	f.queue(t, conn)
	conn.EXPECT().Close().Return(nil)

	ended, ok := f.orch.EndSession(domain.EndVoluntary)
	req.True(ok)
	req.False(ended.Counted)
	req.Nil(ended.Room)
}

func TestEndSession_BeforeStartIsNoop(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, gomock.NewController(t), testConfig())
	_, ok := f.orch.EndSession(domain.EndVoluntary)
	req.False(ok)
}

func TestSessionClock_ExpiresChatOnce(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	cfg := testConfig()
	cfg.SessionDuration = 3 * time.Second
	f := newFixture(t, ctrl, cfg)
	conn := mocks.NewMockConn(ctrl)

	h := f.queue(t, conn)
	conn.EXPECT().Emit(domain.EventJoinRoom, gomock.Any()).Return(nil)
	conn.EXPECT().Emit(domain.EventLeaveChat, gomock.Any()).Return(nil).Times(1)
	conn.EXPECT().Close().Return(nil).Times(1)
	f.identity.EXPECT().IncrementDailyCount().Return(nil).Times(1)

	h.OnEvent(matchFound(t, "r1"))
	req.Eventually(func() bool {
		s, _ := f.orch.State()
		return s == domain.Ended
	}, time.Second, time.Millisecond)

	time.Sleep(20 * time.Millisecond)
	ended, ok := f.orch.LastEnded()
	req.True(ok)
	req.Equal(domain.EndExpired, ended.Reason)
	_, ok = f.orch.EndSession(domain.EndVoluntary)
	req.False(ok)
}

func TestServerSignals_ForceTeardown(t *testing.T) {
	tests := []struct {
		name    string
		evt     func(t *testing.T) contract.Event
		reason  domain.EndReason
		wantErr error
	}{
		{
			name:   "partner left",
			evt:    func(t *testing.T) contract.Event { return event(t, domain.EventPartnerLeft, nil) },
			reason: domain.EndPartnerLeft,
		},
		{
			name:    "room expired",
			evt:     func(t *testing.T) contract.Event { return event(t, domain.EventRoomExpired, nil) },
			reason:  domain.EndExpired,
			wantErr: errors.ErrRoomExpired,
		},
		{
			name: "server error",
			evt: func(t *testing.T) contract.Event {
				return event(t, domain.EventError, domain.ServerError{Message: "banned"})
			},
			reason:  domain.EndVoluntary,
			wantErr: errors.ErrServerError,
		},
		{
			name: "undecodable server error",
			evt: func(t *testing.T) contract.Event {
				return contract.Event{Type: domain.EventError, Payload: json.RawMessage(`"not an object"`)}
			},
			reason:  domain.EndVoluntary,
			wantErr: errors.ErrServerError,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			ctrl := gomock.NewController(t)
			f := newFixture(t, ctrl, testConfig())
			conn := mocks.NewMockConn(ctrl)

			h := f.queue(t, conn)
			conn.EXPECT().Emit(domain.EventJoinRoom, gomock.Any()).Return(nil)
			h.OnEvent(matchFound(t, "r1"))

			conn.EXPECT().Emit(domain.EventLeaveChat, gomock.Any()).Return(nil)
			conn.EXPECT().Close().Return(nil)
			f.identity.EXPECT().IncrementDailyCount().Return(nil)

			h.OnEvent(tt.evt(t))

			state, err := f.orch.State()
			req.Equal(domain.Ended, state)
			if tt.wantErr != nil {
				req.ErrorIs(err, tt.wantErr)
				req.ErrorIs(err, errors.ErrProtocol)
			} else {
				req.NoError(err)
			}
			ended, ok := f.orch.LastEnded()
			req.True(ok)
			req.Equal(tt.reason, ended.Reason)
		})
	}
}

func TestTransportErrors_KeepQueueIntent(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	f := newFixture(t, ctrl, testConfig())
	conn := mocks.NewMockConn(ctrl)

	h := f.queue(t, conn)

	h.OnDisconnect(fmt.Errorf("%w: reset", errors.ErrTransport))
	state, err := f.orch.State()
	req.Equal(domain.Connecting, state)
	req.ErrorIs(err, errors.ErrTransport)

	h.OnConnectError(fmt.Errorf("%w: refused", errors.ErrTransport), 1, false)
	state, err = f.orch.State()
	req.Equal(domain.Connecting, state)
	req.ErrorIs(err, errors.ErrTransport)

	// Reconnect re-announces the queue join and clears the error.
	conn.EXPECT().Emit(domain.EventJoinQueue, joinQueue()).Return(nil)
	h.OnConnect(conn)
	state, err = f.orch.State()
	req.Equal(domain.Queued, state)
	req.NoError(err)
}

func TestTransportExhausted_RetryStartsOver(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	f := newFixture(t, ctrl, testConfig())
	first := mocks.NewMockConn(ctrl)
	second := mocks.NewMockConn(ctrl)

	f.expectDial(first)
	h := f.start(t)
	h.OnConnectError(fmt.Errorf("%w: refused", errors.ErrTransport), 5, true)

	state, err := f.orch.State()
	req.Equal(domain.Connecting, state)
	req.ErrorIs(err, errors.ErrReconnectExhausted)

	first.EXPECT().Close().Return(nil)
	f.expectDial(second)
	f.identity.EXPECT().IsLimitReached(100).Return(false, nil)
	req.NoError(f.orch.Retry(context.Background()))
	h = <-f.handlers

	second.EXPECT().Emit(domain.EventJoinQueue, joinQueue()).Return(nil)
	h.OnConnect(second)
	state, err = f.orch.State()
	req.Equal(domain.Queued, state)
	req.NoError(err)
}

func TestRetry_WithoutPreviousSession(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, gomock.NewController(t), testConfig())
	req.ErrorIs(f.orch.Retry(context.Background()), errors.ErrMissingDeviceID)
}

func TestReconnectInChat_RejoinsRoom(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	f := newFixture(t, ctrl, testConfig())
	conn := mocks.NewMockConn(ctrl)

	h := f.queue(t, conn)
	conn.EXPECT().Emit(domain.EventJoinRoom, domain.JoinRoom{RoomID: "r1"}).Return(nil).Times(2)
	h.OnEvent(matchFound(t, "r1"))

	h.OnDisconnect(fmt.Errorf("%w: reset", errors.ErrTransport))
	state, err := f.orch.State()
	req.Equal(domain.InChat, state)
	req.Error(err)

	h.OnConnect(conn)
	state, err = f.orch.State()
	req.Equal(domain.InChat, state)
	req.NoError(err)
}

func TestInboundChatTraffic(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	f := newFixture(t, ctrl, testConfig())
	conn := mocks.NewMockConn(ctrl)

	h := f.queue(t, conn)
	conn.EXPECT().Emit(domain.EventJoinRoom, gomock.Any()).Return(nil)
	h.OnEvent(matchFound(t, "r1"))

	h.OnEvent(event(t, domain.EventPartnerTyping, domain.PartnerTyping{IsTyping: true}))
	req.True(f.orch.Chat().PartnerTyping())

	h.OnEvent(event(t, domain.EventReceiveMessage, domain.ChatMessage{SenderID: "device-b", Text: "hello", Timestamp: 1}))
	h.OnEvent(event(t, domain.EventReceiveMessage, domain.ChatMessage{SenderID: "device-b", Text: "again", Timestamp: 2}))
	h.OnEvent(event(t, domain.EventReceiveMessage, domain.ChatMessage{SenderID: "device-b"}))
	h.OnEvent(event(t, "unknown_event", nil))

	messages := f.orch.Chat().Messages()
	req.Len(messages, 2)
	req.Equal("hello", messages[0].Text)
	req.Equal("again", messages[1].Text)
	req.False(f.orch.Chat().PartnerTyping())

	var received []string
	for _, u := range drain(f.orch.Updates()) {
		if u.Message != nil {
			received = append(received, u.Message.Text)
		}
	}
	req.Equal([]string{"hello", "again"}, received)
}

func TestUpdates_NeverBlock(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	cfg := testConfig()
	cfg.UpdatesBufferSize = 1
	f := newFixture(t, ctrl, cfg)
	conn := mocks.NewMockConn(ctrl)

	h := f.queue(t, conn)
	for i := 0; i < 10; i++ {
		h.OnDisconnect(fmt.Errorf("%w: reset", errors.ErrTransport))
	}
	req.Len(f.orch.Updates(), 1)

	conn.EXPECT().Close().Return(nil)
	req.NoError(f.orch.Close())
	req.NoError(f.orch.Close())
	f.identity.EXPECT().IsLimitReached(100).Return(false, nil)
	req.ErrorIs(f.orch.StartMatching(context.Background(), testProfile(), deviceID), errors.ErrConnectionClosed)
}

func TestRemainingMatches(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, gomock.NewController(t), testConfig())

	f.identity.EXPECT().GetDailyCount().Return(97, nil)
	left, err := f.orch.RemainingMatches()
	req.NoError(err)
	req.Equal(3, left)

	f.identity.EXPECT().GetDailyCount().Return(120, nil)
	left, err = f.orch.RemainingMatches()
	req.NoError(err)
	req.Zero(left)
}
