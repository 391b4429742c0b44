package runtime

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/omkarshukla84/klymo-client/contract"
	"github.com/omkarshukla84/klymo-client/domain"
	"github.com/omkarshukla84/klymo-client/errors"
)

const DefaultBlockCloseDelay = time.Second

// ReportChannel submits abuse signals. Reports ride the primary connection;
// blocks use a dedicated short-lived connection so they keep working after
// the chat is gone. Failures are logged and swallowed.
type ReportChannel struct {
	log        *slog.Logger
	primary    contract.Emitter
	session    contract.SessionStore
	dialer     contract.Dialer
	closeDelay time.Duration

	mu   sync.Mutex
	live *blockAttempt
	wg   sync.WaitGroup
}

func NewReportChannel(log *slog.Logger, primary contract.Emitter, session contract.SessionStore,
	dialer contract.Dialer, closeDelay time.Duration) *ReportChannel {
	if closeDelay <= 0 {
		closeDelay = DefaultBlockCloseDelay
	}
	return &ReportChannel{
		log:        log,
		primary:    primary,
		session:    session,
		dialer:     dialer,
		closeDelay: closeDelay,
	}
}

// ReportUser fires a report on the primary connection, if one is open, and
// remembers the target for a later block either way.
func (r *ReportChannel) ReportUser(reporterID, targetID, reason string) {
	if targetID == "" {
		r.log.Warn("Report without target ignored")
		return
	}
	report := domain.ReportUser{ReporterDeviceID: reporterID, TargetDeviceID: targetID, Reason: reason}
	if err := r.primary.Emit(domain.EventReportUser, report); err != nil {
		r.log.Warn("Report not sent", "target", targetID, "err", err)
	} else {
		r.log.Info("Report sent", "target", targetID, "reason", reason)
	}
	if err := r.session.SaveReportTarget(targetID); err != nil {
		r.log.Warn("Report target not stored", "target", targetID, "err", err)
	}
}

// PendingTarget returns the last reported device, if it is still stored.
func (r *ReportChannel) PendingTarget() (string, bool) {
	target, ok, err := r.session.ReportTarget()
	if err != nil {
		r.log.Warn("Report target unreadable", "err", err)
		return "", false
	}
	return target, ok
}

// BlockUser opens a fresh connection, sends the block once connected and
// closes it after the close delay, acknowledged or not. A previous block
// connection still open is closed first.
func (r *ReportChannel) BlockUser(ctx context.Context, myID, targetID string) error {
	if targetID == "" || targetID == myID {
		return errors.ErrInvalidBlockTarget
	}

	attempt := &blockAttempt{
		log:        r.log.With("target", targetID),
		payload:    domain.BlockUser{MyDeviceID: myID, TargetDeviceID: targetID},
		closeDelay: r.closeDelay,
		done:       make(chan struct{}),
	}

	r.mu.Lock()
	previous := r.live
	r.live = attempt
	r.mu.Unlock()
	if previous != nil {
		previous.close()
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		<-attempt.done
		r.mu.Lock()
		if r.live == attempt {
			r.live = nil
		}
		r.mu.Unlock()
	}()

	conn, err := r.dialer.Dial(ctx, attempt)
	if err != nil {
		r.log.Warn("Block channel not opened", "target", targetID, "err", err)
		attempt.close()
		return nil
	}
	attempt.setConn(conn)
	return nil
}

// Wait blocks until every block connection has been closed or ctx is done.
func (r *ReportChannel) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// blockAttempt is the Handler of one block connection.
type blockAttempt struct {
	log        *slog.Logger
	payload    domain.BlockUser
	closeDelay time.Duration

	mu     sync.Mutex
	conn   contract.Conn
	sent   bool
	closed bool
	timer  *time.Timer
	done   chan struct{}
}

func (a *blockAttempt) setConn(conn contract.Conn) {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		_ = conn.Close()
		return
	}
	a.conn = conn
	a.mu.Unlock()
}

func (a *blockAttempt) OnConnect(conn contract.Conn) {
	a.mu.Lock()
	if a.closed || a.sent {
		a.mu.Unlock()
		return
	}
	a.sent = true
	a.conn = conn
	a.timer = time.AfterFunc(a.closeDelay, a.close)
	a.mu.Unlock()

	if err := conn.Emit(domain.EventBlockUser, a.payload); err != nil {
		a.log.Warn("Block not sent", "err", err)
		return
	}
	a.log.Info("Block sent")
}

func (a *blockAttempt) OnConnectError(err error, attempt int, final bool) {
	if final {
		a.log.Warn("Block channel gave up", "attempt", attempt, "err", err)
		a.close()
	}
}

func (a *blockAttempt) OnEvent(evt contract.Event) {
	a.log.Debug("Block channel event", "type", evt.Type)
}

func (a *blockAttempt) OnDisconnect(err error) {
	a.log.Debug("Block channel dropped", "err", err)
}

func (a *blockAttempt) close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	conn := a.conn
	if a.timer != nil {
		a.timer.Stop()
	}
	a.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	close(a.done)
}
