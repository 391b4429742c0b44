package e2e

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/gookit/color"
	"github.com/mama165/sdk-go/logs"
	"github.com/omkarshukla84/klymo-client/domain"
	"github.com/omkarshukla84/klymo-client/infrastructure/ws"
	"github.com/omkarshukla84/klymo-client/repositories"
	"github.com/omkarshukla84/klymo-client/runtime"
	"github.com/stretchr/testify/suite"
)

const awaitTimeout = 5 * time.Second

type BaseSuite struct {
	suite.Suite
	Config Config
	Fake   *FakeServer
	url    string
	log    *slog.Logger
}

// SetupSuite loads the environment configuration and starts the fake
// matching service unless a real one is configured.
func (s *BaseSuite) SetupSuite() {
	var err error
	s.Config, err = LoadConfig()
	s.Require().NoError(err)

	level := slog.LevelError
	if s.Config.DebugJSON {
		level = slog.LevelDebug
	}
	s.log = logs.GetLoggerFromLevel(level)

	s.url = s.Config.SocketURL
	if s.url == "" {
		s.Fake = NewFakeServer(s.log)
		s.url = s.Fake.URL()
	}
}

func (s *BaseSuite) TearDownSuite() {
	if s.Fake != nil {
		s.Fake.Close()
	}
}

// Step prints a header for one stage of a scenario.
func (s *BaseSuite) Step(name string) {
	header := fmt.Sprintf("  ====== %s ======", name)
	if s.Config.Colours {
		header = color.New(color.BgBlack, color.FgGreen).Render(header)
	}
	s.T().Log(header)
}

// Client is one participant with its own stores and connection.
type Client struct {
	Name         string
	DeviceID     string
	Profile      domain.SessionProfile
	Orchestrator *runtime.Orchestrator
	Reports      *runtime.ReportChannel
}

type staticFingerprint string

func (f staticFingerprint) Fingerprint(context.Context) (string, error) {
	return string(f), nil
}

func (s *BaseSuite) NewClient(name string, gender domain.Gender) *Client {
	durable, err := repositories.OpenEphemeral()
	s.Require().NoError(err)
	ephemeral, err := repositories.OpenEphemeral()
	s.Require().NoError(err)
	s.T().Cleanup(func() {
		closeDB(durable)
		closeDB(ephemeral)
	})

	identity := repositories.NewIdentityRepository(durable, staticFingerprint(name+time.Now().String()), s.log)
	deviceID, err := identity.GetOrCreateID(context.Background())
	s.Require().NoError(err)
	session := repositories.NewSessionRepository(ephemeral)

	opts := ws.DefaultOptions(s.url)
	opts.Attempts = 3
	opts.Delay = 50 * time.Millisecond
	dialer := ws.NewDialer(opts, s.log)

	cfg := runtime.DefaultConfig()
	cfg.MatchDisplayDelay = 50 * time.Millisecond
	cfg.SessionDuration = 0
	orchestrator := runtime.NewOrchestrator(s.log, cfg, dialer, identity, session, nil)
	s.T().Cleanup(func() { _ = orchestrator.Close() })

	profile := domain.SessionProfile{Nickname: name, Bio: "e2e", MatchPreference: domain.PreferAny}
	profile.Verified(gender, "e2e-token", time.Now())

	return &Client{
		Name:         name,
		DeviceID:     deviceID,
		Profile:      profile,
		Orchestrator: orchestrator,
		Reports:      runtime.NewReportChannel(s.log, orchestrator, session, dialer, 100*time.Millisecond),
	}
}

func closeDB(db *badger.DB) {
	_ = db.Close()
}

// Await consumes the client's updates until match accepts one.
func (s *BaseSuite) Await(c *Client, what string, match func(domain.Update) bool) domain.Update {
	timeout := time.After(awaitTimeout)
	for {
		select {
		case u, ok := <-c.Orchestrator.Updates():
			s.Require().True(ok, "%s: update stream closed while waiting for %s", c.Name, what)
			if match(u) {
				return u
			}
		case <-timeout:
			s.FailNow(fmt.Sprintf("%s: timed out waiting for %s", c.Name, what))
			return domain.Update{}
		}
	}
}

func InState(state domain.State) func(domain.Update) bool {
	return func(u domain.Update) bool {
		return u.Message == nil && !u.PartnerTyping && u.State == state
	}
}

// Pair queues both clients and waits until both are chatting.
func (s *BaseSuite) Pair(a, b *Client) {
	ctx := context.Background()
	s.Require().NoError(a.Orchestrator.StartMatching(ctx, a.Profile, a.DeviceID))
	s.Await(a, "queued", InState(domain.Queued))
	s.Require().NoError(b.Orchestrator.StartMatching(ctx, b.Profile, b.DeviceID))

	s.Await(a, "chat", InState(domain.InChat))
	s.Await(b, "chat", InState(domain.InChat))
}
