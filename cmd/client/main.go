package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/omkarshukla84/klymo-client/auth"
	"github.com/omkarshukla84/klymo-client/domain"
	"github.com/omkarshukla84/klymo-client/infrastructure/api"
	"github.com/omkarshukla84/klymo-client/infrastructure/host"
	"github.com/omkarshukla84/klymo-client/infrastructure/ws"
	"github.com/omkarshukla84/klymo-client/internal"
	"github.com/omkarshukla84/klymo-client/moderation"
	"github.com/omkarshukla84/klymo-client/repositories"
	"github.com/omkarshukla84/klymo-client/runtime"
	"github.com/omkarshukla84/klymo-client/runtime/workers"
	"github.com/spf13/pflag"
)

// Exit codes to provide meaningful status to the operating system.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

const shutdownGrace = 3 * time.Second

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Client terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run wires every component, so that deferred cleanups (connections,
// databases) run before the process exits.
func run() (int, error) {
	// 1. Flags & configuration
	flags := pflag.NewFlagSet("client", pflag.ContinueOnError)
	envFile := flags.String("env", ".env", "optional dotenv file")
	nickname := flags.StringP("nickname", "n", "", "nickname shown to the partner")
	bio := flags.StringP("bio", "b", "", "short bio shown to the partner")
	prefer := flags.StringP("prefer", "p", string(domain.PreferAny), "match preference: M, F or Any")
	selfie := flags.String("selfie", "", "path to a selfie used for verification")
	namespace := flags.String("namespace", "", "separates client identities on one machine")
	if err := flags.Parse(os.Args[1:]); err != nil {
		return exitConfig, err
	}

	config, err := internal.LoadConfig(*envFile)
	if err != nil {
		return exitConfig, err
	}
	logger := logs.GetLoggerFromString(config.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Storage: durable identity, volatile session
	durable, err := repositories.OpenDurable(config.BadgerFilepath)
	if err != nil {
		return exitRuntime, fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		logger.Debug("Closing BadgerDB...")
		_ = durable.Close()
	}()
	ephemeral, err := repositories.OpenEphemeral()
	if err != nil {
		return exitRuntime, fmt.Errorf("session store opening failed: %w", err)
	}
	defer func() { _ = ephemeral.Close() }()

	identity := repositories.NewIdentityRepository(durable, host.NewFingerprinter(*namespace), logger)
	deviceID, err := identity.GetOrCreateID(ctx)
	if err != nil {
		return exitRuntime, fmt.Errorf("queueing not permitted: %w", err)
	}
	session := repositories.NewSessionRepository(ephemeral)

	// 3. Profile rules and verification
	moderator, err := moderation.NewDefaultModerator(logger)
	if err != nil {
		return exitRuntime, err
	}
	validator := auth.NewProfileValidator(moderator, config.VerificationTTL)
	profile := domain.SessionProfile{
		Nickname:        *nickname,
		Bio:             *bio,
		MatchPreference: domain.MatchPreference(*prefer),
	}
	if err := validator.ValidateFields(profile); err != nil {
		return exitConfig, err
	}

	console := newConsole(os.Stdout, deviceID)
	if err := verify(ctx, api.NewClient(config.APIURL, nil, logger), console, &profile, deviceID, *selfie); err != nil {
		return exitRuntime, err
	}

	// 4. Session components
	dialer := ws.NewDialer(ws.Options{
		URL:            config.SocketURL,
		Attempts:       config.ReconnectAttempts,
		Delay:          config.ReconnectDelay,
		MaxDelay:       config.ReconnectDelayMax,
		ConnectTimeout: config.ConnectTimeout,
	}, logger)
	orchestrator := runtime.NewOrchestrator(logger, runtime.Config{
		DailyLimit:        config.DailyLimit,
		MatchDisplayDelay: config.MatchDisplayDelay,
		SessionDuration:   config.SessionDuration,
		ClockTick:         time.Second,
		MaxImageBytes:     config.MaxImageBytes,
		UpdatesBufferSize: config.UpdatesBufferSize,
	}, dialer, identity, session, validator)
	defer func() { _ = orchestrator.Close() }()
	reports := runtime.NewReportChannel(logger, orchestrator, session, dialer, config.BlockCloseDelay)

	if left, err := orchestrator.RemainingMatches(); err == nil {
		console.info("%d matches left today", left)
	}
	if err := orchestrator.StartMatching(ctx, profile, deviceID); err != nil {
		return exitRuntime, err
	}

	updates := orchestrator.Updates()
	supervisor := workers.NewSupervisor(logger).Add(
		workers.NewUpdateListener(logger, updates, console.render),
		workers.NewBacklogMonitor(logger, []workers.NamedChannel{{Name: "updates", Channel: updates}},
			workers.DefaultBacklogInterval, 0.75),
	)
	go supervisor.Run(ctx)
	defer supervisor.Stop()

	// 5. Command loop until /quit, EOF or a signal
	cmds := &commands{
		orchestrator: orchestrator,
		reports:      reports,
		console:      console,
		deviceID:     deviceID,
	}
	lines := readLines(os.Stdin)
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case line, ok := <-lines:
			if !ok || cmds.handle(ctx, line) {
				break loop
			}
		}
	}

	// Leaving the client tears the session down without waiting for the server.
	orchestrator.EndSession(domain.EndVoluntary)
	waitCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	_ = reports.Wait(waitCtx)
	return exitOK, nil
}

func verify(ctx context.Context, client *api.Client, out *console,
	profile *domain.SessionProfile, deviceID, selfiePath string) error {
	if selfiePath == "" {
		return fmt.Errorf("a selfie is required for verification (--selfie)")
	}
	data, err := os.ReadFile(selfiePath)
	if err != nil {
		return fmt.Errorf("read selfie: %w", err)
	}
	out.info("Verifying...")
	verification, err := client.Verify(ctx, deviceID, data)
	if err != nil {
		return err
	}
	profile.Verified(verification.Gender, verification.Token, time.Now())
	out.success("Verified as %s", verification.Gender)
	return nil
}

func readLines(r io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()
	return lines
}
