package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/Netflix/go-env"
	"github.com/gookit/color"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
	"github.com/omkarshukla84/klymo-client/domain"
	"github.com/omkarshukla84/klymo-client/infrastructure/api"
	"github.com/omkarshukla84/klymo-client/runtime/workers"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/pflag"
)

const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

// Config only needs the HTTP endpoint, the socket is never opened here.
type Config struct {
	APIURL   string `env:"API_URL,required=true"`
	LogLevel string `env:"LOG_LEVEL,default=INFO"`
}

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Metrics dashboard terminated with error: %v\n", err)
	}
	os.Exit(code)
}

func run() (int, error) {
	flags := pflag.NewFlagSet("metrics", pflag.ContinueOnError)
	envFile := flags.String("env", ".env", "optional dotenv file")
	interval := flags.Duration("interval", workers.DefaultMetricsInterval, "refresh interval")
	once := flags.Bool("once", false, "print a single snapshot and exit")
	if err := flags.Parse(os.Args[1:]); err != nil {
		return exitConfig, err
	}

	_ = godotenv.Load(*envFile)
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	logger := logs.GetLoggerFromString(config.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := api.NewClient(config.APIURL, nil, logger)
	if *once {
		m, err := client.Metrics(ctx)
		if err != nil {
			return exitRuntime, err
		}
		render(os.Stdout, m)
		return exitOK, nil
	}

	poller := workers.NewMetricsPoller(logger, client, *interval, func(m domain.Metrics) {
		render(os.Stdout, m)
	})
	supervisor := workers.NewSupervisor(logger).Add(poller)
	supervisor.Run(ctx)
	return exitOK, nil
}

// render prints the three sections of the snapshot as one table.
func render(w io.Writer, m domain.Metrics) {
	_, _ = fmt.Fprintln(w, color.New(color.FgCyan, color.OpBold).Render("Admin metrics"))

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Section", "Metric", "Value"})
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetAutoMergeCells(true)
	table.AppendBulk(rows(m))
	table.Render()
}

func rows(m domain.Metrics) [][]string {
	limit := "no"
	if m.Technical.MatchTimeLimitMet {
		limit = "yes"
	}
	return [][]string{
		{"Technical", "Avg match time (ms)", m.Technical.AvgMatchTimeMs},
		{"Technical", "Match time limit met", limit},
		{"Technical", "Active sessions", strconv.Itoa(m.Technical.ActiveSessions)},
		{"Technical", "Total matches", strconv.Itoa(m.Technical.TotalMatchesLife)},
		{"Technical", "Queue throughput", strconv.Itoa(m.Technical.QueueThroughput)},
		{"Safety", "Total reports", strconv.Itoa(m.Safety.TotalReports)},
		{"Safety", "Report rate", m.Safety.ReportRate},
		{"Safety", "Active bans", strconv.Itoa(m.Safety.ActiveBans)},
		{"User", "Verification success rate", m.User.VerificationSuccessRate},
		{"User", "Drop-off at verification", strconv.Itoa(m.User.DropOffAtVerification)},
	}
}
