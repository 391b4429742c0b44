package main

import (
	"bytes"
	"testing"

	"github.com/omkarshukla84/klymo-client/domain"
	"github.com/stretchr/testify/require"
)

func TestRender(t *testing.T) {
	req := require.New(t)
	m := domain.Metrics{
		Technical: domain.TechnicalMetrics{AvgMatchTimeMs: "812", MatchTimeLimitMet: true, ActiveSessions: 4},
		Safety:    domain.SafetyMetrics{TotalReports: 3, ReportRate: "1.5%"},
		User:      domain.UserMetrics{VerificationSuccessRate: "92%", DropOffAtVerification: 7},
	}

	var out bytes.Buffer
	render(&out, m)

	text := out.String()
	req.Contains(text, "812")
	req.Contains(text, "1.5%")
	req.Contains(text, "92%")
	req.Len(rows(m), 10)
	req.Equal("yes", rows(m)[1][2])
}
