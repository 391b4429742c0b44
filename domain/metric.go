package domain

// Metrics is the admin snapshot served by the matching service, in three
// sections. Rates arrive preformatted.
type Metrics struct {
	Technical TechnicalMetrics `json:"technical"`
	Safety    SafetyMetrics    `json:"safety"`
	User      UserMetrics      `json:"user"`
}

type TechnicalMetrics struct {
	AvgMatchTimeMs    string `json:"avgMatchTimeMs"`
	MatchTimeLimitMet bool   `json:"matchTimeLimitMet"`
	ActiveSessions    int    `json:"activeSessions"`
	TotalMatchesLife  int    `json:"totalMatchesLife"`
	QueueThroughput   int    `json:"queueThroughput"`
}

type SafetyMetrics struct {
	TotalReports int    `json:"totalReports"`
	ReportRate   string `json:"reportRate"`
	ActiveBans   int    `json:"activeBans"`
}

type UserMetrics struct {
	VerificationSuccessRate string `json:"verificationSuccessRate"`
	DropOffAtVerification   int    `json:"dropOffAtVerification"`
}
