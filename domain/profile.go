package domain

import "time"

type Gender string

const (
	Male   Gender = "M"
	Female Gender = "F"
)

func (g Gender) Valid() bool {
	return g == Male || g == Female
}

type MatchPreference string

const (
	PreferMale   MatchPreference = "M"
	PreferFemale MatchPreference = "F"
	PreferAny    MatchPreference = "Any"
)

// SessionProfile lives for the duration of the client process and is filled
// by the verification and profile-setup steps.
// Matching may not be requested unless Gender is set and a fresh
// VerificationToken is present.
type SessionProfile struct {
	Nickname          string
	Bio               string
	MatchPreference   MatchPreference
	Gender            *Gender
	VerificationToken *string
	VerifiedAt        time.Time
}

// Verified records a successful verification on the profile.
func (p *SessionProfile) Verified(gender Gender, token string, at time.Time) {
	p.Gender = &gender
	p.VerificationToken = &token
	p.VerifiedAt = at
}

// GenderValue returns the verified gender or an empty string.
func (p SessionProfile) GenderValue() string {
	if p.Gender == nil {
		return ""
	}
	return string(*p.Gender)
}

// Token returns the verification token or an empty string.
func (p SessionProfile) Token() string {
	if p.VerificationToken == nil {
		return ""
	}
	return *p.VerificationToken
}
