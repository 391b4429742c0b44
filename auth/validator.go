package auth

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/omkarshukla84/klymo-client/domain"
	"github.com/omkarshukla84/klymo-client/errors"
	"github.com/samber/lo"
)

const MaxBioEmojis = 5

var validate = validator.New()

type ProfileRequest struct {
	Nickname        string `validate:"required,min=3,max=32"`
	Bio             string `validate:"required,min=10,max=140"`
	MatchPreference string `validate:"required,oneof=M F Any"`
}

type ProfanityChecker interface {
	IsProfane(text string) bool
}

// ProfileValidator enforces every rule a profile must meet before queueing.
type ProfileValidator struct {
	profanity ProfanityChecker
	ttl       time.Duration
	now       func() time.Time
}

func NewProfileValidator(profanity ProfanityChecker, ttl time.Duration) *ProfileValidator {
	return &ProfileValidator{profanity: profanity, ttl: ttl, now: time.Now}
}

// Validate checks verification first, then the profile fields.
// Every failure wraps errors.ErrPrecondition.
func (v *ProfileValidator) Validate(profile domain.SessionProfile) error {
	if profile.Gender == nil || !profile.Gender.Valid() {
		return fmt.Errorf("%w: gender not verified", errors.ErrVerificationRequired)
	}
	if !VerificationFresh(profile.Token(), profile.VerifiedAt, v.now(), v.ttl) {
		return errors.ErrVerificationRequired
	}
	return v.ValidateFields(profile)
}

// ValidateFields checks nickname, bio and preference only.
func (v *ProfileValidator) ValidateFields(profile domain.SessionProfile) error {
	req := ProfileRequest{
		Nickname:        strings.TrimSpace(profile.Nickname),
		Bio:             strings.TrimSpace(profile.Bio),
		MatchPreference: string(profile.MatchPreference),
	}
	if err := validate.Struct(req); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrIncompleteProfile, err)
	}
	if v.profanity != nil && (v.profanity.IsProfane(req.Nickname) || v.profanity.IsProfane(req.Bio)) {
		return errors.ErrProfaneProfile
	}
	if CountEmojis(req.Bio) > MaxBioEmojis {
		return errors.ErrTooManyEmojis
	}
	return nil
}

// CountEmojis counts pictographic runes: everything outside the basic
// multilingual plane plus the dingbat and misc-symbol code points commonly
// used as emoji.
func CountEmojis(s string) int {
	return lo.CountBy([]rune(s), isEmoji)
}

func isEmoji(r rune) bool {
	switch {
	case r > 0xFFFF:
		return true
	case r == 0x261D, r == 0x263A, r == 0x2639, r == 0x2665, r == 0x2708, r == 0x2709, r == 0x270C, r == 0x270D:
		return true
	case r >= 0x2702 && r <= 0x27B0:
		return true
	}
	return false
}
