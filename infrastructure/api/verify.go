package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/omkarshukla84/klymo-client/domain"
	"github.com/omkarshukla84/klymo-client/domain/mimetypes"
	"github.com/omkarshukla84/klymo-client/errors"
)

type verifyRequest struct {
	Image    string `json:"image"`
	DeviceID string `json:"deviceId"`
}

type verifyResponse struct {
	Verified          bool   `json:"verified"`
	Success           bool   `json:"success"`
	Gender            string `json:"gender"`
	VerificationToken string `json:"verificationToken"`
	Error             string `json:"error"`
}

// Verification is what the service returned for an accepted selfie.
type Verification struct {
	Gender domain.Gender
	Token  string
}

// Verify submits one selfie for gender verification. The image is only held
// for the duration of the call.
func (c *Client) Verify(ctx context.Context, deviceID string, selfie []byte) (Verification, error) {
	if deviceID == "" {
		return Verification{}, errors.ErrMissingDeviceID
	}
	image, err := mimetypes.DataURL(selfie, mimetypes.Selfie)
	if err != nil {
		return Verification{}, err
	}

	var resp verifyResponse
	status, err := c.do(ctx, http.MethodPost, verifyPath,
		verifyRequest{Image: image, DeviceID: deviceID}, &resp)
	if err != nil {
		return Verification{}, err
	}

	if !resp.Verified && !resp.Success {
		reason := resp.Error
		if reason == "" {
			reason = http.StatusText(status)
		}
		c.log.Info("Verification rejected", "device", deviceID, "status", status, "reason", reason)
		return Verification{}, fmt.Errorf("%w: %s", errors.ErrNotVerified, reason)
	}

	gender := domain.Gender(resp.Gender)
	if !gender.Valid() {
		return Verification{}, fmt.Errorf("%w: gender %q", errors.ErrBadResponse, resp.Gender)
	}
	c.log.Info("Verification accepted", "device", deviceID, "gender", gender)
	return Verification{Gender: gender, Token: resp.VerificationToken}, nil
}
