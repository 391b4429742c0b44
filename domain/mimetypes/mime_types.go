package mimetypes

import (
	"encoding/base64"
	"fmt"
	"mime"

	"github.com/gabriel-vasile/mimetype"
	"github.com/omkarshukla84/klymo-client/errors"
	"github.com/samber/lo"
)

type MIME string

const (
	Unknown MIME = "unknown"

	ImagePNG  MIME = "image/png"
	ImageJPEG MIME = "image/jpeg"
	ImageGIF  MIME = "image/gif"
	ImageWEBP MIME = "image/webp"
)

var (
	// Selfie is what the verification service accepts.
	Selfie = []MIME{ImageJPEG, ImagePNG, ImageWEBP}
	// Attachment is what may be sent inline in a chat.
	Attachment = []MIME{ImageJPEG, ImagePNG, ImageGIF, ImageWEBP}
)

func Matches(detected string, expected MIME) (MIME, bool) {
	mt, _, err := mime.ParseMediaType(detected)
	if err != nil {
		return Unknown, false
	}
	return expected, mt == string(expected)
}

// Detect sniffs data and returns the first allowed type it matches.
func Detect(data []byte, allowed []MIME) (MIME, bool) {
	detected := mimetype.Detect(data).String()
	return lo.Find(allowed, func(m MIME) bool {
		_, ok := Matches(detected, m)
		return ok
	})
}

// DataURL encodes data as a base64 data URL once its content type is
// confirmed to be one of allowed.
func DataURL(data []byte, allowed []MIME) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("%w: empty payload", errors.ErrUnsupportedImage)
	}
	m, ok := Detect(data, allowed)
	if !ok {
		return "", fmt.Errorf("%w: %s", errors.ErrUnsupportedImage, mimetype.Detect(data).String())
	}
	return "data:" + string(m) + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}
