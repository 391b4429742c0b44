package mimetypes

import (
	"strings"
	"testing"

	"github.com/omkarshukla84/klymo-client/errors"
	"github.com/stretchr/testify/require"
)

var (
	pngBytes  = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")
	jpegBytes = []byte("\xff\xd8\xff\xe0\x00\x10JFIF\x00\x01\x01\x00\x00\x01\x00\x01\x00\x00")
	gifBytes  = []byte("GIF89a\x01\x00\x01\x00\x00\x00\x00;")
)

func TestMatches(t *testing.T) {
	tests := []struct {
		name     string
		detected string
		expected MIME
		want     bool
	}{
		{"PNG", "image/png", ImagePNG, true},
		{"JPEG", "image/jpeg", ImageJPEG, true},
		{"GIF", "image/gif", ImageGIF, true},
		{"WEBP", "image/webp", ImageWEBP, true},
		{"With parameters", "image/png; charset=binary", ImagePNG, true},
		{"Mismatch", "image/png", ImageJPEG, false},
		{"Text", "text/plain; charset=utf-8", ImagePNG, false},
		{"Invalid MIME", "not a mime", ImagePNG, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := Matches(tt.detected, tt.expected)
			require.Equal(t, tt.want, ok)
		})
	}
}

func TestDataURL(t *testing.T) {
	req := require.New(t)

	url, err := DataURL(pngBytes, Selfie)
	req.NoError(err)
	req.True(strings.HasPrefix(url, "data:image/png;base64,"))

	url, err = DataURL(jpegBytes, Attachment)
	req.NoError(err)
	req.True(strings.HasPrefix(url, "data:image/jpeg;base64,"))

	url, err = DataURL(gifBytes, Attachment)
	req.NoError(err)
	req.True(strings.HasPrefix(url, "data:image/gif;base64,"))

	_, err = DataURL(gifBytes, Selfie)
	req.ErrorIs(err, errors.ErrUnsupportedImage)

	_, err = DataURL([]byte("plain text"), Attachment)
	req.ErrorIs(err, errors.ErrPrecondition)

	_, err = DataURL(nil, Attachment)
	req.ErrorIs(err, errors.ErrUnsupportedImage)
}
