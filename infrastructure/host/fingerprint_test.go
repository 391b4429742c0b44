package host

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFingerprinter_IsStable(t *testing.T) {
	req := require.New(t)
	f := NewFingerprinter("test")

	first, err := f.Fingerprint(context.Background())
	if err != nil {
		t.Skipf("host identity not readable here: %v", err)
	}
	second, err := f.Fingerprint(context.Background())
	req.NoError(err)
	req.Equal(first, second)

	other, err := NewFingerprinter("other").Fingerprint(context.Background())
	req.NoError(err)
	req.NotEqual(first, other)
}
