package host

import (
	"context"
	"fmt"
	"strings"

	gohost "github.com/shirou/gopsutil/host"
)

// Fingerprinter derives the raw device fingerprint from the host identity
// reported by the operating system. The value is stable across restarts and
// is only ever stored after salting and hashing.
type Fingerprinter struct {
	// Namespace separates several client profiles on the same machine.
	Namespace string
}

func NewFingerprinter(namespace string) *Fingerprinter {
	return &Fingerprinter{Namespace: namespace}
}

func (f *Fingerprinter) Fingerprint(ctx context.Context) (string, error) {
	info, err := gohost.InfoWithContext(ctx)
	if err != nil {
		return "", fmt.Errorf("read host info: %w", err)
	}
	if info.HostID == "" {
		return "", fmt.Errorf("host id unavailable")
	}
	parts := []string{info.HostID, info.OS, info.Platform}
	if f.Namespace != "" {
		parts = append(parts, f.Namespace)
	}
	return strings.Join(parts, "|"), nil
}
