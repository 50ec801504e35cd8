package host

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/exposure-kit/enlifecycle/internal/ports"
)

// ForceUpdate compares the running version with the minimum version of the
// downloaded app configuration.
type ForceUpdate struct {
	configPath string
	version    string
}

// NewForceUpdate reads the minimum version from the JSON file at
// configPath, field "min_version".
func NewForceUpdate(configPath, version string) *ForceUpdate {
	return &ForceUpdate{configPath: configPath, version: version}
}

// Check reports whether the running version is below the minimum. No
// downloaded configuration means no update is required.
func (f *ForceUpdate) Check(ctx context.Context) (bool, error) {
	data, err := os.ReadFile(f.configPath)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	var cfg struct {
		MinVersion string `json:"min_version"`
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return false, fmt.Errorf("decode app config: %w", err)
	}
	if cfg.MinVersion == "" || f.version == "" {
		return false, nil
	}

	cmp, err := compareVersions(f.version, cfg.MinVersion)
	if err != nil {
		return false, err
	}
	return cmp < 0, nil
}

// compareVersions compares dotted numeric versions, padding the shorter one
// with zeros.
func compareVersions(a, b string) (int, error) {
	pa, err := parseVersion(a)
	if err != nil {
		return 0, err
	}
	pb, err := parseVersion(b)
	if err != nil {
		return 0, err
	}
	for i := 0; i < max(len(pa), len(pb)); i++ {
		var x, y int
		if i < len(pa) {
			x = pa[i]
		}
		if i < len(pb) {
			y = pb[i]
		}
		switch {
		case x < y:
			return -1, nil
		case x > y:
			return 1, nil
		}
	}
	return 0, nil
}

func parseVersion(v string) ([]int, error) {
	parts := strings.Split(strings.TrimPrefix(strings.TrimSpace(v), "v"), ".")
	out := make([]int, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid version %q", v)
		}
		out[i] = n
	}
	return out, nil
}

var _ ports.ForceUpdateChecker = (*ForceUpdate)(nil)
