package app

import (
	"fmt"
	"strings"
	"time"

	"opsched/internal/config"
	"opsched/internal/license"
)

func buildLicenseGate(cfg *config.Config) (license.Gate, error) {
	lc := cfg.License
	driver := strings.ToLower(strings.TrimSpace(lc.Driver))
	if driver == "file" {
		if strings.TrimSpace(lc.FilePath) == "" {
			return nil, fmt.Errorf("license.file_path is required when license.driver is \"file\"")
		}
		return license.NewFileGate(lc.FilePath, nil), nil
	}

	var endTime time.Time
	if s := strings.TrimSpace(lc.ExpiresAt); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return nil, fmt.Errorf("license.expires_at: invalid RFC3339 timestamp %q: %w", s, err)
		}
		endTime = t
	}

	return license.NewStaticGate(license.Config{
		Activated: lc.MaxTasks > 0,
		TaskNum:   lc.MaxTasks,
		EndTime:   endTime,
	}, nil), nil
}
