package domain

import "time"

// Config carries the client-side settings the SDK needs to reach the
// platform.
type Config struct {
	APIBaseURL  string        `yaml:"apiBaseUrl"`
	SocketURL   string        `yaml:"socketUrl"`
	AccessToken string        `yaml:"accessToken"` // opaque bearer token, passed through as-is
	PendingTTL  time.Duration `yaml:"pendingTtl"`  // bounded wait before a pending-local entry is marked failed
}
