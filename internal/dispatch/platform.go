package dispatch

import (
	"math/rand"
	"net/url"
	"strings"
	"time"

	"ats-autopilot/internal/config"
)

// knownPlatforms maps host substrings to platform names, checked in order so
// the more specific ATS domains win over generic career-site hosts.
var knownPlatforms = []struct {
	needle   string
	platform string
}{
	{"myworkdayjobs", "workday"},
	{"workday", "workday"},
	{"greenhouse", "greenhouse"},
	{"lever.co", "lever"},
	{"icims", "icims"},
	{"taleo", "taleo"},
	{"smartrecruiters", "smartrecruiters"},
}

// DetectPlatform identifies the ATS from a job posting URL. Unrecognized
// hosts fall back to "default", which carries the most conservative policy.
func DetectPlatform(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "default"
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		host = strings.ToLower(rawURL)
	}
	for _, k := range knownPlatforms {
		if strings.Contains(host, k.needle) {
			return k.platform
		}
	}
	return "default"
}

// CalculateDelay returns the platform's base pacing delay with a ±10% random
// variance so consecutive submissions don't land on an exact cadence.
func CalculateDelay(policy config.PlatformPolicy, r *rand.Rand) time.Duration {
	base := policy.BaseDelay
	if base <= 0 {
		base = 3 * time.Minute
	}
	spread := int64(base / 5)
	if spread == 0 {
		return base
	}
	return base - base/10 + time.Duration(r.Int63n(spread))
}
