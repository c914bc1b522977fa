package middleware

import (
	"net/http"
	"strings"

	"companion-api/pkg/ratelimit"
)

// DefaultMonitorAgents are the User-Agent prefixes of health checkers and scrapers
var DefaultMonitorAgents = []string{"kube-probe/", "Prometheus/", "GoogleHC/", "ELB-HealthChecker/"}

// MonitorExempter exempts requests whose User-Agent starts with one of prefixes.
// With no prefixes DefaultMonitorAgents is used.
func MonitorExempter(prefixes ...string) ratelimit.Exempter {
	if len(prefixes) == 0 {
		prefixes = DefaultMonitorAgents
	}
	return ratelimit.ExemptFunc(func(r *http.Request) bool {
		ua := r.UserAgent()
		for _, p := range prefixes {
			if strings.HasPrefix(ua, p) {
				return true
			}
		}
		return false
	})
}
