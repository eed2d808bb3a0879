package rpc

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// rpcRateLimitKey buckets authenticated callers by token and anonymous ones
// by remote host.
func rpcRateLimitKey(r *http.Request, token string) string {
	if strings.TrimSpace(token) != "" {
		return "token:" + fingerprintToken(token)
	}
	remote := strings.TrimSpace(r.RemoteAddr)
	if remote == "" {
		return "ip:unknown"
	}
	host, _, err := net.SplitHostPort(remote)
	if err != nil {
		return "ip:" + remote
	}
	if strings.TrimSpace(host) == "" {
		return "ip:unknown"
	}
	return "ip:" + host
}

// allowReleaseAttempt limits passphrase guessing per contract regardless of
// which client is asking.
func (s *Server) allowReleaseAttempt(contractID string, now time.Time) (bool, time.Duration) {
	if s.releaseLimiter.Allow("release:"+contractID, now) {
		return true, 0
	}
	return false, s.releaseLimiter.RetryAfter("release:"+contractID, now)
}

func retryAfterSeconds(d time.Duration) string {
	secs := int(math.Ceil(d.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}
