package provider

import (
	"os"
	"strconv"

	"golang.org/x/time/rate"
)

// newLimiter creates the provider-wide token bucket. KOLMETER_API_RPS and
// KOLMETER_API_BURST override the configured values; a non-positive rate
// disables limiting.
func newLimiter(rps float64, burst int) *rate.Limiter {
	if v := os.Getenv("KOLMETER_API_RPS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			rps = f
		}
	}
	if v := os.Getenv("KOLMETER_API_BURST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			burst = n
		}
	}
	if rps <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}
