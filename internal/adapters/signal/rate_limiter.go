package signal

import "golang.org/x/time/rate"

// newMessageLimiter bounds inbound messages per connection. A non-positive
// rate disables limiting.
func newMessageLimiter(perSecond float64, burst int) *rate.Limiter {
	if perSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	if burst < 1 {
		burst = max(1, int(perSecond))
	}
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}
