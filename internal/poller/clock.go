package poller

import "time"

// Clock creates tickers. Tests substitute a clock whose ticks they fire by hand.
type Clock interface {
	NewTicker(d time.Duration) Ticker
}

// Ticker is the subset of *time.Ticker the poller uses
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// RealClock is backed by the time package
type RealClock struct{}

// NewTicker returns a ticker firing every d
func (RealClock) NewTicker(d time.Duration) Ticker {
	return realTicker{time.NewTicker(d)}
}

type realTicker struct {
	t *time.Ticker
}

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }
