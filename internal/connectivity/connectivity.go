package connectivity

import (
	"context"
	"net"
	"time"

	"github.com/rs/zerolog"
)

// Monitor emits online/offline state, never the same value twice in a row.
type Monitor interface {
	Updates() <-chan bool
}

// EdgeTrigger turns a stream of online flags into refresh signals on
// offline→online transitions only. The zero value starts offline.
type EdgeTrigger struct {
	online bool
}

// Observe feeds one flag and reports whether it is a transition into the
// online state.
func (t *EdgeTrigger) Observe(online bool) bool {
	fire := online && !t.online
	t.online = online
	return fire
}

// Watch calls refresh once per offline→online edge until ctx is done or
// updates is closed.
func Watch(ctx context.Context, updates <-chan bool, refresh func()) {
	var trigger EdgeTrigger
	for {
		select {
		case <-ctx.Done():
			return
		case online, ok := <-updates:
			if !ok {
				return
			}
			if trigger.Observe(online) {
				refresh()
			}
		}
	}
}

// DialFunc opens a connection; it matches net.Dialer.DialContext.
type DialFunc func(ctx context.Context, network, address string) (net.Conn, error)

// ProberOptions configure a TCP reachability prober.
type ProberOptions struct {
	Address  string
	Interval time.Duration
	Timeout  time.Duration
	Dial     DialFunc
}

// Prober checks reachability by dialing Address every Interval.
type Prober struct {
	opts    ProberOptions
	updates chan bool
	logger  zerolog.Logger
}

// NewProber constructs a prober; call Run to start probing.
func NewProber(opts ProberOptions, logger zerolog.Logger) *Prober {
	if opts.Interval <= 0 {
		opts.Interval = 10 * time.Second
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 3 * time.Second
	}
	if opts.Dial == nil {
		opts.Dial = (&net.Dialer{}).DialContext
	}
	return &Prober{
		opts:    opts,
		updates: make(chan bool, 1),
		logger:  logger.With().Str("component", "connectivity").Str("address", opts.Address).Logger(),
	}
}

// Updates returns the deduplicated state channel. It is closed when Run
// returns.
func (p *Prober) Updates() <-chan bool {
	return p.updates
}

// Run probes until ctx is cancelled.
func (p *Prober) Run(ctx context.Context) {
	defer close(p.updates)

	ticker := time.NewTicker(p.opts.Interval)
	defer ticker.Stop()

	var (
		last  bool
		known bool
	)
	for {
		online := p.probe(ctx)
		if !known || online != last {
			p.logger.Info().Bool("online", online).Msg("connectivity changed")
			select {
			case p.updates <- online:
			case <-ctx.Done():
				return
			}
			last, known = online, true
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (p *Prober) probe(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, p.opts.Timeout)
	defer cancel()

	conn, err := p.opts.Dial(ctx, "tcp", p.opts.Address)
	if err != nil {
		p.logger.Debug().Err(err).Msg("probe failed")
		return false
	}
	_ = conn.Close()
	return true
}

var _ Monitor = (*Prober)(nil)
