package lifecycle

import (
	"livecast/internal/eventbus"
	"livecast/internal/scheduler"
	logx "livecast/pkg/logx"
)

type options struct {
	clock   Clock
	log     logx.Logger
	bus     eventbus.Bus
	trigger *scheduler.Service
}

type Option func(*options)

// WithClock replaces the system clock (tests use a virtual one).
func WithClock(c Clock) Option { return func(o *options) { o.clock = c } }

func WithLogger(log logx.Logger) Option { return func(o *options) { o.log = log } }

func WithBus(b eventbus.Bus) Option { return func(o *options) { o.bus = b } }

// WithTrigger shares an existing trigger service instead of creating a private one.
func WithTrigger(s *scheduler.Service) Option { return func(o *options) { o.trigger = s } }

func buildOptions(opts []Option) options {
	o := options{}
	for _, fn := range opts {
		if fn != nil {
			fn(&o)
		}
	}
	if o.clock == nil {
		o.clock = SystemClock{}
	}
	if o.log.IsZero() {
		o.log = logx.Nop()
	}
	if o.bus == nil {
		o.bus = eventbus.Nop()
	}
	return o
}
