package lifecycle

import (
	"context"

	"livecast/internal/eventbus"
	"livecast/internal/metrics"
	logx "livecast/pkg/logx"
)

// Reasons attached to engine calls in logs, events and metrics.
const (
	reasonSchedule = "schedule"
	reasonExpired  = "expired"
	reasonTimer    = "timer"
	reasonExternal = "external"
)

type engineCaller struct {
	engine Engine
	log    logx.Logger
	bus    eventbus.Bus
}

func (c engineCaller) start(ctx context.Context, id, reason string) error {
	c.bus.Publish(eventbus.Event{Type: eventbus.BroadcastStartRequested, Data: eventbus.BroadcastEvent{ID: id, Reason: reason}})
	err := c.engine.Start(ctx, id)
	metrics.IncEngineCall("start", reason, err)
	if err != nil {
		c.log.Warn("broadcast start failed", logx.String("id", id), logx.String("reason", reason), logx.Err(err))
		c.bus.Publish(eventbus.Event{Type: eventbus.BroadcastStartFailed, Data: eventbus.BroadcastEvent{ID: id, Reason: reason, Error: err.Error()}})
		return err
	}
	c.log.Info("broadcast started", logx.String("id", id), logx.String("reason", reason))
	return nil
}

func (c engineCaller) stop(ctx context.Context, id, reason string) error {
	c.bus.Publish(eventbus.Event{Type: eventbus.BroadcastStopRequested, Data: eventbus.BroadcastEvent{ID: id, Reason: reason}})
	err := c.engine.Stop(ctx, id)
	metrics.IncEngineCall("stop", reason, err)
	if err != nil {
		c.log.Warn("broadcast stop failed", logx.String("id", id), logx.String("reason", reason), logx.Err(err))
		c.bus.Publish(eventbus.Event{Type: eventbus.BroadcastStopFailed, Data: eventbus.BroadcastEvent{ID: id, Reason: reason, Error: err.Error()}})
		return err
	}
	c.log.Info("broadcast stopped", logx.String("id", id), logx.String("reason", reason))
	return nil
}
