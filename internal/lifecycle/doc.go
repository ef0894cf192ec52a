// Package lifecycle starts scheduled broadcasts and stops live ones whose
// duration has elapsed.
//
// Two periodic tasks drive it: the Poller starts broadcasts whose scheduled
// time falls inside a look-ahead window, and the Watchdog arms one termination
// timer per live broadcast that has a duration (or stops it right away when it
// is already overdue). Timers live in the Registry, which holds at most one per
// broadcast and is never persisted: after a restart the Watchdog re-derives
// them from the repository on its next tick. A broadcast whose expiry falls
// within one poll interval of a restart may therefore be stopped up to one
// interval late.
//
// Code that stops a broadcast through any other path must call
// NotifyExternalStop so a stale timer never fires a redundant stop.
package lifecycle
