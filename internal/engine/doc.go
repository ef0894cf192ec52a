// Package engine adapts broadcast engines to lifecycle.Engine.
//
// The http driver talks to an external transmission service; the dryrun driver
// only logs. Open wraps either one in a Recording engine so successful calls
// are reflected in the broadcast store.
package engine
