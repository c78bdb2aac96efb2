// Package resilience implements a circuit breaker for the simulated
// uplink. After a run of consecutive transmission failures the breaker
// opens and the transmitter skips attempts for a cooldown; a bounded
// number of probe transmissions in half-open state decide whether the
// link is healthy again.
package resilience
