// Package worker defines the fixed set of periodic workers and their
// static scheduling configuration.
//
// Every worker is identified by an enumerated ID carrying its name,
// declared priority, release period, and configured stack capacity as
// data. Nothing in the system dispatches on worker names.
package worker

import "time"

// ID identifies one of the periodic workers.
type ID int

const (
	Safety ID = iota
	Telemetry
	Detector
	Transmitter
	Renderer
)

// Config holds a worker's static scheduling parameters.
type Config struct {
	Name       string
	Priority   int // declared priority, highest wins (advisory under Go scheduling)
	Period     time.Duration
	StackWords uint32 // simulated stack capacity in words
}

var configs = [...]Config{
	Safety:      {Name: "safety", Priority: 6, Period: 20 * time.Millisecond, StackWords: 1024},
	Telemetry:   {Name: "telemetry", Priority: 4, Period: 100 * time.Millisecond, StackWords: 512},
	Detector:    {Name: "detector", Priority: 3, Period: 200 * time.Millisecond, StackWords: 512},
	Transmitter: {Name: "transmitter", Priority: 2, Period: time.Second, StackWords: 512},
	Renderer:    {Name: "renderer", Priority: 1, Period: time.Second, StackWords: 1024},
}

// All lists every worker in priority order, highest first.
func All() []ID {
	return []ID{Safety, Telemetry, Detector, Transmitter, Renderer}
}

// Config returns the worker's static configuration.
func (id ID) Config() Config {
	if int(id) < 0 || int(id) >= len(configs) {
		return Config{Name: "unknown"}
	}
	return configs[id]
}

// String returns the worker name.
func (id ID) String() string { return id.Config().Name }
