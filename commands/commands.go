// Package commands provides the standard host command library: the core
// group (numbers, strings, printing) and the system group (random numbers,
// timing, keyboard and line input, frame pacing).
package commands

import (
	"time"

	"github.com/chazu/basil/vm"
	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("basil.commands")

// Clock supplies wall time to the system commands.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

type realClock struct{}

func (realClock) Now() time.Time        { return time.Now() }
func (realClock) Sleep(d time.Duration) { time.Sleep(d) }

// RealClock is the clock backed by package time.
var RealClock Clock = realClock{}

// Groups returns the standard command groups in method-index order.
func Groups(clock Clock) []*vm.CommandGroup {
	return []*vm.CommandGroup{Core(), System(clock)}
}

// Default builds the standard command collection using the real clock.
func Default() (*vm.CommandCollection, error) {
	return vm.NewCommandCollection(Groups(RealClock)...)
}

// With builds the standard collection followed by extra groups.
func With(clock Clock, extra ...*vm.CommandGroup) (*vm.CommandCollection, error) {
	return vm.NewCommandCollection(append(Groups(clock), extra...)...)
}
