package commands

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/chazu/basil/vm"
	"golang.org/x/term"
)

// ---------------------------------------------------------------------------
// Per-VM system state
// ---------------------------------------------------------------------------

// Every piece of mutable state below is owned by one VM instance and reached
// through vm.InstanceState.
const (
	stateRandom = "commands.random"
	stateTimer  = "commands.timer"
	stateSync   = "commands.sync"
	stateInput  = "commands.input"
)

type syncState struct {
	on    bool
	rate  int
	last  time.Time
	count int64
}

type randomState struct {
	src *rand.PCG
	rng *rand.Rand
}

const seedMix = 0x9E3779B97F4A7C15

func randomOf(machine *vm.VM) *randomState {
	return machine.InstanceState(stateRandom, func() any {
		seed := uint64(time.Now().UnixNano())
		src := rand.NewPCG(seed, seed^seedMix)
		return &randomState{src: src, rng: rand.New(src)}
	}).(*randomState)
}

func inputState(machine *vm.VM) *bufio.Reader {
	return machine.InstanceState(stateInput, func() any {
		return bufio.NewReader(machine.Stdin())
	}).(*bufio.Reader)
}

// ---------------------------------------------------------------------------
// System commands
// ---------------------------------------------------------------------------

// System returns the random number, timing, input and frame pacing commands.
func System(clock Clock) *vm.CommandGroup {
	if clock == nil {
		clock = RealClock
	}
	timerOrigin := func(machine *vm.VM) time.Time {
		return machine.InstanceState(stateTimer, func() any { return clock.Now() }).(time.Time)
	}
	syncOf := func(machine *vm.VM) *syncState {
		return machine.InstanceState(stateSync, func() any { return &syncState{} }).(*syncState)
	}

	g := vm.NewCommandGroup("system")

	g.Add("rnd", "int(int)", func(ctx *vm.CallContext) error {
		n := ctx.Int(0)
		if n < 0 {
			return fmt.Errorf("negative range %d", n)
		}
		ctx.ReturnInt(randomOf(ctx.VM()).rng.Int64N(n + 1))
		return nil
	})
	g.Add("randomize", "void(int)", func(ctx *vm.CallContext) error {
		seed := uint64(ctx.Int(0))
		log.Debugf("randomize %d", seed)
		randomOf(ctx.VM()).src.Seed(seed, seed^seedMix)
		return nil
	})

	g.Add("timer", "int()", func(ctx *vm.CallContext) error {
		ctx.ReturnInt(clock.Now().Sub(timerOrigin(ctx.VM())).Milliseconds())
		return nil
	})
	g.Add("sleep", "void(int)", func(ctx *vm.CallContext) error {
		if ms := ctx.Int(0); ms > 0 {
			clock.Sleep(time.Duration(ms) * time.Millisecond)
		}
		return nil
	})
	g.Add("wait", "void(int)", func(ctx *vm.CallContext) error {
		if ms := ctx.Int(0); ms > 0 {
			clock.Sleep(time.Duration(ms) * time.Millisecond)
		}
		return nil
	})
	g.Add("wait key", "void()", func(ctx *vm.CallContext) error {
		_, err := readKey(ctx.VM())
		return err
	})
	g.Add("input", "void(ref string)", inputInto(false))
	g.Add("input", "void(string, ref string)", inputInto(true))
	g.Add("input", "void(ref int)", inputInto(false))
	g.Add("input", "void(string, ref int)", inputInto(true))
	g.Add("input", "void(ref float)", inputInto(false))
	g.Add("input", "void(string, ref float)", inputInto(true))

	g.Add("sync on", "void()", func(ctx *vm.CallContext) error {
		syncOf(ctx.VM()).on = true
		return nil
	})
	g.Add("sync off", "void()", func(ctx *vm.CallContext) error {
		syncOf(ctx.VM()).on = false
		return nil
	})
	g.Add("sync rate", "void(int)", func(ctx *vm.CallContext) error {
		rate := ctx.Int(0)
		if rate < 0 {
			return fmt.Errorf("negative sync rate %d", rate)
		}
		syncOf(ctx.VM()).rate = int(rate)
		return nil
	})
	g.Add("sync", "void()", func(ctx *vm.CallContext) error {
		pace(clock, syncOf(ctx.VM()))
		return nil
	})
	g.Add("sync count", "int()", func(ctx *vm.CallContext) error {
		ctx.ReturnInt(syncOf(ctx.VM()).count)
		return nil
	})
	return g
}

// pace waits until one frame interval has passed since the previous sync.
// Frames that fall behind restart the schedule instead of catching up.
func pace(clock Clock, st *syncState) {
	st.count++
	now := clock.Now()
	if !st.on || st.rate <= 0 {
		st.last = now
		return
	}
	frame := time.Second / time.Duration(st.rate)
	next := st.last.Add(frame)
	if !st.last.IsZero() && now.Before(next) {
		clock.Sleep(next.Sub(now))
		st.last = next
		return
	}
	st.last = now
}

// readKey reads one key press. A terminal is switched to raw mode for the
// read so the key need not be followed by enter.
func readKey(machine *vm.VM) (rune, error) {
	in := inputState(machine)
	if f, ok := machine.Stdin().(*os.File); ok && in.Buffered() == 0 && term.IsTerminal(int(f.Fd())) {
		old, err := term.MakeRaw(int(f.Fd()))
		if err != nil {
			log.Warningf("wait key: raw mode unavailable: %s", err)
		} else {
			defer term.Restore(int(f.Fd()), old)
		}
	}
	r, _, err := in.ReadRune()
	if errors.Is(err, io.EOF) {
		return 0, nil
	}
	return r, err
}

// inputInto reads one line into the last argument, converting it to the
// variable's type. The optional leading string is printed as a prompt.
func inputInto(prompt bool) vm.CommandFunc {
	return func(ctx *vm.CallContext) error {
		machine := ctx.VM()
		target := 0
		if prompt {
			if _, err := fmt.Fprint(machine.Stdout(), ctx.String(0)); err != nil {
				return err
			}
			target = 1
		}
		line, err := inputState(machine).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return err
		}
		line = strings.TrimRight(line, "\r\n")
		switch ctx.Arg(target).Type {
		case vm.TypeString:
			ctx.SetString(target, line)
		case vm.TypeFloat:
			f, _ := strconv.ParseFloat(strings.TrimSpace(line), 64)
			ctx.SetFloat(target, f)
		default:
			n, _ := strconv.ParseInt(strings.TrimSpace(line), 10, 64)
			ctx.SetInt(target, n)
		}
		return nil
	}
}
