// Copyright 2026 The Karnal64 Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package kernel

import (
	"fmt"
	"runtime"
	"time"

	"karnal.dev/karnal64/pkg/abi/karnal"
	"karnal.dev/karnal64/pkg/log"
	"karnal.dev/karnal64/pkg/sentry/arch"
)

// faultLogger logs unhandled user faults without flooding the log.
var faultLogger = log.BasicRateLimitedLogger(time.Second)

// A threadRunState is a reified state in the thread state machine.
//
// Data-free threadRunStates are represented as typecast nils to avoid
// unnecessary allocation.
type threadRunState interface {
	// execute executes the code associated with this state over the given
	// thread and returns the following state. If execute returns nil, the
	// thread goroutine should exit.
	execute(*Thread) threadRunState
}

// start starts t's goroutine.
func (t *Thread) start() {
	t.k.liveThreads.Add(1)
	go t.run(uint64(t.id))
}

// run runs the thread goroutine.
//
// threadID is the thread's ID, to make it visible in stack dumps.
func (t *Thread) run(threadID uint64) {
	defer t.k.liveThreads.Done()
	t.getCPU()
	t.runState = (*runApp)(nil)
	for {
		t.runState = t.step()
		if t.runState == nil {
			runtime.KeepAlive(threadID)
			return
		}
	}
}

// step executes one run state. A fatalError panic ends the task instead of
// the kernel.
func (t *Thread) step() (next threadRunState) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		fe, ok := r.(fatalError)
		if !ok {
			panic(r)
		}
		t.Warningf("%v", fe)
		t.tk.exitWithError(fe.err)
		next = (*runExit)(nil)
	}()
	return t.runState.execute(t)
}

// runApp runs the thread's user code until its next trap.
type runApp struct{}

func (*runApp) execute(t *Thread) threadRunState {
	if t.Killed() {
		return (*runExit)(nil)
	}
	tf, err := t.pc.Switch(t, t.cpu, t.tk.mm.ASID(), t.ac)
	if err != nil {
		t.Warningf("Switch to user mode failed: %v", err)
		t.tk.Exit(int32(karnal.CodeInternalError))
		return (*runExit)(nil)
	}
	if tf.Privilege() != arch.User {
		panic(fmt.Sprintf("%v: trap from privilege %d: %v at %v", t, tf.Privilege(), tf.Cause(), tf.FaultingIP()))
	}
	t.maybePreempt()

	switch tf.Cause() {
	case arch.CauseSyscall:
		return &runSyscall{tf: tf}
	case arch.CausePageFault:
		return &runFault{tf: tf}
	case arch.CauseHalt:
		t.Debugf("Halted at %v", tf.FaultingIP())
		return (*runExit)(nil)
	case arch.CauseIllegal:
		faultLogger.Warningf("%v: illegal instruction at %v", t, tf.FaultingIP())
		t.tk.Exit(int32(karnal.CodeInternalError))
		return (*runExit)(nil)
	default:
		panic(fatalError{fmt.Errorf("unknown trap cause %v", tf.Cause())})
	}
}

// runSyscall handles a system call trap.
type runSyscall struct {
	tf arch.TrapFrame
}

func (s *runSyscall) execute(t *Thread) threadRunState {
	t.syscalls.Add(1)
	t.k.syscalls.Dispatch(t, s.tf)
	return (*runApp)(nil)
}

// runFault handles a page fault trap.
type runFault struct {
	tf arch.TrapFrame
}

func (f *runFault) execute(t *Thread) threadRunState {
	addr, at := f.tf.FaultAddress(), f.tf.AccessType()
	if err := t.tk.mm.HandleFault(t, addr, at); err != nil {
		faultLogger.Warningf("%v: unhandled %v fault at %v (ip %v): %v", t, at, addr, f.tf.FaultingIP(), err)
		t.tk.exitWithError(err)
		return (*runExit)(nil)
	}
	return (*runApp)(nil)
}

// runExit tears the thread down. The last thread of a task tears the task
// down too.
type runExit struct{}

func (*runExit) execute(t *Thread) threadRunState {
	t.pc.Release()
	t.putCPU()
	t.transition(ThreadExited, "")
	for _, pa := range t.kstack {
		t.k.frames.Free(pa)
	}
	t.kstack = nil
	t.k.removeThread(t)
	t.tk.threadExited(t)
	return nil
}
