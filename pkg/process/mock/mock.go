package mock

import (
	"context"
	"sort"
	"sync"

	"github.com/foomo/idreset/pkg/process"
)

type entry struct {
	process.Process
	ignoreTerminate bool
	ignoreKill      bool
}

// Platform simulates a process table. Processes exit on Terminate or Kill
// unless told to ignore it.
type Platform struct {
	// ProcessesErr is returned by Processes when set.
	ProcessesErr error

	mu         sync.Mutex
	procs      map[int32]*entry
	terminated []int32
	killed     []int32
}

func NewPlatform(procs ...process.Process) *Platform {
	inst := &Platform{procs: map[int32]*entry{}}
	for _, p := range procs {
		inst.procs[p.PID] = &entry{Process: p}
	}
	return inst
}

// IgnoreTerminate makes pid survive Terminate.
func (p *Platform) IgnoreTerminate(pid int32) *Platform {
	p.mu.Lock()
	defer p.mu.Unlock()
	if e, ok := p.procs[pid]; ok {
		e.ignoreTerminate = true
	}
	return p
}

// IgnoreKill makes pid survive Kill.
func (p *Platform) IgnoreKill(pid int32) *Platform {
	p.mu.Lock()
	defer p.mu.Unlock()
	if e, ok := p.procs[pid]; ok {
		e.ignoreKill = true
	}
	return p
}

func (p *Platform) Processes(_ context.Context) ([]process.Process, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ProcessesErr != nil {
		return nil, p.ProcessesErr
	}
	ret := make([]process.Process, 0, len(p.procs))
	for _, e := range p.procs {
		ret = append(ret, e.Process)
	}
	sort.Slice(ret, func(i, j int) bool { return ret[i].PID < ret[j].PID })
	return ret, nil
}

func (p *Platform) Terminate(_ context.Context, pid int32) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.terminated = append(p.terminated, pid)
	if e, ok := p.procs[pid]; ok && !e.ignoreTerminate {
		delete(p.procs, pid)
	}
	return nil
}

func (p *Platform) Kill(_ context.Context, pid int32) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.killed = append(p.killed, pid)
	if e, ok := p.procs[pid]; ok && !e.ignoreKill {
		delete(p.procs, pid)
	}
	return nil
}

func (p *Platform) Alive(_ context.Context, pid int32) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.procs[pid]
	return ok, nil
}

// Terminated returns the pids Terminate was called with.
func (p *Platform) Terminated() []int32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]int32(nil), p.terminated...)
}

// Killed returns the pids Kill was called with.
func (p *Platform) Killed() []int32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]int32(nil), p.killed...)
}
