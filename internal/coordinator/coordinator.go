// Package coordinator implements the admission and dispatch core: the
// single shared capacity budget across the vip, waiting, and running
// queues, VIP/ordinary arbitration under strict precedence, and the five
// overload policies, all under one lock with four distinct condition
// variables (spec.md §4.2-§4.4, §5).
package coordinator

import (
	"io"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"vipserver/internal/queue"
)

// State is the singleton scheduling state: the three queues, the
// vipBusy flag, the capacity bound, and the scheduling-policy tag. All
// fields below mu are only ever touched while mu is held.
type State struct {
	mu sync.Mutex

	vip     *queue.Queue
	waiting *queue.Queue
	running *queue.Queue

	vipBusy  bool
	poolSize int
	policy   Policy
	rng      *rand.Rand

	vipAvailable      *sync.Cond
	ordinaryAvailable *sync.Cond
	capacityFreed     *sync.Cond
	allEmpty          *sync.Cond

	dispatchVIP latencyStat
	dispatchOrd latencyStat

	log *zap.Logger
}

// New builds a CoordinatorState with the given capacity and overload
// policy. randSeed seeds the random-drop policy's victim selection
// (original_source/server.c seeds with srand(time(NULL)) once at
// startup; callers should pass time.Now().UnixNano()).
func New(poolSize int, policy Policy, randSeed int64, log *zap.Logger) *State {
	s := &State{
		vip:      queue.New(),
		waiting:  queue.New(),
		running:  queue.New(),
		poolSize: poolSize,
		policy:   policy,
		rng:      rand.New(rand.NewSource(randSeed)),
		log:      log,
	}
	s.vipAvailable = sync.NewCond(&s.mu)
	s.ordinaryAvailable = sync.NewCond(&s.mu)
	s.capacityFreed = sync.NewCond(&s.mu)
	s.allEmpty = sync.NewCond(&s.mu)
	return s
}

// Snapshot is a point-in-time read of the coordinator's queue sizes,
// used by /metrics.
type Snapshot struct {
	VIP      int
	Waiting  int
	Running  int
	VIPBusy  bool
	PoolSize int
}

// Snapshot reads the current queue sizes under the coordinator lock.
func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		VIP:      s.vip.Size(),
		Waiting:  s.waiting.Size(),
		Running:  s.running.Size(),
		VIPBusy:  s.vipBusy,
		PoolSize: s.poolSize,
	}
}

// LatencySnapshot is a Welford summary of observed dispatch latency.
type LatencySnapshot struct {
	Count     int64
	Mean, Std float64
}

// DispatchLatency returns Welford snapshots of VIP and ordinary dispatch
// latency (seconds), for /metrics.
func (s *State) DispatchLatency() (vip, ordinary LatencySnapshot) {
	vip.Count, vip.Mean, vip.Std = s.dispatchVIP.snapshot()
	ordinary.Count, ordinary.Mean, ordinary.Std = s.dispatchOrd.snapshot()
	return
}

func closeHandle(h interface{}) {
	if c, ok := h.(io.Closer); ok {
		_ = c.Close()
	}
}

func (s *State) allEmptyLocked() bool {
	return s.running.Size() == 0 && s.waiting.Size() == 0 && s.vip.Size() == 0
}

// AdmitVIP enqueues a VIP request. It blocks on capacityFreed while the
// pool is at capacity (VIP requests are never dropped), per spec.md
// §4.2's VIP admission rule.
func (s *State) AdmitVIP(handle io.Closer, arrival time.Time) *queue.Request {
	s.mu.Lock()
	defer s.mu.Unlock()

	for s.running.Size()+s.waiting.Size()+s.vip.Size() >= s.poolSize {
		s.capacityFreed.Wait()
	}
	r := s.vip.AppendNew(handle, arrival)
	// Broadcast, not Signal: ordinary workers also wait on vipAvailable
	// (TakeOrdinary's ordinaryWaitPredicate, while vip.Size() > 0), so a
	// plain Signal could wake one of them instead of the VIP worker and
	// strand the VIP request until some other event fires.
	s.vipAvailable.Broadcast()
	return r
}

// AdmitOrdinary enqueues an ordinary (GET) request, applying the
// configured overload policy when the pool is full. It returns (nil,
// false) when the connection was dropped instead of admitted — the
// caller does not need to close handle itself, AdmitOrdinary already did
// so under the lock, mirroring original_source/server.c's Close(connfd)
// calls inside the admission critical section.
func (s *State) AdmitOrdinary(handle io.Closer, arrival time.Time) (*queue.Request, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running.Size()+s.waiting.Size() < s.poolSize {
		r := s.waiting.AppendNew(handle, arrival)
		s.ordinaryAvailable.Signal()
		return r, true
	}

	switch s.policy {
	case PolicyBlock:
		for s.running.Size()+s.waiting.Size() >= s.poolSize {
			s.capacityFreed.Wait()
		}
		r := s.waiting.AppendNew(handle, arrival)
		s.ordinaryAvailable.Signal()
		return r, true

	case PolicyDropTail:
		closeHandle(handle)
		return nil, false

	case PolicyDropHead:
		if s.waiting.Size() > 0 {
			oldest := s.waiting.RemoveFront()
			closeHandle(oldest.Handle)
		} else {
			closeHandle(handle)
			return nil, false
		}
		r := s.waiting.AppendNew(handle, arrival)
		s.ordinaryAvailable.Signal()
		return r, true

	case PolicyBlockFlush:
		for !s.allEmptyLocked() {
			s.allEmpty.Wait()
		}
		closeHandle(handle)
		return nil, false

	case PolicyRandomDrop:
		wsize := s.waiting.Size()
		if wsize == 0 {
			closeHandle(handle)
			return nil, false
		}
		toDrop := (wsize + 1) / 2 // ceil(wsize/2)
		for i := 0; i < toDrop && s.waiting.Size() > 0; i++ {
			idx := s.rng.Intn(s.waiting.Size())
			victim := s.waiting.RemoveByIndex(idx)
			closeHandle(victim.Handle)
		}
		r := s.waiting.AppendNew(handle, arrival)
		s.ordinaryAvailable.Signal()
		return r, true

	default:
		// unreachable: policy validated at startup
		closeHandle(handle)
		return nil, false
	}
}

// TakeVIP is the VIP worker's dequeue step: block until a VIP request is
// available, move it into running, and mark the VIP worker busy so that
// ordinary workers yield for the whole duration of the request.
func (s *State) TakeVIP(workerID int) *queue.Request {
	s.mu.Lock()
	defer s.mu.Unlock()

	for s.vip.Size() == 0 {
		s.vipAvailable.Wait()
	}
	s.vipBusy = true
	r := s.vip.RemoveFront()
	s.running.AppendExisting(r, workerID, time.Now())
	s.dispatchVIP.add(r.Dispatch.Seconds())
	return r
}

// ReleaseVIP removes r from running, clears vipBusy, and wakes capacity
// waiters and ordinary workers that were yielding on vipBusy. It
// broadcasts both ordinaryAvailable and vipAvailable because an ordinary
// worker may be parked on either one: it sleeps on vipAvailable while
// s.vip.Size() > 0, and can still be asleep there after the VIP worker
// has drained the queue but not yet cleared vipBusy.
func (s *State) ReleaseVIP(r *queue.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.running.RemoveByValue(r.Handle)
	s.vipBusy = false
	s.capacityFreed.Broadcast()
	if s.allEmptyLocked() {
		s.allEmpty.Signal()
	}
	s.ordinaryAvailable.Broadcast()
	s.vipAvailable.Broadcast()
}

// ordinaryWaitPredicate reports whether an ordinary worker must keep
// sleeping: no ordinary work, or VIP work pending, or VIP mid-request.
func (s *State) ordinaryWaitPredicate() bool {
	return s.waiting.Size() == 0 || s.vip.Size() > 0 || s.vipBusy
}

// TakeOrdinary is an ordinary worker's dequeue step. It sleeps on
// vipAvailable while VIP work is pending (so it wakes promptly once VIP
// drains) and on ordinaryAvailable otherwise, re-checking the full
// three-part predicate each time it wakes.
func (s *State) TakeOrdinary(workerID int) *queue.Request {
	s.mu.Lock()
	defer s.mu.Unlock()

	for s.ordinaryWaitPredicate() {
		if s.vip.Size() > 0 {
			s.vipAvailable.Wait()
		} else {
			s.ordinaryAvailable.Wait()
		}
	}
	r := s.waiting.RemoveFront()
	s.running.AppendExisting(r, workerID, time.Now())
	s.dispatchOrd.add(r.Dispatch.Seconds())
	return r
}

// ReleaseOrdinary removes r from running and broadcasts capacity freed,
// per spec.md §5: "capacity_freed — broadcast whenever a Request leaves
// running; the accept loop and any admission waiters sleep on it." It
// does not itself wake ordinary workers (only AdmitOrdinary and
// ReleaseVIP do) — matching original_source/server.c's ThreadFunction
// cleanup, which only ever signals write_allowed.
func (s *State) ReleaseOrdinary(r *queue.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.running.RemoveByValue(r.Handle)
	s.capacityFreed.Broadcast()
	if s.allEmptyLocked() {
		s.allEmpty.Signal()
	}
}
