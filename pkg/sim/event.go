package sim

import "fmt"

// Kind identifies what an event does when it is dispatched.
// The set is closed: the kernel only knows these three.
type Kind uint8

const (
	KindNeuronFire  Kind = iota + 1 // Target is a neuron ID
	KindSynapseFire                 // Target is a synapse ID
	KindReport                      // Target is a reporter handle
)

// String returns the lower-case name used in logs and traces.
func (k Kind) String() string {
	switch k {
	case KindNeuronFire:
		return "neuron-fire"
	case KindSynapseFire:
		return "synapse-fire"
	case KindReport:
		return "report"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Event is one pending unit of work on the logical timeline.
// It carries only what the dispatcher needs to re-enter the owning object.
type Event struct {
	Time   float32
	Kind   Kind
	Target int

	// seq is assigned by the scheduler and breaks ties between equal times
	seq uint64
}

// NeuronFire builds a fire event for the neuron with the given ID.
func NeuronFire(t float32, neuron int) Event {
	return Event{Time: t, Kind: KindNeuronFire, Target: neuron}
}

// SynapseFire builds a fire event for the synapse with the given ID.
func SynapseFire(t float32, synapse int) Event {
	return Event{Time: t, Kind: KindSynapseFire, Target: synapse}
}

// Report builds a sampler event for the given reporter handle.
func Report(t float32, handle int) Event {
	return Event{Time: t, Kind: KindReport, Target: handle}
}

// Seq returns the insertion sequence number assigned when the event was scheduled.
func (e Event) Seq() uint64 {
	return e.seq
}

func (e Event) String() string {
	return fmt.Sprintf("%s(%d)@%g", e.Kind, e.Target, e.Time)
}

// before reports whether e must run before o: earlier time first,
// insertion order among equal times.
func (e Event) before(o Event) bool {
	if e.Time != o.Time {
		return e.Time < o.Time
	}
	return e.seq < o.seq
}

// eventQueue implements heap.Interface ordered by (Time, seq).
type eventQueue []Event

func (q eventQueue) Len() int           { return len(q) }
func (q eventQueue) Less(i, j int) bool { return q[i].before(q[j]) }
func (q eventQueue) Swap(i, j int)      { q[i], q[j] = q[j], q[i] }

func (q *eventQueue) Push(x any) {
	*q = append(*q, x.(Event))
}

func (q *eventQueue) Pop() any {
	old := *q
	n := len(old)
	ev := old[n-1]
	*q = old[:n-1]
	return ev
}
