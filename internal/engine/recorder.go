package engine

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"AssetVault/internal/event"
	"AssetVault/internal/observability"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// Output bundles a sealed envelope with its decoded payload for the
// downstream workers.
type Output struct {
	Envelope *event.Envelope
	Payload  event.Payload
}

// Recorder assigns the global sequence and the hash chain to every fact
// the engines emit, then fans the fact out to the persistence,
// projection and publish channels.
//
// The persist channel blocks so no fact is lost; the projection and
// publish channels drop when full and their consumers rebuild from the
// event log.
type Recorder struct {
	mu       sync.Mutex
	sequence int64
	hasher   *StateHasher

	persistChan    chan<- Output
	projectionChan chan<- Output
	publishChan    chan<- Output

	metrics *observability.Metrics
}

// NewRecorder starts a chain at startSequence. Any channel may be nil;
// nil channels are skipped on fan-out (embedded and test use).
func NewRecorder(
	startSequence int64,
	persistChan, projectionChan, publishChan chan<- Output,
	metrics *observability.Metrics,
) *Recorder {
	return &Recorder{
		sequence:       startSequence,
		hasher:         NewStateHasher(),
		persistChan:    persistChan,
		projectionChan: projectionChan,
		publishChan:    publishChan,
		metrics:        metrics,
	}
}

// Record seals a payload into the audit chain and fans it out. Engines
// call it with their entity lock held, so chain order matches mutation
// order for any one entity.
func (r *Recorder) Record(actor common.Address, requestID string, ts time.Time, p event.Payload) *event.Envelope {
	body, err := json.Marshal(p)
	if err != nil {
		panic(fmt.Sprintf("FATAL: marshal %s payload: %v", p.EventType(), err))
	}

	r.mu.Lock()
	seq := r.sequence
	prev := r.hasher.GetPrevHash()
	stateHash := r.hasher.ComputeHash(seq, canonicalEventBytes(p.EventType(), p.EntityKind(), p.EntityID(), actor, ts, body))
	r.sequence++
	r.mu.Unlock()

	env := &event.Envelope{
		Sequence:   seq,
		EventID:    uuid.New(),
		RequestID:  requestID,
		EventType:  p.EventType(),
		Actor:      actor,
		EntityKind: p.EntityKind(),
		EntityID:   p.EntityID(),
		Timestamp:  ts,
		Payload:    body,
		StateHash:  stateHash,
		PrevHash:   prev,
	}

	out := Output{Envelope: env, Payload: p}

	if r.persistChan != nil {
		// Blocking send: the engine stalls until the persistence
		// worker drains.
		r.persistChan <- out
	}
	if r.projectionChan != nil {
		select {
		case r.projectionChan <- out:
		default:
			if r.metrics != nil {
				r.metrics.ProjectionDropped.Inc()
			}
		}
	}
	if r.publishChan != nil {
		select {
		case r.publishChan <- out:
		default:
			if r.metrics != nil {
				r.metrics.PublishDropped.Inc()
			}
		}
	}

	if r.metrics != nil {
		r.metrics.EventsRecorded.WithLabelValues(p.EventType().String()).Inc()
		r.metrics.EngineSequence.Set(float64(seq + 1))
	}

	return env
}

// Sequence returns the next sequence to be assigned.
func (r *Recorder) Sequence() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sequence
}

// ChainTip returns the hash of the last sealed event.
func (r *Recorder) ChainTip() [32]byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.hasher.GetPrevHash()
}

// RestoreChain positions the recorder after snapshot load or replay:
// nextSeq is the sequence the next event will receive and prevHash the
// chain tip it will link to.
func (r *Recorder) RestoreChain(nextSeq int64, prevHash [32]byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sequence = nextSeq
	r.hasher.SetPrevHash(prevHash)
}

// canonicalEventBytes builds the deterministic byte form hashed into
// the chain: type, entity routing, actor, timestamp and payload. The
// fields are exactly the envelope fields, so verification can rebuild
// the bytes from a stored envelope alone.
func canonicalEventBytes(et event.EventType, kind, id string, actor common.Address, ts time.Time, body []byte) []byte {
	buf := make([]byte, 0, 64+len(kind)+len(id)+len(body))

	var u32 [4]byte
	binary.LittleEndian.PutUint32(u32[:], uint32(et))
	buf = append(buf, u32[:]...)

	buf = append(buf, byte(len(kind)))
	buf = append(buf, kind...)
	buf = append(buf, byte(len(id)))
	buf = append(buf, id...)

	buf = append(buf, actor.Bytes()...)

	var u64 [8]byte
	binary.LittleEndian.PutUint64(u64[:], uint64(ts.UnixMicro()))
	buf = append(buf, u64[:]...)

	buf = append(buf, body...)
	return buf
}
