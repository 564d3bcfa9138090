package tlsrecord

import (
	"crypto/cipher"
	"sync/atomic"
)

// Epoch identifies one set of read/write keys (spec §3, GLOSSARY). In
// TLS it is implicit (there is only ever "the current" epoch); in
// DTLS it rides in the high 16 bits of every record header.
type Epoch uint16

// EpochName is a symbolic slot name accepted by EpochTable.Lookup,
// mirroring spec §4.5's "READ_CURRENT | WRITE_CURRENT | NEXT or an
// absolute epoch".
type EpochName int

const (
	EpochAbsolute EpochName = iota
	EpochReadCurrent
	EpochWriteCurrent
	EpochNext
)

// slotState is the per-slot lifecycle state machine from spec §4.5.
type slotState int

const (
	slotFree slotState = iota
	slotAllocated
	slotSuited
	slotInitialized
)

// Stage selects which key-derivation path SetKeys takes (spec §4.6).
type Stage int

const (
	StageTLS12 Stage = iota
	StageEarly
	StageHandshake
	StageApplication
	StageUpdateOurs
	StageUpdatePeers
)

// DirectionState holds the live key material and sequence counter for
// one direction (read or write) of one epoch slot (spec §3).
type DirectionState struct {
	Key    []byte
	MACKey []byte
	IV     []byte
	Seq    uint64

	aead cipher.AEAD
	// block/rc4 are filled for Block+MAC/Stream+MAC suites; aead is
	// filled for AEAD suites. At most one is non-nil once Initialized
	// (none for the null-cipher epoch).
	block cipher.Block
	rc4   cipher.Stream

	Window DtlsWindow
}

func (d *DirectionState) zeroize() {
	zero(d.Key)
	zero(d.MACKey)
	zero(d.IV)
	d.aead = nil
	d.block = nil
	d.rc4 = nil
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// RecordParameters is one epoch slot's full cryptographic state (spec
// §3). Grounded on mint's cipherState (record-layer.go:59-65),
// generalized to the Block+MAC/Stream+MAC/AEAD trichotomy GnuTLS's
// constate.c carries in struct record_parameters_st.
type RecordParameters struct {
	Epoch      Epoch
	Descriptor CipherDescriptor

	Read  DirectionState
	Write DirectionState

	EncryptThenMAC bool

	refcount int32
	state    slotState
}

// Retain/Release implement the refcount discipline spec §3 requires:
// a send bound to an epoch pins it via refcount until flushed.
func (rp *RecordParameters) Retain() { atomic.AddInt32(&rp.refcount, 1) }
func (rp *RecordParameters) Release() {
	n := atomic.AddInt32(&rp.refcount, -1)
	assert(n >= 0)
}
func (rp *RecordParameters) refs() int32 { return atomic.LoadInt32(&rp.refcount) }

func (rp *RecordParameters) Initialized() bool { return rp.state == slotInitialized }

// EpochTable is the ring of at most maxSlots live epoch slots (spec
// §3). Indexed by epoch-epochMin; always exposes read_current,
// write_current, and next. Grounded on GnuTLS's constate.c epoch
// array plus mint's single cipherState/readCiphers map
// (record-layer.go:96-100) generalized into a proper ring with GC.
type EpochTable struct {
	slots       []*RecordParameters // index 0 == epochMin
	epochMin    Epoch
	maxSlots    int
	readCurrent Epoch
	writeCurrent Epoch
	next        Epoch
}

// NewEpochTable builds a table with a null-cipher epoch 0 already
// initialized and current for both directions, per spec §4.5's
// "null-cipher epoch is explicitly initialized" invariant.
func NewEpochTable(maxSlots int) *EpochTable {
	if maxSlots <= 0 {
		maxSlots = DefaultMaxEpochs
	}
	t := &EpochTable{maxSlots: maxSlots}
	null := &RecordParameters{Epoch: 0, state: slotInitialized}
	t.slots = []*RecordParameters{null}
	t.epochMin = 0
	t.readCurrent = 0
	t.writeCurrent = 0
	t.next = 0
	return t
}

func (t *EpochTable) indexOf(e Epoch) (int, bool) {
	if e < t.epochMin {
		return 0, false
	}
	idx := int(e - t.epochMin)
	if idx >= len(t.slots) {
		return 0, false
	}
	return idx, true
}

// Lookup resolves a symbolic or absolute epoch name to a non-owning
// slot reference (spec §4.5). The caller must Retain() before
// retaining the reference across an I/O suspension boundary.
func (t *EpochTable) Lookup(name EpochName, abs Epoch) (*RecordParameters, error) {
	var e Epoch
	switch name {
	case EpochReadCurrent:
		e = t.readCurrent
	case EpochWriteCurrent:
		e = t.writeCurrent
	case EpochNext:
		e = t.next
	case EpochAbsolute:
		e = abs
	default:
		return nil, newErr(KindInvalidRequest, "unknown epoch name")
	}
	idx, ok := t.indexOf(e)
	if !ok || t.slots[idx] == nil {
		return nil, newErr(KindInvalidRequest, "epoch out of window")
	}
	return t.slots[idx], nil
}

func (t *EpochTable) ReadCurrent() *RecordParameters {
	rp, _ := t.Lookup(EpochReadCurrent, 0)
	return rp
}

func (t *EpochTable) WriteCurrent() *RecordParameters {
	rp, _ := t.Lookup(EpochWriteCurrent, 0)
	return rp
}

func (t *EpochTable) Next() *RecordParameters {
	rp, _ := t.Lookup(EpochNext, 0)
	return rp
}

// SetupNext allocates the slot that will become `next`. If nullEpoch
// is true the slot is pre-filled with the null cipher and marked
// initialized directly, matching spec §4.5's null-epoch shortcut.
func (t *EpochTable) SetupNext(nullEpoch bool) (*RecordParameters, error) {
	newEpoch := t.next + 1
	// Ensure the slot's index is realized in the ring, growing it.
	idx, ok := t.indexOf(newEpoch)
	if !ok {
		needed := int(newEpoch-t.epochMin) + 1
		if needed > t.maxSlots {
			return nil, newErr(KindInternalError, "epoch table exhausted; gc required")
		}
		for len(t.slots) < needed {
			t.slots = append(t.slots, nil)
		}
		idx = needed - 1
	}
	if t.slots[idx] != nil && t.slots[idx].state != slotFree {
		return nil, newErr(KindInternalError, "setup_next: slot already allocated")
	}
	rp := &RecordParameters{Epoch: newEpoch, state: slotAllocated}
	if nullEpoch {
		rp.state = slotInitialized
	}
	t.slots[idx] = rp
	t.next = newEpoch
	return rp, nil
}

// SetCipherSuite binds a descriptor to the `next` slot (spec §4.5).
// Idempotent if the slot is already Suited (HelloRetryRequest resend),
// otherwise requires the slot to be Allocated.
func (t *EpochTable) SetCipherSuite(desc CipherDescriptor) error {
	rp := t.Next()
	if rp == nil {
		return newErr(KindInternalError, "no next epoch allocated")
	}
	if rp.state == slotSuited {
		rp.Descriptor = desc
		return nil
	}
	if rp.state != slotAllocated {
		return newErr(KindInternalError, "set_cipher_suite: slot not allocated")
	}
	rp.Descriptor = desc
	rp.state = slotSuited
	return nil
}

// DupFrom clones cipher+MAC identifiers (not keys) from a named epoch
// to `next`, used for TLS 1.2 renegotiation setup (spec §4.5).
func (t *EpochTable) DupFrom(name EpochName, abs Epoch) error {
	src, err := t.Lookup(name, abs)
	if err != nil {
		return err
	}
	rp := t.Next()
	if rp == nil {
		return newErr(KindInternalError, "no next epoch allocated")
	}
	rp.Descriptor = src.Descriptor
	rp.EncryptThenMAC = src.EncryptThenMAC
	rp.state = slotSuited
	return nil
}

// AdvanceRead/AdvanceWrite promote `next` to `read_current`/
// `write_current` once keys are installed (called by SetKeys callers
// after a CCS or KeyUpdate commits).
func (t *EpochTable) AdvanceRead(e Epoch)  { t.readCurrent = e }
func (t *EpochTable) AdvanceWrite(e Epoch) { t.writeCurrent = e }

// GC frees slots that are not read_current, write_current, or next,
// and whose refcount is zero, then compacts the ring so the live
// window remains contiguous and advances epochMin (spec §4.5, §8
// invariant 9).
func (t *EpochTable) GC() {
	for len(t.slots) > 0 {
		rp := t.slots[0]
		e := t.epochMin
		if rp == nil {
			t.slots = t.slots[1:]
			t.epochMin++
			continue
		}
		isLive := e == t.readCurrent || e == t.writeCurrent || e == t.next
		if isLive || rp.refs() != 0 {
			break
		}
		rp.Read.zeroize()
		rp.Write.zeroize()
		t.slots = t.slots[1:]
		t.epochMin++
	}
}
