package tlsrecord

import (
	"sync"
	"time"

	"github.com/pion/logging"
	"github.com/pion/transport/v3/deadline"
)

// Transport abstracts the socket I/O boundary (spec §6.2): push/pull
// are the only suspension points outside bounded crypto calls (spec
// §5). The record layer never does its own socket work.
type Transport interface {
	Push(b []byte) (int, error)
	Pull(max int) ([]byte, error)
	PullTimeout(d time.Duration) ([]byte, error)
}

// Flags is a placeholder for the bitfield `flags`
// parameters spec §6.3 names but does not enumerate; cork state is
// tracked separately on the layer itself rather than as a flag.
type Flags uint32

// RecordLayer is the Record I/O Loop (spec §4.7): the public surface
// exposed to the handshake layer and application, tying together the
// Epoch Manager, Preamble/AAD Builder, Record Protection, and (for
// DTLS) the Sliding Window and Flight Engine. Adapted from mint's
// DefaultRecordLayer (record-layer.go), generalized from a single
// cipherState/readCiphers map to the full EpochTable, TLS 1.2
// dispatch, and the GnuTLS-sourced operations (discard_queued,
// cork/uncork, early data accounting).
type RecordLayer struct {
	mu sync.Mutex // guards the epoch table (spec §5)

	transport Transport
	datagram  bool
	version   uint16
	localIsClient bool

	// usesTLS13Framing is flipped by the handshake layer once
	// negotiation settles on TLS 1.3 (spec §1: protocol-version
	// decisions are a handshake-layer concern; the record layer only
	// needs to know which framing rule applies once told). It governs
	// wire interpretation, not key material, so it lives on the
	// layer rather than per-epoch.
	usesTLS13Framing bool

	epochs *EpochTable
	frame  *frameReader
	outBuf *MessageBuffer

	cfg *Config
	log logging.LeveledLogger

	readDeadline *deadline.Deadline

	invalid    bool
	cachedErr  error

	corked     bool
	corkBuf    []byte

	discardedPackets uint64

	writesOnCurrentKey uint64
	pendingKeyUpdate   bool

	earlyDataAccepted  bool
	earlyDataBytesRead int
	maxEarlyDataSize   int

	handshakeBuf [][]byte // queued post-handshake messages (spec §9)
}

// NewRecordLayer constructs a layer over transport. datagram selects
// DTLS framing; cfg may be nil (all defaults apply, spec §4.7/§9).
func NewRecordLayer(transport Transport, datagram bool, localIsClient bool, cfg *Config) *RecordLayer {
	if cfg == nil {
		cfg = &Config{}
	}
	r := &RecordLayer{
		transport:     transport,
		datagram:      datagram,
		localIsClient: localIsClient,
		epochs:        NewEpochTable(cfg.maxEpochs()),
		frame:         newFrameReader(recordLayerFrameDetails{datagram: datagram}),
		outBuf:        NewMessageBuffer(recordHeaderLenDTLS, 1, cfg.maxRecordSendSize()+maxOverhead),
		cfg:           cfg,
		readDeadline:  deadline.New(),
	}
	r.log = newLogger(cfg.loggerFactory(), "tlsrecord")
	if datagram {
		r.version = uint16(dtls12VersionMajor)<<8 | uint16(dtls12VersionMinor)
	} else {
		r.version = 0x0303
	}
	return r
}

func (r *RecordLayer) checkValid() error {
	if r.invalid {
		return r.cachedErr
	}
	return nil
}

func (r *RecordLayer) invalidate(err error) error {
	r.invalid = true
	r.cachedErr = err
	return err
}

// --- Configuration surface (spec §6.3) ---

func (r *RecordLayer) SetTimeout(ms uint32) {
	if ms == 0 {
		r.readDeadline.Set(time.Time{})
		return
	}
	r.readDeadline.Set(now().Add(time.Duration(ms) * time.Millisecond))
}

func (r *RecordLayer) GetTimeout() uint32 { return uint32(r.cfg.retransmitTimeout().Milliseconds()) }

func (r *RecordLayer) SetMTU(n int) { r.cfg.MTU = n }

func (r *RecordLayer) GetDataMTU() int {
	overhead := recordHeaderLenTLS
	if r.datagram {
		overhead = recordHeaderLenDTLS
	}
	return r.cfg.mtu() - overhead
}

func (r *RecordLayer) SetDTLSTimeouts(retransMs, totalMs uint32) {
	r.cfg.RetransmitTimeout = time.Duration(retransMs) * time.Millisecond
	r.cfg.TotalTimeout = time.Duration(totalMs) * time.Millisecond
}

func (r *RecordLayer) GetDiscarded() uint64 { return r.discardedPackets }

// --- Cork/uncork batching (spec §6.3, GnuTLS gnutls_record_cork) ---

func (r *RecordLayer) Cork() { r.corked = true }

func (r *RecordLayer) Uncork(flags Flags) (int, error) {
	r.corked = false
	if len(r.corkBuf) == 0 {
		return 0, nil
	}
	n, err := r.transport.Push(r.corkBuf)
	r.corkBuf = nil
	return n, err
}

// DiscardQueued clears any pending send buffer and returns the byte
// count discarded (spec §6.3; GnuTLS gnutls_record_discard_queued).
func (r *RecordLayer) DiscardQueued() int {
	n := len(r.corkBuf)
	r.corkBuf = nil
	return n
}

func (r *RecordLayer) push(b []byte) (int, error) {
	if r.corked {
		r.corkBuf = append(r.corkBuf, b...)
		return len(b), nil
	}
	return r.transport.Push(b)
}

// --- Send path (spec §4.7 Send, §6.3 send/send2) ---

// Send protects and transmits one application message, chunking to
// max_record_send_size (spec §4.7 step 3). minPad requests TLS 1.3
// padding; it is ignored for TLS 1.2 epochs.
func (r *RecordLayer) Send(ct RecordType, data []byte, minPad int, flags Flags) (int, error) {
	if err := r.checkValid(); err != nil {
		return 0, err
	}
	r.mu.Lock()
	rp := r.epochs.WriteCurrent()
	r.mu.Unlock()
	if rp == nil || !rp.Initialized() {
		return 0, newErr(KindInvalidRequest, "write epoch not initialized")
	}

	maxSend := r.cfg.maxRecordSendSize()
	total := 0
	for len(data) > 0 {
		chunk := data
		if len(chunk) > maxSend {
			chunk = chunk[:maxSend]
		}
		if r.datagram && len(chunk) > r.GetDataMTU() {
			return total, newErr(KindLargePacket, "message exceeds DTLS MTU")
		}
		n, err := r.sendOne(rp, ct, chunk, minPad)
		if err != nil {
			return total, err
		}
		total += n
		data = data[len(chunk):]
	}
	return total, nil
}

// Send2 is application data with an explicit TLS 1.3 padding request
// (spec §6.3 send2).
func (r *RecordLayer) Send2(data []byte, pad int, flags Flags) (int, error) {
	return r.Send(RecordTypeApplicationData, data, pad, flags)
}

// SendEarlyData writes client-side 0-RTT data as application data on
// the current write epoch (spec §6.3); it does not select or install
// the early traffic epoch itself.
func (r *RecordLayer) SendEarlyData(data []byte) (int, error) {
	if !r.localIsClient {
		return 0, newErr(KindInvalidRequest, "send_early_data: server role")
	}
	return r.Send(RecordTypeApplicationData, data, 0, 0)
}

func (r *RecordLayer) sendOne(rp *RecordParameters, ct RecordType, chunk []byte, minPad int) (int, error) {
	rp.Retain()
	defer rp.Release()

	seq := rp.Write.Seq
	fullSeq := seq
	if r.datagram {
		fullSeq |= uint64(rp.Epoch) << 48
	}

	major, minor := byte(r.version>>8), byte(r.version&0xff)

	var payload []byte
	var wireCT RecordType
	var err error

	switch {
	case rp.state != slotInitialized:
		return 0, newErr(KindInvalidRequest, "write epoch not initialized")
	case rp.Descriptor.KeySize == 0 && rp.Write.aead == nil && rp.Write.block == nil && rp.Write.rc4 == nil:
		// Null cipher epoch: pass through, framing unchanged.
		payload = chunk
		wireCT = ct
	case r.isTLS13(rp):
		payload, err = Encrypt13(rp, seq, ct, chunk, minPad, r.cfg.maxRecordSendSize())
		wireCT = RecordTypeApplicationData // spec §3: always application_data on the wire post-handshake
	default:
		payload, err = Encrypt12(rp, fullSeq, ct, major, minor, chunk)
		wireCT = ct
	}
	if err != nil {
		return 0, r.invalidate(wrapErr(KindInternalError, "encrypt", err))
	}

	header := r.buildHeader(wireCT, major, minor, fullSeq, len(payload))
	if len(header)+len(payload) > r.cfg.maxRecordSendSize()+maxOverhead {
		return 0, newErr(KindInternalError, "record size too big")
	}

	r.outBuf.Reset()
	r.outBuf.SetData(payload)
	record := r.outBuf.SetHeader(header)

	if _, err := r.push(record); err != nil {
		return 0, err
	}

	if err := r.advanceWriteSeq(rp); err != nil {
		return 0, err
	}
	if r.isTLS13(rp) {
		r.writesOnCurrentKey++
		if r.writesOnCurrentKey >= (1<<24) && !r.cfg.DisableAutoKeyUpdate {
			r.pendingKeyUpdate = true
		}
	}
	return len(chunk), nil
}

const maxOverhead = 256 // generous upper bound on IV+tag+padding for the size sanity check

// SetTLS13 is called by the handshake layer once TLS 1.3 is
// negotiated; record protection alone cannot distinguish a TLS 1.2
// ChaCha20-Poly1305 record (XOR nonce, 13-byte preamble AAD) from a
// TLS 1.3 one (XOR nonce, 5-byte AAD with inner content type) by
// shape alone.
func (r *RecordLayer) SetTLS13(v bool) { r.usesTLS13Framing = v }

func (r *RecordLayer) isTLS13(rp *RecordParameters) bool {
	return r.usesTLS13Framing && rp.Descriptor.Kind == KindAEAD
}

func (r *RecordLayer) buildHeader(ct RecordType, major, minor byte, fullSeq uint64, length int) []byte {
	if !r.datagram {
		h := recordHeaderTLS{ContentType: ct, VersionMajor: major, VersionMinor: minor, Length: uint16(length)}
		b := h.marshal()
		return b[:]
	}
	h := recordHeaderDTLS{
		ContentType: ct, VersionMajor: major, VersionMinor: minor,
		Epoch: uint16(fullSeq >> 48), Sequence: fullSeq, Length: uint16(length),
	}
	b := h.marshal()
	return b[:]
}

func (r *RecordLayer) advanceWriteSeq(rp *RecordParameters) error {
	limit := uint64(1)<<48 - 1
	if !r.datagram {
		limit = ^uint64(0)
	}
	if rp.Write.Seq >= limit {
		r.invalidate(newErr(KindRecordLimitReached, "write sequence exhausted"))
		return r.cachedErr
	}
	rp.Write.Seq++
	return nil
}

// --- Receive path (spec §4.7 Recv, §6.3) ---

// Recv reads and unprotects the next record of any content type,
// returning its type and payload (spec §6.3 recv).
func (r *RecordLayer) Recv(deadlineMs uint32) (RecordType, []byte, error) {
	if err := r.checkValid(); err != nil {
		return 0, nil, err
	}
	r.SetTimeout(deadlineMs)
	for attempt := 0; ; attempt++ {
		ct, payload, _, err := r.recvOne()
		if err != nil {
			return 0, nil, err
		}
		if len(payload) == 0 && ct != RecordTypeApplicationData && !r.isPost13() {
			// Empty-record retry trick (pre-1.3 CBC, spec §4.7 closing note).
			if attempt >= r.cfg.emptyRecordCap() {
				return 0, nil, newErr(KindUnexpectedPacket, "empty record retry cap exceeded")
			}
			continue
		}
		return ct, payload, nil
	}
}

// Packet is the handle RecvPacket returns: the decrypted payload
// together with the full sequence number it was authenticated under
// (epoch<<48|seq for DTLS, plain seq for TLS), mirroring GnuTLS's
// gnutls_packet_get(data, sequence) split (record.c).
type Packet struct {
	Type RecordType
	Data []byte
	Seq  uint64
}

// RecvPacket is the zero-copy receive variant (spec §6.3
// recv_packet): unlike Recv, which discards the record's sequence
// number, it hands the caller a handle carrying both the decrypted
// buffer and the sequence number, without requiring a caller-supplied
// destination buffer. Grounded on GnuTLS's gnutls_record_recv_packet/
// gnutls_packet_get pair (record.c): the former does the I/O, the
// latter exposes data+sequence from the resulting handle.
func (r *RecordLayer) RecvPacket(deadlineMs uint32) (*Packet, error) {
	if err := r.checkValid(); err != nil {
		return nil, err
	}
	r.SetTimeout(deadlineMs)
	for attempt := 0; ; attempt++ {
		ct, payload, seq, err := r.recvOne()
		if err != nil {
			return nil, err
		}
		if len(payload) == 0 && ct != RecordTypeApplicationData && !r.isPost13() {
			if attempt >= r.cfg.emptyRecordCap() {
				return nil, newErr(KindUnexpectedPacket, "empty record retry cap exceeded")
			}
			continue
		}
		return &Packet{Type: ct, Data: payload, Seq: seq}, nil
	}
}

func (r *RecordLayer) isPost13() bool { return r.usesTLS13Framing }

// recvOne reads and unprotects one record, also returning the full
// sequence number (epoch<<48|seq for DTLS, plain seq for TLS) it was
// decrypted against, so RecvPacket can hand it to the caller the way
// GnuTLS's gnutls_packet_get exposes record_sequence alongside data.
func (r *RecordLayer) recvOne() (RecordType, []byte, uint64, error) {
	header, body, err := r.readFrame()
	if err != nil {
		return 0, nil, 0, err
	}

	var ct RecordType
	var major, minor byte
	var epoch Epoch
	var fullSeq uint64
	var length int

	if r.datagram {
		h, perr := unmarshalRecordHeaderDTLS(header)
		if perr != nil {
			return 0, nil, 0, perr
		}
		ct, major, minor = h.ContentType, h.VersionMajor, h.VersionMinor
		epoch = Epoch(h.Epoch)
		fullSeq = (uint64(h.Epoch) << 48) | h.Sequence
		length = int(h.Length)
	} else {
		h, perr := unmarshalRecordHeaderTLS(header)
		if perr != nil {
			return 0, nil, 0, perr
		}
		ct, major, minor = h.ContentType, h.VersionMajor, h.VersionMinor
		length = int(h.Length)
	}
	_ = major
	_ = minor

	if length > r.cfg.maxRecordRecvSize()+maxOverhead {
		return 0, nil, 0, newErr(KindRecordOverflow, "record length exceeds bound")
	}

	r.mu.Lock()
	var rp *RecordParameters
	if r.datagram {
		rp, err = r.epochs.Lookup(EpochAbsolute, epoch)
		if err != nil {
			r.mu.Unlock()
			r.discardedPackets++
			r.log.Debugf("tlsrecord: discarding record from unknown epoch %d", epoch)
			return 0, nil, 0, newErr(KindWouldBlock, "unknown epoch, discarded")
		}
	} else {
		rp = r.epochs.ReadCurrent()
	}
	r.mu.Unlock()

	seq := rp.Read.Seq
	if r.datagram {
		seq = fullSeq & dtlsSeqMask
	}
	recordSeq := seq
	if r.datagram {
		recordSeq = fullSeq
	}

	var plaintext []byte
	var innerCT RecordType = ct
	switch {
	case rp.Descriptor.KeySize == 0 && rp.Read.aead == nil && rp.Read.block == nil && rp.Read.rc4 == nil:
		plaintext = body
	case rp.Descriptor.Kind == KindAEAD && rp.Descriptor.XORNonce && r.usesTLS13Framing:
		plaintext, innerCT, err = Decrypt13(rp, seq, body, r.cfg.maxRecordRecvSize(), r.cfg.safePadding())
	default:
		fs := seq
		if r.datagram {
			fs = fullSeq
		}
		plaintext, err = Decrypt12(rp, fs, ct, major, minor, body, r.cfg.maxRecordRecvSize())
	}

	if err != nil {
		if r.datagram {
			r.discardedPackets++
			r.log.Debugf("tlsrecord: discarding record, decrypt failed: %v", err)
			return 0, nil, 0, newErr(KindWouldBlock, "decrypt failed, discarded")
		}
		return 0, nil, 0, r.invalidate(err)
	}

	if r.datagram {
		verdict := rp.Read.Window.Check(fullSeq, rp.Epoch)
		if verdict != windowOK {
			r.discardedPackets++
			r.log.Debugf("tlsrecord: discarding replayed/old record: %s", verdict)
			return 0, nil, 0, newErr(KindWouldBlock, "replay/old, discarded")
		}
	} else {
		rp.Read.Seq++
	}

	switch innerCT {
	case RecordTypeChangeCipherSpec:
		if len(plaintext) == 1 && plaintext[0] == 0x01 && r.usesTLS13Framing {
			return r.recvOne() // silently discarded mid-handshake
		}
	case RecordTypeHeartbeat:
		if r.cfg.Heartbeat != nil {
			r.cfg.Heartbeat(plaintext)
		}
		return r.recvOne()
	case RecordTypeAlert:
		if len(plaintext) == 2 && plaintext[0] == alertLevelFatal {
			return innerCT, plaintext, recordSeq, r.invalidate(newErr(KindFatalAlertReceived, "fatal alert received"))
		}
	}

	return innerCT, plaintext, recordSeq, nil
}

const (
	alertLevelWarning byte = 1
	alertLevelFatal   byte = 2
)

func (r *RecordLayer) readFrame() (header, body []byte, err error) {
	for {
		if r.frame.needed() > 0 {
			chunk, err := r.transport.PullTimeout(r.remainingDeadline())
			if err != nil {
				return nil, nil, err
			}
			if len(chunk) == 0 {
				return nil, nil, newErr(KindWouldBlock, "no data")
			}
			r.frame.addChunk(chunk)
			continue
		}
		return r.frame.process()
	}
}

func (r *RecordLayer) remainingDeadline() time.Duration {
	select {
	case <-r.readDeadline.Done():
		return 0
	default:
		return r.cfg.retransmitTimeout()
	}
}

// AcceptEarlyData arms the server-side early-data accounting (spec
// §4.7 step 5, §9 supplemented feature) for a connection that
// negotiated 0-RTT, bounding total bytes read via RecvEarlyData to
// maxBytes.
func (r *RecordLayer) AcceptEarlyData(maxBytes int) {
	r.earlyDataAccepted = true
	r.maxEarlyDataSize = maxBytes
}

// QueuePostHandshake stores a handshake-content-type message that
// arrived after the handshake completed (NewSessionTicket, KeyUpdate
// under TLS 1.3) for the handshake layer to drain asynchronously,
// per spec §9's "Renegotiation and post-handshake auth" note: the
// record layer does not decide policy, only delivers.
func (r *RecordLayer) QueuePostHandshake(msg []byte) {
	r.handshakeBuf = append(r.handshakeBuf, msg)
}

// DrainPostHandshake returns and clears the queued post-handshake
// messages.
func (r *RecordLayer) DrainPostHandshake() [][]byte {
	out := r.handshakeBuf
	r.handshakeBuf = nil
	return out
}

// RecvEarlyData reads 0-RTT application data on the server side,
// accounting bytes against max_early_data_size (spec §4.7 step 5,
// §9 supplemented feature).
func (r *RecordLayer) RecvEarlyData() ([]byte, error) {
	if !r.earlyDataAccepted {
		return nil, newErr(KindInvalidRequest, "early data not accepted")
	}
	_, payload, err := r.Recv(0)
	if err != nil {
		return nil, err
	}
	r.earlyDataBytesRead += len(payload)
	if r.earlyDataBytesRead > r.maxEarlyDataSize {
		return nil, r.invalidate(newErr(KindRecordOverflow, "max_early_data_size exceeded"))
	}
	return payload, nil
}

// Bye emits a close_notify-equivalent on the write side if it is
// still valid (spec §6.3, §7 "bye is still callable to emit a
// close_notify even once invalidated, provided the write side is
// valid").
func (r *RecordLayer) Bye(dir Direction) error {
	if dir&DirectionWrite == 0 {
		return nil
	}
	r.mu.Lock()
	rp := r.epochs.WriteCurrent()
	r.mu.Unlock()
	if rp == nil || !rp.Initialized() {
		return newErr(KindInvalidRequest, "write epoch not initialized")
	}
	_, err := r.sendOne(rp, RecordTypeAlert, []byte{1, 0}, 0) // warning, close_notify
	return err
}

// Direction selects read/write for Bye (spec §6.3), distinct from the
// epoch Direction state the teacher's mint file used for the same
// purpose (record-layer.go).
type Direction uint8

const (
	DirectionRead  Direction = 1 << 0
	DirectionWrite Direction = 1 << 1
)
