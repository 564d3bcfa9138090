package tlsrecord

// frameReader accumulates bytes pulled off the transport into
// complete (header, body) record frames, adapted from mint's
// frameReader/recordLayerFrameDetails (record-layer.go), generalized
// here to also frame DTLS's 13-byte header (the teacher only ever
// framed TLS's 5-byte one) and to use this module's error kinds.
type frameReader struct {
	details recordLayerFrameDetails
	buf     []byte
	wantLen int // 0 until the header has been parsed
}

type recordLayerFrameDetails struct {
	datagram bool
}

func (d recordLayerFrameDetails) headerLen() int {
	if d.datagram {
		return recordHeaderLenDTLS
	}
	return recordHeaderLenTLS
}

func (d recordLayerFrameDetails) lengthField(hdr []byte) int {
	n := d.headerLen()
	return (int(hdr[n-2]) << 8) | int(hdr[n-1])
}

func newFrameReader(details recordLayerFrameDetails) *frameReader {
	return &frameReader{details: details}
}

// needed returns how many more bytes must be appended before process
// can attempt to extract a frame.
func (f *frameReader) needed() int {
	hlen := f.details.headerLen()
	if len(f.buf) < hlen {
		return hlen - len(f.buf)
	}
	if f.wantLen == 0 {
		f.wantLen = f.details.lengthField(f.buf[:hlen])
	}
	total := hlen + f.wantLen
	if len(f.buf) < total {
		return total - len(f.buf)
	}
	return 0
}

func (f *frameReader) addChunk(b []byte) {
	f.buf = append(f.buf, b...)
}

// process extracts one complete frame's header and body from the
// buffer, if enough bytes have been accumulated, and advances past
// it. Returns KindWouldBlock when more data is needed.
func (f *frameReader) process() (header, body []byte, err error) {
	hlen := f.details.headerLen()
	if f.needed() > 0 {
		return nil, nil, newErr(KindWouldBlock, "incomplete frame")
	}
	total := hlen + f.wantLen
	header = append([]byte(nil), f.buf[:hlen]...)
	body = append([]byte(nil), f.buf[hlen:total]...)
	f.buf = f.buf[total:]
	f.wantLen = 0
	return header, body, nil
}
