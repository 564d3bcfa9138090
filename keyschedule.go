package tlsrecord

import (
	"crypto/hmac"
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/hkdf"
)

// TrafficSecretName values key the TrafficSecrets map by role and
// phase (spec §3).
type TrafficSecretName int

const (
	SecretEarlyClient TrafficSecretName = iota
	SecretHandshakeClient
	SecretHandshakeServer
	SecretApplicationClient
	SecretApplicationServer
	SecretResumptionMaster
	SecretExporter
)

// TrafficSecrets holds the TLS 1.3 secrets derived at handshake
// milestones (spec §3). Consumed by SetKeys, zeroized on teardown.
type TrafficSecrets struct {
	secrets map[TrafficSecretName][]byte
}

func NewTrafficSecrets() *TrafficSecrets {
	return &TrafficSecrets{secrets: make(map[TrafficSecretName][]byte)}
}

func (t *TrafficSecrets) Set(name TrafficSecretName, secret []byte) {
	t.secrets[name] = secret
}

func (t *TrafficSecrets) Get(name TrafficSecretName) []byte {
	return t.secrets[name]
}

func (t *TrafficSecrets) Zeroize() {
	for k, v := range t.secrets {
		zero(v)
		delete(t.secrets, k)
	}
}

// hkdfExpandLabel implements TLS 1.3's HKDF-Expand-Label (RFC 8446
// §7.1) over hkdf.Expand with SHA-256, matching spec §6.2's
// expand_label(label, context, secret, length) collaborator
// interface. Grounded on GnuTLS's _tls13_expand_secret2
// (constate.c) label framing: 2-byte length, 1-byte "tls13 "+label
// length-prefixed string, 1-byte context length-prefixed bytes.
func hkdfExpandLabel(secret []byte, label string, context []byte, length int) []byte {
	full := "tls13 " + label
	hkdfLabel := make([]byte, 0, 2+1+len(full)+1+len(context))
	hkdfLabel = append(hkdfLabel, byte(length>>8), byte(length))
	hkdfLabel = append(hkdfLabel, byte(len(full)))
	hkdfLabel = append(hkdfLabel, full...)
	hkdfLabel = append(hkdfLabel, byte(len(context)))
	hkdfLabel = append(hkdfLabel, context...)

	out := make([]byte, length)
	r := hkdf.Expand(sha256.New, secret, hkdfLabel)
	if _, err := io.ReadFull(r, out); err != nil {
		panic("tlsrecord: hkdf expand failed: " + err.Error())
	}
	return out
}

// hkdfDeriveSecret implements Derive-Secret(secret, label,
// transcript_hash) = Expand-Label(secret, label, transcript_hash, Hash.length).
func hkdfDeriveSecret(secret []byte, label string, transcriptHash []byte) []byte {
	return hkdfExpandLabel(secret, label, transcriptHash, sha256.Size)
}

// updateTrafficSecret rotates a traffic secret in place using the
// "traffic upd" label (spec §4.6 Update stage).
func updateTrafficSecret(secret []byte) []byte {
	return hkdfExpandLabel(secret, "traffic upd", nil, len(secret))
}

// SetKeys fills rp's read/write DirectionState per the requested
// Stage (spec §4.6/§4.5 SetKeys). localIsClient determines which
// traffic secret maps to which direction.
func (rp *RecordParameters) SetKeys(stage Stage, ts *TrafficSecrets, prev *RecordParameters, localIsClient bool, keyLog io.Writer) error {
	if rp.state != slotSuited && stage != StageUpdateOurs && stage != StageUpdatePeers {
		return newErr(KindInternalError, "set_keys: slot not suited")
	}

	keySize := rp.Descriptor.KeySize
	ivSize := rp.Descriptor.IVSize

	switch stage {
	case StageEarly:
		secret := ts.Get(SecretEarlyClient)
		key := hkdfExpandLabel(secret, "key", nil, keySize)
		iv := hkdfExpandLabel(secret, "iv", nil, ivSize)
		if localIsClient {
			rp.Write.Key, rp.Write.IV = key, iv
		} else {
			rp.Read.Key, rp.Read.IV = key, iv
		}
		logKey(keyLog, "CLIENT_EARLY_TRAFFIC_SECRET", secret)

	case StageHandshake:
		cSecret, sSecret := ts.Get(SecretHandshakeClient), ts.Get(SecretHandshakeServer)
		rp.Read, rp.Write = rp.installClientServer(cSecret, sSecret, keySize, ivSize, localIsClient)
		logKey(keyLog, "CLIENT_HANDSHAKE_TRAFFIC_SECRET", cSecret)
		logKey(keyLog, "SERVER_HANDSHAKE_TRAFFIC_SECRET", sSecret)

	case StageApplication:
		cSecret, sSecret := ts.Get(SecretApplicationClient), ts.Get(SecretApplicationServer)
		rp.Read, rp.Write = rp.installClientServer(cSecret, sSecret, keySize, ivSize, localIsClient)
		logKey(keyLog, "CLIENT_TRAFFIC_SECRET_0", cSecret)
		logKey(keyLog, "SERVER_TRAFFIC_SECRET_0", sSecret)

	case StageUpdateOurs:
		if prev == nil {
			return newErr(KindInternalError, "key update: missing predecessor epoch")
		}
		var name TrafficSecretName
		if localIsClient {
			name = SecretApplicationClient
		} else {
			name = SecretApplicationServer
		}
		updated := updateTrafficSecret(ts.Get(name))
		ts.Set(name, updated)
		rp.Write.Key = hkdfExpandLabel(updated, "key", nil, keySize)
		rp.Write.IV = hkdfExpandLabel(updated, "iv", nil, ivSize)
		rp.Read = prev.Read // other direction copied from previous epoch

	case StageUpdatePeers:
		if prev == nil {
			return newErr(KindInternalError, "key update: missing predecessor epoch")
		}
		var name TrafficSecretName
		if localIsClient {
			name = SecretApplicationServer
		} else {
			name = SecretApplicationClient
		}
		updated := updateTrafficSecret(ts.Get(name))
		ts.Set(name, updated)
		rp.Read.Key = hkdfExpandLabel(updated, "key", nil, keySize)
		rp.Read.IV = hkdfExpandLabel(updated, "iv", nil, ivSize)
		rp.Write = prev.Write

	default:
		return newErr(KindInvalidRequest, "set_keys: TLS12 stage must use SetKeysTLS12")
	}

	if err := rp.buildCipherContexts(); err != nil {
		return err
	}
	rp.state = slotInitialized
	return nil
}

func (rp *RecordParameters) installClientServer(cSecret, sSecret []byte, keySize, ivSize int, localIsClient bool) (read, write DirectionState) {
	clientState := DirectionState{
		Key: hkdfExpandLabel(cSecret, "key", nil, keySize),
		IV:  hkdfExpandLabel(cSecret, "iv", nil, ivSize),
	}
	serverState := DirectionState{
		Key: hkdfExpandLabel(sSecret, "key", nil, keySize),
		IV:  hkdfExpandLabel(sSecret, "iv", nil, ivSize),
	}
	if localIsClient {
		return serverState, clientState // read=server's writes, write=client's writes
	}
	return clientState, serverState
}

func logKey(w io.Writer, label string, secret []byte) {
	if w == nil || secret == nil {
		return
	}
	// NSS keylog format; client_random omitted here since it is
	// supplied by the handshake layer, not the record layer (spec §1
	// non-goal boundary).
	io.WriteString(w, label+" "+hexString(secret)+"\n")
}

func hexString(b []byte) string {
	const hextable = "0123456789abcdef"
	out := make([]byte, len(b)*2)
	for i, c := range b {
		out[i*2] = hextable[c>>4]
		out[i*2+1] = hextable[c&0xf]
	}
	return string(out)
}

// SetKeysTLS12 derives the single key block (spec §4.6 TLS 1.2 path):
// PRF(master_secret, "key expansion", server_random||client_random, L)
// with L = 2*(mac_key+enc_key+iv), sliced into {client MAC, server
// MAC, client key, server key, client IV, server IV} in that fixed
// order and assigned per local role. Grounded on GnuTLS's
// _gnutls_set_keys (constate.c).
func (rp *RecordParameters) SetKeysTLS12(masterSecret, serverRandom, clientRandom []byte, localIsClient bool) error {
	if rp.state != slotSuited {
		return newErr(KindInternalError, "set_keys: slot not suited")
	}
	macSize := rp.Descriptor.MAC.size()
	keySize := rp.Descriptor.KeySize
	ivSize := rp.Descriptor.IVSize
	if rp.Descriptor.Kind == KindAEAD && !rp.Descriptor.XORNonce {
		ivSize = 4 // explicit-IV AEAD (e.g. AES-GCM): only the 4-byte implicit salt is derived here
	}
	// XOR-nonce AEAD (e.g. ChaCha20-Poly1305) derives the full IVSize-byte
	// implicit IV; no explicit IV travels per-record.

	total := 2 * (macSize + keySize + ivSize)
	seed := append(append([]byte{}, serverRandom...), clientRandom...)
	block := prf12(masterSecret, "key expansion", seed, total)

	off := 0
	take := func(n int) []byte {
		s := block[off : off+n]
		off += n
		return s
	}
	clientMAC, serverMAC := take(macSize), take(macSize)
	clientKey, serverKey := take(keySize), take(keySize)
	clientIV, serverIV := take(ivSize), take(ivSize)

	client := DirectionState{Key: clientKey, MACKey: clientMAC, IV: clientIV}
	server := DirectionState{Key: serverKey, MACKey: serverMAC, IV: serverIV}
	if localIsClient {
		rp.Write, rp.Read = client, server
	} else {
		rp.Write, rp.Read = server, client
	}

	if err := rp.buildCipherContexts(); err != nil {
		return err
	}
	rp.state = slotInitialized
	return nil
}

// prf12 is the TLS 1.2 PRF: P_SHA256(secret, label||seed) truncated to
// length. Built directly from crypto/hmac+crypto/sha256 per
// SPEC_FULL.md's domain-stack note: a second library adds nothing
// over the two-line HMAC iteration RFC 5246 §5 defines.
func prf12(secret []byte, label string, seed []byte, length int) []byte {
	ls := append([]byte(label), seed...)
	out := make([]byte, 0, length)
	a := hmacSum(secret, ls)
	for len(out) < length {
		out = append(out, hmacSum(secret, append(append([]byte{}, a...), ls...))...)
		a = hmacSum(secret, a)
	}
	return out[:length]
}

func hmacSum(key, data []byte) []byte {
	m := hmac.New(sha256.New, key)
	m.Write(data)
	return m.Sum(nil)
}
