package tlsrecord

import "testing"

// TestEpochTableNullEpoch covers the invariant that epoch 0 starts out
// initialized and current for both directions without any SetupNext
// call (spec §4.5).
func TestEpochTableNullEpoch(t *testing.T) {
	table := NewEpochTable(4)
	rp := table.ReadCurrent()
	assertTrue(t, rp != nil && rp.Initialized(), "epoch 0 must be initialized")
	assertTrue(t, table.WriteCurrent() == rp, "read_current and write_current both start at epoch 0")
}

// TestEpochTableLifecycle walks a slot through Allocated -> Suited ->
// Initialized and advances read/write current onto it (spec §4.5).
func TestEpochTableLifecycle(t *testing.T) {
	table := NewEpochTable(4)

	rp, err := table.SetupNext(false)
	assertNil(t, err, "setup_next")
	assertTrue(t, rp.Epoch == 1, "first setup_next must target epoch 1")
	assertTrue(t, rp.state == slotAllocated, "freshly setup slot must be Allocated")

	assertNil(t, table.SetCipherSuite(aesGCM128), "set_cipher_suite")
	assertTrue(t, table.Next().state == slotSuited, "slot must be Suited after set_cipher_suite")

	rp.Write.Key, rp.Write.IV = make([]byte, 16), make([]byte, 4)
	rp.Read.Key, rp.Read.IV = make([]byte, 16), make([]byte, 4)
	assertNil(t, rp.buildCipherContexts(), "build cipher contexts")
	rp.state = slotInitialized

	table.AdvanceWrite(1)
	table.AdvanceRead(1)
	assertTrue(t, table.WriteCurrent() == rp, "write_current must now resolve to epoch 1")
	assertTrue(t, table.ReadCurrent() == rp, "read_current must now resolve to epoch 1")
}

// TestEpochTableGCSafety covers invariant 9: a slot is never freed
// while it is read_current, write_current, next, or has a nonzero
// refcount.
func TestEpochTableGCSafety(t *testing.T) {
	table := NewEpochTable(4)
	epoch0 := table.ReadCurrent()
	epoch0.Retain() // pins epoch 0 even once it stops being current

	_, err := table.SetupNext(true) // epoch 1, null cipher, immediately initialized
	assertNil(t, err, "setup_next")
	table.AdvanceWrite(1)
	table.AdvanceRead(1)

	table.GC()
	_, err = table.Lookup(EpochAbsolute, 0)
	assertTrue(t, err == nil, "epoch 0 is refcounted and must survive GC despite no longer being current")

	epoch0.Release()
	table.GC()
	_, err = table.Lookup(EpochAbsolute, 0)
	assertTrue(t, err != nil, "epoch 0 must be reclaimed once refcount drops to zero")
}

// TestEpochTableSetupNextExhausted covers the bound on live slots: a
// table cannot allocate past maxSlots without GC reclaiming room.
func TestEpochTableSetupNextExhausted(t *testing.T) {
	table := NewEpochTable(2)
	_, err := table.SetupNext(true)
	assertNil(t, err, "first setup_next")
	table.AdvanceWrite(1)
	table.AdvanceRead(1)

	_, err = table.SetupNext(true)
	assertTrue(t, err != nil, "table of size 2 cannot hold epoch 0 (not yet reclaimed by GC) and two more slots")
}

// TestEpochTableDupFrom covers TLS 1.2 renegotiation setup: DupFrom
// clones the cipher suite identifiers without keys.
func TestEpochTableDupFrom(t *testing.T) {
	table := NewEpochTable(4)
	rp, _ := table.SetupNext(false)
	assertNil(t, table.SetCipherSuite(aesCBC128SHA1), "set_cipher_suite")
	rp.EncryptThenMAC = true
	table.AdvanceWrite(1)
	table.AdvanceRead(1)

	_, err := table.SetupNext(false)
	assertNil(t, err, "setup_next epoch 2")
	assertNil(t, table.DupFrom(EpochWriteCurrent, 0), "dup_from")

	next := table.Next()
	assertTrue(t, next.Descriptor.Name == aesCBC128SHA1.Name, "dup_from must clone the cipher descriptor")
	assertTrue(t, next.EncryptThenMAC, "dup_from must clone the encrypt-then-mac flag")
	assertTrue(t, len(next.Write.Key) == 0, "dup_from must not clone key material")
}
