// Package datatag packs and unpacks the fixed-size "meta/tag" block that
// export writes, per spec.md §3.4 / SPEC_FULL.md §4. The broker itself only
// writes the block; Unmarshal has no caller outside this package's tests.
// The original wrote this as a raw C struct memcpy'd to disk; Go encodes
// the same field layout with encoding/binary so the wire format is
// byte-for-byte identical across a 32-bit/64-bit boundary.
package datatag

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Size is the fixed on-disk size of a Tag, padded with zero bytes.
const Size = 4096

// Magic identifies a well-formed tag block.
const Magic = 0x534e5059 // "SNPY"

// Tag is written into the export stage's meta/tag file. No broker stage
// reads it back or validates a restore target against it.
type Tag struct {
	Magic        uint32
	DepID        int32
	JobID        int32
	FragID       int32
	SnapTS       int64
	SrcPluginID  int32
	SrcPluginVer int32
	TgtPluginID  int32
	TgtPluginVer int32
}

// Marshal packs t into a Size-byte block, zero-padded.
func Marshal(t Tag) ([]byte, error) {
	buf := new(bytes.Buffer)
	fields := []interface{}{
		t.Magic, t.DepID, t.JobID, t.FragID, t.SnapTS,
		t.SrcPluginID, t.SrcPluginVer, t.TgtPluginID, t.TgtPluginVer,
	}
	for _, f := range fields {
		if err := binary.Write(buf, binary.LittleEndian, f); err != nil {
			return nil, fmt.Errorf("datatag: marshal: %w", err)
		}
	}
	if buf.Len() > Size {
		return nil, fmt.Errorf("datatag: encoded tag exceeds %d bytes", Size)
	}
	out := make([]byte, Size)
	copy(out, buf.Bytes())
	return out, nil
}

// Unmarshal reads a Tag out of a Size-byte (or larger) block and verifies
// the magic number.
func Unmarshal(data []byte) (Tag, error) {
	if len(data) < Size {
		return Tag{}, fmt.Errorf("datatag: block too short: %d bytes", len(data))
	}
	r := bytes.NewReader(data[:Size])
	var t Tag
	for _, f := range []interface{}{
		&t.Magic, &t.DepID, &t.JobID, &t.FragID, &t.SnapTS,
		&t.SrcPluginID, &t.SrcPluginVer, &t.TgtPluginID, &t.TgtPluginVer,
	} {
		if err := binary.Read(r, binary.LittleEndian, f); err != nil {
			return Tag{}, fmt.Errorf("datatag: unmarshal: %w", err)
		}
	}
	if t.Magic != Magic {
		return Tag{}, fmt.Errorf("datatag: bad magic %#x", t.Magic)
	}
	return t, nil
}
