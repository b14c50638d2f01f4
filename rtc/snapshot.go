// Package rtc persists the state that must survive a halt: the registry slot
// table and the latest telemetry sample. Everything else is rebuilt on boot.
package rtc

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/mjasion/balena-home/vitalsgw/analysis"
	"github.com/mjasion/balena-home/vitalsgw/pkg/types"
	"github.com/mjasion/balena-home/vitalsgw/registry"
)

const (
	magic   uint32 = 0x56475731 // "VGW1"
	version byte   = 1

	entrySize = 2 + 6 + 1 + 1
)

var errCorrupt = errors.New("corrupt snapshot")

// Snapshot is the preserved state written before every halt.
type Snapshot struct {
	Table  registry.Table
	Sample analysis.Sample
}

// Fresh returns an empty snapshot for categories.
func Fresh(categories []types.Category) (Snapshot, error) {
	table, err := registry.NewTable(categories...)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{Table: table}, nil
}

// Clone returns a deep copy of s.
func (s Snapshot) Clone() Snapshot {
	table := make(registry.Table, len(s.Table))
	copy(table, s.Table)
	return Snapshot{Table: table, Sample: s.Sample}
}

// MatchesCategories reports whether the table has exactly categories, in order.
func (s Snapshot) MatchesCategories(categories []types.Category) bool {
	if len(s.Table) != len(categories) {
		return false
	}
	for i, e := range s.Table {
		if e.Category != categories[i] {
			return false
		}
	}
	return true
}

// MarshalBinary encodes the fixed layout:
//
//	magic:4 version:1 count:1 {category:2 mac:6 random:1 occupied:1}*count sample:8 set:1
//
// Multi-byte fields are little endian.
func (s Snapshot) MarshalBinary() ([]byte, error) {
	if len(s.Table) > math.MaxUint8 {
		return nil, fmt.Errorf("table of %d slots too large", len(s.Table))
	}

	var buf bytes.Buffer
	buf.Grow(6 + len(s.Table)*entrySize + 9)

	_ = binary.Write(&buf, binary.LittleEndian, magic)
	buf.WriteByte(version)
	buf.WriteByte(byte(len(s.Table)))
	for _, e := range s.Table {
		_ = binary.Write(&buf, binary.LittleEndian, uint16(e.Category))
		buf.Write(e.Address.MAC[:])
		buf.WriteByte(boolByte(e.Address.Random))
		buf.WriteByte(boolByte(e.Occupied))
	}
	_ = binary.Write(&buf, binary.LittleEndian, math.Float64bits(s.Sample.Value))
	buf.WriteByte(boolByte(s.Sample.Set))

	return buf.Bytes(), nil
}

// UnmarshalBinary decodes the layout written by MarshalBinary.
func (s *Snapshot) UnmarshalBinary(data []byte) error {
	if len(data) < 6 {
		return fmt.Errorf("%w: %d bytes", errCorrupt, len(data))
	}
	if binary.LittleEndian.Uint32(data[0:4]) != magic {
		return fmt.Errorf("%w: bad magic", errCorrupt)
	}
	if data[4] != version {
		return fmt.Errorf("%w: unsupported version %d", errCorrupt, data[4])
	}
	count := int(data[5])
	if len(data) != 6+count*entrySize+9 {
		return fmt.Errorf("%w: length %d does not match %d slots", errCorrupt, len(data), count)
	}

	table := make(registry.Table, count)
	off := 6
	for i := range table {
		table[i].Category = types.Category(binary.LittleEndian.Uint16(data[off:]))
		copy(table[i].Address.MAC[:], data[off+2:off+8])
		table[i].Address.Random = data[off+8] != 0
		table[i].Occupied = data[off+9] != 0
		off += entrySize
	}

	s.Table = table
	s.Sample = analysis.Sample{
		Value: math.Float64frombits(binary.LittleEndian.Uint64(data[off:])),
		Set:   data[off+8] != 0,
	}
	return nil
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
