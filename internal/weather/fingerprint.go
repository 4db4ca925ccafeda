package weather

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/cespare/xxhash/v2"
)

// Fingerprint hashes the dataset layout and every value so that two runs can be
// compared for identical input. Missing values hash as the canonical NaN bit pattern.
func (ds *Dataset) Fingerprint() string {
	d := xxhash.New()
	var buf [8]byte

	for _, t := range ds.Dates {
		binary.LittleEndian.PutUint64(buf[:], uint64(t.Unix()))
		_, _ = d.Write(buf[:])
	}
	for _, st := range ds.Stations {
		_, _ = d.WriteString(st.Name)
		_, _ = d.WriteString("\x00")
	}
	for _, v := range ds.Variables {
		_, _ = d.WriteString(v)
		_, _ = d.WriteString("\x00")
	}

	nan := math.Float64bits(math.NaN())
	for _, value := range ds.values {
		bits := math.Float64bits(value)
		if math.IsNaN(value) {
			bits = nan
		}
		binary.LittleEndian.PutUint64(buf[:], bits)
		_, _ = d.Write(buf[:])
	}
	return fmt.Sprintf("%016x", d.Sum64())
}
