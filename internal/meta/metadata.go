package meta

import (
	"bytes"
	"encoding/json"
	"errors"
	"sort"
)

// Metadata is a small string map with validation and stable JSON encoding.
// Entries created by the engine use it to point back at their source record.
type Metadata map[string]string

const (
	MaxPairs     = 20
	MaxKeyLen    = 64
	MaxValLen    = 256
	MaxTotalJSON = 4096
)

// Well-known keys written by the posting engine.
const (
	KeySource  = "source"
	KeyAssetID = "asset_id"
	KeyMethod  = "method"
	KeyRule    = "rule"
)

// Sources recorded under KeySource.
const (
	SourceManual       = "manual"
	SourceDepreciation = "depreciation"
	SourceReversal     = "reversal"
	SourceRule         = "auto_rule"
)

var (
	ErrTooManyPairs = errors.New("metadata too many pairs")
	ErrKeyLength    = errors.New("metadata key too long or empty")
	ErrValueLength  = errors.New("metadata value too long")
	ErrTooLarge     = errors.New("metadata exceeds max json size")
)

func New(m map[string]string) Metadata {
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (m Metadata) Clone() Metadata { return New(m) }

func (m Metadata) Get(k string) (string, bool) { v, ok := m[k]; return v, ok }

// Set stores k=v, rejecting pairs that would break the limits.
func (m Metadata) Set(k, v string) error {
	if len(k) == 0 || len(k) > MaxKeyLen {
		return ErrKeyLength
	}
	if len(v) > MaxValLen {
		return ErrValueLength
	}
	if _, exists := m[k]; !exists && len(m) >= MaxPairs {
		return ErrTooManyPairs
	}
	m[k] = v
	return nil
}

func (m Metadata) Del(k string) { delete(m, k) }

func (m Metadata) Validate() error {
	if len(m) > MaxPairs {
		return ErrTooManyPairs
	}
	for k, v := range m {
		if len(k) == 0 || len(k) > MaxKeyLen {
			return ErrKeyLength
		}
		if len(v) > MaxValLen {
			return ErrValueLength
		}
	}
	b, err := m.MarshalStableJSON()
	if err != nil {
		return err
	}
	if len(b) > MaxTotalJSON {
		return ErrTooLarge
	}
	return nil
}

// MarshalStableJSON returns a deterministic JSON representation with keys sorted.
func (m Metadata) MarshalStableJSON() ([]byte, error) {
	if len(m) == 0 {
		return []byte("{}"), nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	buf := &bytes.Buffer{}
	buf.WriteByte('{')
	for i, k := range keys {
		kb, _ := json.Marshal(k)
		vb, _ := json.Marshal(m[k])
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
		if i < len(keys)-1 {
			buf.WriteByte(',')
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (m Metadata) MarshalJSON() ([]byte, error) { return m.MarshalStableJSON() }

func (m *Metadata) UnmarshalJSON(b []byte) error {
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*m = Metadata{}
		return nil
	}
	var tmp map[string]string
	if err := json.Unmarshal(b, &tmp); err != nil {
		return err
	}
	*m = New(tmp)
	return nil
}
