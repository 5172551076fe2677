package edgedb

import (
	"crypto/sha256"
	"fmt"
	"sort"

	"github.com/goerch/edgedb-net/internal/codecs"
)

// SessionState is the immutable, structurally-copied session context
// every command carries: the active module, extra module aliases,
// session-level config overrides, and global values. Every with_*
// method returns a new SessionState rather than mutating the receiver,
// mirroring the teacher's Opts.Clone() copy-on-write pattern generalized
// from a single flat struct to this per-field structural-sharing value.
type SessionState struct {
	module  string
	aliases map[string]string
	config  map[string]any
	globals map[string]any
}

// NewSessionState returns the default session state: module "default",
// no aliases, no config overrides, no globals.
func NewSessionState() SessionState {
	return SessionState{module: "default"}
}

// WithModule returns a copy with the active module changed.
func (s SessionState) WithModule(module string) SessionState {
	out := s
	out.module = module
	return out
}

// WithAliases returns a copy with the given module aliases merged in
// (later calls override earlier ones for the same alias name).
func (s SessionState) WithAliases(aliases map[string]string) SessionState {
	out := s
	out.aliases = mergeStrings(s.aliases, aliases)
	return out
}

// WithConfig returns a copy with the given session config values merged in.
func (s SessionState) WithConfig(config map[string]any) SessionState {
	out := s
	out.config = mergeAny(s.config, config)
	return out
}

// WithGlobals returns a copy with the given global values merged in.
func (s SessionState) WithGlobals(globals map[string]any) SessionState {
	out := s
	out.globals = mergeAny(s.globals, globals)
	return out
}

func mergeStrings(base map[string]string, add map[string]string) map[string]string {
	out := make(map[string]string, len(base)+len(add))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range add {
		out[k] = v
	}
	return out
}

func mergeAny(base map[string]any, add map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(add))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range add {
		out[k] = v
	}
	return out
}

// toRecord flattens a SessionState into the codecs.Record the sparse
// object state codec expects, in a stable field order so ContentHash is
// deterministic.
func (s SessionState) toRecord() codecs.Record {
	rec := codecs.Record{}
	rec.Fields = append(rec.Fields, codecs.RecordField{Name: "module", Value: s.module})
	if len(s.aliases) > 0 {
		rec.Fields = append(rec.Fields, codecs.RecordField{Name: "aliases", Value: sortedRecord(s.aliases)})
	}
	if len(s.config) > 0 {
		rec.Fields = append(rec.Fields, codecs.RecordField{Name: "config", Value: sortedAnyRecord(s.config)})
	}
	if len(s.globals) > 0 {
		rec.Fields = append(rec.Fields, codecs.RecordField{Name: "globals", Value: sortedAnyRecord(s.globals)})
	}
	return rec
}

func sortedRecord(m map[string]string) codecs.Record {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	rec := codecs.Record{}
	for _, k := range keys {
		rec.Fields = append(rec.Fields, codecs.RecordField{Name: k, Value: m[k]})
	}
	return rec
}

func sortedAnyRecord(m map[string]any) codecs.Record {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	rec := codecs.Record{}
	for _, k := range keys {
		rec.Fields = append(rec.Fields, codecs.RecordField{Name: k, Value: m[k]})
	}
	return rec
}

// ContentHash returns a stable digest of the session state's content,
// used by the connection's shipped-state tracking to decide whether the
// StateData blob needs to be resent on the next Execute: if the hash
// matches what was last shipped on this connection, the server already
// has the current state and the field can be omitted.
func (s SessionState) ContentHash() [32]byte {
	h := sha256.New()
	writeRecordHash(h, s.toRecord())
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

func writeRecordHash(h interface{ Write([]byte) (int, error) }, rec codecs.Record) {
	for _, f := range rec.Fields {
		h.Write([]byte(f.Name))
		h.Write([]byte{0})
		switch v := f.Value.(type) {
		case codecs.Record:
			writeRecordHash(h, v)
		case string:
			h.Write([]byte(v))
		default:
			h.Write([]byte(fmt.Sprint(v)))
		}
		h.Write([]byte{0})
	}
}
