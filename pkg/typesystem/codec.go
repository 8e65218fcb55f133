package typesystem

import "github.com/pthm/typecore/engine"

// Key prefixes partition the schema's region of the keyspace by record
// kind, keeping (owner-prefix, attribute-prefix) ordering stable across
// schema evolution as spec §6 requires. A single byte is enough: the
// schema namespace is small and fixed.
const (
	prefixType    byte = 0x01 // typeDefKey(id) -> encoded TypeDef
	prefixLabel   byte = 0x02 // labelKey(kind, label) -> TypeID
	prefixSub     byte = 0x03 // subKey(child) -> parent TypeID
	prefixOwns    byte = 0x04 // ownsKey(owner, attr) -> encoded []Annotation
	prefixPlays   byte = 0x05 // playsKey(player, role) -> encoded []Annotation
	prefixRelates byte = 0x06 // relatesKey(relation, role) -> encoded []Annotation
)

func kindByte(k engine.Kind) byte { return byte(k) }

func typeIDBytes(id TypeID) []byte {
	b := make([]byte, 0, len(id.Label)+1)
	b = append(b, kindByte(id.Kind))
	return append(b, []byte(id.Label)...)
}

func typeDefKey(id TypeID) engine.Key {
	return append(engine.Key{prefixType}, typeIDBytes(id)...)
}

func labelKey(kind engine.Kind, label string) engine.Key {
	k := engine.Key{prefixLabel, kindByte(kind)}
	return append(k, []byte(label)...)
}

func subKey(child TypeID) engine.Key {
	return append(engine.Key{prefixSub}, typeIDBytes(child)...)
}

func edgeKey(prefix byte, left, right TypeID) engine.Key {
	k := append(engine.Key{prefix}, typeIDBytes(left)...)
	k = append(k, 0x00) // separator; labels cannot themselves embed a zero byte
	return append(k, typeIDBytes(right)...)
}

func ownsKey(owner, attr TypeID) engine.Key       { return edgeKey(prefixOwns, owner, attr) }
func playsKey(player, role TypeID) engine.Key     { return edgeKey(prefixPlays, player, role) }
func relatesKey(relation, role TypeID) engine.Key { return edgeKey(prefixRelates, relation, role) }

// schemaKeyRange returns the KeyRange covering every record under
// prefix, used by Load to rebuild the cache from a snapshot.
func schemaKeyRange(prefix byte) engine.KeyRange {
	return engine.Within(engine.Key{prefix})
}
