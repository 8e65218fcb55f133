package concept

import (
	"encoding/binary"

	"github.com/pthm/typecore/engine"
)

// Key layout mirrors pkg/typesystem/codec.go's approach: a one-byte
// prefix discriminating the edge/record kind, followed by a type-id
// segment (kind byte, label, 0x00 terminator) and the vertex-id bytes,
// so range scans stay tight and ordered
// by (owner-type, owner-id, ...) the way spec §4.3's "prefixes derived
// from (type-id, value-type-category)" calls for.
const (
	prefixVertex          = 0x10 // existence marker for an entity/relation
	prefixAttributeVertex = 0x11 // type-id + value-id -> encoded value
	prefixAttributeHash   = 0x12 // hash -> value-id, for hashed (non-inline) values
	prefixHas             = 0x13 // owner -> attr, count
	prefixHasReverse      = 0x14 // attr -> owner, count
	prefixHasOrder        = 0x15 // (owner, attr-type) -> ordered attr-id list
	prefixLinks           = 0x16 // relation -> (role, player), count
	prefixLinksReverse    = 0x17 // player -> (role, relation), count
	prefixIndexed         = 0x18 // relation -> (start, end), (start-role, end-role, count)
)

func typeIDBytes(t engine.TypeID) []byte {
	out := make([]byte, 0, len(t.Label)+2)
	out = append(out, byte(t.Kind))
	out = append(out, []byte(t.Label)...)
	out = append(out, 0x00)
	return out
}

func thingKeyPart(ref engine.ThingRef) []byte {
	out := typeIDBytes(ref.Type)
	out = append(out, ref.ID...)
	return out
}

func vertexKey(ref engine.ThingRef) engine.Key {
	out := []byte{prefixVertex}
	out = append(out, thingKeyPart(ref)...)
	return out
}

func attributeVertexKey(ref engine.ThingRef) engine.Key {
	out := []byte{prefixAttributeVertex}
	out = append(out, thingKeyPart(ref)...)
	return out
}

func attributeHashKey(t engine.TypeID, hash []byte) engine.Key {
	out := []byte{prefixAttributeHash}
	out = append(out, typeIDBytes(t)...)
	out = append(out, hash...)
	return out
}

func hasKey(owner, attr engine.ThingRef) engine.Key {
	out := []byte{prefixHas}
	out = append(out, thingKeyPart(owner)...)
	out = append(out, thingKeyPart(attr)...)
	return out
}

func hasReverseKey(owner, attr engine.ThingRef) engine.Key {
	out := []byte{prefixHasReverse}
	out = append(out, thingKeyPart(attr)...)
	out = append(out, thingKeyPart(owner)...)
	return out
}

func hasRangeForOwner(owner engine.ThingRef) engine.KeyRange {
	prefix := append([]byte{prefixHas}, thingKeyPart(owner)...)
	return engine.Within(prefix)
}

func hasReverseRangeForAttr(attr engine.ThingRef) engine.KeyRange {
	prefix := append([]byte{prefixHasReverse}, thingKeyPart(attr)...)
	return engine.Within(prefix)
}

// encodeHasValue packs the other side's ThingRef alongside the count so
// a Has/HasReverse record's value is self-describing: cardinality and
// key validation need to group by attribute/owner type, and a
// composite key's variable-length label/id segments can't be split
// back out without their own length prefixes (same problem as Links,
// see encodeLinksValue).
func encodeHasValue(other engine.ThingRef, count uint64) engine.Value {
	otherType := typeIDBytes(other.Type)
	out := make([]byte, 0, 2+len(otherType)+2+len(other.ID)+8)
	out = append(out, byte(len(otherType)>>8), byte(len(otherType)))
	out = append(out, otherType...)
	out = append(out, byte(len(other.ID)>>8), byte(len(other.ID)))
	out = append(out, other.ID...)
	out = append(out, encodeUint64(count)...)
	return out
}

func decodeHasValue(v engine.Value) (other engine.ThingRef, count uint64) {
	off := 0
	typeLen := int(v[off])<<8 | int(v[off+1])
	off += 2
	otherType := decodeTypeIDBytes(v[off : off+typeLen])
	off += typeLen
	idLen := int(v[off])<<8 | int(v[off+1])
	off += 2
	id := append([]byte{}, v[off:off+idLen]...)
	off += idLen
	count = decodeUint64(v[off : off+8])
	other = engine.ThingRef{Type: otherType, ID: id}
	return
}

func hasOrderKey(owner engine.ThingRef, attrType engine.TypeID) engine.Key {
	out := []byte{prefixHasOrder}
	out = append(out, thingKeyPart(owner)...)
	out = append(out, typeIDBytes(attrType)...)
	return out
}

func linksKey(relation engine.ThingRef, role engine.TypeID, player engine.ThingRef) engine.Key {
	out := []byte{prefixLinks}
	out = append(out, thingKeyPart(relation)...)
	out = append(out, typeIDBytes(role)...)
	out = append(out, thingKeyPart(player)...)
	return out
}

func linksReverseKey(player engine.ThingRef, role engine.TypeID, relation engine.ThingRef) engine.Key {
	out := []byte{prefixLinksReverse}
	out = append(out, thingKeyPart(player)...)
	out = append(out, typeIDBytes(role)...)
	out = append(out, thingKeyPart(relation)...)
	return out
}

func linksRangeForRelation(relation engine.ThingRef) engine.KeyRange {
	prefix := append([]byte{prefixLinks}, thingKeyPart(relation)...)
	return engine.Within(prefix)
}

func linksReverseRangeForPlayer(player engine.ThingRef) engine.KeyRange {
	prefix := append([]byte{prefixLinksReverse}, thingKeyPart(player)...)
	return engine.Within(prefix)
}

// encodeLinksValue packs (role, player, count) into a Links record's
// value. Role-player index regeneration reads this back instead of
// re-parsing the composite key, since a ThingRef's variable-length
// label/ID segments aren't unambiguously splittable without their own
// length prefixes.
func encodeLinksValue(role engine.TypeID, player engine.ThingRef, count uint64) engine.Value {
	roleBytes := typeIDBytes(role)
	playerType := typeIDBytes(player.Type)
	out := make([]byte, 0, 4+len(roleBytes)+4+len(playerType)+2+len(player.ID)+8)
	out = append(out, byte(len(roleBytes)>>8), byte(len(roleBytes)))
	out = append(out, roleBytes...)
	out = append(out, byte(len(playerType)>>8), byte(len(playerType)))
	out = append(out, playerType...)
	out = append(out, byte(len(player.ID)>>8), byte(len(player.ID)))
	out = append(out, player.ID...)
	out = append(out, encodeUint64(count)...)
	return out
}

func decodeLinksValue(v engine.Value) (role engine.TypeID, player engine.ThingRef, count uint64) {
	off := 0
	roleLen := int(v[off])<<8 | int(v[off+1])
	off += 2
	role = decodeTypeIDBytes(v[off : off+roleLen])
	off += roleLen
	typeLen := int(v[off])<<8 | int(v[off+1])
	off += 2
	playerType := decodeTypeIDBytes(v[off : off+typeLen])
	off += typeLen
	idLen := int(v[off])<<8 | int(v[off+1])
	off += 2
	id := append([]byte{}, v[off:off+idLen]...)
	off += idLen
	count = decodeUint64(v[off : off+8])
	player = engine.ThingRef{Type: playerType, ID: id}
	return
}

func indexedKey(relation, start, end engine.ThingRef) engine.Key {
	out := []byte{prefixIndexed}
	out = append(out, thingKeyPart(relation)...)
	out = append(out, thingKeyPart(start)...)
	out = append(out, thingKeyPart(end)...)
	return out
}

func indexedRangeForRelation(relation engine.ThingRef) engine.KeyRange {
	prefix := append([]byte{prefixIndexed}, thingKeyPart(relation)...)
	return engine.Within(prefix)
}

// appendOrderedID appends id to an ordered-ownership list value
// (spec §3: "a side property keyed by (owner, attr-type) whose value is
// the concatenated list of attribute IDs in insertion order"),
// length-prefixing each entry since attribute IDs aren't fixed-width.
func appendOrderedID(existing engine.Value, id []byte) engine.Value {
	out := append(engine.Value{}, existing...)
	out = append(out, byte(len(id)>>8), byte(len(id)))
	out = append(out, id...)
	return out
}

func parseOrderedIDs(v engine.Value) [][]byte {
	var out [][]byte
	off := 0
	for off < len(v) {
		n := int(v[off])<<8 | int(v[off+1])
		off += 2
		out = append(out, v[off:off+n])
		off += n
	}
	return out
}

func encodeUint64(n uint64) engine.Value {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, n)
	return b
}

func decodeUint64(v engine.Value) uint64 {
	return binary.BigEndian.Uint64(v)
}

// encodeIndexedPair packs the role-player index's (start-role, end-role,
// count) annotation (spec §3) into one value.
func encodeIndexedPair(startRole, endRole engine.TypeID, count uint64) engine.Value {
	sr := typeIDBytes(startRole)
	er := typeIDBytes(endRole)
	out := make([]byte, 0, 4+len(sr)+len(er)+8)
	out = append(out, byte(len(sr)>>8), byte(len(sr)))
	out = append(out, sr...)
	out = append(out, byte(len(er)>>8), byte(len(er)))
	out = append(out, er...)
	out = append(out, encodeUint64(count)...)
	return out
}

func decodeIndexedPair(v engine.Value) (startRole, endRole engine.TypeID, count uint64) {
	srLen := int(v[0])<<8 | int(v[1])
	off := 2
	sr := v[off : off+srLen]
	off += srLen
	erLen := int(v[off])<<8 | int(v[off+1])
	off += 2
	er := v[off : off+erLen]
	off += erLen
	count = decodeUint64(v[off : off+8])
	startRole = decodeTypeIDBytes(sr)
	endRole = decodeTypeIDBytes(er)
	return
}

func decodeTypeIDBytes(b []byte) engine.TypeID {
	kind := engine.Kind(b[0])
	label := string(b[1 : len(b)-1])
	return engine.TypeID{Kind: kind, Label: label}
}
