package concept

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/pthm/typecore/engine"
	"github.com/pthm/typecore/pkg/typesystem"
)

// maxInlineValueLen bounds how large an attribute's encoded value may be
// before it is stored out-of-line and addressed by hash (spec §3: "An
// attribute value is either inline (fits in a fixed-width id) or hashed
// (stored separately, looked up by hash+type)").
const maxInlineValueLen = 24

// AttributeValue is a typed literal an attribute instance carries.
// Exactly one field is meaningful, selected by Category.
type AttributeValue struct {
	Category engine.ValueCategory
	Bool     bool
	Long     int64
	Double   float64
	Decimal  DecimalValue
	Time     time.Time // Date, DateTime, DateTimeTZ
	Duration time.Duration
	String   string
	Struct   []byte
}

// DecimalValue is a fixed-point decimal: value = Unscaled * 10^-Scale,
// matching the "exact" decimal category spec §3 lists alongside the
// floating double category.
type DecimalValue struct {
	Unscaled int64
	Scale    uint8
}

// encode serializes v into its storage representation. The encoding
// doesn't need to be self-describing: the attribute type's declared
// ValueType already fixes the category at decode time.
func (v AttributeValue) encode() []byte {
	switch v.Category {
	case engine.ValueBool:
		if v.Bool {
			return []byte{1}
		}
		return []byte{0}
	case engine.ValueLong:
		b := make([]byte, 8)
		binary.BigEndian.PutUint64(b, uint64(v.Long))
		return b
	case engine.ValueDouble:
		b := make([]byte, 8)
		binary.BigEndian.PutUint64(b, math.Float64bits(v.Double))
		return b
	case engine.ValueDecimal:
		b := make([]byte, 9)
		binary.BigEndian.PutUint64(b, uint64(v.Decimal.Unscaled))
		b[8] = v.Decimal.Scale
		return b
	case engine.ValueDate, engine.ValueDateTime, engine.ValueDateTimeTZ:
		b := make([]byte, 8)
		binary.BigEndian.PutUint64(b, uint64(v.Time.UnixNano()))
		return b
	case engine.ValueDuration:
		b := make([]byte, 8)
		binary.BigEndian.PutUint64(b, uint64(v.Duration))
		return b
	case engine.ValueString:
		return []byte(v.String)
	case engine.ValueStruct:
		return v.Struct
	default:
		return nil
	}
}

// decodeAttributeValue rebuilds an AttributeValue from its storage
// representation and declared category.
func decodeAttributeValue(cat engine.ValueCategory, raw []byte) AttributeValue {
	switch cat {
	case engine.ValueBool:
		return AttributeValue{Category: cat, Bool: len(raw) > 0 && raw[0] != 0}
	case engine.ValueLong:
		return AttributeValue{Category: cat, Long: int64(binary.BigEndian.Uint64(raw))}
	case engine.ValueDouble:
		bits := binary.BigEndian.Uint64(raw)
		return AttributeValue{Category: cat, Double: math.Float64frombits(bits)}
	case engine.ValueDecimal:
		return AttributeValue{Category: cat, Decimal: DecimalValue{
			Unscaled: int64(binary.BigEndian.Uint64(raw[:8])),
			Scale:    raw[8],
		}}
	case engine.ValueDate, engine.ValueDateTime, engine.ValueDateTimeTZ:
		return AttributeValue{Category: cat, Time: time.Unix(0, int64(binary.BigEndian.Uint64(raw))).UTC()}
	case engine.ValueDuration:
		return AttributeValue{Category: cat, Duration: time.Duration(binary.BigEndian.Uint64(raw))}
	case engine.ValueString:
		return AttributeValue{Category: cat, String: string(raw)}
	case engine.ValueStruct:
		return AttributeValue{Category: cat, Struct: raw}
	default:
		return AttributeValue{Category: cat}
	}
}

// vertexID derives the put-semantics ID for an attribute value: the raw
// encoding if it fits inline, otherwise a sha256 digest (spec §3).
func vertexID(raw []byte) (id []byte, inline bool) {
	if len(raw) <= maxInlineValueLen {
		return append([]byte{}, raw...), true
	}
	sum := sha256.Sum256(raw)
	return sum[:], false
}

// validateValue checks a candidate value against the attribute type's
// declared Regex/Range/Values annotations (spec §4.3's create_attribute
// validation; spec §4.5 names which annotation applies to which
// category).
func validateValue(def *typesystem.TypeDef, v AttributeValue) error {
	for _, a := range def.Annotations {
		switch a.Category {
		case typesystem.AnnotationRegex:
			if v.Category != engine.ValueString {
				continue
			}
			re, err := regexp.Compile(a.Pattern)
			if err != nil {
				return fmt.Errorf("%w: invalid regex %q: %v", ErrValueConstraintViolation, a.Pattern, err)
			}
			if !re.MatchString(v.String) {
				return fmt.Errorf("%w: value %q does not match regex %q", ErrValueConstraintViolation, v.String, a.Pattern)
			}
		case typesystem.AnnotationRange:
			enc := v.encode()
			if a.Range.Start != nil && bytesLess(enc, a.Range.Start) {
				return fmt.Errorf("%w: value below range start", ErrValueConstraintViolation)
			}
			if a.Range.End != nil && bytesLess(a.Range.End, enc) {
				return fmt.Errorf("%w: value above range end", ErrValueConstraintViolation)
			}
		case typesystem.AnnotationValues:
			enc := v.encode()
			ok := false
			for _, allowed := range a.Values {
				if bytesEqual(enc, allowed) {
					ok = true
					break
				}
			}
			if !ok {
				return fmt.Errorf("%w: value not in declared Values set", ErrValueConstraintViolation)
			}
		}
	}
	return nil
}

// CompareValues implements engine.ValueOrd, the ordering pkg/executor's
// ValueCompareCheck needs to evaluate range/equality predicates (spec
// §4.4.1, §8 scenario 4): decode both operands per the attribute type's
// declared category, then compare by the category's natural order
// rather than the raw encoding's byte order (doubles and decimals don't
// sort the way their big-endian bit patterns do).
func CompareValues(cat engine.ValueCategory, a, b engine.Value) int {
	va := decodeAttributeValue(cat, a)
	vb := decodeAttributeValue(cat, b)
	switch cat {
	case engine.ValueBool:
		return boolCmp(va.Bool, vb.Bool)
	case engine.ValueLong:
		return int64Cmp(va.Long, vb.Long)
	case engine.ValueDouble:
		return float64Cmp(va.Double, vb.Double)
	case engine.ValueDecimal:
		return float64Cmp(va.Decimal.Float64(), vb.Decimal.Float64())
	case engine.ValueDate, engine.ValueDateTime, engine.ValueDateTimeTZ:
		switch {
		case va.Time.Before(vb.Time):
			return -1
		case va.Time.After(vb.Time):
			return 1
		default:
			return 0
		}
	case engine.ValueDuration:
		return int64Cmp(int64(va.Duration), int64(vb.Duration))
	case engine.ValueString:
		return strings.Compare(va.String, vb.String)
	default:
		if bytesEqual(a, b) {
			return 0
		}
		if bytesLess(a, b) {
			return -1
		}
		return 1
	}
}

// Float64 renders a DecimalValue as an approximate float64, sufficient
// for ordering comparisons (not for exact arithmetic).
func (d DecimalValue) Float64() float64 {
	return float64(d.Unscaled) / math.Pow(10, float64(d.Scale))
}

func boolCmp(a, b bool) int {
	switch {
	case a == b:
		return 0
	case !a:
		return -1
	default:
		return 1
	}
}

func int64Cmp(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func float64Cmp(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func bytesLess(a, b []byte) bool {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) < len(b)
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
