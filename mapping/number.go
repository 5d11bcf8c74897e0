package mapping

import (
	"fmt"
	"math"
	"math/big"
	"strings"

	"github.com/hupe1980/kvsearch/index"
	"github.com/hupe1980/kvsearch/model"
)

// NumberBuilder declares a numeric field. The same builder serves the
// integer, long, float and double types.
type NumberBuilder struct {
	typ        string
	ColumnName string   `json:"column,omitempty"`
	IsIndexed  *bool    `json:"indexed,omitempty"`
	IsSorted   *bool    `json:"sorted,omitempty"`
	BoostValue *float32 `json:"boost,omitempty"`
}

// Integer returns a builder for 32-bit integer fields.
func Integer() NumberBuilder { return NumberBuilder{typ: TypeInteger} }

// Long returns a builder for 64-bit integer fields.
func Long() NumberBuilder { return NumberBuilder{typ: TypeLong} }

// Float returns a builder for 32-bit floating point fields.
func Float() NumberBuilder { return NumberBuilder{typ: TypeFloat} }

// Double returns a builder for 64-bit floating point fields.
func Double() NumberBuilder { return NumberBuilder{typ: TypeDouble} }

// Column sets the mapped column. Defaults to the field name.
func (b NumberBuilder) Column(c string) NumberBuilder { b.ColumnName = c; return b }

// Indexed sets whether the field is searchable.
func (b NumberBuilder) Indexed(v bool) NumberBuilder { b.IsIndexed = &v; return b }

// Sorted sets whether the field is sortable.
func (b NumberBuilder) Sorted(v bool) NumberBuilder { b.IsSorted = &v; return b }

// Boost sets the score multiplier of queries on the field.
func (b NumberBuilder) Boost(v float32) NumberBuilder { b.BoostValue = &v; return b }

// Type implements Builder.
func (b NumberBuilder) Type() string { return b.typ }

// Build implements Builder.
func (b NumberBuilder) Build(name string) (Mapper, error) {
	switch b.typ {
	case TypeInteger, TypeLong, TypeFloat, TypeDouble:
	default:
		return nil, model.NewMappingConfigurationError(name, "type", fmt.Sprintf("unknown numeric type %q", b.typ))
	}
	bs, err := newBase(name, b.typ, b.ColumnName, b.IsIndexed, b.IsSorted, Match|Contains|Range|Sort)
	if err != nil {
		return nil, err
	}
	boost := float32(1)
	if b.BoostValue != nil {
		boost = *b.BoostValue
		if boost <= 0 || math.IsNaN(float64(boost)) {
			return nil, model.NewMappingConfigurationError(name, "boost", "must be positive")
		}
	}
	return &NumberMapper{base: bs, boost: boost}, nil
}

// NumberMapper indexes numbers as order-preserving numeric encodings.
type NumberMapper struct {
	base
	boost float32
}

// Boost returns the score multiplier of queries on the field.
func (m *NumberMapper) Boost() float32 { return m.boost }

// Value coerces a literal into the field's numeric type.
func (m *NumberMapper) Value(value any) (model.Value, error) {
	switch m.typ {
	case TypeInteger, TypeLong:
		i, err := toInt64(value)
		if err == nil && m.typ == TypeInteger && (i > math.MaxInt32 || i < math.MinInt32) {
			err = errOverflow
		}
		if err != nil {
			return model.Value{}, m.coercionError(value, err)
		}
		return model.Int(i), nil
	default:
		f, err := toFloat64(value)
		if err == nil && m.typ == TypeFloat {
			if math.Abs(f) > math.MaxFloat32 {
				err = errOverflow
			} else {
				f = float64(float32(f))
			}
		}
		if err != nil {
			return model.Value{}, m.coercionError(value, err)
		}
		return model.Float(f), nil
	}
}

func (m *NumberMapper) encode(value any) (uint64, error) {
	v, err := m.Value(value)
	if err != nil {
		return 0, err
	}
	if i, ok := v.AsInt64(); ok {
		return index.EncodeInt64(i), nil
	}
	return index.EncodeFloat64(v.F64), nil
}

// Encode implements Mapper.
func (m *NumberMapper) Encode(row model.Row, doc *index.Document) error {
	for _, raw := range m.values(row) {
		v, err := m.Value(raw)
		if err != nil {
			return err
		}
		if m.indexed {
			if i, ok := v.AsInt64(); ok {
				doc.AddNumeric(m.name, index.EncodeInt64(i))
			} else {
				doc.AddNumeric(m.name, index.EncodeFloat64(v.F64))
			}
		}
		if m.sorted {
			doc.SetDocValue(m.name, v)
		}
	}
	return nil
}

// MatchQuery implements Matcher.
func (m *NumberMapper) MatchQuery(value any) (index.Query, error) {
	u, err := m.encode(value)
	if err != nil {
		return nil, err
	}
	return index.Boost(index.NumericRangeQuery{Field: m.name, Min: u, Max: u}, m.boost), nil
}

// RangeQuery implements Ranger.
func (m *NumberMapper) RangeQuery(lower, upper any, includeLower, includeUpper bool) (index.Query, error) {
	q, err := numericRange(m.name, lower, upper, includeLower, includeUpper, m.encode)
	if err != nil {
		return nil, err
	}
	return index.Boost(q, m.boost), nil
}

// numericRange builds an inclusive NumericRangeQuery, adjusting exclusive
// bounds by one step of the encoding.
func numericRange(field string, lower, upper any, includeLower, includeUpper bool, encode func(any) (uint64, error)) (index.Query, error) {
	lo, hi := uint64(0), uint64(math.MaxUint64)
	if lower != nil {
		u, err := encode(lower)
		if err != nil {
			return nil, err
		}
		if !includeLower {
			if u == math.MaxUint64 {
				return index.MatchNoneQuery{}, nil
			}
			u++
		}
		lo = u
	}
	if upper != nil {
		u, err := encode(upper)
		if err != nil {
			return nil, err
		}
		if !includeUpper {
			if u == 0 {
				return index.MatchNoneQuery{}, nil
			}
			u--
		}
		hi = u
	}
	return index.NumericRangeQuery{Field: field, Min: lo, Max: hi}, nil
}

// BigIntBuilder declares a field of arbitrary precision integers with at
// most Digits decimal digits.
type BigIntBuilder struct {
	ColumnName  string `json:"column,omitempty"`
	IsIndexed   *bool  `json:"indexed,omitempty"`
	IsSorted    *bool  `json:"sorted,omitempty"`
	DigitsValue *int   `json:"digits,omitempty"`
}

// DefaultBigIntDigits is the default of the digits option.
const DefaultBigIntDigits = 32

// BigInt returns a BigIntBuilder with default options.
func BigInt() BigIntBuilder { return BigIntBuilder{} }

// Column sets the mapped column. Defaults to the field name.
func (b BigIntBuilder) Column(c string) BigIntBuilder { b.ColumnName = c; return b }

// Indexed sets whether the field is searchable.
func (b BigIntBuilder) Indexed(v bool) BigIntBuilder { b.IsIndexed = &v; return b }

// Sorted sets whether the field is sortable.
func (b BigIntBuilder) Sorted(v bool) BigIntBuilder { b.IsSorted = &v; return b }

// Digits sets the maximum number of decimal digits.
func (b BigIntBuilder) Digits(n int) BigIntBuilder { b.DigitsValue = &n; return b }

// Type implements Builder.
func (BigIntBuilder) Type() string { return TypeBigInt }

// Build implements Builder.
func (b BigIntBuilder) Build(name string) (Mapper, error) {
	bs, err := newBase(name, TypeBigInt, b.ColumnName, b.IsIndexed, b.IsSorted, Match|Contains|Range|Sort)
	if err != nil {
		return nil, err
	}
	digits := DefaultBigIntDigits
	if b.DigitsValue != nil {
		digits = *b.DigitsValue
		if digits <= 0 {
			return nil, model.NewMappingConfigurationError(name, "digits", "must be positive")
		}
	}
	offset := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(digits)), nil)
	return &BigIntMapper{base: bs, digits: digits, offset: offset}, nil
}

// BigIntMapper indexes integers as fixed-width decimal terms shifted by
// 10^digits, so that term order equals numeric order.
type BigIntMapper struct {
	base
	digits int
	offset *big.Int
}

// FoldsCase implements Termer.
func (m *BigIntMapper) FoldsCase() bool { return false }

// Term implements Termer.
func (m *BigIntMapper) Term(value any) (string, error) {
	var n *big.Int
	switch t := unwrap(value).(type) {
	case *big.Int:
		n = t
	case string:
		var ok bool
		n, ok = new(big.Int).SetString(strings.TrimSpace(t), 10)
		if !ok {
			return "", m.coercionError(value, errNotNumeric)
		}
	default:
		i, err := toInt64(t)
		if err != nil {
			return "", m.coercionError(value, err)
		}
		n = big.NewInt(i)
	}
	if len(new(big.Int).Abs(n).String()) > m.digits {
		return "", m.coercionError(value, fmt.Errorf("more than %d digits", m.digits))
	}
	shifted := new(big.Int).Add(n, m.offset)
	s := shifted.String()
	return strings.Repeat("0", m.digits+1-len(s)) + s, nil
}

// Encode implements Mapper.
func (m *BigIntMapper) Encode(row model.Row, doc *index.Document) error {
	for _, v := range m.values(row) {
		term, err := m.Term(v)
		if err != nil {
			return err
		}
		if m.indexed {
			doc.AddTerm(m.name, term)
		}
		if m.sorted {
			doc.SetDocValue(m.name, model.String(term))
		}
	}
	return nil
}

// MatchQuery implements Matcher.
func (m *BigIntMapper) MatchQuery(value any) (index.Query, error) {
	term, err := m.Term(value)
	if err != nil {
		return nil, err
	}
	return index.TermQuery{Field: m.name, Term: term}, nil
}

// RangeQuery implements Ranger.
func (m *BigIntMapper) RangeQuery(lower, upper any, includeLower, includeUpper bool) (index.Query, error) {
	return termRange(m, m.name, lower, upper, includeLower, includeUpper)
}
