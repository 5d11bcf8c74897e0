package mapping

import (
	"encoding/hex"
	"errors"
	"fmt"
	"net/netip"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hupe1980/kvsearch/index"
	"github.com/hupe1980/kvsearch/model"
)

// ScalarBuilder declares a field of one of the simple scalar types
// (boolean, uuid, inet, blob).
type ScalarBuilder struct {
	typ        string
	ColumnName string `json:"column,omitempty"`
	IsIndexed  *bool  `json:"indexed,omitempty"`
	IsSorted   *bool  `json:"sorted,omitempty"`
}

// Boolean returns a builder for boolean fields.
func Boolean() ScalarBuilder { return ScalarBuilder{typ: TypeBoolean} }

// UUID returns a builder for UUID fields.
func UUID() ScalarBuilder { return ScalarBuilder{typ: TypeUUID} }

// Inet returns a builder for IP address fields.
func Inet() ScalarBuilder { return ScalarBuilder{typ: TypeInet} }

// Blob returns a builder for binary fields.
func Blob() ScalarBuilder { return ScalarBuilder{typ: TypeBlob} }

// Column sets the mapped column. Defaults to the field name.
func (b ScalarBuilder) Column(c string) ScalarBuilder { b.ColumnName = c; return b }

// Indexed sets whether the field is searchable.
func (b ScalarBuilder) Indexed(v bool) ScalarBuilder { b.IsIndexed = &v; return b }

// Sorted sets whether the field is sortable.
func (b ScalarBuilder) Sorted(v bool) ScalarBuilder { b.IsSorted = &v; return b }

// Type implements Builder.
func (b ScalarBuilder) Type() string { return b.typ }

// Build implements Builder.
func (b ScalarBuilder) Build(name string) (Mapper, error) {
	var caps Capability
	switch b.typ {
	case TypeBoolean:
		caps = Match | Contains | Sort
	case TypeUUID, TypeBlob:
		caps = Match | Contains | Prefix | Sort
	case TypeInet:
		caps = Match | Contains | Prefix | Wildcard | Sort
	default:
		return nil, model.NewMappingConfigurationError(name, "type", fmt.Sprintf("unknown scalar type %q", b.typ))
	}
	bs, err := newBase(name, b.typ, b.ColumnName, b.IsIndexed, b.IsSorted, caps)
	if err != nil {
		return nil, err
	}
	return &ScalarMapper{base: bs}, nil
}

// ScalarMapper indexes values as single canonical terms.
type ScalarMapper struct {
	base
}

func (m *ScalarMapper) conv(value any) (string, model.Value, error) {
	switch m.typ {
	case TypeBoolean:
		return booleanTerm(value)
	case TypeUUID:
		return uuidTerm(value)
	case TypeInet:
		return inetTerm(value)
	default:
		return blobTerm(value)
	}
}

// FoldsCase implements Termer.
func (m *ScalarMapper) FoldsCase() bool { return m.typ == TypeUUID || m.typ == TypeBlob }

// Term implements Termer.
func (m *ScalarMapper) Term(value any) (string, error) {
	term, _, err := m.conv(value)
	if err != nil {
		return "", m.coercionError(value, err)
	}
	return term, nil
}

// Encode implements Mapper.
func (m *ScalarMapper) Encode(row model.Row, doc *index.Document) error {
	for _, v := range m.values(row) {
		term, sortValue, err := m.conv(v)
		if err != nil {
			return m.coercionError(v, err)
		}
		if m.indexed {
			doc.AddTerm(m.name, term)
		}
		if m.sorted {
			doc.SetDocValue(m.name, sortValue)
		}
	}
	return nil
}

// MatchQuery implements Matcher.
func (m *ScalarMapper) MatchQuery(value any) (index.Query, error) {
	term, err := m.Term(value)
	if err != nil {
		return nil, err
	}
	return index.TermQuery{Field: m.name, Term: term}, nil
}

func booleanTerm(value any) (string, model.Value, error) {
	b, err := toBool(value)
	if err != nil {
		return "", model.Value{}, err
	}
	return strconv.FormatBool(b), model.Bool(b), nil
}

func uuidTerm(value any) (string, model.Value, error) {
	var id uuid.UUID
	switch t := unwrap(value).(type) {
	case uuid.UUID:
		id = t
	case []byte:
		var err error
		id, err = uuid.FromBytes(t)
		if err != nil {
			return "", model.Value{}, err
		}
	case string:
		if strings.TrimSpace(t) == "" {
			return "", model.Value{}, errors.New("empty uuid")
		}
		var err error
		id, err = uuid.Parse(strings.TrimSpace(t))
		if err != nil {
			return "", model.Value{}, err
		}
	case nil:
		return "", model.Value{}, errNull
	default:
		return "", model.Value{}, fmt.Errorf("unsupported type %T", value)
	}
	s := id.String()
	return s, model.String(s), nil
}

func inetTerm(value any) (string, model.Value, error) {
	var addr netip.Addr
	switch t := unwrap(value).(type) {
	case netip.Addr:
		addr = t
	case []byte:
		a, ok := netip.AddrFromSlice(t)
		if !ok {
			return "", model.Value{}, errors.New("invalid address length")
		}
		addr = a
	case string:
		a, err := netip.ParseAddr(strings.TrimSpace(t))
		if err != nil {
			return "", model.Value{}, err
		}
		addr = a
	case nil:
		return "", model.Value{}, errNull
	default:
		return "", model.Value{}, fmt.Errorf("unsupported type %T", value)
	}
	addr = addr.Unmap()
	b := addr.As16()
	return addr.String(), model.Bytes(b[:]), nil
}

func blobTerm(value any) (string, model.Value, error) {
	switch t := unwrap(value).(type) {
	case []byte:
		return hex.EncodeToString(t), model.Bytes(t), nil
	case string:
		s := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(t)), "0x")
		raw, err := hex.DecodeString(s)
		if err != nil {
			return "", model.Value{}, err
		}
		return s, model.Bytes(raw), nil
	case nil:
		return "", model.Value{}, errNull
	default:
		return "", model.Value{}, fmt.Errorf("unsupported type %T", value)
	}
}

// DateBuilder declares a timestamp field.
type DateBuilder struct {
	ColumnName   string `json:"column,omitempty"`
	IsIndexed    *bool  `json:"indexed,omitempty"`
	IsSorted     *bool  `json:"sorted,omitempty"`
	PatternValue string `json:"pattern,omitempty"`
}

// DefaultDatePattern is the layout used to parse date strings when no
// pattern is declared.
const DefaultDatePattern = "2006/01/02 15:04:05.000 -0700"

// Date returns a DateBuilder with default options.
func Date() DateBuilder { return DateBuilder{} }

// Column sets the mapped column. Defaults to the field name.
func (b DateBuilder) Column(c string) DateBuilder { b.ColumnName = c; return b }

// Indexed sets whether the field is searchable.
func (b DateBuilder) Indexed(v bool) DateBuilder { b.IsIndexed = &v; return b }

// Sorted sets whether the field is sortable.
func (b DateBuilder) Sorted(v bool) DateBuilder { b.IsSorted = &v; return b }

// Pattern sets the Go time layout used to parse date strings.
func (b DateBuilder) Pattern(p string) DateBuilder { b.PatternValue = p; return b }

// Type implements Builder.
func (DateBuilder) Type() string { return TypeDate }

var patternSample = time.Date(2001, time.February, 3, 4, 5, 6, 7000000, time.UTC)

// Build implements Builder.
func (b DateBuilder) Build(name string) (Mapper, error) {
	bs, err := newBase(name, TypeDate, b.ColumnName, b.IsIndexed, b.IsSorted, Match|Contains|Range|Sort)
	if err != nil {
		return nil, err
	}
	pattern := b.PatternValue
	if pattern == "" {
		pattern = DefaultDatePattern
	}
	sample := patternSample.Format(pattern)
	if sample == pattern {
		return nil, model.NewMappingConfigurationError(name, "pattern", fmt.Sprintf("%q contains no layout elements", pattern))
	}
	if _, err := time.Parse(pattern, sample); err != nil {
		return nil, model.WrapMappingConfigurationError(name, "pattern", err)
	}
	return &DateMapper{base: bs, pattern: pattern}, nil
}

// DateMapper indexes timestamps with millisecond precision.
type DateMapper struct {
	base
	pattern string
}

// Pattern returns the layout used to parse date strings.
func (m *DateMapper) Pattern() string { return m.pattern }

// Time coerces a literal into a timestamp. Strings are parsed with the
// mapper's pattern; numbers are milliseconds since the Unix epoch.
func (m *DateMapper) Time(value any) (time.Time, error) {
	switch t := unwrap(value).(type) {
	case time.Time:
		return t.UTC().Truncate(time.Millisecond), nil
	case string:
		ts, err := time.Parse(m.pattern, strings.TrimSpace(t))
		if err != nil {
			return time.Time{}, m.coercionError(value, err)
		}
		return ts.UTC().Truncate(time.Millisecond), nil
	default:
		ms, err := toInt64(t)
		if err != nil {
			return time.Time{}, m.coercionError(value, err)
		}
		return time.UnixMilli(ms).UTC(), nil
	}
}

func (m *DateMapper) encode(value any) (uint64, error) {
	t, err := m.Time(value)
	if err != nil {
		return 0, err
	}
	return index.EncodeInt64(t.UnixMilli()), nil
}

// Encode implements Mapper.
func (m *DateMapper) Encode(row model.Row, doc *index.Document) error {
	for _, v := range m.values(row) {
		t, err := m.Time(v)
		if err != nil {
			return err
		}
		if m.indexed {
			doc.AddNumeric(m.name, index.EncodeInt64(t.UnixMilli()))
		}
		if m.sorted {
			doc.SetDocValue(m.name, model.Time(t))
		}
	}
	return nil
}

// MatchQuery implements Matcher.
func (m *DateMapper) MatchQuery(value any) (index.Query, error) {
	u, err := m.encode(value)
	if err != nil {
		return nil, err
	}
	return index.NumericRangeQuery{Field: m.name, Min: u, Max: u}, nil
}

// RangeQuery implements Ranger.
func (m *DateMapper) RangeQuery(lower, upper any, includeLower, includeUpper bool) (index.Query, error) {
	return numericRange(m.name, lower, upper, includeLower, includeUpper, m.encode)
}
