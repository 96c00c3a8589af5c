package crm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

type ValueKind uint8

const (
	KindNull ValueKind = iota
	KindString
	KindNumber
	KindBool
	KindDate
)

func (k ValueKind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindDate:
		return "date"
	default:
		return "null"
	}
}

// CustomValue is one user-defined field value. The zero value is null.
//
// On the wire strings, numbers, booleans and null use their JSON forms; dates are
// written as {"$date": "<RFC 3339>"} so they never collide with strings.
type CustomValue struct {
	kind ValueKind
	str  string
	num  float64
	b    bool
	date time.Time
}

type CustomFields map[string]CustomValue

func Null() CustomValue { return CustomValue{} }
func String(s string) CustomValue { return CustomValue{kind: KindString, str: s} }
func Number(n float64) CustomValue { return CustomValue{kind: KindNumber, num: n} }
func Bool(b bool) CustomValue { return CustomValue{kind: KindBool, b: b} }
func Date(t time.Time) CustomValue { return CustomValue{kind: KindDate, date: t.UTC()} }
func (v CustomValue) Kind() ValueKind { return v.kind }
func (v CustomValue) IsNull() bool { return v.kind == KindNull }

func (v CustomValue) AsString() (string, bool) {
	return v.str, v.kind == KindString
}

func (v CustomValue) AsNumber() (float64, bool) {
	return v.num, v.kind == KindNumber
}

func (v CustomValue) AsBool() (bool, bool) {
	return v.b, v.kind == KindBool
}

func (v CustomValue) AsDate() (time.Time, bool) {
	return v.date, v.kind == KindDate
}

type dateJSON struct {
	Date time.Time `json:"$date"`
}

func (v CustomValue) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindString:
		return json.Marshal(v.str)
	case KindNumber:
		return json.Marshal(v.num)
	case KindBool:
		return json.Marshal(v.b)
	case KindDate:
		return json.Marshal(dateJSON{Date: v.date})
	default:
		return []byte("null"), nil
	}
}

func (v *CustomValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return fmt.Errorf("custom value: empty input")
	}

	switch data[0] {
	case 'n':
		*v = Null()
		return nil
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = String(s)
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return err
		}
		*v = Bool(b)
	case '{':
		var d dateJSON
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&d); err != nil {
			return fmt.Errorf("custom value: objects must be {\"$date\": ...}: %w", err)
		}
		*v = Date(d.Date)
	case '[':
		return fmt.Errorf("custom value: arrays are not supported")
	default:
		var n float64
		if err := json.Unmarshal(data, &n); err != nil {
			return err
		}
		*v = Number(n)
	}
	return nil
}
