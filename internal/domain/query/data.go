package query

import "sort"

// Data is a write payload keyed by API field name. Scalar values are set
// as-is; Int fields also accept a NumberOp on update; relation keys accept
// a *Nested write.
type Data map[string]any

// Keys returns the payload keys sorted.
func (d Data) Keys() []string {
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns a shallow copy.
func (d Data) Clone() Data {
	out := make(Data, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// NumberOpKind is an atomic arithmetic update.
type NumberOpKind string

const (
	OpSet       NumberOpKind = "set"
	OpIncrement NumberOpKind = "increment"
	OpDecrement NumberOpKind = "decrement"
	OpMultiply  NumberOpKind = "multiply"
	OpDivide    NumberOpKind = "divide"
)

// NumberOp updates an Int column relative to its current value.
type NumberOp struct {
	Kind  NumberOpKind `json:"kind"`
	Value int64        `json:"value"`
}

func Increment(n int64) NumberOp { return NumberOp{Kind: OpIncrement, Value: n} }
func Decrement(n int64) NumberOp { return NumberOp{Kind: OpDecrement, Value: n} }
func Multiply(n int64) NumberOp  { return NumberOp{Kind: OpMultiply, Value: n} }
func Divide(n int64) NumberOp    { return NumberOp{Kind: OpDivide, Value: n} }
func Set(n int64) NumberOp       { return NumberOp{Kind: OpSet, Value: n} }

// Nested is a relation write inside a create or update payload. Create
// inserts new related rows; Connect links existing rows found by unique where.
type Nested struct {
	Create  []Data   `json:"create,omitempty"`
	Connect []Unique `json:"connect,omitempty"`
}

// CreateNested builds a nested create of one or more related rows.
func CreateNested(rows ...Data) *Nested {
	return &Nested{Create: rows}
}

// ConnectTo builds a nested connect to existing rows.
func ConnectTo(where ...Unique) *Nested {
	return &Nested{Connect: where}
}
