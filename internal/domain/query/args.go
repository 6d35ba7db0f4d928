package query

import (
	"sort"
	"time"
)

// Unique identifies a single record. It must name at least one id or
// unique field; extra keys are matched with equals.
type Unique map[string]any

// Keys returns the map keys sorted.
func (u Unique) Keys() []string {
	keys := make([]string, 0, len(u))
	for k := range u {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Filter converts the unique where into a conjunction of equals conditions.
func (u Unique) Filter() Filter {
	and := make(And, 0, len(u))
	for _, k := range u.Keys() {
		and = append(and, Eq(k, u[k]))
	}
	return and
}

// ByID is shorthand for Unique{"id": id}.
func ByID(id string) Unique {
	return Unique{"id": id}
}

// SortOrder is the direction of an ordering.
type SortOrder string

const (
	Asc  SortOrder = "asc"
	Desc SortOrder = "desc"
)

// NullsOrder places NULL values first or last.
type NullsOrder string

const (
	NullsFirst NullsOrder = "first"
	NullsLast  NullsOrder = "last"
)

// OrderBy sorts by a scalar field, by an aggregate of a field (groupBy only)
// or by the number of related rows of a to-many relation.
type OrderBy struct {
	Field         string     `json:"field,omitempty"`
	Order         SortOrder  `json:"order,omitempty"`
	Nulls         NullsOrder `json:"nulls,omitempty"`
	Agg           AggFunc    `json:"agg,omitempty"`
	RelationCount string     `json:"relationCount,omitempty"`
}

// Descending reports whether the order is desc.
func (o OrderBy) Descending() bool { return o.Order == Desc }

// RelationArgs narrows a relation loaded through select or include.
// To-one relations only accept Select, Include and Omit.
type RelationArgs struct {
	Where    Filter    `json:"where,omitempty"`
	OrderBy  []OrderBy `json:"orderBy,omitempty"`
	Cursor   Unique    `json:"cursor,omitempty"`
	Take     *int      `json:"take,omitempty"`
	Skip     int       `json:"skip,omitempty"`
	Distinct []string  `json:"distinct,omitempty"`
	Select   Select    `json:"select,omitempty"`
	Include  Include   `json:"include,omitempty"`
	Omit     []string  `json:"omit,omitempty"`
}

// CountKey selects relation counts inside Select or Include.
const CountKey = "_count"

// Select lists the keys a result carries. Scalar keys map to nil; relation
// keys map to nil or to nested arguments; CountKey maps to nil (count every
// to-many relation) or to RelationArgs whose Select names the relations to count.
type Select map[string]*RelationArgs

// Include adds relations (and CountKey) on top of the default scalar fields.
type Include map[string]*RelationArgs

// Fields builds a Select of plain keys.
func Fields(names ...string) Select {
	s := make(Select, len(names))
	for _, n := range names {
		s[n] = nil
	}
	return s
}

// Relations builds an Include of plain relation keys.
func Relations(names ...string) Include {
	inc := make(Include, len(names))
	for _, n := range names {
		inc[n] = nil
	}
	return inc
}

// Take returns a pointer to n, for the optional Take arguments.
func Take(n int) *int { return &n }

// CacheStrategy opts a read into the query cache.
type CacheStrategy struct {
	TTL time.Duration
}

type FindUniqueArgs struct {
	Where   Unique         `json:"where"`
	Select  Select         `json:"select,omitempty"`
	Include Include        `json:"include,omitempty"`
	Omit    []string       `json:"omit,omitempty"`
	Cache   *CacheStrategy `json:"-"`
}

type FindManyArgs struct {
	Where    Filter         `json:"where,omitempty"`
	OrderBy  []OrderBy      `json:"orderBy,omitempty"`
	Cursor   Unique         `json:"cursor,omitempty"`
	Take     *int           `json:"take,omitempty"`
	Skip     int            `json:"skip,omitempty"`
	Distinct []string       `json:"distinct,omitempty"`
	Select   Select         `json:"select,omitempty"`
	Include  Include        `json:"include,omitempty"`
	Omit     []string       `json:"omit,omitempty"`
	Cache    *CacheStrategy `json:"-"`
}

type CreateArgs struct {
	Data    Data
	Select  Select
	Include Include
	Omit    []string
}

type CreateManyArgs struct {
	Data           []Data
	SkipDuplicates bool
	// Select, Include and Omit are used by CreateManyAndReturn.
	Select  Select
	Include Include
	Omit    []string
}

type UpdateArgs struct {
	Where   Unique
	Data    Data
	Select  Select
	Include Include
	Omit    []string
}

type UpdateManyArgs struct {
	Where Filter
	Data  Data
	// Limit caps the number of updated rows when positive.
	Limit   int
	Select  Select
	Include Include
	Omit    []string
}

type UpsertArgs struct {
	Where   Unique
	Create  Data
	Update  Data
	Select  Select
	Include Include
	Omit    []string
}

type DeleteArgs struct {
	Where   Unique
	Select  Select
	Include Include
	Omit    []string
}

type DeleteManyArgs struct {
	Where Filter
	Limit int
}

type CountArgs struct {
	Where   Filter         `json:"where,omitempty"`
	OrderBy []OrderBy      `json:"orderBy,omitempty"`
	Cursor  Unique         `json:"cursor,omitempty"`
	Take    *int           `json:"take,omitempty"`
	Skip    int            `json:"skip,omitempty"`
	Cache   *CacheStrategy `json:"-"`
}

// AllKey counts rows instead of non-null values in Count lists.
const AllKey = "_all"

type AggregateArgs struct {
	Where   Filter
	OrderBy []OrderBy
	Cursor  Unique
	Take    *int
	Skip    int

	Count []string
	Avg   []string
	Sum   []string
	Min   []string
	Max   []string
}

// AggregateResult holds the requested aggregates keyed by field name.
// Avg is always fractional, Sum is integral, Min and Max keep the field's type.
type AggregateResult struct {
	Count map[string]int64    `json:"_count,omitempty"`
	Avg   map[string]*float64 `json:"_avg,omitempty"`
	Sum   map[string]*int64   `json:"_sum,omitempty"`
	Min   map[string]any      `json:"_min,omitempty"`
	Max   map[string]any      `json:"_max,omitempty"`
}

type GroupByArgs struct {
	By      []string
	Where   Filter
	Having  Filter
	OrderBy []OrderBy
	Take    *int
	Skip    int

	Count []string
	Avg   []string
	Sum   []string
	Min   []string
	Max   []string
}

// GroupByRow is one group: the values of the by fields plus its aggregates.
type GroupByRow struct {
	Keys map[string]any `json:"keys"`
	AggregateResult
}

// BatchPayload is the result of bulk writes.
type BatchPayload struct {
	Count int64 `json:"count"`
}
