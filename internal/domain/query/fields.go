package query

import (
	"time"

	"github.com/oksasatya/biolink/internal/domain/entity"
)

// Field is a typed handle on a scalar field, used to build conditions
// without spelling field names.
type Field[T any] struct{ name string }

func (f Field[T]) Name() string { return f.name }

func (f Field[T]) Equals(v T) Cond   { return Cond{Field: f.name, Op: Equals, Value: v} }
func (f Field[T]) Not(v T) Cond      { return Cond{Field: f.name, Op: NotEquals, Value: v} }
func (f Field[T]) In(vs ...T) Cond   { return Cond{Field: f.name, Op: In, Value: vs} }
func (f Field[T]) NotIn(vs ...T) Cond { return Cond{Field: f.name, Op: NotIn, Value: vs} }
func (f Field[T]) IsNull() Cond      { return Cond{Field: f.name, Op: IsNull} }
func (f Field[T]) IsNotNull() Cond   { return Cond{Field: f.name, Op: IsNotNull} }

func (f Field[T]) Asc() OrderBy  { return OrderBy{Field: f.name, Order: Asc} }
func (f Field[T]) Desc() OrderBy { return OrderBy{Field: f.name, Order: Desc} }

// OrderedField adds range comparisons.
type OrderedField[T any] struct{ Field[T] }

func (f OrderedField[T]) Lt(v T) Cond  { return Cond{Field: f.name, Op: Lt, Value: v} }
func (f OrderedField[T]) Lte(v T) Cond { return Cond{Field: f.name, Op: Lte, Value: v} }
func (f OrderedField[T]) Gt(v T) Cond  { return Cond{Field: f.name, Op: Gt, Value: v} }
func (f OrderedField[T]) Gte(v T) Cond { return Cond{Field: f.name, Op: Gte, Value: v} }

// StringField adds pattern matching.
type StringField struct{ OrderedField[string] }

func (f StringField) Contains(s string) Cond   { return Cond{Field: f.name, Op: Contains, Value: s} }
func (f StringField) StartsWith(s string) Cond { return Cond{Field: f.name, Op: StartsWith, Value: s} }
func (f StringField) EndsWith(s string) Cond   { return Cond{Field: f.name, Op: EndsWith, Value: s} }

func (f StringField) EqualsFold(s string) Cond {
	return Cond{Field: f.name, Op: Equals, Value: s, Mode: Insensitive}
}

func (f StringField) ContainsFold(s string) Cond {
	return Cond{Field: f.name, Op: Contains, Value: s, Mode: Insensitive}
}

// ToMany is a handle on a to-many relation.
type ToMany struct{ name string }

func (r ToMany) Name() string { return r.name }

func (r ToMany) Some(filters ...Filter) RelationFilter {
	return RelationFilter{Relation: r.name, Quantifier: Some, Where: nested(filters)}
}

func (r ToMany) Every(filters ...Filter) RelationFilter {
	return RelationFilter{Relation: r.name, Quantifier: Every, Where: nested(filters)}
}

func (r ToMany) None(filters ...Filter) RelationFilter {
	return RelationFilter{Relation: r.name, Quantifier: None, Where: nested(filters)}
}

// OrderByCount sorts by the number of related rows.
func (r ToMany) OrderByCount(o SortOrder) OrderBy {
	return OrderBy{RelationCount: r.name, Order: o}
}

// ToOne is a handle on a to-one relation.
type ToOne struct{ name string }

func (r ToOne) Name() string { return r.name }

func (r ToOne) Is(filters ...Filter) RelationFilter {
	return RelationFilter{Relation: r.name, Quantifier: Is, Where: nested(filters)}
}

func (r ToOne) IsNot(filters ...Filter) RelationFilter {
	return RelationFilter{Relation: r.name, Quantifier: IsNot, Where: nested(filters)}
}

func nested(filters []Filter) Filter {
	if len(filters) == 0 {
		return nil
	}
	return Where(filters...)
}

func str(name string) StringField           { return StringField{OrderedField[string]{Field[string]{name}}} }
func integer(name string) OrderedField[int] { return OrderedField[int]{Field[int]{name}} }
func boolean(name string) Field[bool]       { return Field[bool]{name} }
func datetime(name string) OrderedField[time.Time] {
	return OrderedField[time.Time]{Field[time.Time]{name}}
}

var UserFields = struct {
	ID, UserName, Name, Email, Password, Image, Bio, Location, TextColor StringField
	BackgroundImage, BackgroundVideo, AudioURL, CursorURL                StringField
	ProfileOpacity, ProfileBlur, Views                                   OrderedField[int]
	GlowUsername, GlowSocials, MonochromeIcons                           Field[bool]
	Role                                                                 OrderedField[entity.Role]
	EmailVerified, CreatedAt, UpdatedAt                                  OrderedField[time.Time]

	Cosmetic, Statusbar                                    ToOne
	Links, Labels, SocialIcons, BackgroundColors, NeonColors ToMany
}{
	ID: str("id"), UserName: str("userName"), Name: str("name"), Email: str("email"),
	Password: str("password"), Image: str("image"), Bio: str("bio"), Location: str("location"),
	TextColor: str("textColor"), BackgroundImage: str("backgroundImage"),
	BackgroundVideo: str("backgroundVideo"), AudioURL: str("audioUrl"), CursorURL: str("cursorUrl"),
	ProfileOpacity: integer("profileOpacity"), ProfileBlur: integer("profileBlur"), Views: integer("views"),
	GlowUsername: boolean("glowUsername"), GlowSocials: boolean("glowSocials"),
	MonochromeIcons: boolean("monochromeIcons"),
	Role:            OrderedField[entity.Role]{Field[entity.Role]{"role"}},
	EmailVerified:   datetime("emailVerified"), CreatedAt: datetime("createdAt"), UpdatedAt: datetime("updatedAt"),

	Cosmetic: ToOne{"cosmetic"}, Statusbar: ToOne{"statusbar"},
	Links: ToMany{"links"}, Labels: ToMany{"labels"}, SocialIcons: ToMany{"socialIcons"},
	BackgroundColors: ToMany{"backgroundColors"}, NeonColors: ToMany{"neonColors"},
}

var CosmeticFields = struct {
	ID, Flair, Frame, Theme, BannerURL, UserID StringField
	User                                       ToOne
}{
	ID: str("id"), Flair: str("flair"), Frame: str("frame"), Theme: str("theme"),
	BannerURL: str("bannerUrl"), UserID: str("userId"), User: ToOne{"user"},
}

var LinkFields = struct {
	ID, Icon, URL, Text, Name, Description, UserID StringField
	ShowIconOnHover, ShowTextOnHover               Field[bool]
	CreatedAt, UpdatedAt                           OrderedField[time.Time]
	User                                           ToOne
}{
	ID: str("id"), Icon: str("icon"), URL: str("url"), Text: str("text"), Name: str("name"),
	Description: str("description"), UserID: str("userId"),
	ShowIconOnHover: boolean("showIconOnHover"), ShowTextOnHover: boolean("showTextOnHover"),
	CreatedAt: datetime("createdAt"), UpdatedAt: datetime("updatedAt"), User: ToOne{"user"},
}

var LabelFields = struct {
	ID, Data, Color, FontColor, UserID StringField
	User                               ToOne
}{
	ID: str("id"), Data: str("data"), Color: str("color"), FontColor: str("fontColor"),
	UserID: str("userId"), User: ToOne{"user"},
}

var SocialIconFields = struct {
	ID, URL, Icon, UserID StringField
	User                  ToOne
}{ID: str("id"), URL: str("url"), Icon: str("icon"), UserID: str("userId"), User: ToOne{"user"}}

var BackgroundColorFields = struct {
	ID, Color, UserID StringField
	User              ToOne
}{ID: str("id"), Color: str("color"), UserID: str("userId"), User: ToOne{"user"}}

var NeonColorFields = struct {
	ID, Color, UserID StringField
	User              ToOne
}{ID: str("id"), Color: str("color"), UserID: str("userId"), User: ToOne{"user"}}

var StatusbarFields = struct {
	ID, Text, ColorBg, ColorText, FontTextColor, StatusText, UserID StringField
	User                                                            ToOne
}{
	ID: str("id"), Text: str("text"), ColorBg: str("colorBg"), ColorText: str("colorText"),
	FontTextColor: str("fontTextColor"), StatusText: str("statusText"), UserID: str("userId"),
	User: ToOne{"user"},
}
