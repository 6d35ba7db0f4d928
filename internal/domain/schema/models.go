package schema

import "github.com/google/uuid"

func newID() any { return uuid.NewString() }

func id() *Field {
	return &Field{Name: "id", Kind: String, IsID: true, Generate: newID, Rule: "max=64"}
}

func owner(unique bool) *Field {
	return &Field{Name: "userId", Kind: String, IsUnique: unique, Rule: "max=64"}
}

func str(name, rule string) *Field {
	return &Field{Name: name, Kind: String, Rule: rule}
}

func optStr(name, rule string) *Field {
	return &Field{Name: name, Kind: String, Optional: true, Rule: rule}
}

func flag(name string) *Field {
	return &Field{Name: name, Kind: Bool, HasDefault: true}
}

func createdAt() *Field {
	return &Field{Name: "createdAt", Kind: DateTime, HasDefault: true}
}

func updatedAt() *Field {
	return &Field{Name: "updatedAt", Kind: DateTime, UpdatedAt: true}
}

func belongsToUser() *Relation {
	return &Relation{Name: "user", GoField: "User", Target: "User", Cardinality: ToOne, LocalField: "userId", ForeignField: "id", Required: true}
}

func ownedBy(name, goField, target string, card Cardinality) *Relation {
	return &Relation{Name: name, GoField: goField, Target: target, Cardinality: card, LocalField: "id", ForeignField: "userId"}
}

// Roles lists the values of the Role enum.
var Roles = []string{"USER", "ADMIN"}

var (
	User = register(&Model{
		Name:  "User",
		Table: "users",
		Fields: []*Field{
			id(),
			str("userName", "min=1,max=32"),
			optStr("name", "max=64"),
			{Name: "email", Kind: String, IsUnique: true, Rule: "email,max=191"},
			str("password", "min=8,max=191"),
			optStr("image", "max=2048"),
			optStr("bio", "max=500"),
			optStr("location", "max=100"),
			{Name: "textColor", Kind: String, HasDefault: true, Rule: "max=32"},
			optStr("backgroundImage", "max=2048"),
			optStr("backgroundVideo", "max=2048"),
			optStr("audioUrl", "max=2048"),
			optStr("cursorUrl", "max=2048"),
			{Name: "profileOpacity", Kind: Int, HasDefault: true, Rule: "min=0,max=100"},
			{Name: "profileBlur", Kind: Int, HasDefault: true, Rule: "min=0,max=100"},
			{Name: "views", Kind: Int, HasDefault: true, Rule: "min=0"},
			flag("glowUsername"),
			flag("glowSocials"),
			flag("monochromeIcons"),
			{Name: "role", Kind: Enum, HasDefault: true, EnumName: "Role", EnumValues: Roles},
			{Name: "emailVerified", Kind: DateTime, Optional: true},
			createdAt(),
			updatedAt(),
		},
		Relations: []*Relation{
			ownedBy("cosmetic", "Cosmetic", "Cosmetic", ToOne),
			ownedBy("links", "Links", "Link", ToMany),
			ownedBy("labels", "Labels", "Label", ToMany),
			ownedBy("socialIcons", "SocialIcons", "SocialIcon", ToMany),
			ownedBy("backgroundColors", "BackgroundColors", "BackgroundColor", ToMany),
			ownedBy("neonColors", "NeonColors", "NeonColor", ToMany),
			ownedBy("statusbar", "Statusbar", "Statusbar", ToOne),
		},
	})

	Cosmetic = register(&Model{
		Name:  "Cosmetic",
		Table: "cosmetics",
		Fields: []*Field{
			id(),
			optStr("flair", "max=64"),
			optStr("frame", "max=64"),
			optStr("theme", "max=64"),
			optStr("bannerUrl", "max=2048"),
			owner(true),
		},
		Relations: []*Relation{belongsToUser()},
	})

	Link = register(&Model{
		Name:  "Link",
		Table: "links",
		Fields: []*Field{
			id(),
			optStr("icon", "max=2048"),
			str("url", "min=1,max=2048"),
			optStr("text", "max=100"),
			optStr("name", "max=100"),
			optStr("description", "max=500"),
			flag("showIconOnHover"),
			flag("showTextOnHover"),
			owner(false),
			createdAt(),
			updatedAt(),
		},
		Relations: []*Relation{belongsToUser()},
	})

	Label = register(&Model{
		Name:  "Label",
		Table: "labels",
		Fields: []*Field{
			id(),
			str("data", "min=1,max=64"),
			optStr("color", "max=32"),
			optStr("fontColor", "max=32"),
			owner(false),
		},
		Relations: []*Relation{belongsToUser()},
	})

	SocialIcon = register(&Model{
		Name:  "SocialIcon",
		Table: "social_icons",
		Fields: []*Field{
			id(),
			str("url", "min=1,max=2048"),
			str("icon", "min=1,max=64"),
			owner(false),
		},
		Relations: []*Relation{belongsToUser()},
	})

	BackgroundColor = register(&Model{
		Name:  "BackgroundColor",
		Table: "background_colors",
		Fields: []*Field{
			id(),
			str("color", "min=1,max=32"),
			owner(false),
		},
		Relations: []*Relation{belongsToUser()},
	})

	NeonColor = register(&Model{
		Name:  "NeonColor",
		Table: "neon_colors",
		Fields: []*Field{
			id(),
			str("color", "min=1,max=32"),
			owner(false),
		},
		Relations: []*Relation{belongsToUser()},
	})

	Statusbar = register(&Model{
		Name:  "Statusbar",
		Table: "statusbars",
		Fields: []*Field{
			id(),
			optStr("text", "max=100"),
			optStr("colorBg", "max=32"),
			optStr("colorText", "max=32"),
			optStr("fontTextColor", "max=32"),
			optStr("statusText", "max=100"),
			owner(true),
		},
		Relations: []*Relation{belongsToUser()},
	})
)
