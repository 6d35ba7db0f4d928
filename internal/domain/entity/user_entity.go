package entity

import (
	"time"
)

// User is the aggregate root of a profile page.
// Password holds a bcrypt hash once it went through the hashing middleware.
//
// Relation fields are only populated when requested through include/select.
type User struct {
	ID              string     `db:"id" json:"id"`
	UserName        string     `db:"user_name" json:"userName"`
	Name            *string    `db:"name" json:"name"`
	Email           string     `db:"email" json:"email"`
	Password        string     `db:"password" json:"password"`
	Image           *string    `db:"image" json:"image"`
	Bio             *string    `db:"bio" json:"bio"`
	Location        *string    `db:"location" json:"location"`
	TextColor       string     `db:"text_color" json:"textColor"`
	BackgroundImage *string    `db:"background_image" json:"backgroundImage"`
	BackgroundVideo *string    `db:"background_video" json:"backgroundVideo"`
	AudioURL        *string    `db:"audio_url" json:"audioUrl"`
	CursorURL       *string    `db:"cursor_url" json:"cursorUrl"`
	ProfileOpacity  int        `db:"profile_opacity" json:"profileOpacity"`
	ProfileBlur     int        `db:"profile_blur" json:"profileBlur"`
	Views           int        `db:"views" json:"views"`
	GlowUsername    bool       `db:"glow_username" json:"glowUsername"`
	GlowSocials     bool       `db:"glow_socials" json:"glowSocials"`
	MonochromeIcons bool       `db:"monochrome_icons" json:"monochromeIcons"`
	Role            Role       `db:"role" json:"role"`
	EmailVerified   *time.Time `db:"email_verified" json:"emailVerified"`
	CreatedAt       time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updatedAt"`

	Cosmetic         *Cosmetic         `db:"-" json:"cosmetic,omitempty"`
	Links            []Link            `db:"-" json:"links,omitempty"`
	Labels           []Label           `db:"-" json:"labels,omitempty"`
	SocialIcons      []SocialIcon      `db:"-" json:"socialIcons,omitempty"`
	BackgroundColors []BackgroundColor `db:"-" json:"backgroundColors,omitempty"`
	NeonColors       []NeonColor       `db:"-" json:"neonColors,omitempty"`
	Statusbar        *Statusbar        `db:"-" json:"statusbar,omitempty"`

	Count *UserCount `db:"-" json:"_count,omitempty"`
}

// UserCount carries the `_count` of each to-many relation of a user.
type UserCount struct {
	Links            int64 `json:"links"`
	Labels           int64 `json:"labels"`
	SocialIcons      int64 `json:"socialIcons"`
	BackgroundColors int64 `json:"backgroundColors"`
	NeonColors       int64 `json:"neonColors"`
}
