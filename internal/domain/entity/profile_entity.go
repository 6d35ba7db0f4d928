package entity

import "time"

// Cosmetic is the one-per-user flair applied to a profile card.
type Cosmetic struct {
	ID        string  `db:"id" json:"id"`
	Flair     *string `db:"flair" json:"flair"`
	Frame     *string `db:"frame" json:"frame"`
	Theme     *string `db:"theme" json:"theme"`
	BannerURL *string `db:"banner_url" json:"bannerUrl"`
	UserID    string  `db:"user_id" json:"userId"`

	User *User `db:"-" json:"user,omitempty"`
}

// Link is one entry of the link list on a profile.
type Link struct {
	ID              string    `db:"id" json:"id"`
	Icon            *string   `db:"icon" json:"icon"`
	URL             string    `db:"url" json:"url"`
	Text            *string   `db:"text" json:"text"`
	Name            *string   `db:"name" json:"name"`
	Description     *string   `db:"description" json:"description"`
	ShowIconOnHover bool      `db:"show_icon_on_hover" json:"showIconOnHover"`
	ShowTextOnHover bool      `db:"show_text_on_hover" json:"showTextOnHover"`
	UserID          string    `db:"user_id" json:"userId"`
	CreatedAt       time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt       time.Time `db:"updated_at" json:"updatedAt"`

	User *User `db:"-" json:"user,omitempty"`
}

// Label is a colored badge rendered next to the user name.
type Label struct {
	ID        string  `db:"id" json:"id"`
	Data      string  `db:"data" json:"data"`
	Color     *string `db:"color" json:"color"`
	FontColor *string `db:"font_color" json:"fontColor"`
	UserID    string  `db:"user_id" json:"userId"`

	User *User `db:"-" json:"user,omitempty"`
}

// SocialIcon links to an external social account.
type SocialIcon struct {
	ID     string `db:"id" json:"id"`
	URL    string `db:"url" json:"url"`
	Icon   string `db:"icon" json:"icon"`
	UserID string `db:"user_id" json:"userId"`

	User *User `db:"-" json:"user,omitempty"`
}

// BackgroundColor is one stop of the profile background gradient.
type BackgroundColor struct {
	ID     string `db:"id" json:"id"`
	Color  string `db:"color" json:"color"`
	UserID string `db:"user_id" json:"userId"`

	User *User `db:"-" json:"user,omitempty"`
}

// NeonColor is one color of the neon glow cycle.
type NeonColor struct {
	ID     string `db:"id" json:"id"`
	Color  string `db:"color" json:"color"`
	UserID string `db:"user_id" json:"userId"`

	User *User `db:"-" json:"user,omitempty"`
}

// Statusbar is the one-per-user status line shown above the profile.
type Statusbar struct {
	ID            string  `db:"id" json:"id"`
	Text          *string `db:"text" json:"text"`
	ColorBg       *string `db:"color_bg" json:"colorBg"`
	ColorText     *string `db:"color_text" json:"colorText"`
	FontTextColor *string `db:"font_text_color" json:"fontTextColor"`
	StatusText    *string `db:"status_text" json:"statusText"`
	UserID        string  `db:"user_id" json:"userId"`

	User *User `db:"-" json:"user,omitempty"`
}
