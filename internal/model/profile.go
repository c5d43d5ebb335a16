package model

import "time"

// Profile は GET /api/profile のレスポンス。
type Profile struct {
	ID                 int64      `json:"id"`
	Username           string     `json:"username"`
	Email              string     `json:"email"`
	FirstName          string     `json:"firstName"`
	LastName           string     `json:"lastName"`
	PhoneNumber        string     `json:"phoneNumber,omitempty"`
	IdentityCard       string     `json:"identityCard,omitempty"`
	PhotoURL           string     `json:"photoUrl,omitempty"`
	Roles              []string   `json:"roles"`
	Enabled            bool       `json:"enabled"`
	CreatedAt          *time.Time `json:"createdAt,omitempty"`
	LastLoginAt        *time.Time `json:"lastLoginAt,omitempty"`
	EmailNotifications *bool      `json:"emailNotifications,omitempty"`
	PublicProfile      *bool      `json:"publicProfile,omitempty"`
	Language           string     `json:"language,omitempty"`
	Theme              string     `json:"theme,omitempty"`
}

// UpdateProfileRequest は PUT /api/profile のリクエストボディ。
type UpdateProfileRequest struct {
	FirstName    string `json:"firstName,omitempty"`
	LastName     string `json:"lastName,omitempty"`
	Email        string `json:"email,omitempty"`
	PhoneNumber  string `json:"phoneNumber,omitempty"`
	IdentityCard string `json:"identityCard,omitempty"`
}

// UpdatePreferencesRequest は PUT /api/profile/preferences のリクエストボディ。
type UpdatePreferencesRequest struct {
	EmailNotifications *bool  `json:"emailNotifications,omitempty"`
	PublicProfile      *bool  `json:"publicProfile,omitempty"`
	Language           string `json:"language,omitempty"`
	Theme              string `json:"theme,omitempty"`
}

// DeleteAccountRequest は DELETE /api/profile/account のリクエストボディ。
type DeleteAccountRequest struct {
	Password string `json:"password"`
}

// UserStatistics は GET /api/profile/statistics のレスポンス。
type UserStatistics struct {
	TotalBorrowedBooks int `json:"totalBorrowedBooks"`
	CurrentlyBorrowed  int `json:"currentlyBorrowed"`
	HistoryCount       int `json:"historyCount"`
	FavoritesCount     int `json:"favoritesCount"`
	OverdueBooks       int `json:"overdueBooks"`
	ReservationsCount  int `json:"reservationsCount"`
}
