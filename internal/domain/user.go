package domain

// User is a registered account (buyer or seller).
type User struct {
	Timestamps
	ID           string `json:"id"`
	Email        string `json:"email"`
	DisplayName  string `json:"display_name"`
	PasswordHash string `json:"-"`
}

// ShopperSession identifies an anonymous browser session. Its ID doubles as
// the holder ID for bags and reservations made before login, and as the
// viewer ID on product pages.
type ShopperSession struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id,omitempty"`
	CreatedAt int64  `json:"created_at"`
}
