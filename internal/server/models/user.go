package models

import "time"

// AssetRef points at an externally stored image. URL is the publicly
// resolvable address, StorageKey is what the object store needs to delete
// the file. The two always change together.
type AssetRef struct {
	URL        string `json:"url"`
	StorageKey string `json:"storageKey"`
}

// User is the credential-store record. PasswordHash and RefreshToken never
// leave the service layer; use Redacted for anything that goes outward.
type User struct {
	ID           string
	Username     string
	Email        string
	FullName     string
	PasswordHash string
	Avatar       AssetRef
	Cover        *AssetRef
	RefreshToken *string
	CreatedAt    time.Time
}

// RedactedUser is the outward view of a User with the credential fields
// stripped. It is the only user shape handlers are allowed to serialize.
type RedactedUser struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	FullName  string    `json:"fullName"`
	Avatar    AssetRef  `json:"avatar"`
	Cover     *AssetRef `json:"coverImage,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Redacted strips the password hash and refresh token. Keeping the
// exclusion in one place avoids the drift that comes from repeating field
// lists at every read path.
func (u *User) Redacted() *RedactedUser {
	return &RedactedUser{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		FullName:  u.FullName,
		Avatar:    u.Avatar,
		Cover:     u.Cover,
		CreatedAt: u.CreatedAt,
	}
}
