// Package activity provides the user activity entities recorded around catalog links.
package activity

import "time"

// User is a chat member. Rows are created on first sight and not updated.
type User struct {
	ID        int64  `gorm:"primaryKey;autoIncrement:false"` // Transport user ID
	Username  string `gorm:"index"`
	FirstName string
	CreatedAt time.Time
}

// DisplayName returns the username, falling back to the first name.
func (u *User) DisplayName() string {
	if u.Username != "" {
		return u.Username
	}
	return u.FirstName
}

// Chat is a group conversation links are sent to.
type Chat struct {
	ID        int64 `gorm:"primaryKey;autoIncrement:false"` // Transport chat ID
	Name      string
	CreatedAt time.Time
}

// SentLink records one occurrence of a user sending a link to a chat.
// Every send is a new row.
type SentLink struct {
	ID     string    `gorm:"primaryKey;size:36"` // UUID
	SentAt time.Time `gorm:"index;not null"`
	ChatID int64     `gorm:"index;not null"`
	UserID int64     `gorm:"index;not null"`
	LinkID uint      `gorm:"index;not null"`
}

// SavedLink is a user's bookmark on a link. A non-nil DeletedAt marks it removed.
type SavedLink struct {
	ID        uint       `gorm:"primaryKey"`
	UserID    int64      `gorm:"uniqueIndex:idx_saved_user_link;not null"`
	LinkID    uint       `gorm:"uniqueIndex:idx_saved_user_link;not null"`
	SavedAt   time.Time  `gorm:"not null"`
	DeletedAt *time.Time // nil while active
}

// Active reports whether the saved link has not been removed.
func (s *SavedLink) Active() bool {
	return s.DeletedAt == nil
}

// FollowedArtist subscribes a user to an artist's new releases.
type FollowedArtist struct {
	ID         uint       `gorm:"primaryKey"`
	UserID     int64      `gorm:"uniqueIndex:idx_follow_user_artist;not null"`
	ArtistID   string     `gorm:"uniqueIndex:idx_follow_user_artist;not null"`
	FollowedAt time.Time  `gorm:"not null"`
	LastLookup *time.Time // nil until the first release check
}
