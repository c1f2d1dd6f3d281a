package models

import (
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type User struct {
	gorm.Model
	Email        string `gorm:"uniqueIndex;size:120;not null"`
	Username     string `gorm:"uniqueIndex;size:80;not null"`
	PasswordHash string `gorm:"size:255;not null"`
	// Phone is the owner's contact number; it is never returned unmasked
	// by any endpoint.
	Phone string `gorm:"size:32"`
}

func (u *User) SetPassword(password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = string(hash)
	return nil
}

func (u *User) CheckPassword(password string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password))
	return err == nil
}

// MaskedPhone keeps only the last two digits visible, e.g. "********21".
func (u *User) MaskedPhone() string {
	if len(u.Phone) <= 2 {
		return u.Phone
	}
	masked := make([]byte, len(u.Phone))
	for i := range masked {
		if i >= len(u.Phone)-2 {
			masked[i] = u.Phone[i]
		} else {
			masked[i] = '*'
		}
	}
	return string(masked)
}
