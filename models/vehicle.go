package models

import "gorm.io/gorm"

// Vehicle is a registered vehicle with the scan token its QR card encodes.
// Rotating ScanToken invalidates previously printed cards.
type Vehicle struct {
	gorm.Model
	OwnerID     uint   `gorm:"not null;index"`
	PlateNumber string `gorm:"size:20;not null"`
	ScanToken   string `gorm:"uniqueIndex;size:64;not null"`
}
