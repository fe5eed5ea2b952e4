package models

import "gorm.io/gorm"

// PoolAddress is one receive address in the reservable pool. Reserved
// addresses are handed to new buy trades; committed ones have a trade
// placed against them and never return to the pool.
type PoolAddress struct {
	gorm.Model
	Address      string `gorm:"uniqueIndex"`
	AccountIndex int    `gorm:"not null"`
	Reserved     bool   `gorm:"default:false"`
	Committed    bool   `gorm:"default:false"`
}
