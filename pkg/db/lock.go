package db

import "gorm.io/gorm"

// ClaimSuffix returns the row-claim clause for the connected dialect.
// SQLite has no row locks; its single-writer model makes the claim
// queries safe without one.
func ClaimSuffix(conn *gorm.DB) string {
	if conn == nil || conn.Dialector == nil {
		return ""
	}
	switch conn.Dialector.Name() {
	case "sqlite":
		return ""
	default:
		return " FOR UPDATE SKIP LOCKED"
	}
}

// LockSuffix is ClaimSuffix without SKIP LOCKED, for single-row loads
// that must serialize rather than skip.
func LockSuffix(conn *gorm.DB) string {
	if conn == nil || conn.Dialector == nil {
		return ""
	}
	switch conn.Dialector.Name() {
	case "sqlite":
		return ""
	default:
		return " FOR UPDATE"
	}
}
