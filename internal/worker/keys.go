// internal/worker/keys.go
package worker

import (
	"fmt"
	"time"

	"insights-gateway/internal/archive"
)

// ------------------------------------------------------------
// Object key layout
//
// Primary bucket: one object per system, overwritten by every upload.
//
//	<system_id>.<ext>
//
// Secondary bucket: partitioned by account, then system, then UTC day, so
// an account's history can be listed by prefix.
//
//	<account>/<system_id>/<YYYY-MM-DD>.<ext>
//
// <ext> follows the archive type: tar.gz, tar.bz or tar.
// ------------------------------------------------------------

// PrimaryKey builds the primary-bucket key for a system's archive.
func PrimaryKey(systemID string, typ archive.Type) string {
	return systemID + "." + typ.Extension()
}

// SecondaryKey builds the account-partitioned key. day is rendered in UTC.
func SecondaryKey(accountID, systemID string, day time.Time, typ archive.Type) string {
	return fmt.Sprintf("%s/%s/%s.%s", accountID, systemID, day.UTC().Format(time.DateOnly), typ.Extension())
}
