package shared

import "strings"

// modernc.org/sqlite reports result codes only through the error text, so the
// classifiers below match on substrings.

func sqliteErrorContains(err error, marker string) bool {
	return err != nil && strings.Contains(err.Error(), marker)
}

// IsSQLiteBusyError reports a SQLITE_BUSY result: another connection holds the
// write lock past busy_timeout.
func IsSQLiteBusyError(err error) bool {
	return sqliteErrorContains(err, "SQLITE_BUSY")
}

// IsSQLiteLockedError reports a "database is locked" failure.
func IsSQLiteLockedError(err error) bool {
	return sqliteErrorContains(err, "database is locked")
}

// IsSQLiteContention reports write contention the store retries with backoff.
func IsSQLiteContention(err error) bool {
	return IsSQLiteBusyError(err) || IsSQLiteLockedError(err)
}

// IsSQLiteUniqueError reports a UNIQUE constraint violation. The store turns it
// into a Conflict when two first-contact sends race to create a conversation.
func IsSQLiteUniqueError(err error) bool {
	return sqliteErrorContains(err, "UNIQUE constraint failed")
}
