// Package pgstore implements goGuard.Store and goGuard.AttemptCounter on
// PostgreSQL with pgx and squirrel.
//
// Tables follow [Schema]. Token hashes are stored as BYTEA; raw tokens never
// reach the database. Replacing a token retires the account's unused tokens
// and inserts the new row in one transaction, and a partial unique index
// rejects a second unused token even if a caller bypasses this package.
package pgstore
