// Package storage persists pending reminder tasks.
//
// Drivers:
//   - "memory": process-local map, lost on restart
//   - "sqlite": SQLite database file (modernc.org/sqlite via sqlx)
//   - "postgres": PostgreSQL via a pgx pool
//
// Every driver supports exact-minute and due-or-overdue lookup on scheduled_at.
package storage
