package main

import (
	"database/sql"
	"flag"
	"fmt"
	"os"

	_ "github.com/lib/pq"
)

// Maintenance tool: deletes acknowledged messages and expired questions
// older than the retention window. Pending and answered rows are never
// touched.
func main() {
	dbURL := flag.String("db", os.Getenv("DATABASE_URL"), "Postgres connection string")
	retentionDays := flag.Int("retention-days", 30, "Delete terminal rows older than this many days")
	flag.Parse()

	if *dbURL == "" {
		fmt.Fprintln(os.Stderr, "no database URL: pass -db or set DATABASE_URL")
		os.Exit(1)
	}

	db, err := sql.Open("postgres", *dbURL)
	if err != nil {
		panic(err)
	}
	defer db.Close()

	res, err := db.Exec(
		`DELETE FROM messages WHERE delivery_status = 'acknowledged' AND acked_at < NOW() - ($1 || ' days')::interval`,
		*retentionDays)
	if err != nil {
		panic(err)
	}
	msgCount, _ := res.RowsAffected()

	res, err = db.Exec(
		`DELETE FROM questions WHERE status = 'expired' AND expires_at < NOW() - ($1 || ' days')::interval`,
		*retentionDays)
	if err != nil {
		panic(err)
	}
	questionCount, _ := res.RowsAffected()

	fmt.Printf("Purged %d acknowledged messages and %d expired questions\n", msgCount, questionCount)
}
