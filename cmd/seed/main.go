// Command seed populates the database with fake pages, comment threads and
// counters for development.
package main

import (
	"flag"
	"log"

	"parlor/internal/config"
	"parlor/internal/database"
	"parlor/internal/seed"
)

func main() {
	pages := flag.Int("pages", 10, "number of pages to seed")
	comments := flag.Int("comments", 20, "comments per page")
	clean := flag.Bool("clean", false, "delete existing comments and counters first")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	if err := seed.Run(db, seed.Options{
		NumPages:        *pages,
		CommentsPerPage: *comments,
		ShouldClean:     *clean,
	}); err != nil {
		log.Fatalf("Seeding failed: %v", err)
	}
}
