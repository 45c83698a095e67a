package main

import (
	"database/sql"
	"flag"
	"log"
	"os"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"ms-groupbuy/internal/database/migrations"
)

func main() {
	var (
		dir  = flag.String("dir", "./migrations", "directory containing migration files")
		down = flag.Bool("down", false, "roll back all migrations instead of applying them")
	)
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Println(".env file not found, using environment variables")
	}

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN not set")
	}

	sqldb, err := sql.Open("postgres", dsn)
	if err != nil {
		log.Fatalf("Failed to open PostgreSQL: %v", err)
	}
	defer sqldb.Close()

	if err := sqldb.Ping(); err != nil {
		log.Fatalf("Failed to connect to PostgreSQL: %v", err)
	}

	bunDB := bun.NewDB(sqldb, pgdialect.New())
	runner := migrations.NewRunner(bunDB, migrations.MigrateOptions{MigrationsDir: *dir})
	defer runner.Close()

	if *down {
		if err := runner.MigrateDown(); err != nil {
			log.Fatalf("Migration down failed: %v", err)
		}
		log.Println("Rolled back all migrations")
		return
	}

	if err := runner.MigrateUp(); err != nil {
		log.Fatalf("Migration up failed: %v", err)
	}
	version, dirty, err := runner.Version()
	if err != nil {
		log.Fatalf("Failed to read schema version: %v", err)
	}
	log.Printf("Schema at version %d (dirty=%v)", version, dirty)
}
