package main

import (
	"database/sql"
	"flag"
	"fmt"
	"os"

	"ms-checkout/internal/database/migrations"
	"ms-checkout/internal/logger"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
)

func main() {
	var (
		dsn     = flag.String("dsn", "", "Postgres DSN (defaults to POSTGRES_DSN)")
		down    = flag.Bool("down", false, "roll back every migration")
		version = flag.Int("to", -1, "migrate up or down to this version")
		force   = flag.Int("force", -1, "record this version and clear the dirty flag without running anything")
	)
	flag.Parse()

	log := logger.NewLogger("ms-checkout-migrate", "")
	defer log.Close()

	if err := godotenv.Load(); err != nil {
		log.Warn("CONFIG", ".env file not found, using environment variables")
	}
	if *dsn == "" {
		*dsn = os.Getenv("POSTGRES_DSN")
	}
	if *dsn == "" {
		log.Fatal("CONFIG", "POSTGRES_DSN not set")
	}

	sqldb, err := sql.Open("postgres", *dsn)
	if err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Failed to open PostgreSQL: %v", err))
	}
	if err := sqldb.Ping(); err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL: %v", err))
	}

	runner := migrations.NewRunner(sqldb, log)
	defer runner.Close()

	switch {
	case *force >= 0:
		err = runner.Force(*force)
	case *down:
		err = runner.Down()
	case *version >= 0:
		err = runner.To(uint(*version))
	default:
		err = runner.Up()
	}
	if err != nil {
		log.Fatal("MIGRATE", err.Error())
	}
	log.Info("MIGRATE", "✅ Done")
}
