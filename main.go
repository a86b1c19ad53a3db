// shoptrack-migrate runs the data reconciliation and schema-evolution
// migrations for the shop-floor tracking database. The serving process
// must not be running while migrations apply.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"

	"shoptrack/internal/drawings"
	"shoptrack/internal/migrate"
	"shoptrack/internal/migrations"
)

func main() {
	dbPath := flag.String("db", "shoptrack.db", "SQLite database path")
	oeList := flag.String("oe-list", os.Getenv("SHOPTRACK_OE_LIST"), "Authoritative OE number list (.xlsx or .csv)")
	aliasFile := flag.String("aliases", os.Getenv("SHOPTRACK_ALIASES"), "Customer folder alias mapping (YAML)")
	drawingsDir := flag.String("drawings", os.Getenv("SHOPTRACK_DRAWINGS"), "Root of the drawing file share")
	flag.Usage = usage
	flag.Parse()

	command := "up"
	if flag.NArg() > 0 {
		command = flag.Arg(0)
	}

	db, err := openDB(*dbPath)
	if err != nil {
		log.Fatal("DB open failed: ", err)
	}
	defer db.Close()

	cfg := migrations.Config{
		OEFeedPath:  *oeList,
		AliasFile:   *aliasFile,
		DrawingsDir: *drawingsDir,
	}
	runner, err := migrate.NewRunner(db, migrations.Units(cfg))
	if err != nil {
		log.Fatal(err)
	}

	switch command {
	case "up":
		if err := runner.Up(); err != nil {
			log.Fatal(err)
		}
	case "down":
		if flag.NArg() > 1 {
			n, err := strconv.Atoi(flag.Arg(1))
			if err != nil || n < 1 {
				log.Fatalf("down: expected a positive count, got %q", flag.Arg(1))
			}
			if err := runner.DownN(n); err != nil {
				log.Fatal(err)
			}
			break
		}
		if err := runner.Down(); err != nil {
			log.Fatal(err)
		}
	case "status":
		statuses, err := runner.Statuses()
		if err != nil {
			log.Fatal(err)
		}
		for _, st := range statuses {
			state := "pending"
			if st.Applied {
				state = "applied " + st.AppliedAt
			}
			fmt.Printf("%03d  %-28s %s\n", st.Seq, st.Name, state)
		}
	case "scan":
		if *drawingsDir == "" {
			log.Fatal("scan: -drawings is required")
		}
		if err := drawings.New(db).Scan(*drawingsDir); err != nil {
			log.Fatal(err)
		}
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: shoptrack-migrate [flags] [command]

Commands:
  up         apply pending migrations (default)
  down [n]   reverse the latest batch, or the n latest units
  status     list migrations and their applied state
  scan       refresh the drawing file index

Flags:
`)
	flag.PrintDefaults()
}
