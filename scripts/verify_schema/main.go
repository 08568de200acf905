package main

import (
	"fmt"
	"log"
	"os"
	"strings"

	"market-core/pkg/config"
	"market-core/pkg/db"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	dbPath := cfg.DBPath
	if len(os.Args) > 1 {
		dbPath = os.Args[1]
	}
	fmt.Printf("Verifying database at: %s\n", dbPath)

	database, err := db.New(dbPath)
	if err != nil {
		log.Fatalf("Failed to open DB: %v", err)
	}
	defer database.Close()

	ok := true
	for i, table := range []string{"preferences", "selection_history"} {
		fmt.Printf("\n%d. Verifying %s table...\n", i+1, table)
		var n int
		if err := database.DB.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&n); err != nil {
			log.Fatalf("Query failed: %v", err)
		}
		if n == 1 {
			fmt.Printf("✓ %s table exists\n", table)
		} else {
			fmt.Printf("❌ %s table MISSING\n", table)
			ok = false
		}
	}

	fmt.Println("\n3. Verifying source column in selection_history...")
	var sqlSchema string
	if err := database.DB.QueryRow("SELECT sql FROM sqlite_master WHERE type='table' AND name='selection_history'").Scan(&sqlSchema); err != nil {
		fmt.Printf("❌ cannot read schema: %v\n", err)
		ok = false
	} else if strings.Contains(sqlSchema, "source") {
		fmt.Println("✓ source column exists")
	} else {
		fmt.Println("❌ source column MISSING (run the server once to migrate)")
		ok = false
	}

	if !ok {
		os.Exit(1)
	}
}
