package main

import (
	"flag"
	"log"

	"modsim/internal/output"
	"modsim/internal/recorder"
)

func main() {
	var dbPath string
	var outJSON string
	var outCSV string
	flag.StringVar(&dbPath, "db", "modsim.sqlite", "path to recorder database")
	flag.StringVar(&outJSON, "json", "", "path to write JSON history (optional)")
	flag.StringVar(&outCSV, "csv", "", "path to write CSV history (optional)")
	flag.Parse()

	if outJSON == "" && outCSV == "" {
		log.Fatalf("no output specified: set --json and/or --csv")
	}

	updates, err := recorder.Dump(dbPath)
	if err != nil {
		log.Fatalf("read history: %v", err)
	}
	log.Printf("export: %d update(s) in %s", len(updates), dbPath)

	if outJSON != "" {
		if err := output.WriteJSON(outJSON, updates); err != nil {
			log.Fatalf("write json: %v", err)
		}
	}
	if outCSV != "" {
		if err := output.WriteCSV(outCSV, updates); err != nil {
			log.Fatalf("write csv: %v", err)
		}
	}
}
