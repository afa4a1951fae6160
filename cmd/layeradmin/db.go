package main

import (
	"database/sql"
	"flag"
	"fmt"
	"os"
	"strings"

	_ "modernc.org/sqlite"
)

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dbPath := fs.String("db", "./data/index/terrain.db", "sqlite db path")
	simID := fs.String("sim", "", "sim_id filter (patches)")
	limit := fs.Int("limit", 20, "result limit")
	_ = fs.Parse(args)

	q := "patches"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}
	if *limit <= 0 {
		*limit = 20
	}

	db, err := sql.Open("sqlite", *dbPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer db.Close()

	switch q {
	case "patches":
		query := `SELECT sim_id,sim_name,x,y,patch_size,min_h,max_h,mean_h,updated_at,updates FROM patches`
		qargs := []any{}
		if *simID != "" {
			query += ` WHERE sim_id=?`
			qargs = append(qargs, *simID)
		}
		query += ` ORDER BY updated_at DESC LIMIT ?`
		qargs = append(qargs, *limit)
		rows, err := db.Query(query, qargs...)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				SimID     string  `json:"sim_id"`
				SimName   string  `json:"sim_name"`
				X         int     `json:"x"`
				Y         int     `json:"y"`
				PatchSize int     `json:"patch_size"`
				MinH      float64 `json:"min_h"`
				MaxH      float64 `json:"max_h"`
				MeanH     float64 `json:"mean_h"`
				UpdatedAt string  `json:"updated_at"`
				Updates   int     `json:"updates"`
			}
			if err := rows.Scan(&r.SimID, &r.SimName, &r.X, &r.Y, &r.PatchSize, &r.MinH, &r.MaxH, &r.MeanH, &r.UpdatedAt, &r.Updates); err != nil {
				fmt.Fprintln(os.Stderr, "scan:", err)
				os.Exit(1)
			}
			printJSON(r)
		}
		if err := rows.Err(); err != nil {
			fmt.Fprintln(os.Stderr, "rows:", err)
			os.Exit(1)
		}

	case "winds":
		rows, err := db.Query(`SELECT sim_id,max_speed,updated_at FROM winds ORDER BY max_speed DESC LIMIT ?`, *limit)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				SimID     string  `json:"sim_id"`
				MaxSpeed  float64 `json:"max_speed"`
				UpdatedAt string  `json:"updated_at"`
			}
			if err := rows.Scan(&r.SimID, &r.MaxSpeed, &r.UpdatedAt); err != nil {
				fmt.Fprintln(os.Stderr, "scan:", err)
				os.Exit(1)
			}
			printJSON(r)
		}
		if err := rows.Err(); err != nil {
			fmt.Fprintln(os.Stderr, "rows:", err)
			os.Exit(1)
		}

	case "snapshots":
		rows, err := db.Query(`SELECT path,sims,patches,recorded_at FROM snapshots ORDER BY recorded_at DESC LIMIT ?`, *limit)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Path       string `json:"path"`
				Sims       int    `json:"sims"`
				Patches    int    `json:"patches"`
				RecordedAt string `json:"recorded_at"`
			}
			if err := rows.Scan(&r.Path, &r.Sims, &r.Patches, &r.RecordedAt); err != nil {
				fmt.Fprintln(os.Stderr, "scan:", err)
				os.Exit(1)
			}
			printJSON(r)
		}
		if err := rows.Err(); err != nil {
			fmt.Fprintln(os.Stderr, "rows:", err)
			os.Exit(1)
		}

	default:
		fmt.Fprintln(os.Stderr, "unknown query:", q, "(want patches, winds or snapshots)")
		os.Exit(2)
	}
}
