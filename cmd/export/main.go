package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/HafssaBN/human-imitation-for-airbnb/internal/config"
	"github.com/HafssaBN/human-imitation-for-airbnb/internal/database"
	"github.com/HafssaBN/human-imitation-for-airbnb/internal/export"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		outDir = flag.String("out", ".", "directory for the CSV files")
		what   = flag.String("tables", "hosts,listings,reviews,photos", "comma-separated tables to export")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		return 1
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	ctx := context.Background()
	db, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		slog.Error("connect database", "error", err)
		return 1
	}
	defer db.Close()

	writers := map[string]func(context.Context, export.Source, *os.File) error{
		"hosts": func(ctx context.Context, src export.Source, f *os.File) error {
			return export.WriteHostsCSV(ctx, src, f)
		},
		"listings": func(ctx context.Context, src export.Source, f *os.File) error {
			return export.WriteListingsCSV(ctx, src, f)
		},
		"reviews": func(ctx context.Context, src export.Source, f *os.File) error {
			return export.WriteReviewsCSV(ctx, src, f)
		},
		"photos": func(ctx context.Context, src export.Source, f *os.File) error {
			return export.WritePhotosCSV(ctx, src, f)
		},
	}

	for _, table := range strings.Split(*what, ",") {
		table = strings.TrimSpace(table)
		write, ok := writers[table]
		if !ok {
			slog.Error("unknown table", "table", table)
			return 1
		}

		path := filepath.Join(*outDir, table+".csv")
		f, err := os.Create(path)
		if err != nil {
			slog.Error("create file", "path", path, "error", err)
			return 1
		}
		if err := write(ctx, db, f); err != nil {
			f.Close()
			slog.Error("export failed", "table", table, "error", err)
			return 1
		}
		if err := f.Close(); err != nil {
			slog.Error("close file", "path", path, "error", err)
			return 1
		}
		slog.Info("exported", "table", table, "path", path)
	}
	return 0
}
