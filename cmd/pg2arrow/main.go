package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/arrowlabs/pg2arrow"
	"github.com/arrowlabs/pg2arrow/catalog"
	"github.com/arrowlabs/pg2arrow/pgcopy"
)

func main() {
	cfg, err := parseConfig(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if cfg.describe {
		if err := runDescribe(cfg); err != nil {
			logger.Fatal("describe failed", zap.Error(err))
		}
		return
	}

	if err := runDump(context.Background(), cfg, logger); err != nil {
		logger.Fatal("dump failed", zap.Error(err))
	}
}

func runDescribe(cfg *config) error {
	af, err := pg2arrow.OpenArrowFile(cfg.describeFile)
	if err != nil {
		return err
	}
	defer af.Close()
	pg2arrow.DumpFile(os.Stdout, af)
	return nil
}

func runDump(ctx context.Context, cfg *config, logger *zap.Logger) error {
	pool, err := pgxpool.New(ctx, cfg.connString)
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", cfg.connString, err)
	}
	defer pool.Close()

	lookup := catalog.NewLookup(pool)
	source := pgcopy.NewSource(pool, lookup, cfg.query)

	srcColumns, err := source.Columns(ctx)
	if err != nil {
		return fmt.Errorf("deriving schema: %w", err)
	}
	defer source.Close()

	columns, err := pg2arrow.DeriveColumns(srcColumns)
	if err != nil {
		return fmt.Errorf("mapping source columns to Arrow types: %w", err)
	}

	var writerLogger *zap.Logger
	if cfg.progress {
		writerLogger = logger
	}
	w, err := pg2arrow.Create(cfg.output, columns, cfg.segmentSize, writerLogger)
	if err != nil {
		return fmt.Errorf("creating %s: %w", cfg.output, err)
	}

	var rowCount int64
	for {
		values, ok, err := source.Next(ctx)
		if err != nil {
			return fmt.Errorf("reading row %d: %w", rowCount, err)
		}
		if !ok {
			break
		}
		if err := w.AppendRow(values); err != nil {
			return fmt.Errorf("appending row %d: %w", rowCount, err)
		}
		rowCount++
	}

	if err := w.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", cfg.output, err)
	}
	logger.Info("wrote Arrow file", zap.String("path", cfg.output), zap.Int64("rows", rowCount))
	return nil
}
