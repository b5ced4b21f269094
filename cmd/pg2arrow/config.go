package main

import (
	"fmt"

	"github.com/docopt/docopt.go"
)

const usage = `pg2arrow: dump a PostgreSQL query result as an Apache Arrow IPC File.

Usage:
  pg2arrow dump -d CONNSTRING -c QUERY -o OUTPUT [--segment-size=<bytes>] [--progress]
  pg2arrow describe FILE
  pg2arrow (-h | --help)
  pg2arrow --version

Options:
  -h --help                     Show this screen.
  --version                     Show version.
  -d CONNSTRING                 PostgreSQL connection string.
  -c QUERY                      SQL query to execute.
  -o OUTPUT                     Output Arrow file path.
  --segment-size=<bytes>        RecordBatch flush threshold in bytes [default: 67108864].
  --progress                    Log progress every RecordBatch flush.
`

// config holds the parsed CLI arguments for both subcommands.
type config struct {
	describe bool

	connString  string
	query       string
	output      string
	segmentSize int
	progress    bool

	describeFile string
}

func parseConfig(argv []string) (*config, error) {
	arguments, err := docopt.ParseArgs(usage, argv, "pg2arrow 1.0.0")
	if err != nil {
		return nil, fmt.Errorf("parsing arguments: %w", err)
	}

	cfg := &config{}
	if v, _ := arguments.Bool("describe"); v {
		cfg.describe = true
		cfg.describeFile, _ = arguments.String("FILE")
		return cfg, nil
	}

	cfg.connString, _ = arguments.String("-d")
	cfg.query, _ = arguments.String("-c")
	cfg.output, _ = arguments.String("-o")
	cfg.progress, _ = arguments.Bool("--progress")

	segmentSize, err := arguments.Int("--segment-size")
	if err != nil {
		return nil, fmt.Errorf("parsing --segment-size: %w", err)
	}
	cfg.segmentSize = segmentSize
	return cfg, nil
}
