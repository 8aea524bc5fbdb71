package csvload

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"repofs/internal/logging"
)

var log = logging.New("csvload")

// columns lists the target table columns in CSV order.
var columns = []string{
	"date_received",
	"product",
	"sub_product",
	"issue",
	"sub_issue",
	"consumer_complaint_narrative",
	"company_public_response",
	"company",
	"state",
	"zip_code",
	"tags",
	"consumer_consent_provided",
	"submitted_via",
	"date_sent_to_company",
	"company_response_to_consumer",
	"timely_response",
	"consumer_disputed",
	"complaint_id",
}

const createTableTemplate = `CREATE TABLE IF NOT EXISTS %s (
	date_received date,
	product text,
	sub_product text,
	issue text,
	sub_issue text,
	consumer_complaint_narrative text,
	company_public_response text,
	company text,
	state text,
	zip_code text,
	tags text,
	consumer_consent_provided text,
	submitted_via text,
	date_sent_to_company date,
	company_response_to_consumer text,
	timely_response text,
	consumer_disputed text,
	complaint_id integer PRIMARY KEY
)`

// Loader copies complaint rows into PostgreSQL.
type Loader struct {
	pool *pgxpool.Pool
}

// tableIdent builds the schema-qualified identifier for the target
// table.
func tableIdent(schema, table string) pgx.Identifier {
	if schema == "" {
		schema = "public"
	}
	return pgx.Identifier{schema, table}
}

// New connects to the database described by cfg and verifies the
// connection with a ping.
func New(ctx context.Context, cfg *Config) (*Loader, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection config: %w", err)
	}
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.ConnConfig.ConnectTimeout = cfg.ConnectTimeout

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	log.Debug().Str("host", cfg.Host).Str("database", cfg.Database).Msg("connected to postgres")
	return &Loader{pool: pool}, nil
}

// Close releases the connection pool.
func (l *Loader) Close() {
	l.pool.Close()
}

// EnsureTable creates the complaints table if it does not exist.
func (l *Loader) EnsureTable(ctx context.Context, schema, table string) error {
	ident := tableIdent(schema, table).Sanitize()
	if _, err := l.pool.Exec(ctx, fmt.Sprintf(createTableTemplate, ident)); err != nil {
		return fmt.Errorf("creating table %s: %w", ident, err)
	}
	return nil
}

// Truncate empties the complaints table.
func (l *Loader) Truncate(ctx context.Context, schema, table string) error {
	ident := tableIdent(schema, table).Sanitize()
	if _, err := l.pool.Exec(ctx, "TRUNCATE "+ident); err != nil {
		return fmt.Errorf("truncating table %s: %w", ident, err)
	}
	return nil
}

// Count returns the number of rows in the complaints table.
func (l *Loader) Count(ctx context.Context, schema, table string) (int64, error) {
	ident := tableIdent(schema, table).Sanitize()
	var n int64
	if err := l.pool.QueryRow(ctx, "SELECT count(*) FROM "+ident).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting rows in %s: %w", ident, err)
	}
	return n, nil
}

// Load streams the CSV file at path into the given table. The first
// row is treated as a header and skipped. Returns the number of rows
// copied.
func (l *Loader) Load(ctx context.Context, schema, table, path string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = len(columns)

	// Skip the header.
	if _, err := r.Read(); err != nil {
		return 0, fmt.Errorf("reading header of %s: %w", path, err)
	}

	ident := tableIdent(schema, table)
	src := &csvCopySource{reader: r}
	copied, err := l.pool.CopyFrom(ctx, ident, columns, src)
	if err != nil {
		return copied, fmt.Errorf("copying %s into %s: %w", path, ident.Sanitize(), err)
	}

	log.Info().Str("file", path).Str("table", ident.Sanitize()).Int64("rows", copied).Msg("csv load complete")
	return copied, nil
}

// csvCopySource adapts a csv.Reader to the pgx CopyFromSource
// interface, converting fields row by row.
type csvCopySource struct {
	reader *csv.Reader
	row    []any
	err    error
}

func (s *csvCopySource) Next() bool {
	if s.err != nil {
		return false
	}
	record, err := s.reader.Read()
	if err == io.EOF {
		return false
	}
	if err != nil {
		s.err = err
		return false
	}
	s.row, s.err = convertRecord(record)
	return s.err == nil
}

func (s *csvCopySource) Values() ([]any, error) {
	return s.row, s.err
}

func (s *csvCopySource) Err() error {
	return s.err
}

// convertRecord maps CSV fields to typed column values. Empty fields
// become NULL.
func convertRecord(record []string) ([]any, error) {
	row := make([]any, len(record))
	for i, field := range record {
		field = strings.TrimSpace(field)
		if field == "" {
			row[i] = nil
			continue
		}
		switch columns[i] {
		case "date_received", "date_sent_to_company":
			t, err := parseDate(field)
			if err != nil {
				return nil, fmt.Errorf("column %s: %w", columns[i], err)
			}
			row[i] = t
		case "complaint_id":
			id, err := strconv.ParseInt(field, 10, 32)
			if err != nil {
				return nil, fmt.Errorf("column complaint_id: %w", err)
			}
			row[i] = int32(id)
		default:
			row[i] = field
		}
	}
	return row, nil
}

// parseDate accepts the two date layouts seen in complaint exports.
func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	t, err := time.Parse("01/02/2006", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("unrecognized date %q", s)
	}
	return t, nil
}
