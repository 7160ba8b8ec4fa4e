package steps

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	// database/sql drivers selectable with SQLOutputOptions.Driver
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	rferrors "github.com/vnykmshr/rowflow/pkg/common/errors"
	"github.com/vnykmshr/rowflow/pkg/pipeline"
	"github.com/vnykmshr/rowflow/pkg/row"
	"github.com/vnykmshr/rowflow/pkg/step"
)

const (
	TypeSQLOutput = "sqloutput"

	DriverSQLite   = "sqlite"
	DriverPostgres = "pgx"

	DefaultCommitSize = 100
)

// SQLOutputOptions configures the SQL output.
type SQLOutputOptions struct {
	// Driver is "sqlite" or "pgx".
	Driver string `json:"driver"`
	DSN    string `json:"dsn"`
	Table  string `json:"table"`

	// Columns maps row fields to table columns by position. Defaults to
	// the input field names.
	Columns []string `json:"columns,omitempty"`

	// CommitSize is the number of rows inserted per transaction.
	CommitSize int `json:"commitSize,omitempty"`

	// CreateTable creates the table from the first input schema when it
	// does not exist.
	CreateTable bool `json:"createTable,omitempty"`

	// Truncate empties the table before the first insert.
	Truncate bool `json:"truncate,omitempty"`

	// PingTimeout bounds the connection check in Init.
	PingTimeout time.Duration `json:"pingTimeout,omitempty"`
}

type sqlOutput struct {
	opts SQLOutputOptions
	db   *sql.DB

	schema  *row.Schema
	columns []string
	insert  string
	batch   [][]any
}

// NewSQLOutput creates a table output from the stage options. Rows are
// inserted and then forwarded unchanged to the next stages.
func NewSQLOutput(meta *pipeline.StageMeta) (step.Processor, error) {
	opts := SQLOutputOptions{Driver: DriverSQLite, CommitSize: DefaultCommitSize, PingTimeout: 5 * time.Second}
	if err := meta.DecodeOptions(&opts); err != nil {
		return nil, err
	}
	switch opts.Driver {
	case DriverSQLite, DriverPostgres:
	default:
		return nil, rferrors.NewValidationError("sqloutput", "driver", opts.Driver, "unsupported driver").
			WithHint("use sqlite or pgx")
	}
	if strings.TrimSpace(opts.DSN) == "" {
		return nil, rferrors.NewValidationError("sqloutput", "dsn", opts.DSN, "must not be empty")
	}
	if strings.TrimSpace(opts.Table) == "" {
		return nil, rferrors.NewValidationError("sqloutput", "table", opts.Table, "must not be empty")
	}
	if opts.CommitSize <= 0 {
		opts.CommitSize = DefaultCommitSize
	}
	return &sqlOutput{opts: opts}, nil
}

func (o *sqlOutput) Init(ctx context.Context, sc step.Context) error {
	db, err := sql.Open(o.opts.Driver, o.opts.DSN)
	if err != nil {
		return rferrors.NewStageError(sc.Name(), sc.CopyNr(), rferrors.Resource, fmt.Errorf("open: %w", err))
	}
	pingCtx, cancel := context.WithTimeout(ctx, o.opts.PingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return rferrors.NewStageError(sc.Name(), sc.CopyNr(), rferrors.Resource, fmt.Errorf("ping: %w", err))
	}
	o.db = db
	sc.Logger().Debug("connected", "driver", o.opts.Driver, "table", o.opts.Table)
	return nil
}

func (o *sqlOutput) ProcessRow(ctx context.Context, sc step.Context) (bool, error) {
	r, err := sc.GetRow()
	if err != nil {
		return false, err
	}
	if r == nil {
		return false, o.flush(ctx, sc)
	}

	schema := sc.InputSchema()
	if o.schema == nil {
		if err := o.prepare(ctx, sc, schema); err != nil {
			return false, err
		}
	}
	values := make([]any, len(o.columns))
	copy(values, r)
	o.batch = append(o.batch, values)
	if len(o.batch) >= o.opts.CommitSize {
		if err := o.flush(ctx, sc); err != nil {
			return false, err
		}
	}
	return true, sc.PutRow(schema, r)
}

// prepare fixes the column list from the first schema and runs the
// optional DDL.
func (o *sqlOutput) prepare(ctx context.Context, sc step.Context, schema *row.Schema) error {
	o.schema = schema
	o.columns = o.opts.Columns
	if len(o.columns) == 0 {
		o.columns = schema.Names()
	}
	if len(o.columns) > schema.Len() {
		return rferrors.NewStageError(sc.Name(), sc.CopyNr(), rferrors.Configuration,
			fmt.Errorf("%w: %d columns for %d input fields", rferrors.ErrInvalidConfiguration, len(o.columns), schema.Len()))
	}

	if o.opts.CreateTable {
		if _, err := o.db.ExecContext(ctx, o.createTable(schema)); err != nil {
			return o.resourceErr(sc, "create table", err)
		}
	}
	if o.opts.Truncate {
		if _, err := o.db.ExecContext(ctx, "DELETE FROM "+o.opts.Table); err != nil {
			return o.resourceErr(sc, "truncate", err)
		}
	}

	placeholders := make([]string, len(o.columns))
	for i := range placeholders {
		placeholders[i] = o.placeholder(i)
	}
	o.insert = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		o.opts.Table, strings.Join(o.columns, ", "), strings.Join(placeholders, ", "))
	return nil
}

// flush inserts the pending batch in one transaction.
func (o *sqlOutput) flush(ctx context.Context, sc step.Context) error {
	if len(o.batch) == 0 {
		return nil
	}
	// a stopped run has canceled ctx; finish the batch already accepted
	ctx = context.WithoutCancel(ctx)

	tx, err := o.db.BeginTx(ctx, nil)
	if err != nil {
		return o.resourceErr(sc, "begin", err)
	}
	stmt, err := tx.PrepareContext(ctx, o.insert)
	if err != nil {
		_ = tx.Rollback()
		return o.resourceErr(sc, "prepare insert", err)
	}
	defer stmt.Close()

	for _, values := range o.batch {
		if _, err := stmt.ExecContext(ctx, values...); err != nil {
			_ = tx.Rollback()
			return o.resourceErr(sc, "insert", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return o.resourceErr(sc, "commit", err)
	}
	for range o.batch {
		sc.Counters().IncOutput()
	}
	o.batch = o.batch[:0]
	return nil
}

func (o *sqlOutput) Dispose(sc step.Context) {
	if n := len(o.batch); n > 0 {
		sc.Logger().Warn("discarding uncommitted rows", "rows", n)
		o.batch = nil
	}
}

// Cleanup closes the database once the run is over.
func (o *sqlOutput) Cleanup(sc step.Context) {
	if o.db == nil {
		return
	}
	if err := o.db.Close(); err != nil {
		sc.Logger().Warn("close database", "error", err)
	}
	o.db = nil
}

func (o *sqlOutput) placeholder(i int) string {
	if o.opts.Driver == DriverPostgres {
		return fmt.Sprintf("$%d", i+1)
	}
	return "?"
}

func (o *sqlOutput) createTable(schema *row.Schema) string {
	defs := make([]string, len(o.columns))
	for i, col := range o.columns {
		defs[i] = col + " " + o.columnType(schema.Field(i).Type)
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", o.opts.Table, strings.Join(defs, ", "))
}

func (o *sqlOutput) columnType(t row.ValueType) string {
	pg := o.opts.Driver == DriverPostgres
	switch t {
	case row.TypeInteger:
		return "BIGINT"
	case row.TypeNumber:
		if pg {
			return "DOUBLE PRECISION"
		}
		return "REAL"
	case row.TypeBoolean:
		return "BOOLEAN"
	case row.TypeDate:
		return "TIMESTAMP"
	case row.TypeBinary:
		if pg {
			return "BYTEA"
		}
		return "BLOB"
	}
	return "TEXT"
}

func (o *sqlOutput) resourceErr(sc step.Context, op string, err error) error {
	return rferrors.NewStageError(sc.Name(), sc.CopyNr(), rferrors.Resource, fmt.Errorf("%s on %s: %w", op, o.opts.Table, err))
}
