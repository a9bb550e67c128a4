package observability

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// StartSpan starts a new span from context
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return otel.Tracer(instrumentationName).Start(ctx, name, opts...)
}

// dbSystem is reported on database spans; set once at startup
var dbSystem = "sqlite"

// SetDBSystem records which database driver spans should report
func SetDBSystem(system string) {
	dbSystem = system
}

// StartDBSpan starts a span for database operations
func StartDBSpan(ctx context.Context, operation, table string) (context.Context, trace.Span) {
	return StartSpan(ctx, fmt.Sprintf("DB %s %s", operation, table),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", dbSystem),
			attribute.String("db.operation", operation),
			attribute.String("db.sql.table", table),
		),
	)
}

// StartServiceSpan starts a span for service operations
func StartServiceSpan(ctx context.Context, service, operation string) (context.Context, trace.Span) {
	return StartSpan(ctx, fmt.Sprintf("%s.%s", service, operation),
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("service.component", service),
			attribute.String("service.operation", operation),
		),
	)
}

// StartAPISpan starts a client span for a call to the Polish Peaks API
func StartAPISpan(ctx context.Context, method, path string) (context.Context, trace.Span) {
	return StartSpan(ctx, fmt.Sprintf("API %s %s", method, path),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.method", method),
			attribute.String("http.target", path),
		),
	)
}

// RecordError records an error on the span
func RecordError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// SetSuccess marks the span as successful
func SetSuccess(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}

// DatabaseMetrics holds session store metrics
type DatabaseMetrics struct {
	queryDuration metric.Float64Histogram
	errorCount    metric.Int64Counter
}

// NewDatabaseMetrics creates database metrics instruments. Open and in-use
// connections are reported from db's pool statistics.
func NewDatabaseMetrics(db *sql.DB) (*DatabaseMetrics, error) {
	meter := otel.Meter(instrumentationName)

	queryDuration, err := meter.Float64Histogram(
		"db.query.duration",
		metric.WithDescription("Database query duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	errorCount, err := meter.Int64Counter(
		"db.error.count",
		metric.WithDescription("Total number of database errors"),
		metric.WithUnit("{errors}"),
	)
	if err != nil {
		return nil, err
	}

	_, err = meter.Int64ObservableGauge(
		"db.connection.count",
		metric.WithDescription("Open database connections by state"),
		metric.WithUnit("{connections}"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			stats := db.Stats()
			o.Observe(int64(stats.InUse), metric.WithAttributes(attribute.String("state", "in_use")))
			o.Observe(int64(stats.Idle), metric.WithAttributes(attribute.String("state", "idle")))
			return nil
		}),
	)
	if err != nil {
		return nil, err
	}

	return &DatabaseMetrics{
		queryDuration: queryDuration,
		errorCount:    errorCount,
	}, nil
}

// RecordQuery records the duration and outcome of one statement
func (m *DatabaseMetrics) RecordQuery(ctx context.Context, kind string, duration time.Duration, err error) {
	attrs := metric.WithAttributes(
		attribute.String("db.system", dbSystem),
		attribute.String("db.operation", kind),
	)
	m.queryDuration.Record(ctx, float64(duration.Milliseconds()), attrs)
	if err != nil {
		m.errorCount.Add(ctx, 1, attrs)
	}
}

// TraceDB wraps sql.DB with a span and metrics per statement. It satisfies
// the repositories' DBTX interface.
type TraceDB struct {
	db      *sql.DB
	metrics *DatabaseMetrics
}

// NewTraceDB creates a traced database wrapper
func NewTraceDB(db *sql.DB) (*TraceDB, error) {
	metrics, err := NewDatabaseMetrics(db)
	if err != nil {
		return nil, err
	}
	return &TraceDB{db: db, metrics: metrics}, nil
}

func (t *TraceDB) start(ctx context.Context, kind, query string) (context.Context, trace.Span) {
	return StartSpan(ctx, "DB "+kind,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", dbSystem),
			attribute.String("db.statement", truncateQuery(query)),
		),
	)
}

func (t *TraceDB) finish(ctx context.Context, span trace.Span, kind string, start time.Time, err error) {
	duration := time.Since(start)
	t.metrics.RecordQuery(ctx, kind, duration, err)
	if err != nil {
		RecordError(span, err)
	} else {
		SetSuccess(span)
	}
	span.SetAttributes(attribute.Int64("db.query_duration_ms", duration.Milliseconds()))
}

// QueryContext executes a query with tracing
func (t *TraceDB) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	ctx, span := t.start(ctx, "query", query)
	defer span.End()

	start := time.Now()
	rows, err := t.db.QueryContext(ctx, query, args...)
	t.finish(ctx, span, "query", start, err)
	return rows, err
}

// ExecContext executes a statement with tracing
func (t *TraceDB) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	ctx, span := t.start(ctx, "exec", query)
	defer span.End()

	start := time.Now()
	result, err := t.db.ExecContext(ctx, query, args...)
	t.finish(ctx, span, "exec", start, err)
	if err == nil {
		if n, raErr := result.RowsAffected(); raErr == nil {
			span.SetAttributes(attribute.Int64("db.rows_affected", n))
		}
	}
	return result, err
}

// QueryRowContext executes a single-row query. Errors surface on Scan, so
// the span only covers sending the query.
func (t *TraceDB) QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row {
	ctx, span := t.start(ctx, "query_row", query)
	defer span.End()

	start := time.Now()
	row := t.db.QueryRowContext(ctx, query, args...)
	t.finish(ctx, span, "query_row", start, row.Err())
	return row
}

// DB returns the underlying database connection
func (t *TraceDB) DB() *sql.DB {
	return t.db
}

func truncateQuery(query string) string {
	if len(query) > 500 {
		return query[:500] + "..."
	}
	return query
}

// WizardMetrics holds upload wizard and account metrics
type WizardMetrics struct {
	photoUploads  metric.Int64Counter
	metadataReads metric.Int64Counter
	peakLookups   metric.Int64Counter
	authAttempts  metric.Int64Counter
}

// NewWizardMetrics creates wizard metrics instruments
func NewWizardMetrics() (*WizardMetrics, error) {
	meter := otel.Meter(instrumentationName)

	photoUploads, err := meter.Int64Counter(
		"polishpeaks.photo.uploads",
		metric.WithDescription("Total number of summit photo uploads"),
		metric.WithUnit("{uploads}"),
	)
	if err != nil {
		return nil, err
	}

	metadataReads, err := meter.Int64Counter(
		"polishpeaks.metadata.extractions",
		metric.WithDescription("Total number of photo metadata extractions"),
		metric.WithUnit("{extractions}"),
	)
	if err != nil {
		return nil, err
	}

	peakLookups, err := meter.Int64Counter(
		"polishpeaks.peak.lookups",
		metric.WithDescription("Total number of nearby peak lookups"),
		metric.WithUnit("{lookups}"),
	)
	if err != nil {
		return nil, err
	}

	authAttempts, err := meter.Int64Counter(
		"polishpeaks.auth.attempts",
		metric.WithDescription("Total number of authentication attempts"),
		metric.WithUnit("{attempts}"),
	)
	if err != nil {
		return nil, err
	}

	return &WizardMetrics{
		photoUploads:  photoUploads,
		metadataReads: metadataReads,
		peakLookups:   peakLookups,
		authAttempts:  authAttempts,
	}, nil
}

// RecordPhotoUpload records a summit photo upload
func (m *WizardMetrics) RecordPhotoUpload(ctx context.Context, withPeak bool, success bool) {
	if m == nil {
		return
	}
	m.photoUploads.Add(ctx, 1, metric.WithAttributes(
		attribute.Bool("with_peak", withPeak),
		attribute.Bool("success", success),
	))
}

// RecordMetadataExtraction records a metadata read and whether it found GPS data
func (m *WizardMetrics) RecordMetadataExtraction(ctx context.Context, format string, hasLocation bool) {
	if m == nil {
		return
	}
	m.metadataReads.Add(ctx, 1, metric.WithAttributes(
		attribute.String("format", format),
		attribute.Bool("has_location", hasLocation),
	))
}

// RecordPeakLookup records a nearby peak search
func (m *WizardMetrics) RecordPeakLookup(ctx context.Context, cacheHit bool, results int) {
	if m == nil {
		return
	}
	m.peakLookups.Add(ctx, 1, metric.WithAttributes(
		attribute.Bool("cache_hit", cacheHit),
		attribute.Int("results", results),
	))
}

// RecordAuthAttempt records an authentication attempt
func (m *WizardMetrics) RecordAuthAttempt(ctx context.Context, method string, success bool) {
	if m == nil {
		return
	}
	m.authAttempts.Add(ctx, 1, metric.WithAttributes(
		attribute.String("auth_method", method),
		attribute.Bool("success", success),
	))
}
