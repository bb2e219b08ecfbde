// Package ldcontext provides a persistent, SQL-backed cache of remote JSON-LD
// context documents. A ContextStore is itself a jsonld.DocumentLoader: it
// serves cached documents and fetches missing ones from the next loader.
package ldcontext

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"

	"github.com/twinfer/ldcontext/jsonld"
)

// Counter for generating unique in-memory database names
var inMemoryDBCounter atomic.Uint64

// ErrNotCached is returned by LoadDocument when a document is not cached
// and the store has no next loader to fetch it from.
var ErrNotCached = errors.New("context document not cached")

// ContextStore caches remote context documents in a single 'contexts' table
// keyed by the requested URL. Documents are stored as JSONB.
type ContextStore struct {
	db *sql.DB
	// ownsDB is true when the store opened db and must close it.
	ownsDB bool
	// dialect handles SQL syntax differences between databases.
	dialect dialect

	next    jsonld.DocumentLoader
	ttl     time.Duration
	now     func() time.Time
	logger  *slog.Logger
	metrics *storeMetrics

	// Prepared statements for performance
	upsertStmt *sql.Stmt
	getStmt    *sql.Stmt
	deleteStmt *sql.Stmt
}

// Verify that ContextStore can be used as a document loader.
var _ jsonld.DocumentLoader = (*ContextStore)(nil)

// entry is the exported form of one cached document.
type entry struct {
	URL         string         `json:"url"`
	DocumentURL string         `json:"documentUrl,omitempty"`
	ContextURL  string         `json:"contextUrl,omitempty"`
	FetchedAt   int64          `json:"fetchedAt"`
	Document    jsontext.Value `json:"document"`
}

// newContextStore builds a store over db and prepares its statements.
func newContextStore(db *sql.DB, ownsDB bool, d dialect, cfg *config) (*ContextStore, error) {
	metrics, err := newStoreMetrics(cfg.registerer)
	if err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}
	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.now
	if now == nil {
		now = time.Now
	}

	s := &ContextStore{
		db:      db,
		ownsDB:  ownsDB,
		dialect: d,
		next:    cfg.loader,
		ttl:     cfg.ttl,
		now:     now,
		logger:  logger,
		metrics: metrics,
	}
	if err := s.initSchemaAndStatements(); err != nil {
		s.closeStatements()
		return nil, err
	}
	return s, nil
}

// initSchemaAndStatements creates the table and prepared statements.
func (s *ContextStore) initSchemaAndStatements() error {
	if _, err := s.db.Exec(s.dialect.createTableSQL()); err != nil {
		return fmt.Errorf("failed to create contexts table: %w", err)
	}

	var err error
	if s.upsertStmt, err = s.db.Prepare(s.dialect.upsertSQL()); err != nil {
		return fmt.Errorf("failed to prepare upsert statement: %w", err)
	}
	if s.getStmt, err = s.db.Prepare(s.dialect.getSQL()); err != nil {
		return fmt.Errorf("failed to prepare get statement: %w", err)
	}
	if s.deleteStmt, err = s.db.Prepare(s.dialect.deleteSQL()); err != nil {
		return fmt.Errorf("failed to prepare delete statement: %w", err)
	}
	return nil
}

// Get returns the cached document for url. The boolean is false when the
// document is not cached.
func (s *ContextStore) Get(ctx context.Context, url string) (*jsonld.RemoteDocument, bool, error) {
	rd, _, ok, err := s.get(ctx, url)
	return rd, ok, err
}

func (s *ContextStore) get(ctx context.Context, url string) (*jsonld.RemoteDocument, time.Time, bool, error) {
	var (
		documentURL, contextURL, docJSON string
		fetchedAt                        int64
	)
	err := s.getStmt.QueryRowContext(ctx, url).Scan(&documentURL, &contextURL, &docJSON, &fetchedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, time.Time{}, false, nil
	}
	if err != nil {
		return nil, time.Time{}, false, fmt.Errorf("failed to query context %q: %w", url, err)
	}

	var doc any
	if err := json.Unmarshal([]byte(docJSON), &doc); err != nil {
		return nil, time.Time{}, false, fmt.Errorf("failed to decode cached context %q: %w", url, err)
	}
	return &jsonld.RemoteDocument{
		DocumentURL: documentURL,
		Document:    doc,
		ContextURL:  contextURL,
	}, time.UnixMilli(fetchedAt), true, nil
}

// Put stores rd under url, replacing any cached document.
func (s *ContextStore) Put(ctx context.Context, url string, rd *jsonld.RemoteDocument) error {
	row, err := s.toEntry(url, rd)
	if err != nil {
		return err
	}
	if _, err := s.upsertStmt.ExecContext(ctx, row.URL, row.DocumentURL, row.ContextURL, string(row.Document), row.FetchedAt); err != nil {
		return fmt.Errorf("failed to store context %q: %w", url, err)
	}
	return nil
}

// toEntry encodes rd for storage, stamped with the current time.
func (s *ContextStore) toEntry(url string, rd *jsonld.RemoteDocument) (entry, error) {
	if rd == nil {
		return entry{}, fmt.Errorf("nil document for %q", url)
	}
	doc, err := json.Marshal(rd.Document, json.Deterministic(true))
	if err != nil {
		return entry{}, fmt.Errorf("failed to encode context %q: %w", url, err)
	}
	documentURL := rd.DocumentURL
	if documentURL == "" {
		documentURL = url
	}
	return entry{
		URL:         url,
		DocumentURL: documentURL,
		ContextURL:  rd.ContextURL,
		FetchedAt:   s.now().UnixMilli(),
		Document:    doc,
	}, nil
}

// Delete removes the cached document for url and reports whether it was present.
func (s *ContextStore) Delete(ctx context.Context, url string) (bool, error) {
	res, err := s.deleteStmt.ExecContext(ctx, url)
	if err != nil {
		return false, fmt.Errorf("failed to delete context %q: %w", url, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected after delete: %w", err)
	}
	return n > 0, nil
}

// URLs returns the cached URLs in sorted order.
func (s *ContextStore) URLs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.urlsSQL())
	if err != nil {
		return nil, fmt.Errorf("failed to list contexts: %w", err)
	}
	defer rows.Close()

	var urls []string
	for rows.Next() {
		var url string
		if err := rows.Scan(&url); err != nil {
			return nil, fmt.Errorf("failed to scan url row: %w", err)
		}
		urls = append(urls, url)
	}
	return urls, rows.Err()
}

// Len returns the number of cached documents.
func (s *ContextStore) Len(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, s.dialect.countSQL()).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count contexts: %w", err)
	}
	return count, nil
}

// LoadDocument implements jsonld.DocumentLoader. Cached documents younger
// than the configured TTL are served from the database; anything else is
// fetched from the next loader and written back. A failed write-back is
// logged and does not fail the load.
func (s *ContextStore) LoadDocument(ctx context.Context, url string) (*jsonld.RemoteDocument, error) {
	rd, fetchedAt, ok, err := s.get(ctx, url)
	switch {
	case err != nil:
		s.metrics.lookups.WithLabelValues(resultError).Inc()
		if s.next == nil {
			return nil, err
		}
		s.logger.Warn("context cache lookup failed, fetching", "url", url, "error", err)
	case ok && (s.ttl <= 0 || s.now().Sub(fetchedAt) < s.ttl):
		s.metrics.lookups.WithLabelValues(resultHit).Inc()
		return rd, nil
	case ok:
		s.metrics.lookups.WithLabelValues(resultStale).Inc()
		s.logger.Debug("cached context expired", "url", url, "fetched_at", fetchedAt)
	default:
		s.metrics.lookups.WithLabelValues(resultMiss).Inc()
		s.logger.Debug("context not cached", "url", url)
	}

	if s.next == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotCached, url)
	}

	start := s.now()
	fetched, err := s.next.LoadDocument(ctx, url)
	s.metrics.fetchSeconds.Observe(s.now().Sub(start).Seconds())
	if err != nil {
		s.metrics.fetches.WithLabelValues("error").Inc()
		return nil, err
	}
	s.metrics.fetches.WithLabelValues("ok").Inc()

	if err := s.Put(ctx, url, fetched); err != nil {
		s.logger.Warn("failed to cache context", "url", url, "error", err)
	}
	return fetched, nil
}

// WriteTo writes all cached documents to w as a JSON array in URL order.
// It implements the io.WriterTo interface.
// Documents are streamed directly to the writer without intermediate buffering.
func (s *ContextStore) WriteTo(w io.Writer) (int64, error) {
	// Wrap writer to count bytes
	cw := &countingWriter{w: w}
	enc := jsontext.NewEncoder(cw)

	if err := enc.WriteToken(jsontext.BeginArray); err != nil {
		return cw.count, err
	}

	rows, err := s.db.Query(s.dialect.dumpSQL())
	if err != nil {
		return cw.count, fmt.Errorf("failed to query contexts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var e entry
		var docJSON string
		if err := rows.Scan(&e.URL, &e.DocumentURL, &e.ContextURL, &docJSON, &e.FetchedAt); err != nil {
			return cw.count, fmt.Errorf("failed to scan context row: %w", err)
		}
		e.Document = jsontext.Value(docJSON)
		if err := json.MarshalEncode(enc, e); err != nil {
			return cw.count, fmt.Errorf("failed to write context %q: %w", e.URL, err)
		}
	}
	if err := rows.Err(); err != nil {
		return cw.count, fmt.Errorf("failed to iterate contexts: %w", err)
	}

	if err := enc.WriteToken(jsontext.EndArray); err != nil {
		return cw.count, err
	}
	return cw.count, nil
}

// ReadFrom reads documents in the format produced by WriteTo and upserts
// them in batches. It implements the io.ReaderFrom interface.
func (s *ContextStore) ReadFrom(r io.Reader) (int64, error) {
	// Wrap reader to count bytes read
	cr := &countingReader{r: r}
	dec := jsontext.NewDecoder(cr)

	tok, err := dec.ReadToken()
	if err != nil {
		return cr.count, fmt.Errorf("failed to read opening token: %w", err)
	}
	if tok.Kind() != '[' {
		return cr.count, fmt.Errorf("expected JSON array start '[', got %c", tok.Kind())
	}

	const batchSize = 200
	var batch []entry

	for dec.PeekKind() != ']' {
		var e entry
		if err := json.UnmarshalDecode(dec, &e); err != nil {
			return cr.count, fmt.Errorf("failed to unmarshal context from stream: %w", err)
		}
		if e.URL == "" {
			return cr.count, fmt.Errorf("context entry without url")
		}
		if len(e.Document) == 0 {
			return cr.count, fmt.Errorf("context %q has no document", e.URL)
		}
		if e.DocumentURL == "" {
			e.DocumentURL = e.URL
		}
		batch = append(batch, e)

		if len(batch) >= batchSize {
			if err := s.batchUpsert(batch); err != nil {
				return cr.count, fmt.Errorf("failed to insert batch: %w", err)
			}
			batch = batch[:0]
		}
	}

	if len(batch) > 0 {
		if err := s.batchUpsert(batch); err != nil {
			return cr.count, fmt.Errorf("failed to insert final batch: %w", err)
		}
	}

	tok, err = dec.ReadToken()
	if err != nil {
		return cr.count, fmt.Errorf("failed to read closing token: %w", err)
	}
	if tok.Kind() != ']' {
		return cr.count, fmt.Errorf("expected JSON array end ']', got %c", tok.Kind())
	}
	return cr.count, nil
}

// batchUpsert writes entries with one multi-row statement inside a transaction.
func (s *ContextStore) batchUpsert(entries []entry) error {
	// Later duplicates win, matching sequential Put calls.
	index := make(map[string]int, len(entries))
	unique := make([]entry, 0, len(entries))
	for _, e := range entries {
		if i, ok := index[e.URL]; ok {
			unique[i] = e
			continue
		}
		index[e.URL] = len(unique)
		unique = append(unique, e)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() // Rollback is a no-op if Commit succeeds

	params := make([]any, 0, len(unique)*upsertColumns)
	for _, e := range unique {
		params = append(params, e.URL, e.DocumentURL, e.ContextURL, string(e.Document), e.FetchedAt)
	}
	if _, err := tx.Exec(s.dialect.batchUpsertSQL(len(unique)), params...); err != nil {
		return fmt.Errorf("failed to execute batch upsert: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// countingWriter wraps an io.Writer and counts bytes written.
type countingWriter struct {
	w     io.Writer
	count int64
}

func (cw *countingWriter) Write(p []byte) (n int, err error) {
	n, err = cw.w.Write(p)
	cw.count += int64(n)
	return n, err
}

// countingReader wraps an io.Reader and counts bytes read.
type countingReader struct {
	r     io.Reader
	count int64
}

func (cr *countingReader) Read(p []byte) (n int, err error) {
	n, err = cr.r.Read(p)
	cr.count += int64(n)
	return n, err
}

func (s *ContextStore) closeStatements() {
	for _, stmt := range []*sql.Stmt{s.upsertStmt, s.getStmt, s.deleteStmt} {
		if stmt != nil {
			stmt.Close()
		}
	}
}

// Close releases the prepared statements and, if the store opened it, the
// database connection.
func (s *ContextStore) Close() error {
	s.closeStatements()
	if s.ownsDB {
		return s.db.Close()
	}
	return nil
}
