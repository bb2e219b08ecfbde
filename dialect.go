package ldcontext

import (
	"fmt"
	"strings"
)

// dialect defines an interface for generating database-specific SQL.
type dialect interface {
	// createTableSQL returns the SQL for creating the 'contexts' table.
	createTableSQL() string
	// upsertSQL returns the SQL for inserting or replacing one cached document.
	upsertSQL() string
	// getSQL returns the SQL for reading one cached document by URL.
	getSQL() string
	// deleteSQL returns the SQL for deleting one cached document by URL.
	deleteSQL() string
	// urlsSQL returns the SQL listing all cached URLs in order.
	urlsSQL() string
	// countSQL returns the SQL counting the cached documents.
	countSQL() string
	// dumpSQL returns the SQL reading every cached document in URL order.
	dumpSQL() string
	// batchUpsertSQL builds a multi-row upsert statement for a given number of rows.
	batchUpsertSQL(numRows int) string
}

// Columns written by upsertSQL and batchUpsertSQL, in order.
const upsertColumns = 5

// --- SQLite Dialect ---

type sqliteDialect struct{}

func (d sqliteDialect) createTableSQL() string {
	return `
		CREATE TABLE IF NOT EXISTS contexts (
			url TEXT NOT NULL,
			document_url TEXT NOT NULL,
			context_url TEXT NOT NULL,
			document BLOB NOT NULL,
			fetched_at BIGINT NOT NULL,
			PRIMARY KEY(url)
		) WITHOUT ROWID;
	`
}

func (d sqliteDialect) upsertSQL() string {
	// Use jsonb() to convert JSON text to binary JSONB format
	return `
		INSERT INTO contexts (url, document_url, context_url, document, fetched_at)
		VALUES (?, ?, ?, jsonb(?), ?)
		ON CONFLICT(url) DO UPDATE SET
			document_url = excluded.document_url,
			context_url = excluded.context_url,
			document = excluded.document,
			fetched_at = excluded.fetched_at
	`
}

func (d sqliteDialect) getSQL() string {
	return `SELECT document_url, context_url, json(document), fetched_at FROM contexts WHERE url = ?`
}

func (d sqliteDialect) deleteSQL() string {
	return `DELETE FROM contexts WHERE url = ?`
}

func (d sqliteDialect) urlsSQL() string {
	return `SELECT url FROM contexts ORDER BY url`
}

func (d sqliteDialect) countSQL() string {
	return `SELECT COUNT(*) FROM contexts`
}

func (d sqliteDialect) dumpSQL() string {
	return `SELECT url, document_url, context_url, json(document), fetched_at FROM contexts ORDER BY url`
}

func (d sqliteDialect) batchUpsertSQL(numRows int) string {
	var sb strings.Builder
	sb.WriteString("INSERT INTO contexts (url, document_url, context_url, document, fetched_at) VALUES ")
	for i := 0; i < numRows; i++ {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString("(?,?,?,jsonb(?),?)")
	}
	sb.WriteString(` ON CONFLICT(url) DO UPDATE SET
		document_url = excluded.document_url,
		context_url = excluded.context_url,
		document = excluded.document,
		fetched_at = excluded.fetched_at`)
	return sb.String()
}

// --- PostgreSQL Dialect ---

type postgresDialect struct{}

func (d postgresDialect) createTableSQL() string {
	return `
		CREATE TABLE IF NOT EXISTS contexts (
			url TEXT NOT NULL,
			document_url TEXT NOT NULL,
			context_url TEXT NOT NULL,
			document JSONB NOT NULL,
			fetched_at BIGINT NOT NULL,
			PRIMARY KEY(url)
		);
	`
}

func (d postgresDialect) upsertSQL() string {
	return `
		INSERT INTO contexts (url, document_url, context_url, document, fetched_at)
		VALUES ($1, $2, $3, $4::jsonb, $5)
		ON CONFLICT (url) DO UPDATE SET
			document_url = EXCLUDED.document_url,
			context_url = EXCLUDED.context_url,
			document = EXCLUDED.document,
			fetched_at = EXCLUDED.fetched_at
	`
}

func (d postgresDialect) getSQL() string {
	return `SELECT document_url, context_url, document::text, fetched_at FROM contexts WHERE url = $1`
}

func (d postgresDialect) deleteSQL() string {
	return `DELETE FROM contexts WHERE url = $1`
}

func (d postgresDialect) urlsSQL() string {
	return `SELECT url FROM contexts ORDER BY url`
}

func (d postgresDialect) countSQL() string {
	return `SELECT COUNT(*) FROM contexts`
}

func (d postgresDialect) dumpSQL() string {
	return `SELECT url, document_url, context_url, document::text, fetched_at FROM contexts ORDER BY url`
}

func (d postgresDialect) batchUpsertSQL(numRows int) string {
	var sb strings.Builder
	sb.WriteString("INSERT INTO contexts (url, document_url, context_url, document, fetched_at) VALUES ")
	paramIndex := 1
	for i := 0; i < numRows; i++ {
		if i > 0 {
			sb.WriteString(",")
		}
		// The document placeholder needs a type cast.
		sb.WriteString(fmt.Sprintf("($%d, $%d, $%d, $%d::jsonb, $%d)",
			paramIndex, paramIndex+1, paramIndex+2, paramIndex+3, paramIndex+4))
		paramIndex += upsertColumns
	}
	// PostgreSQL requires specifying the conflict target column(s).
	sb.WriteString(` ON CONFLICT (url) DO UPDATE SET
		document_url = EXCLUDED.document_url,
		context_url = EXCLUDED.context_url,
		document = EXCLUDED.document,
		fetched_at = EXCLUDED.fetched_at`)
	return sb.String()
}
