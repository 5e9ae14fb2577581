package database

import (
	"context"
	"io"
	"time"

	"github.com/jackc/pgx/v5"
)

// Database persists device registrations and attribute change history.
type Database struct {
	conn *pgx.Conn
	io.Closer
}

func NewDatabase(ctx context.Context, conn *pgx.Conn) *Database {
	initialise(ctx, conn)
	return &Database{
		conn: conn,
	}
}

func initialise(ctx context.Context, conn *pgx.Conn) {
	const createTablesSQL = `
CREATE TABLE IF NOT EXISTS Devices (
    did TEXT PRIMARY KEY,
    alias TEXT NOT NULL,
    product_name TEXT NOT NULL,
    mac TEXT NOT NULL,
    host TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS Attributes (
    id SERIAL PRIMARY KEY,
    timeStamp TIMESTAMP WITH TIME ZONE NOT NULL,
    did TEXT NOT NULL,
    slug TEXT NOT NULL,
    value TEXT NOT NULL,
    online BOOLEAN NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_attributes_did ON Attributes (did);
CREATE INDEX IF NOT EXISTS idx_attributes_timestamp ON Attributes (TimeStamp);
`
	if _, err := conn.Exec(ctx, createTablesSQL); err != nil {
		panic(err)
	}
}

func (db *Database) Close() error {
	if db.conn == nil {
		return nil
	}
	return db.conn.Close(context.Background())
}

type Attribute struct {
	Id        int64     `json:"id"`
	TimeStamp time.Time `json:"timestamp"`
	DeviceID  string    `json:"did"`
	Slug      string    `json:"slug"`
	Value     string    `json:"value"`
	Online    bool      `json:"online"`
}

type Attributes []Attribute

// GetLatestAttributes returns the most recent persisted value per device and
// attribute slug.
func (db *Database) GetLatestAttributes(ctx context.Context) (Attributes, error) {
	const query = `
	SELECT DISTINCT ON (did, slug) id, timeStamp, did, slug, value, online
	FROM Attributes
	ORDER BY did, slug, timeStamp DESC;
	`

	rows, err := db.conn.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var attributes Attributes
	for rows.Next() {
		var attribute Attribute
		if err := rows.Scan(&attribute.Id, &attribute.TimeStamp, &attribute.DeviceID, &attribute.Slug, &attribute.Value, &attribute.Online); err != nil {
			return nil, err
		}
		attributes = append(attributes, attribute)
	}

	if err := rows.Err(); err != nil {
		if err == pgx.ErrNoRows {
			return attributes, nil
		}
		return nil, err
	}

	return attributes, nil
}

// Cleanup removes attribute history older than a week.
func (db *Database) Cleanup(ctx context.Context) error {
	if _, err := db.conn.Exec(ctx, "DELETE FROM Attributes WHERE timeStamp < $1", time.Now().AddDate(0, 0, -8)); err != nil {
		return err
	}
	return nil
}
