package database

import (
	"context"

	"github.com/anicoll/gizwits-integration/internal/pkg/model"
	"github.com/anicoll/gizwits-integration/internal/pkg/publisher"
)

func (db *Database) Write(ctx context.Context, changes []publisher.Change) error {
	tx, err := db.conn.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, change := range changes {
		if _, err := tx.Exec(ctx, `
			INSERT INTO Attributes (timeStamp, did, slug, value, online)
			VALUES ($1, $2, $3, $4, $5)
		`, change.Timestamp, change.DeviceID, change.Slug, change.Value.String(), change.Online); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func (db *Database) RegisterDevice(device *model.Device) error {
	_, err := db.conn.Exec(context.Background(), `
		INSERT INTO Devices (did, alias, product_name, mac, host)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (did) DO UPDATE SET alias = EXCLUDED.alias, host = EXCLUDED.host;`,
		device.ID, device.Alias, device.ProductName, device.MAC, device.Host)
	if err != nil {
		return err
	}

	return nil
}
