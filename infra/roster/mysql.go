package roster

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"github.com/transitio/fleetcoord/core/model"
	coreroster "github.com/transitio/fleetcoord/core/roster"
)

// Config defines the MySQL connection for the bus/seat roster owned by
// the surrounding CRUD layer.
type Config struct {
	Enabled  bool   `json:"enabled"`
	User     string `json:"user"`
	Password string `json:"password"`
	Host     string `json:"host"`
	Port     string `json:"port"`
	Database string `json:"database"`
}

// Open connects to MySQL and verifies the connection.
func Open(cfg Config) (*sql.DB, error) {
	auth := cfg.User
	if cfg.Password != "" {
		auth = fmt.Sprintf("%s:%s", cfg.User, cfg.Password)
	}
	// parseTime=true -> DATETIME -> time.Time | loc=UTC keeps times consistent
	dsn := fmt.Sprintf("%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=true&loc=UTC",
		auth, cfg.Host, cfg.Port, cfg.Database)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return db, nil
}

// Load reads the full bus roster into an immutable in-memory snapshot.
// The coordinator never writes roster data; changes made by the CRUD
// layer are picked up on restart.
func Load(ctx context.Context, db *sql.DB) (*coreroster.Static, error) {
	const busQuery = `SELECT id, owner_id, driver_id FROM buses WHERE active = 1`
	rows, err := db.QueryContext(ctx, busQuery)
	if err != nil {
		return nil, fmt.Errorf("query buses: %w", err)
	}
	var buses []model.BusInfo
	byID := make(map[string]int)
	for rows.Next() {
		var b model.BusInfo
		var driver sql.NullString
		if err := rows.Scan(&b.ID, &b.OwnerID, &driver); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan bus: %w", err)
		}
		b.DriverID = driver.String
		byID[b.ID] = len(buses)
		buses = append(buses, b)
	}
	// Close does not report iteration failures; without this check a
	// connection dropped mid-scan would pass off a truncated roster as
	// the whole fleet.
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate buses: %w", err)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}

	const seatQuery = `SELECT bus_id, seat_number, category FROM bus_seats ORDER BY bus_id, seat_number`
	rows, err = db.QueryContext(ctx, seatQuery)
	if err != nil {
		return nil, fmt.Errorf("query seats: %w", err)
	}
	for rows.Next() {
		var busID string
		var spec model.SeatSpec
		var category sql.NullString
		if err := rows.Scan(&busID, &spec.Number, &category); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan seat: %w", err)
		}
		spec.Category = category.String
		idx, ok := byID[busID]
		if !ok {
			// Seat rows for inactive buses are skipped.
			continue
		}
		buses[idx].Seats = append(buses[idx].Seats, spec)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate seats: %w", err)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}

	return coreroster.NewStatic(buses), nil
}
