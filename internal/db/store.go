package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carrierdesk/backend/internal/models"
)

var (
	ErrLoadNotFound     = errors.New("load not found")
	ErrLoadNotAvailable = errors.New("load not available")
)

const maxSearchResults = 10

type Store struct {
	Pool *pgxpool.Pool
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &Store{Pool: pool}, nil
}

func (s *Store) Close() {
	s.Pool.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.Pool.Ping(ctx)
}

func (s *Store) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

const loadColumns = `load_id, origin, destination, pickup_datetime, delivery_datetime,
	equipment_type, loadboard_rate, notes, weight, commodity_type, num_of_pieces,
	miles, dimensions, status, booked_mc_number, booked_rate, booked_at, created_at, updated_at`

func scanLoad(row pgx.Row) (models.Load, error) {
	var l models.Load
	err := row.Scan(
		&l.LoadID, &l.Origin, &l.Destination, &l.PickupDatetime, &l.DeliveryDatetime,
		&l.EquipmentType, &l.LoadboardRate, &l.Notes, &l.Weight, &l.CommodityType,
		&l.NumOfPieces, &l.Miles, &l.Dimensions, &l.Status, &l.BookedMCNumber,
		&l.BookedRate, &l.BookedAt, &l.CreatedAt, &l.UpdatedAt,
	)
	return l, err
}

// SearchLoads returns available loads matching the criteria, cheapest
// first so the voice agent reads them out in a stable order.
func (s *Store) SearchLoads(ctx context.Context, c models.SearchCriteria) ([]models.Load, error) {
	query := `SELECT ` + loadColumns + ` FROM loads`
	args := []any{string(models.LoadAvailable)}
	wheres := []string{"status = $1"}

	if c.Origin != "" {
		args = append(args, "%"+c.Origin+"%")
		wheres = append(wheres, fmt.Sprintf("origin ILIKE $%d", len(args)))
	}
	if c.Destination != "" {
		args = append(args, "%"+c.Destination+"%")
		wheres = append(wheres, fmt.Sprintf("destination ILIKE $%d", len(args)))
	}
	if c.EquipmentType != "" {
		args = append(args, "%"+c.EquipmentType+"%")
		wheres = append(wheres, fmt.Sprintf("equipment_type ILIKE $%d", len(args)))
	}
	if c.MinRate != nil {
		args = append(args, *c.MinRate)
		wheres = append(wheres, fmt.Sprintf("loadboard_rate >= $%d", len(args)))
	}
	if c.MaxRate != nil {
		args = append(args, *c.MaxRate)
		wheres = append(wheres, fmt.Sprintf("loadboard_rate <= $%d", len(args)))
	}

	limit := c.Limit
	if limit <= 0 || limit > maxSearchResults {
		limit = maxSearchResults
	}
	query += " WHERE " + strings.Join(wheres, " AND ")
	query += fmt.Sprintf(" ORDER BY loadboard_rate ASC, load_id ASC LIMIT $%d", len(args)+1)
	args = append(args, limit)

	rows, err := s.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Load
	for rows.Next() {
		l, err := scanLoad(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (s *Store) GetLoad(ctx context.Context, loadID string) (models.Load, error) {
	row := s.Pool.QueryRow(ctx, `SELECT `+loadColumns+` FROM loads WHERE load_id = $1`, loadID)
	l, err := scanLoad(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Load{}, ErrLoadNotFound
		}
		return models.Load{}, err
	}
	return l, nil
}

// TryBook flips a load available → booked with a single conditional
// update, so concurrent attempts on the same load produce exactly one
// winner. The booking audit row commits in the same transaction.
func (s *Store) TryBook(ctx context.Context, loadID, mcNumber string, rate float64) (models.Booking, error) {
	var booking models.Booking
	err := s.WithTx(ctx, func(tx pgx.Tx) error {
		var originalRate float64
		var bookedAt time.Time
		err := tx.QueryRow(ctx, `
			UPDATE loads
			SET status = $1, booked_mc_number = $2, booked_rate = $3, booked_at = NOW(), updated_at = NOW()
			WHERE load_id = $4 AND status = $5
			RETURNING loadboard_rate, booked_at
		`, string(models.LoadBooked), mcNumber, rate, loadID, string(models.LoadAvailable)).Scan(&originalRate, &bookedAt)
		if err != nil {
			if !errors.Is(err, pgx.ErrNoRows) {
				return err
			}
			var exists bool
			if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM loads WHERE load_id = $1)`, loadID).Scan(&exists); err != nil {
				return err
			}
			if !exists {
				return ErrLoadNotFound
			}
			return ErrLoadNotAvailable
		}

		booking = models.Booking{
			ID:           uuid.NewString(),
			LoadID:       loadID,
			MCNumber:     mcNumber,
			AgreedRate:   rate,
			OriginalRate: originalRate,
			BookedAt:     bookedAt,
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO bookings (id, load_id, mc_number, agreed_rate, original_rate, booked_at)
			VALUES ($1,$2,$3,$4,$5,$6)
		`, booking.ID, booking.LoadID, booking.MCNumber, booking.AgreedRate, booking.OriginalRate, booking.BookedAt)
		return err
	})
	if err != nil {
		return models.Booking{}, err
	}
	return booking, nil
}

func (s *Store) InsertCallLog(ctx context.Context, cl models.CallLog) error {
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO call_logs (call_id, mc_number, carrier_name, load_id, outcome, sentiment,
			initial_offer, final_rate, negotiation_rounds, negotiation_history, duration_seconds, transcript, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		ON CONFLICT (call_id) DO UPDATE SET
			mc_number = EXCLUDED.mc_number,
			carrier_name = EXCLUDED.carrier_name,
			load_id = EXCLUDED.load_id,
			outcome = EXCLUDED.outcome,
			sentiment = EXCLUDED.sentiment,
			initial_offer = EXCLUDED.initial_offer,
			final_rate = EXCLUDED.final_rate,
			negotiation_rounds = EXCLUDED.negotiation_rounds,
			negotiation_history = EXCLUDED.negotiation_history,
			duration_seconds = EXCLUDED.duration_seconds,
			transcript = EXCLUDED.transcript
	`, cl.CallID, cl.MCNumber, cl.CarrierName, cl.LoadID, string(cl.Outcome), cl.Sentiment,
		cl.InitialOffer, cl.FinalRate, cl.NegotiationRounds, cl.History, cl.DurationSeconds, cl.Transcript, cl.CreatedAt)
	return err
}

// InsertCallEvent stores a status webhook payload verbatim for audit.
func (s *Store) InsertCallEvent(ctx context.Context, eventType string, payload json.RawMessage) (string, error) {
	id := uuid.NewString()
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO call_events (id, event_type, payload, created_at)
		VALUES ($1,$2,$3,NOW())
	`, id, eventType, payload)
	return id, err
}

func (s *Store) LoadStats(ctx context.Context) (models.LoadStats, error) {
	var stats models.LoadStats

	rows, err := s.Pool.Query(ctx, `
		SELECT status, COUNT(*), COALESCE(AVG(loadboard_rate), 0)
		FROM loads GROUP BY status ORDER BY status
	`)
	if err != nil {
		return stats, err
	}
	defer rows.Close()
	for rows.Next() {
		var g models.LoadStatusGroup
		if err := rows.Scan(&g.Status, &g.Count, &g.AvgRate); err != nil {
			return stats, err
		}
		stats.TotalLoads += g.Count
		stats.StatusBreakdown = append(stats.StatusBreakdown, g)
	}
	if err := rows.Err(); err != nil {
		return stats, err
	}

	err = s.Pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM loads
		WHERE status = $1 AND booked_at >= date_trunc('day', NOW())
	`, string(models.LoadBooked)).Scan(&stats.BookedToday)
	return stats, err
}

// InsertLoads bulk-inserts seed loads.
func (s *Store) InsertLoads(ctx context.Context, loads []models.Load) (int64, error) {
	rows := make([][]any, 0, len(loads))
	for _, l := range loads {
		rows = append(rows, []any{
			l.LoadID, l.Origin, l.Destination, l.PickupDatetime, l.DeliveryDatetime,
			l.EquipmentType, l.LoadboardRate, l.Notes, l.Weight, l.CommodityType,
			l.NumOfPieces, l.Miles, l.Dimensions, string(l.Status), l.CreatedAt, l.UpdatedAt,
		})
	}
	return s.Pool.CopyFrom(ctx, pgx.Identifier{"loads"},
		[]string{"load_id", "origin", "destination", "pickup_datetime", "delivery_datetime",
			"equipment_type", "loadboard_rate", "notes", "weight", "commodity_type",
			"num_of_pieces", "miles", "dimensions", "status", "created_at", "updated_at"},
		pgx.CopyFromRows(rows))
}
