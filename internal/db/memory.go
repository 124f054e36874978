package db

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/carrierdesk/backend/internal/models"
)

// MemStore is an in-memory drop-in for Store, used when no DATABASE_URL is
// configured and by tests. Booking keeps the same compare-and-swap
// semantics: the status check and flip happen under one lock.
type MemStore struct {
	mu       sync.Mutex
	loads    map[string]*models.Load
	bookings []models.Booking
	callLogs map[string]models.CallLog
	events   []models.CallEvent
}

func NewMemStore() *MemStore {
	return &MemStore{
		loads:    map[string]*models.Load{},
		callLogs: map[string]models.CallLog{},
	}
}

// NewSeededMemStore returns a MemStore preloaded with demo loads.
func NewSeededMemStore() *MemStore {
	m := NewMemStore()
	for _, l := range SeedLoads(time.Now().UTC()) {
		load := l
		m.loads[load.LoadID] = &load
	}
	return m
}

func (m *MemStore) Ping(ctx context.Context) error { return nil }

func (m *MemStore) Close() {}

func (m *MemStore) PutLoad(l models.Load) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := l
	m.loads[l.LoadID] = &cp
}

func matches(value, needle string) bool {
	if needle == "" {
		return true
	}
	return strings.Contains(strings.ToLower(value), strings.ToLower(needle))
}

func (m *MemStore) SearchLoads(ctx context.Context, c models.SearchCriteria) ([]models.Load, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.Load
	for _, l := range m.loads {
		if l.Status != models.LoadAvailable {
			continue
		}
		if !matches(l.Origin, c.Origin) || !matches(l.Destination, c.Destination) || !matches(l.EquipmentType, c.EquipmentType) {
			continue
		}
		if c.MinRate != nil && l.LoadboardRate < *c.MinRate {
			continue
		}
		if c.MaxRate != nil && l.LoadboardRate > *c.MaxRate {
			continue
		}
		out = append(out, *l)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].LoadboardRate == out[j].LoadboardRate {
			return out[i].LoadID < out[j].LoadID
		}
		return out[i].LoadboardRate < out[j].LoadboardRate
	})

	limit := c.Limit
	if limit <= 0 || limit > maxSearchResults {
		limit = maxSearchResults
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemStore) GetLoad(ctx context.Context, loadID string) (models.Load, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.loads[loadID]
	if !ok {
		return models.Load{}, ErrLoadNotFound
	}
	return *l, nil
}

func (m *MemStore) TryBook(ctx context.Context, loadID, mcNumber string, rate float64) (models.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, ok := m.loads[loadID]
	if !ok {
		return models.Booking{}, ErrLoadNotFound
	}
	if l.Status != models.LoadAvailable {
		return models.Booking{}, ErrLoadNotAvailable
	}

	now := time.Now().UTC()
	l.Status = models.LoadBooked
	l.BookedMCNumber = &mcNumber
	l.BookedRate = &rate
	l.BookedAt = &now
	l.UpdatedAt = now

	booking := models.Booking{
		ID:           uuid.NewString(),
		LoadID:       loadID,
		MCNumber:     mcNumber,
		AgreedRate:   rate,
		OriginalRate: l.LoadboardRate,
		BookedAt:     now,
	}
	m.bookings = append(m.bookings, booking)
	return booking, nil
}

func (m *MemStore) InsertCallLog(ctx context.Context, cl models.CallLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callLogs[cl.CallID] = cl
	return nil
}

func (m *MemStore) InsertCallEvent(ctx context.Context, eventType string, payload json.RawMessage) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev := models.CallEvent{
		ID:        uuid.NewString(),
		EventType: eventType,
		Payload:   append(json.RawMessage(nil), payload...),
		CreatedAt: time.Now().UTC(),
	}
	m.events = append(m.events, ev)
	return ev.ID, nil
}

func (m *MemStore) LoadStats(ctx context.Context) (models.LoadStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var stats models.LoadStats
	sums := map[models.LoadStatus]*models.LoadStatusGroup{}
	rateTotals := map[models.LoadStatus]float64{}
	dayStart := time.Now().UTC().Truncate(24 * time.Hour)

	for _, l := range m.loads {
		g, ok := sums[l.Status]
		if !ok {
			g = &models.LoadStatusGroup{Status: l.Status}
			sums[l.Status] = g
		}
		g.Count++
		rateTotals[l.Status] += l.LoadboardRate
		stats.TotalLoads++
		if l.Status == models.LoadBooked && l.BookedAt != nil && !l.BookedAt.Before(dayStart) {
			stats.BookedToday++
		}
	}

	for status, g := range sums {
		g.AvgRate = rateTotals[status] / float64(g.Count)
		stats.StatusBreakdown = append(stats.StatusBreakdown, *g)
	}
	sort.Slice(stats.StatusBreakdown, func(i, j int) bool {
		return stats.StatusBreakdown[i].Status < stats.StatusBreakdown[j].Status
	})
	return stats, nil
}

// CallLog returns the stored log for a call id, for tests and reporting.
func (m *MemStore) CallLog(callID string) (models.CallLog, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cl, ok := m.callLogs[callID]
	return cl, ok
}

func (m *MemStore) Events() []models.CallEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.CallEvent(nil), m.events...)
}

func (m *MemStore) Bookings() []models.Booking {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.Booking(nil), m.bookings...)
}
