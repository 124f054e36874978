package db

import (
	"time"

	"github.com/carrierdesk/backend/internal/models"
)

// SeedLoads returns the demo load board used by cmd/seed and the
// in-memory store. Pickup and delivery times are anchored to now so the
// board always looks current.
func SeedLoads(now time.Time) []models.Load {
	mk := func(id, origin, dest, equipment string, rate float64, pickupHours, transitHours int, weight float64, commodity string, pieces int, miles float64, dims string) models.Load {
		pickup := now.Add(time.Duration(pickupHours) * time.Hour)
		return models.Load{
			LoadID:           id,
			Origin:           origin,
			Destination:      dest,
			PickupDatetime:   pickup,
			DeliveryDatetime: pickup.Add(time.Duration(transitHours) * time.Hour),
			EquipmentType:    equipment,
			LoadboardRate:    rate,
			Weight:           weight,
			CommodityType:    commodity,
			NumOfPieces:      pieces,
			Miles:            miles,
			Dimensions:       dims,
			Status:           models.LoadAvailable,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
	}

	return []models.Load{
		mk("LD-1001", "Chicago, IL", "Atlanta, GA", "Dry Van", 2500, 18, 34, 35000, "General Freight", 24, 716, "48x40x48"),
		mk("LD-1002", "Dallas, TX", "Phoenix, AZ", "Reefer", 3100, 24, 20, 41000, "Produce", 30, 1067, "53x102x110"),
		mk("LD-1003", "Los Angeles, CA", "Denver, CO", "Flatbed", 2850, 30, 22, 44000, "Steel Coils", 8, 1016, "48x96x60"),
		mk("LD-1004", "Seattle, WA", "Portland, OR", "Dry Van", 750, 12, 5, 18000, "Packaged Goods", 16, 174, "48x40x48"),
		mk("LD-1005", "Miami, FL", "Charlotte, NC", "Reefer", 2200, 20, 16, 38000, "Frozen Foods", 26, 650, "53x102x110"),
		mk("LD-1006", "Newark, NJ", "Boston, MA", "Dry Van", 980, 10, 6, 22000, "Consumer Electronics", 20, 225, "48x40x48"),
		mk("LD-1007", "Kansas City, MO", "Chicago, IL", "Flatbed", 1450, 28, 10, 43000, "Lumber", 12, 510, "48x96x60"),
		mk("LD-1008", "Houston, TX", "New Orleans, LA", "Tanker", 1900, 36, 8, 45000, "Food Grade Liquid", 1, 350, "n/a"),
		mk("LD-1009", "Atlanta, GA", "Nashville, TN", "Dry Van", 1100, 14, 6, 25000, "Paper Products", 22, 250, "48x40x48"),
		mk("LD-1010", "Phoenix, AZ", "Las Vegas, NV", "Reefer", 1300, 22, 7, 36000, "Dairy", 28, 297, "53x102x110"),
	}
}
