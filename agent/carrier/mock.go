package carrier

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	contractx "github.com/wwexlabs/freightdesk/agent/contract"
)

// MockBackend serves a fixed shipment set for local development and
// demos. It is safe for concurrent use.
type MockBackend struct {
	mu        sync.RWMutex
	shipments map[string]contractx.ShipmentRecord
}

func NewMockBackend() *MockBackend {
	b := &MockBackend{shipments: make(map[string]contractx.ShipmentRecord)}
	for _, rec := range sampleShipments() {
		b.shipments[rec.PRO] = rec
	}
	return b
}

func (b *MockBackend) FetchByPRO(ctx context.Context, pro string) (contractx.ShipmentRecord, bool, error) {
	if err := ctx.Err(); err != nil {
		return contractx.ShipmentRecord{}, false, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	rec, ok := b.shipments[strings.ToUpper(strings.TrimSpace(pro))]
	return rec, ok, nil
}

func (b *MockBackend) Search(ctx context.Context, c contractx.Criteria) ([]contractx.ShipmentRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []contractx.ShipmentRecord
	for _, rec := range b.shipments {
		if matchesCriteria(rec, c) {
			out = append(out, rec)
		}
	}
	// stable candidate ordering for disambiguation lists
	sort.Slice(out, func(i, j int) bool { return out[i].PRO < out[j].PRO })
	return out, nil
}

// Add seeds an extra shipment, mostly for tests.
func (b *MockBackend) Add(rec contractx.ShipmentRecord) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.shipments[rec.PRO] = rec
}

func matchesCriteria(rec contractx.ShipmentRecord, c contractx.Criteria) bool {
	if c.Origin != "" && !containsFold(rec.Origin, c.Origin) {
		return false
	}
	if c.Destination != "" && !containsFold(rec.Destination, c.Destination) {
		return false
	}
	if c.Carrier != "" && !containsFold(rec.Carrier, c.Carrier) {
		return false
	}
	if !c.PickupFrom.IsZero() && rec.PickupDate.Before(c.PickupFrom) {
		return false
	}
	if !c.PickupTo.IsZero() && rec.PickupDate.After(c.PickupTo) {
		return false
	}
	return true
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

func mustTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

func sampleShipments() []contractx.ShipmentRecord {
	return []contractx.ShipmentRecord{
		{
			PRO:               "WE123456789",
			Carrier:           "FedEx Freight",
			Origin:            "Atlanta, GA",
			Destination:       "Miami, FL",
			Status:            contractx.StatusInTransit,
			PickupDate:        mustTime("2024-01-15T00:00:00Z"),
			EstimatedDelivery: mustTime("2024-01-18T00:00:00Z"),
			WeightLbs:         500,
			LastUpdated:       mustTime("2024-01-17T10:15:00Z"),
			Events: []contractx.TrackingEvent{
				{Timestamp: mustTime("2024-01-15T08:00:00Z"), Location: "Atlanta, GA", Description: "Pickup completed", Status: "PICKED_UP"},
				{Timestamp: mustTime("2024-01-15T14:30:00Z"), Location: "Atlanta, GA Terminal", Description: "Arrived at terminal", Status: "IN_TRANSIT"},
				{Timestamp: mustTime("2024-01-16T06:00:00Z"), Location: "Jacksonville, FL Terminal", Description: "Departed origin terminal", Status: "IN_TRANSIT"},
				{Timestamp: mustTime("2024-01-17T10:15:00Z"), Location: "Miami, FL Terminal", Description: "Arrived at destination terminal", Status: "OUT_FOR_DELIVERY"},
			},
		},
		{
			PRO:               "WE987654321",
			Carrier:           "YRC Freight",
			Origin:            "Dallas, TX",
			Destination:       "Houston, TX",
			Status:            contractx.StatusDelayed,
			PickupDate:        mustTime("2024-01-10T00:00:00Z"),
			EstimatedDelivery: mustTime("2024-01-12T00:00:00Z"),
			WeightLbs:         1200,
			LastUpdated:       mustTime("2024-01-11T16:45:00Z"),
			Events: []contractx.TrackingEvent{
				{Timestamp: mustTime("2024-01-10T09:00:00Z"), Location: "Dallas, TX", Description: "Pickup completed", Status: "PICKED_UP"},
				{Timestamp: mustTime("2024-01-11T16:45:00Z"), Location: "Dallas, TX Terminal", Description: "Delayed due to weather", Status: "DELAYED"},
			},
		},
		{
			PRO:               "WE555444333",
			Carrier:           "UPS Freight",
			Origin:            "Memphis, TN",
			Destination:       "Nashville, TN",
			Status:            contractx.StatusDelivered,
			PickupDate:        mustTime("2024-01-14T00:00:00Z"),
			EstimatedDelivery: mustTime("2024-01-15T00:00:00Z"),
			WeightLbs:         85,
			LastUpdated:       mustTime("2024-01-15T09:30:00Z"),
			Events: []contractx.TrackingEvent{
				{Timestamp: mustTime("2024-01-14T11:00:00Z"), Location: "Memphis, TN", Description: "Pickup completed", Status: "PICKED_UP"},
				{Timestamp: mustTime("2024-01-15T09:30:00Z"), Location: "Nashville, TN", Description: "Delivered", Status: "DELIVERED"},
			},
		},
	}
}
