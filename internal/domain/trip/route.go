package trip

import (
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/tripshare/service-carpool/internal/domain/geo"
	"github.com/tripshare/service-carpool/internal/platform/domain"
)

const (
	MinRoutePoints = 2
	MaxRoutePoints = 12
	MaxSegments    = 10

	// MaxPinDistanceKm bounds how far a requested pickup/dropoff pin may be
	// from the route point it claims.
	MaxPinDistanceKm = 5.0
)

// RoutePointType marks a point as the route's start, an intermediate stop or its end.
type RoutePointType string

const (
	PointStart RoutePointType = "start"
	PointStop  RoutePointType = "stop"
	PointEnd   RoutePointType = "end"
)

func (t RoutePointType) IsValid() bool {
	return t == PointStart || t == PointStop || t == PointEnd
}

// RoutePoint is an immutable location on a trip's route.
type RoutePoint struct {
	ID             uuid.UUID      `json:"id"`
	TripID         uuid.UUID      `json:"trip_id"`
	OrderIndex     int            `json:"order_index"`
	Type           RoutePointType `json:"type"`
	Lat            float64        `json:"lat"`
	Lng            float64        `json:"lng"`
	DisplayAddress string         `json:"display_address"`
	PlaceID        string         `json:"place_id,omitempty"`
}

// RoutePointInput is the caller's description of a route point.
type RoutePointInput struct {
	OrderIndex     int            `json:"order_index"`
	Type           RoutePointType `json:"type"`
	Lat            float64        `json:"lat"`
	Lng            float64        `json:"lng"`
	DisplayAddress string         `json:"display_address"`
	PlaceID        string         `json:"place_id,omitempty"`
}

// SegmentPriceInput prices the segment starting at route point OrderIndex.
type SegmentPriceInput struct {
	OrderIndex int   `json:"order_index"`
	PriceCents int64 `json:"price_cents"`
}

// BuildRoute validates the caller's route and derives one segment per
// adjacent pair of points. Nothing is returned unless the whole route is valid.
func BuildRoute(tripID uuid.UUID, inputs []RoutePointInput, prices []SegmentPriceInput, currency string) ([]RoutePoint, []*Segment, error) {
	if len(inputs) < MinRoutePoints {
		return nil, nil, domain.NewValidationError("route needs a start and an end point")
	}
	if len(inputs) > MaxRoutePoints {
		return nil, nil, domain.NewValidationError(fmt.Sprintf("route may have at most %d points", MaxRoutePoints))
	}
	if len(inputs)-1 > MaxSegments {
		return nil, nil, domain.NewValidationError(fmt.Sprintf("route may have at most %d segments", MaxSegments))
	}

	ordered := make([]RoutePointInput, len(inputs))
	copy(ordered, inputs)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].OrderIndex < ordered[j].OrderIndex })

	points := make([]RoutePoint, len(ordered))
	for i, in := range ordered {
		if in.OrderIndex != i {
			return nil, nil, domain.NewValidationError("route point indices must be contiguous from 0")
		}
		if !in.Type.IsValid() {
			return nil, nil, domain.NewValidationError(fmt.Sprintf("invalid route point type: %s", in.Type))
		}
		switch {
		case i == 0 && in.Type != PointStart:
			return nil, nil, domain.NewValidationError("first route point must be the start")
		case i == len(ordered)-1 && in.Type != PointEnd:
			return nil, nil, domain.NewValidationError("last route point must be the end")
		case i > 0 && i < len(ordered)-1 && in.Type != PointStop:
			return nil, nil, domain.NewValidationError("intermediate route points must be stops")
		}
		if !geo.IsValidCoordinate(in.Lat, in.Lng) {
			return nil, nil, domain.NewValidationError(fmt.Sprintf("route point %d has invalid coordinates", i))
		}
		points[i] = RoutePoint{
			ID:             uuid.New(),
			TripID:         tripID,
			OrderIndex:     i,
			Type:           in.Type,
			Lat:            in.Lat,
			Lng:            in.Lng,
			DisplayAddress: in.DisplayAddress,
			PlaceID:        in.PlaceID,
		}
	}

	if len(prices) != len(points)-1 {
		return nil, nil, domain.NewValidationError(fmt.Sprintf("expected %d segment prices, got %d", len(points)-1, len(prices)))
	}
	orderedPrices := make([]SegmentPriceInput, len(prices))
	copy(orderedPrices, prices)
	sort.SliceStable(orderedPrices, func(i, j int) bool { return orderedPrices[i].OrderIndex < orderedPrices[j].OrderIndex })

	segments := make([]*Segment, len(orderedPrices))
	for i, p := range orderedPrices {
		if p.OrderIndex != i {
			return nil, nil, domain.NewValidationError("segment prices must cover each segment exactly once")
		}
		if p.PriceCents < 0 {
			return nil, nil, domain.NewValidationError("segment price cannot be negative")
		}
		segments[i] = &Segment{
			id:          uuid.New(),
			tripID:      tripID,
			orderIndex:  i,
			fromPointID: points[i].ID,
			toPointID:   points[i+1].ID,
			priceCents:  p.PriceCents,
			currency:    currency,
			version:     1,
		}
	}

	return points, segments, nil
}

// ValidatePin checks a requested coordinate against the route point it
// claims; label ("pickup", "dropoff") is used in the error message.
func ValidatePin(point RoutePoint, lat, lng float64, label string) error {
	if !geo.IsValidCoordinate(lat, lng) {
		return domain.NewValidationError(fmt.Sprintf("invalid %s coordinates", label))
	}
	if geo.DistanceKm(point.Lat, point.Lng, lat, lng) > MaxPinDistanceKm {
		return domain.NewValidationError(fmt.Sprintf("%s pin too far from route", label))
	}
	return nil
}

// Segment is the stretch between two consecutive route points. bookedSeats is
// the only mutable field and must stay within [0, capacity].
type Segment struct {
	id          uuid.UUID
	tripID      uuid.UUID
	orderIndex  int
	fromPointID uuid.UUID
	toPointID   uuid.UUID
	priceCents  int64
	currency    string
	bookedSeats int
	version     int64
}

// ReconstructSegment rebuilds a Segment from persistence data (no validation).
func ReconstructSegment(
	id, tripID uuid.UUID,
	orderIndex int,
	fromPointID, toPointID uuid.UUID,
	priceCents int64,
	currency string,
	bookedSeats int,
	version int64,
) *Segment {
	return &Segment{
		id:          id,
		tripID:      tripID,
		orderIndex:  orderIndex,
		fromPointID: fromPointID,
		toPointID:   toPointID,
		priceCents:  priceCents,
		currency:    currency,
		bookedSeats: bookedSeats,
		version:     version,
	}
}

func (s *Segment) ID() uuid.UUID { return s.id }
func (s *Segment) TripID() uuid.UUID { return s.tripID }
func (s *Segment) OrderIndex() int { return s.orderIndex }
func (s *Segment) FromPointID() uuid.UUID { return s.fromPointID }
func (s *Segment) ToPointID() uuid.UUID { return s.toPointID }
func (s *Segment) PriceCents() int64 { return s.priceCents }
func (s *Segment) Currency() string { return s.currency }
func (s *Segment) BookedSeats() int { return s.bookedSeats }
func (s *Segment) Version() int64 { return s.version }

// Available returns the seats still free on this segment.
func (s *Segment) Available(capacity int) int {
	if free := capacity - s.bookedSeats; free > 0 {
		return free
	}
	return 0
}

// Reserve takes seats on this segment. It fails without mutating when the
// segment would exceed capacity.
func (s *Segment) Reserve(seats, capacity int) error {
	if seats <= 0 {
		return domain.NewValidationError("seats must be positive")
	}
	if s.bookedSeats+seats > capacity {
		return domain.NewCapacityError()
	}
	s.bookedSeats += seats
	s.version++
	return nil
}

// Release returns seats to this segment, never going below zero.
func (s *Segment) Release(seats int) {
	s.bookedSeats -= seats
	if s.bookedSeats < 0 {
		s.bookedSeats = 0
	}
	s.version++
}

// PerSeatPrice sums segment prices.
func PerSeatPrice(segments []*Segment) int64 {
	var total int64
	for _, s := range segments {
		total += s.priceCents
	}
	return total
}
