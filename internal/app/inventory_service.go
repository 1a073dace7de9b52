package app

import (
	"context"
	"slices"

	"github.com/EderamorimTH/rifa-miguel/internal/clock"
	"github.com/EderamorimTH/rifa-miguel/internal/domain"
)

type InventoryRepository interface {
	ListLiveNumbers(ctx context.Context) ([]domain.NumberState, error)
}

type InventoryService struct {
	repo   InventoryRepository
	clock  clock.Clock
	format domain.NumberFormat
}

func NewInventoryService(repo InventoryRepository, clk clock.Clock, format domain.NumberFormat) *InventoryService {
	return &InventoryService{
		repo:   repo,
		clock:  clk,
		format: format,
	}
}

type Availability struct {
	Supply    int
	Available int
	Sold      []string
	Held      []string
}

// Availability reports which numbers are sold and which are currently held.
// Holds past their expiry count as available even before the sweeper runs,
// since a new reservation reclaims them.
func (s *InventoryService) Availability(ctx context.Context) (Availability, error) {
	states, err := s.repo.ListLiveNumbers(ctx)
	if err != nil {
		return Availability{}, err
	}

	now := s.clock.Now()
	out := Availability{
		Supply: s.format.Supply,
		Sold:   []string{},
		Held:   []string{},
	}
	for _, st := range states {
		switch {
		case st.Status == domain.OrderStatusApproved:
			out.Sold = append(out.Sold, st.Number)
		case st.Status.Holding() && st.HoldExpiresAt.After(now):
			out.Held = append(out.Held, st.Number)
		}
	}
	slices.Sort(out.Sold)
	slices.Sort(out.Held)
	out.Available = out.Supply - len(out.Sold) - len(out.Held)
	return out, nil
}
