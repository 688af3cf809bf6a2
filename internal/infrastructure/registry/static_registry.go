package registry

import (
	"context"
	"fmt"

	"github.com/bimakw/ergo-monitor/internal/config"
	"github.com/bimakw/ergo-monitor/internal/domain/entities"
	"github.com/bimakw/ergo-monitor/internal/domain/repositories"
)

// Ensure StaticRegistry implements AddressRegistry
var _ repositories.AddressRegistry = (*StaticRegistry)(nil)

// StaticRegistry serves the watch list from configuration
type StaticRegistry struct {
	watched []entities.WatchedAddress
}

// NewStaticRegistry parses the configured watch list
func NewStaticRegistry(cfg config.MonitorConfig) (*StaticRegistry, error) {
	entries, err := config.ParseWatchList(cfg.Watch)
	if err != nil {
		return nil, fmt.Errorf("failed to parse watch list: %w", err)
	}

	watched := make([]entities.WatchedAddress, 0, len(entries))
	for _, e := range entries {
		w := entities.WatchedAddress{
			Address:       e.Address,
			Nickname:      e.Nickname,
			LookbackHours: cfg.LookbackHours,
			ReportBalance: true,
		}
		for _, d := range e.Destinations {
			w.Destinations = append(w.Destinations, entities.Destination{
				ChannelID: d.ChannelID,
				TopicID:   d.TopicID,
			})
		}
		if err := w.Validate(); err != nil {
			return nil, err
		}
		watched = append(watched, w)
	}

	return &StaticRegistry{watched: watched}, nil
}

// LoadWatched returns the configured addresses
func (r *StaticRegistry) LoadWatched(ctx context.Context) ([]entities.WatchedAddress, error) {
	out := make([]entities.WatchedAddress, len(r.watched))
	copy(out, r.watched)
	return out, nil
}
