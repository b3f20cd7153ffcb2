package fleet

import (
	"context"
	"time"

	"go.uber.org/zap"

	"dronemed/pkg/drone"
	"dronemed/pkg/metrics"
)

var allStates = []drone.State{
	drone.StateIdle,
	drone.StateLoading,
	drone.StateLoaded,
	drone.StateDelivering,
	drone.StateDelivered,
	drone.StateReturning,
}

// CountByState tallies drones per state. Every known state is present in the result.
func CountByState(drones []*drone.Drone) map[drone.State]int {
	counts := make(map[drone.State]int, len(allStates))
	for _, st := range allStates {
		counts[st] = 0
	}
	for _, d := range drones {
		counts[d.State]++
	}
	return counts
}

// RunReporter periodically refreshes the per state gauges and logs the fleet
// summary until ctx is cancelled.
func (s *Service) RunReporter(ctx context.Context, period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Stopping fleet reporter due to context cancellation")
			return
		case <-ticker.C:
			s.report(ctx)
		}
	}
}

func (s *Service) report(ctx context.Context) {
	all, err := s.GetAllDrones(ctx)
	if err != nil {
		s.logger.Warn("[DroneService] Fleet report failed", zap.Error(err))
		return
	}

	counts := CountByState(all)
	fields := make([]zap.Field, 0, len(counts)+1)
	fields = append(fields, zap.Int("total", len(all)))
	for _, st := range allStates {
		metrics.DronesByState.WithLabelValues(string(st)).Set(float64(counts[st]))
		fields = append(fields, zap.Int(string(st), counts[st]))
	}

	s.logger.Info("[DroneService] Fleet report", fields...)
}
