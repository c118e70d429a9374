package hostenv

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultBlockSchedule advances the local clock every five seconds.
const DefaultBlockSchedule = "@every 5s"

// BlockProducer advances a LocalClock by one on a cron schedule.
type BlockProducer struct {
	cron  *cron.Cron
	clock *LocalClock
	log   *slog.Logger
}

// NewBlockProducer schedules clock advancement. schedule accepts standard
// five-field cron expressions and descriptors such as "@every 5s".
func NewBlockProducer(clock *LocalClock, schedule string, log *slog.Logger) (*BlockProducer, error) {
	if schedule == "" {
		schedule = DefaultBlockSchedule
	}

	p := &BlockProducer{
		cron:  cron.New(),
		clock: clock,
		log:   log,
	}
	if _, err := p.cron.AddFunc(schedule, p.produce); err != nil {
		return nil, fmt.Errorf("invalid block schedule %q: %w", schedule, err)
	}
	return p, nil
}

func (p *BlockProducer) Start() {
	p.log.Info("Starting block producer")
	p.cron.Start()
}

// Stop stops scheduling and waits for a running tick to finish.
func (p *BlockProducer) Stop() {
	p.log.Info("Stopping block producer")
	<-p.cron.Stop().Done()
}

func (p *BlockProducer) produce() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	height, err := p.clock.Advance(ctx, 1)
	if err != nil {
		p.log.Error("Failed to advance clock", "err", err)
		return
	}
	p.log.Debug("Produced block", slog.Uint64("height", height))
}
