package audiostore

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Pruner periodically evicts expired temp audio. Cache files are
// permanent and never pruned.
type Pruner struct {
	store     *Store
	retention time.Duration
	interval  time.Duration
	log       zerolog.Logger
	stop      chan struct{}
	stopOnce  sync.Once
}

func NewPruner(store *Store, retention, interval time.Duration, log zerolog.Logger) *Pruner {
	return &Pruner{
		store:     store,
		retention: retention,
		interval:  interval,
		log:       log.With().Str("component", "audio-pruner").Logger(),
		stop:      make(chan struct{}),
	}
}

func (p *Pruner) Start() {
	go p.loop()
}

func (p *Pruner) Stop() {
	p.stopOnce.Do(func() { close(p.stop) })
}

func (p *Pruner) loop() {
	// Run once on startup to clear any backlog from downtime.
	p.prune()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.prune()
		case <-p.stop:
			return
		}
	}
}

func (p *Pruner) prune() {
	removed, err := p.store.PurgeOlderThan(p.retention)
	if err != nil {
		p.log.Warn().Err(err).Msg("prune pass failed")
		return
	}
	if removed > 0 {
		p.log.Info().Int("removed", removed).Msg("prune pass complete")
	}
}
