package session

import (
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/foxseedlab/voicedesk/internal/transport"
)

const defaultLevelSampleInterval = 16 * time.Millisecond

// Levels is the latest input/output volume pair in [0,1]. It is UI telemetry only.
type Levels struct {
	Input  float64
	Output float64
}

type volumeReader interface {
	InputVolume() (float64, error)
	OutputVolume() (float64, error)
}

var _ volumeReader = transport.Conversation(nil)

type levelMeter struct {
	reader   volumeReader
	interval time.Duration
	publish  func(Levels)

	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}
}

func startLevelMeter(reader volumeReader, interval time.Duration, publish func(Levels)) *levelMeter {
	if interval <= 0 {
		interval = defaultLevelSampleInterval
	}
	l := &levelMeter{
		reader:   reader,
		interval: interval,
		publish:  publish,
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
	go l.run()
	return l
}

func (l *levelMeter) run() {
	defer close(l.done)
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()
	for {
		select {
		case <-l.stopCh:
			return
		case <-ticker.C:
			l.publish(sampleLevels(l.reader))
		}
	}
}

// Stop returns once no further sample will be taken. Safe on a nil meter.
func (l *levelMeter) Stop() {
	if l == nil {
		return
	}
	l.stopOnce.Do(func() {
		close(l.stopCh)
	})
	<-l.done
}

func sampleLevels(reader volumeReader) (levels Levels) {
	defer func() {
		if r := recover(); r != nil {
			slog.Debug("volume reader panicked", "panic", r)
			levels = Levels{}
		}
	}()
	in, err := reader.InputVolume()
	if err != nil {
		return Levels{}
	}
	out, err := reader.OutputVolume()
	if err != nil {
		return Levels{}
	}
	return Levels{Input: clampLevel(in), Output: clampLevel(out)}
}

func clampLevel(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
