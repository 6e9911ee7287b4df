package telemetry

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/asdine/storm/v3"
	"github.com/edaniels/golog"
	"github.com/pkg/errors"
)

const journalQueueLength = 256

// Fault records a flag being raised or cleared.
type Fault struct {
	ID     int       `storm:"id,increment" json:"id"`
	Time   time.Time `storm:"index" json:"time"`
	Tick   uint64    `json:"tick"`
	Source string    `storm:"index" json:"source"`
	Kind   string    `json:"kind"`
	Active bool      `json:"active"`
}

type faultKey struct {
	source, kind string
}

// Journal persists flag edges to storm off the control goroutine. Publish
// never blocks; faults that do not fit in the queue are counted and dropped.
type Journal struct {
	db     *storm.DB
	logger golog.Logger

	active  map[faultKey]bool
	queue   chan Fault
	done    chan struct{}
	wg      sync.WaitGroup
	once    sync.Once
	dropped uint64
}

func NewJournal(db *storm.DB, logger golog.Logger) (*Journal, error) {
	if err := db.Init(&Fault{}); err != nil {
		return nil, errors.Wrap(err, "init fault bucket")
	}

	j := &Journal{
		db:     db,
		logger: logger,
		active: make(map[faultKey]bool),
		queue:  make(chan Fault, journalQueueLength),
		done:   make(chan struct{}),
	}
	j.wg.Add(1)
	go j.writer()
	return j, nil
}

func (j *Journal) Publish(s Snapshot) {
	current := activeFaults(s)

	for key := range j.active {
		if !current[key] {
			j.enqueue(Fault{Time: s.Time, Tick: s.Tick, Source: key.source, Kind: key.kind, Active: false})
			delete(j.active, key)
		}
	}
	for key := range current {
		if !j.active[key] {
			j.enqueue(Fault{Time: s.Time, Tick: s.Tick, Source: key.source, Kind: key.kind, Active: true})
			j.active[key] = true
		}
	}
}

func activeFaults(s Snapshot) map[faultKey]bool {
	out := make(map[faultKey]bool)
	set := func(on bool, source, kind string) {
		if on {
			out[faultKey{source, kind}] = true
		}
	}

	for _, m := range s.Modules {
		set(m.Stale, m.Name, "sensor_stale")
		set(m.DriveOverlimit, m.Name, "drive_overlimit")
		set(m.AngleOverlimit, m.Name, "angle_overlimit")
		set(m.WriteFailed, m.Name, "write_failed")
	}
	set(s.Claw.Wrist.Stale, "wrist", "sensor_stale")
	set(s.Claw.Arm.Stale, "arm", "sensor_stale")
	set(s.Flags.InvalidCommand, "chassis", "invalid_command")
	return out
}

func (j *Journal) enqueue(f Fault) {
	select {
	case <-j.done:
		return
	default:
	}

	select {
	case j.queue <- f:
	default:
		atomic.AddUint64(&j.dropped, 1)
	}
}

func (j *Journal) writer() {
	defer j.wg.Done()
	for {
		select {
		case f := <-j.queue:
			j.save(f)
		case <-j.done:
			for {
				select {
				case f := <-j.queue:
					j.save(f)
				default:
					return
				}
			}
		}
	}
}

func (j *Journal) save(f Fault) {
	if err := j.db.Save(&f); err != nil {
		j.logger.Errorw("unable to record fault", "source", f.Source, "kind", f.Kind, "error", err)
		return
	}
	if f.Active {
		j.logger.Warnw("fault raised", "source", f.Source, "kind", f.Kind, "tick", f.Tick)
	} else {
		j.logger.Infow("fault cleared", "source", f.Source, "kind", f.Kind, "tick", f.Tick)
	}
}

// Recent returns up to n faults, newest first.
func (j *Journal) Recent(n int) ([]Fault, error) {
	var faults []Fault
	err := j.db.All(&faults, storm.Limit(n), storm.Reverse())
	if err == storm.ErrNotFound {
		return nil, nil
	}
	return faults, err
}

func (j *Journal) Dropped() uint64 {
	return atomic.LoadUint64(&j.dropped)
}

// Close flushes queued faults. The database is left open.
func (j *Journal) Close() error {
	j.once.Do(func() {
		close(j.done)
		j.wg.Wait()
	})
	return nil
}
