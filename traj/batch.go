/*
Copyright © 2026 the Upwind authors.
This file is part of Upwind.

Upwind is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

Upwind is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with Upwind.  If not, see <http://www.gnu.org/licenses/>.*/

package traj

import (
	"context"
	"encoding/gob"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/ctessum/requestcache"
	"github.com/sirupsen/logrus"

	"github.com/spatialmodel/upwind/internal/hash"
)

func init() {
	gob.Register([]*Trajectory{})
}

// Default batch parameters.
const (
	// DefaultChunkSize is the number of consecutive days computed
	// together as a unit of work.
	DefaultChunkSize = 5

	// DefaultChunkTimeout bounds how long one chunk may run,
	// including retries.
	DefaultChunkTimeout = 30 * time.Minute

	// DefaultMaxRetries is how many times a failed chunk is retried
	// before its days are marked missing.
	DefaultMaxRetries = 3
)

// DefaultHours are the trajectory arrival hours computed for each day.
var DefaultHours = []int{0, 6, 12, 18}

// A Batcher computes backward trajectories for ranges of days,
// grouping consecutive days into chunks, running chunks concurrently,
// and caching chunk results so that repeated and overlapping date
// ranges do not recompute.
type Batcher struct {
	// Engine computes individual trajectories.
	Engine Engine

	// Receptor is the location trajectories arrive at.
	Receptor Receptor

	// Duration is how far backward each trajectory is traced.
	Duration time.Duration

	// Weather and WeatherDir select the meteorological dataset;
	// see Request.
	Weather    string
	WeatherDir string

	// ChunkSize is the number of consecutive days per unit of work.
	// Zero means DefaultChunkSize.
	ChunkSize int

	// Hours are the arrival hours computed for each day. Empty
	// means DefaultHours.
	Hours []int

	// Workers is the number of chunks computed concurrently. Zero
	// means runtime.GOMAXPROCS(0)-1, minimum 1.
	Workers int

	// ChunkTimeout bounds one chunk including retries. Zero means
	// DefaultChunkTimeout.
	ChunkTimeout time.Duration

	// MaxRetries is the number of retries for a failed chunk. Zero
	// means DefaultMaxRetries.
	MaxRetries int

	// DiskCachePath, if nonempty, is a directory where chunk
	// results persist across runs.
	DiskCachePath string

	// MemCacheSize is the number of chunk results held in memory.
	// Zero means no in-memory caching beyond deduplication.
	MemCacheSize int

	// Logger receives progress and failure messages. Nil disables
	// logging.
	Logger *logrus.Logger

	cache    *requestcache.Cache
	loadOnce sync.Once
	loadErr  error
}

// A MissingChunk records the days whose trajectories could not be
// computed, and why.
type MissingChunk struct {
	// Dates are the days covered by the failed chunk, in order.
	Dates []time.Time

	// Err is the final error after retries were exhausted.
	Err error
}

// A Batch is the result of computing trajectories for a date range.
type Batch struct {
	// Trajectories are ordered by start time.
	Trajectories []*Trajectory

	// Missing lists the chunks that failed after retries. The days
	// they cover have no trajectories in the batch.
	Missing []MissingChunk
}

// chunkRequest identifies one unit of cacheable work: a receptor and
// a run of consecutive days. Its hash is the cache key, so any field
// that changes the result must appear here.
type chunkRequest struct {
	Receptor   Receptor
	Dates      []time.Time
	Hours      []int
	Duration   time.Duration
	Weather    string
	WeatherDir string
}

func (b *Batcher) chunkSize() int {
	if b.ChunkSize <= 0 {
		return DefaultChunkSize
	}
	return b.ChunkSize
}

func (b *Batcher) hours() []int {
	if len(b.Hours) == 0 {
		return DefaultHours
	}
	return b.Hours
}

func (b *Batcher) workers() int {
	if b.Workers > 0 {
		return b.Workers
	}
	if n := runtime.GOMAXPROCS(0) - 1; n > 1 {
		return n
	}
	return 1
}

func (b *Batcher) chunkTimeout() time.Duration {
	if b.ChunkTimeout <= 0 {
		return DefaultChunkTimeout
	}
	return b.ChunkTimeout
}

func (b *Batcher) maxRetries() int {
	if b.MaxRetries <= 0 {
		return DefaultMaxRetries
	}
	return b.MaxRetries
}

// lazyLoad initializes the chunk cache on first use.
func (b *Batcher) lazyLoad() error {
	b.loadOnce.Do(func() {
		if b.Engine == nil {
			b.loadErr = fmt.Errorf("traj: batcher has no engine")
			return
		}
		funcs := []requestcache.CacheFunc{requestcache.Deduplicate()}
		if b.MemCacheSize > 0 {
			funcs = append(funcs, requestcache.Memory(b.MemCacheSize))
		}
		if b.DiskCachePath != "" {
			funcs = append(funcs, requestcache.Disk(b.DiskCachePath,
				requestcache.MarshalGob, requestcache.UnmarshalGob))
		}
		b.cache = requestcache.NewCache(b.processChunk, b.workers(), funcs...)
	})
	return b.loadErr
}

// Run computes trajectories for every day in [start, end] inclusive.
// Days whose chunks fail after retries are reported in the returned
// batch's Missing list rather than aborting the whole range.
func (b *Batcher) Run(ctx context.Context, start, end time.Time) (*Batch, error) {
	if err := b.lazyLoad(); err != nil {
		return nil, err
	}
	dates := datesBetween(start, end)
	if len(dates) == 0 {
		return nil, fmt.Errorf("traj: date range %v to %v contains no days",
			start.Format("2006-01-02"), end.Format("2006-01-02"))
	}
	chunks := chunkDates(dates, b.chunkSize())
	if b.Logger != nil {
		b.Logger.WithFields(logrus.Fields{
			"days":   len(dates),
			"chunks": len(chunks),
		}).Info("computing backward trajectories")
	}

	type chunkResult struct {
		trajectories []*Trajectory
		err          error
	}
	results := make([]chunkResult, len(chunks))
	var wg sync.WaitGroup
	for i, c := range chunks {
		wg.Add(1)
		go func(i int, c []time.Time) {
			defer wg.Done()
			req := chunkRequest{
				Receptor:   b.Receptor,
				Dates:      c,
				Hours:      b.hours(),
				Duration:   b.Duration,
				Weather:    b.Weather,
				WeatherDir: b.WeatherDir,
			}
			r := b.cache.NewRequest(ctx, req, hash.Hash(req))
			result, err := r.Result()
			if err != nil {
				results[i] = chunkResult{err: err}
				return
			}
			results[i] = chunkResult{trajectories: result.([]*Trajectory)}
		}(i, c)
	}
	wg.Wait()

	// Assemble in chunk order so output ordering is independent of
	// completion order.
	batch := new(Batch)
	for i, r := range results {
		if r.err != nil {
			if b.Logger != nil {
				b.Logger.WithFields(logrus.Fields{
					"from":  chunks[i][0].Format("2006-01-02"),
					"to":    chunks[i][len(chunks[i])-1].Format("2006-01-02"),
					"error": r.err,
				}).Warn("trajectory chunk failed")
			}
			batch.Missing = append(batch.Missing, MissingChunk{
				Dates: chunks[i],
				Err:   r.err,
			})
			continue
		}
		batch.Trajectories = append(batch.Trajectories, r.trajectories...)
	}
	sort.SliceStable(batch.Trajectories, func(i, j int) bool {
		return batch.Trajectories[i].Start.Before(batch.Trajectories[j].Start)
	})
	return batch, nil
}

// processChunk computes all trajectories of one chunk, retrying the
// whole chunk with exponential backoff and bounding it with a
// timeout. All of the chunk's runs must succeed for the chunk to
// succeed; partial results are not cached.
func (b *Batcher) processChunk(ctx context.Context, request interface{}) (interface{}, error) {
	req := request.(chunkRequest)
	ctx, cancel := context.WithTimeout(ctx, b.chunkTimeout())
	defer cancel()

	var trajectories []*Trajectory
	run := func() error {
		trajectories = trajectories[:0]
		for _, date := range req.Dates {
			for _, hour := range req.Hours {
				t, err := b.Engine.Run(ctx, Request{
					Receptor:   req.Receptor,
					Start:      date.Add(time.Duration(hour) * time.Hour),
					Duration:   req.Duration,
					Weather:    req.Weather,
					WeatherDir: req.WeatherDir,
				})
				if err != nil {
					return err
				}
				trajectories = append(trajectories, t)
			}
		}
		return nil
	}
	boff := backoff.WithContext(backoff.WithMaxRetries(
		backoff.NewExponentialBackOff(), uint64(b.maxRetries())), ctx)
	notify := func(err error, d time.Duration) {
		if b.Logger != nil {
			b.Logger.WithFields(logrus.Fields{
				"from":  req.Dates[0].Format("2006-01-02"),
				"error": err,
				"retry": d,
			}).Warn("retrying trajectory chunk")
		}
	}
	if err := backoff.RetryNotify(run, boff, notify); err != nil {
		return nil, err
	}
	return trajectories, nil
}

// datesBetween returns the midnights of every day from start through
// end inclusive. Time-of-day on the endpoints is ignored.
func datesBetween(start, end time.Time) []time.Time {
	day := func(t time.Time) time.Time {
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	}
	var dates []time.Time
	for d := day(start); !d.After(day(end)); d = d.AddDate(0, 0, 1) {
		dates = append(dates, d)
	}
	return dates
}

// chunkDates splits dates into runs of at most size consecutive
// elements.
func chunkDates(dates []time.Time, size int) [][]time.Time {
	var chunks [][]time.Time
	for len(dates) > 0 {
		n := size
		if n > len(dates) {
			n = len(dates)
		}
		chunks = append(chunks, dates[:n])
		dates = dates[n:]
	}
	return chunks
}
