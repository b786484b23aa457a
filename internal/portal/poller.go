package portal

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kiranshivaraju/portalpilot/pkg/models"
)

// Snapshot is one status response from the portal.
type Snapshot struct {
	Status        string
	Progress      *float64
	Message       *string
	QueuePosition *int
	// Raw is the full decoded response body.
	Raw map[string]any
}

// Poller walks a job's status until it reaches a terminal state. It is
// pull-based: each call to Next makes at most one request, sleeping first
// if a snapshot has already been yielded.
//
//	p := client.Poll(job, portal.PollOptions{})
//	for p.Next(ctx) {
//		snap := p.Snapshot()
//	}
//	if err := p.Err(); err != nil { ... }
//	final := p.Final()
//
// Terminal responses are never yielded; they are only available from Final.
type Poller struct {
	client   *HTTPClient
	job      *Job
	interval time.Duration
	maxWait  time.Duration

	started bool
	start   time.Time
	current Snapshot
	final   *Snapshot
	err     error
	done    bool
}

// Next fetches the next non-terminal snapshot. It returns false once the job
// is terminal or an error occurred; check Err and Final afterwards.
func (p *Poller) Next(ctx context.Context) bool {
	if p.done {
		return false
	}
	if !p.job.Submitted() {
		return p.fail(ErrNotSubmitted)
	}

	if !p.started {
		p.started = true
		p.start = p.client.now()
	} else {
		if elapsed := p.client.now().Sub(p.start); elapsed > p.maxWait {
			return p.fail(fmt.Errorf("%w: job %s still %q after %s", ErrTimeout, p.job.id, p.current.Status, elapsed.Round(time.Millisecond)))
		}
		if err := p.client.sleep(ctx, p.interval); err != nil {
			return p.fail(err)
		}
	}

	snap, err := p.client.fetchStatus(ctx, p.job)
	if err != nil {
		return p.fail(err)
	}
	p.job.status = snap.Status

	if models.IsTerminalStatus(snap.Status) {
		p.final = &snap
		p.done = true
		return false
	}

	p.current = snap
	return true
}

// Snapshot returns the snapshot produced by the last successful Next.
func (p *Poller) Snapshot() Snapshot { return p.current }

// Err returns the error that ended polling, if any.
func (p *Poller) Err() error { return p.err }

// Final returns the terminal response, or nil if polling has not finished
// successfully.
func (p *Poller) Final() *Snapshot { return p.final }

// Wait drains the poller, calling onProgress for every yielded snapshot, and
// returns the terminal response.
func (p *Poller) Wait(ctx context.Context, onProgress func(Snapshot)) (*Snapshot, error) {
	for p.Next(ctx) {
		if onProgress != nil {
			onProgress(p.current)
		}
	}
	if p.err != nil {
		return nil, p.err
	}
	return p.final, nil
}

func (p *Poller) fail(err error) bool {
	p.err = err
	p.done = true
	return false
}

func snapshotFromMap(raw map[string]any) Snapshot {
	s := Snapshot{Raw: raw}
	if v, ok := raw["status"].(string); ok {
		s.Status = v
	}
	if v, ok := toFloat(raw["progress"]); ok {
		s.Progress = &v
	}
	if v, ok := raw["progress_message"].(string); ok {
		s.Message = &v
	}
	if v, ok := toFloat(raw["queue_position"]); ok {
		pos := int(v)
		s.QueuePosition = &pos
	}
	return s
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
