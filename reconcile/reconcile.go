// Package reconcile aligns a stream's checkpoint with the broker's read
// position before polling starts.
package reconcile

import (
	"context"
	"fmt"

	"github.com/hugolhafner/go-connect/checkpoint"
	"github.com/hugolhafner/go-connect/kafka"
	"github.com/hugolhafner/go-connect/logger"
)

// Policy decides which side wins when the checkpoint and the broker disagree.
type Policy int

const (
	// NoSync keeps the broker position and moves the checkpoint to it,
	// skipping any backlog between the two.
	NoSync Policy = iota
	// Sync moves the broker position to just after the checkpoint.
	Sync
	// Replay moves the broker position to the earliest retained offset.
	Replay
)

func (p Policy) String() string {
	switch p {
	case NoSync:
		return "no-sync"
	case Sync:
		return "sync"
	case Replay:
		return "replay"
	default:
		return fmt.Sprintf("Policy(%d)", int(p))
	}
}

// PolicyFor maps the connector flags to a policy. Replay takes precedence.
func PolicyFor(replay, sync bool) Policy {
	switch {
	case replay:
		return Replay
	case sync:
		return Sync
	default:
		return NoSync
	}
}

// Decision describes what Reconcile did.
type Decision struct {
	Policy Policy
	// TopicPosition is the offset the broker would deliver next, or the
	// earliest offset for Replay.
	TopicPosition int64
	Before        int64
	After         int64
	Seeked        bool
	SeekOffset    int64
}

// Reconcile runs the startup policy for tp against state. It performs at most
// one offset lookup and one seek. A checkpoint that has never been written
// forces Replay whatever policy was requested.
func Reconcile(
	ctx context.Context,
	consumer kafka.Consumer,
	tp kafka.TopicPartition,
	state *checkpoint.DataState,
	policy Policy,
	l logger.Logger,
) (Decision, error) {
	if l == nil {
		l = logger.NewNoopLogger()
	}
	l = l.With("component", "reconciler", "topic", tp.Topic, "partition", tp.Partition)

	last, err := state.LastOffset()
	if err != nil {
		return Decision{}, fmt.Errorf("read checkpoint: %w", err)
	}

	if last < 0 && policy != Replay {
		l.Info("No checkpoint found, replaying from the earliest offset", "requested_policy", policy.String())
		policy = Replay
	}

	d := Decision{Policy: policy, Before: last, After: last}

	switch policy {
	case Replay:
		err = replay(ctx, consumer, tp, state, &d, l)
	case Sync:
		err = syncPosition(ctx, consumer, tp, state, &d, l)
	default:
		err = skipToPosition(ctx, consumer, tp, state, &d, l)
	}
	if err != nil {
		return d, err
	}

	l.Info(
		"Reconciled stream position",
		"policy", d.Policy.String(),
		"topic_position", d.TopicPosition,
		"checkpoint_before", d.Before,
		"checkpoint_after", d.After,
		"seeked", d.Seeked,
	)

	return d, nil
}

func replay(
	ctx context.Context, consumer kafka.Consumer, tp kafka.TopicPartition,
	state *checkpoint.DataState, d *Decision, l logger.Logger,
) error {
	offsets, err := consumer.BeginningOffsets(ctx, tp)
	if err != nil {
		return fmt.Errorf("beginning offsets for %s: %w", tp, err)
	}

	earliest, ok := offsets[tp]
	if !ok {
		return fmt.Errorf("beginning offsets for %s: %w", tp, kafka.ErrUnknownTopic)
	}
	d.TopicPosition = earliest

	if err := seek(consumer, tp, earliest, d); err != nil {
		return err
	}

	// The checkpoint names the earliest offset before anything has been read
	// from it. A restart before the first batch commits resumes one past it.
	if err := state.SetLastOffset(earliest); err != nil {
		return fmt.Errorf("write checkpoint: %w", err)
	}
	d.After = earliest

	l.Debug("Replaying stream from earliest offset", "earliest", earliest)
	return nil
}

func syncPosition(
	ctx context.Context, consumer kafka.Consumer, tp kafka.TopicPartition,
	state *checkpoint.DataState, d *Decision, l logger.Logger,
) error {
	pos, err := consumer.Position(ctx, tp)
	if err != nil {
		return fmt.Errorf("position for %s: %w", tp, err)
	}
	d.TopicPosition = pos

	last := d.Before
	switch {
	case last >= pos:
		clamped := pos - 1
		l.Warn(
			"Checkpoint is at or ahead of the broker position, clamping",
			"checkpoint", last,
			"topic_position", pos,
			"clamped", clamped,
		)
		if err := state.SetLastOffset(clamped); err != nil {
			return fmt.Errorf("write checkpoint: %w", err)
		}
		d.After = clamped
	case pos != last+1:
		l.Info("Broker position differs from checkpoint, seeking", "checkpoint", last, "topic_position", pos)
		return seek(consumer, tp, last+1, d)
	default:
		l.Debug("Broker position matches checkpoint", "checkpoint", last)
	}

	return nil
}

func skipToPosition(
	ctx context.Context, consumer kafka.Consumer, tp kafka.TopicPartition,
	state *checkpoint.DataState, d *Decision, l logger.Logger,
) error {
	pos, err := consumer.Position(ctx, tp)
	if err != nil {
		return fmt.Errorf("position for %s: %w", tp, err)
	}
	d.TopicPosition = pos

	target := pos - 1
	if target == d.Before {
		return nil
	}

	if target > d.Before {
		l.Info("Skipping backlog between checkpoint and broker position", "checkpoint", d.Before, "topic_position", pos,
			"skipped", target-d.Before)
	} else {
		l.Warn("Checkpoint is ahead of the broker position", "checkpoint", d.Before, "topic_position", pos)
	}

	if err := state.SetLastOffset(target); err != nil {
		return fmt.Errorf("write checkpoint: %w", err)
	}
	d.After = target
	return nil
}

func seek(consumer kafka.Consumer, tp kafka.TopicPartition, offset int64, d *Decision) error {
	if err := consumer.Seek(tp, offset); err != nil {
		return fmt.Errorf("seek %s to %d: %w", tp, offset, err)
	}
	d.Seeked = true
	d.SeekOffset = offset
	return nil
}
