package checkpoint

import (
	"go.uber.org/zap"

	"github.com/coreos/go-semver/semver"

	"github.com/driftlang/drift/errors"
	"github.com/driftlang/drift/runtime"
)

// FormatVersion is the semver of the checkpoint wire format. Decoders
// accept any checkpoint whose major version matches their own; minor
// and patch revisions are additive.
const FormatVersion = "1.0.0"

var magic = [4]byte{'D', 'R', 'F', 'T'}

// Value encoding tags. Reference values carry an arena index on first
// occurrence; tagRef repeats one by index, which is how shared cells
// and reference cycles survive the round trip.
const (
	tagNil byte = iota
	tagFalse
	tagTrue
	tagInt
	tagFloat
	tagString
	tagList
	tagMap
	tagObject
	tagClosure
	tagCell
	tagRef
)

// Encode serializes a suspended computation's continuation chain. The
// computation must be Suspended and is left undisturbed; it can still
// be resumed or encoded again.
func Encode(c *runtime.Computation) ([]byte, error) {
	snap, err := c.Snapshot()
	if err != nil {
		return nil, err
	}
	cfg := c.Runtime().Config()

	e := &encoder{arena: map[any]uint64{}}
	data, err := e.encode(snap)
	if err != nil {
		return nil, err
	}
	if len(data) > cfg.MaxCheckpointBytes {
		return nil, errors.LimitExceeded(errors.PhaseEncode,
			"checkpoint size", cfg.MaxCheckpointBytes)
	}
	log.Debug("checkpoint encoded",
		zap.String("op", snap.Op),
		zap.Int("frames", len(snap.Frames)),
		zap.Int("bytes", len(data)))
	return data, nil
}

// Restore reconstructs a suspended computation from checkpoint bytes,
// against the runtime's already-compiled program. Restoration is
// atomic: any validation failure leaves no partial chain.
func Restore(rt *runtime.Runtime, data []byte) (*runtime.Computation, error) {
	cfg := rt.Config()
	if len(data) > cfg.MaxCheckpointBytes {
		return nil, errors.LimitExceeded(errors.PhaseDecode,
			"checkpoint size", cfg.MaxCheckpointBytes)
	}
	d := &decoder{data: data, prog: rt.Program(), maxLen: cfg.MaxCollectionLen}
	snap, err := d.decode()
	if err != nil {
		return nil, err
	}
	c, err := rt.Restore(snap)
	if err != nil {
		return nil, err
	}
	log.Debug("checkpoint restored",
		zap.String("op", snap.Op),
		zap.Int("frames", len(snap.Frames)))
	return c, nil
}

// checkVersion gates decoding on the format's major version.
func checkVersion(got string) error {
	v, err := semver.NewVersion(got)
	if err != nil {
		return errors.CorruptData("bad format version %q: %v", got, err)
	}
	want := semver.New(FormatVersion)
	if v.Major != want.Major {
		return errors.VersionMismatch(got, FormatVersion)
	}
	return nil
}
