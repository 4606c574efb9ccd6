package plan

import (
	"errors"
	"fmt"
	"os"

	"beamconv/pkg/beam"
	"beamconv/pkg/beamlog"
)

// Replay reconstructs a plan from the convolution logs of a previous
// run instead of solving again. Every cube must have its log sitting
// next to the image; a missing log is fatal because a partial replay
// would mix beams from different runs.
func Replay(descs []*CubeDescriptor, mode string) (*Plan, error) {
	if len(descs) == 0 {
		return nil, fmt.Errorf("plan: no input cubes")
	}

	out := &Plan{Mode: mode}
	for _, d := range descs {
		path := beamlog.ConvLogPath(beamlog.Path(d.Path), mode)
		entries, err := beamlog.ReadConvLog(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("plan: %s must be co-located with %s: %w", path, d.Path, ErrLogMissing)
			}
			return nil, fmt.Errorf("plan: reading %s: %w", path, err)
		}
		if d.Beams != nil && len(entries) != d.Beams.Len() {
			return nil, fmt.Errorf("plan: %s has %d rows, %s has %d channels",
				path, len(entries), d.Path, d.Beams.Len())
		}

		cp := CubePlan{Desc: d, Channels: make([]ChannelPlan, len(entries))}
		for i, e := range entries {
			if e.Channel != i {
				return nil, fmt.Errorf("plan: %s row %d is for channel %d, rows must be one per channel in order",
					path, i, e.Channel)
			}
			cp.Channels[i] = ChannelPlan{
				Channel: e.Channel,
				Target:  e.Target,
				Conv:    e.Conv,
				Factor:  e.Factor,
				Blank:   e.Target.IsUndefined(),
			}
		}
		out.Cubes = append(out.Cubes, cp)
	}

	nchan := len(out.Cubes[0].Channels)
	for _, cube := range out.Cubes[1:] {
		if len(cube.Channels) != nchan {
			return nil, fmt.Errorf("plan: replay logs disagree on channel count: %d vs %d",
				nchan, len(cube.Channels))
		}
	}

	// The adopted beams are shared across cubes; lift them from the
	// first log, preferring rows that are not blanked.
	out.Common = make([]beam.Beam, nchan)
	for ch := 0; ch < nchan; ch++ {
		out.Common[ch] = out.Cubes[0].Channels[ch].Target
		for _, cube := range out.Cubes[1:] {
			if out.Common[ch].IsUndefined() && !cube.Channels[ch].Target.IsUndefined() {
				out.Common[ch] = cube.Channels[ch].Target
			}
		}
	}
	return out, nil
}
