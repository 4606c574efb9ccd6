package beamlog

import (
	"bufio"
	"fmt"
	"os"
	"strconv"

	"beamconv/pkg/beam"
)

// Entry is one channel's row in the convolution log: the common (target)
// beam adopted for the channel, the convolving beam that reaches it from
// the channel's original beam, and the Jy/beam flux factor. A blanked
// channel has NaN in every field but Channel.
type Entry struct {
	Channel int
	Target  beam.Beam
	Conv    beam.Beam
	Factor  float64
}

const convLogHeader = "# Channel TargetBMAJ[arcsec] TargetBMIN[arcsec] TargetBPA[deg] " +
	"ConvolvingBMAJ[arcsec] ConvolvingBMIN[arcsec] ConvolvingBPA[deg] ConvolvingFactor"

// fmtFloat serializes with the shortest representation that parses back
// to the identical float64, so a replayed run sees bit-exact values.
func fmtFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// WriteConvLog writes the per-channel convolution log. The file is the
// replay cache: reading it back must reproduce the exact beams and
// factors used to write it.
func WriteConvLog(path string, entries []Entry) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("writing convolution log: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	fmt.Fprintln(w, convLogHeader)
	for _, e := range entries {
		fmt.Fprintf(w, "%d %s %s %s %s %s %s %s\n",
			e.Channel,
			fmtFloat(e.Target.Major), fmtFloat(e.Target.Minor), fmtFloat(e.Target.PA),
			fmtFloat(e.Conv.Major), fmtFloat(e.Conv.Minor), fmtFloat(e.Conv.PA),
			fmtFloat(e.Factor))
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("writing convolution log: %w", err)
	}
	return f.Close()
}

// ReadConvLog reads a convolution log written by WriteConvLog. Rows are
// returned in file order.
func ReadConvLog(path string) ([]Entry, error) {
	cols, rows, err := readTable(path)
	if err != nil {
		return nil, err
	}

	idx := make(map[string]int, len(cols))
	for _, name := range []string{
		"Channel",
		"TargetBMAJ", "TargetBMIN", "TargetBPA",
		"ConvolvingBMAJ", "ConvolvingBMIN", "ConvolvingBPA",
		"ConvolvingFactor",
	} {
		i, err := colIndex(cols, name)
		if err != nil {
			return nil, fmt.Errorf("convolution log %s: %w", path, err)
		}
		idx[name] = i
	}

	entries := make([]Entry, 0, len(rows))
	for n, row := range rows {
		if len(row) != len(cols) {
			return nil, fmt.Errorf("convolution log %s: row %d has %d fields, want %d", path, n, len(row), len(cols))
		}
		entries = append(entries, Entry{
			Channel: int(row[idx["Channel"]]),
			Target: beam.Beam{
				Major: row[idx["TargetBMAJ"]],
				Minor: row[idx["TargetBMIN"]],
				PA:    row[idx["TargetBPA"]],
			},
			Conv: beam.Beam{
				Major: row[idx["ConvolvingBMAJ"]],
				Minor: row[idx["ConvolvingBMIN"]],
				PA:    row[idx["ConvolvingBPA"]],
			},
			Factor: row[idx["ConvolvingFactor"]],
		})
	}
	return entries, nil
}
