// Package tui renders the terminal output of the smoothing pipeline:
// a run banner, per-cube progress bars, and the closing summary. Plain
// fmt prints with lipgloss styling, no interactive screen handling.
package tui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/schollz/progressbar/v3"
)

var (
	accent  = lipgloss.Color("#5FAFFF")
	muted   = lipgloss.Color("#666666")
	success = lipgloss.Color("#00CC66")
	warning = lipgloss.Color("#FFAF00")
	white   = lipgloss.Color("#FFFFFF")
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(white)
	accentStyle  = lipgloss.NewStyle().Foreground(accent).Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(muted)
	successStyle = lipgloss.NewStyle().Foreground(success).Bold(true)
	warnStyle    = lipgloss.NewStyle().Foreground(warning)
)

// Header prints the run banner.
func Header(version string) {
	fmt.Println()
	fmt.Println(titleStyle.Render("  BEAMCONV") + mutedStyle.Render(" "+version))
	fmt.Println(mutedStyle.Render("  Common-resolution smoothing for spectral image cubes"))
	fmt.Println()
}

// Section prints a stage heading.
func Section(name string) {
	fmt.Println()
	fmt.Println(accentStyle.Render("▸ " + name))
}

// Info prints a labeled value line.
func Info(label, value string) {
	fmt.Printf("  %s %s\n", mutedStyle.Render(label+":"), titleStyle.Render(value))
}

// Warn prints a warning line.
func Warn(msg string) {
	fmt.Println(warnStyle.Render("  ! " + msg))
}

// BeamLine prints one adopted beam in the conventional quoting.
func BeamLine(channel int, major, minor, pa float64) {
	fmt.Printf("  %s %s\n",
		mutedStyle.Render(fmt.Sprintf("chan %4d", channel)),
		titleStyle.Render(fmt.Sprintf("%.1f\" x %.1f\" @ %.2f deg", major, minor, pa)))
}

// Summary holds the counters printed when a run finishes.
type Summary struct {
	Cubes    int
	Channels int
	Blanked  int
	Duration time.Duration
}

// PrintSummary prints the closing report.
func PrintSummary(s Summary) {
	fmt.Println()
	fmt.Println(successStyle.Render("  ✓ SMOOTHING COMPLETE"))
	fmt.Println()
	fmt.Printf("  %s %d cube(s), %d channel(s)\n", mutedStyle.Render("Processed:"), s.Cubes, s.Channels)
	if s.Blanked > 0 {
		fmt.Printf("  %s %d channel(s)\n", mutedStyle.Render("Blanked:"), s.Blanked)
	}
	fmt.Printf("  %s %s\n", mutedStyle.Render("Time:"), titleStyle.Render(formatDuration(s.Duration)))
	fmt.Println()
}

// NewProgress builds the channel progress bar for one cube.
func NewProgress(total int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "",
			BarEnd:        "",
		}),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
}
