package app

import (
	"fmt"
	"io"
	"time"

	"github.com/relabs-tech/rotor_bench/internal/telemetry"
)

var spinnerFrames = []rune{'|', '/', '-', '\\'}

// statusLine rewrites one terminal line with the latest status.
type statusLine struct {
	out  io.Writer
	spin int
}

func (s *statusLine) PublishStatus(st telemetry.Status) {
	fmt.Fprintf(s.out, "\rSP %7.2f | t %4.1fs | n %5d | vel %7.2f | V1 %8.0f | V2 %8.0f | backlog %5d  ",
		st.Setpoint, st.Elapsed, st.Samples, st.Latest.VelReal, st.Latest.V1, st.Latest.V2, st.Backlog)
}

// countdown prints a spinner with the seconds left until d has passed.
func (s *statusLine) countdown(label string, d time.Duration, sleep func(time.Duration)) {
	const tick = 100 * time.Millisecond
	for left := d; left > 0; left -= tick {
		fmt.Fprintf(s.out, "\r%s %4.1fs %c  ", label, left.Seconds(), spinnerFrames[s.spin%len(spinnerFrames)])
		s.spin++
		sleep(min(tick, left))
	}
	fmt.Fprintf(s.out, "\r%s done.            \n", label)
}
