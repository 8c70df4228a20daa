package interval

import (
	"math"
	"time"

	"github.com/robfig/cron/v3"
)

// CronParser accepts five or six fields (seconds optional) and descriptors
// such as @hourly or @every 55m.
var CronParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

type cronSeq struct {
	sched cron.Schedule
	clk   Clock
}

func (c *cronSeq) Next() time.Duration {
	now := c.clk.Now()
	at := c.sched.Next(now)
	if at.IsZero() {
		// The schedule never matches again.
		return math.MaxInt64
	}
	return at.Sub(now)
}

// Cron yields the delay from clk's current time to the next activation of
// sched. Pulling it after a firing measures from when the executor returned,
// so a slow executor skips activations instead of piling them up.
func Cron(sched cron.Schedule, clk Clock) Sequence {
	return &cronSeq{sched: sched, clk: clk}
}

// ParseCron parses expr with CronParser and wraps it in Cron.
func ParseCron(expr string, clk Clock) (Sequence, error) {
	sched, err := CronParser.Parse(expr)
	if err != nil {
		return nil, err
	}
	return Cron(sched, clk), nil
}
