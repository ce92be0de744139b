package collector_test

import (
	"fmt"
	"time"

	"telesim/internal/collector"
	"telesim/internal/core"
	"telesim/internal/session"
)

func ExampleNewCollector() {
	c := collector.NewCollector()

	// The simulation driver reports every started session.
	c.Report(session.Outcome{UserID: "user_001", UserType: core.Power, Duration: 600, Status: session.StatusCompleted})
	c.Report(session.Outcome{UserID: "user_002", UserType: core.Idle, Duration: 120, Status: session.StatusFailed})

	c.Close()

	fmt.Printf("Collected %d sessions\n", len(c.Outcomes()))
	// Output: Collected 2 sessions
}

func ExampleComputeSummary() {
	outcomes := []session.Outcome{
		{UserType: core.Regular, Model: "sonnet", Duration: 300, Status: session.StatusCompleted},
		{UserType: core.Regular, Model: "sonnet", Duration: 600, Status: session.StatusCompleted},
		{UserType: core.Regular, Model: "sonnet", Duration: 900, Status: session.StatusCompleted},
		{UserType: core.Idle, Model: "haiku", Duration: 60, Status: session.StatusFailed},
	}

	s := collector.ComputeSummary(outcomes, time.Minute)

	fmt.Printf("Total: %d, Completed: %d, Rate: %.0f%%\n", s.TotalSessions, s.Completed, s.SuccessRate)
	// Output: Total: 4, Completed: 3, Rate: 75%
}
