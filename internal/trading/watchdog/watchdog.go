// Narrow view of the external exchange-health watchdog. The probing logic
// lives outside this module; the decision core only asks two questions.
package watchdog

// Health is the boolean surface the decision core consults before routing.
type Health interface {
	// OverallOK reports whether trading may proceed at all.
	OverallOK() bool
	// FailingExchanges lists venues that must not receive orders right now.
	FailingExchanges() []string
}

// StaticHealth is a fixed Health answer, used by the cmd self-check and tests.
type StaticHealth struct {
	OK      bool
	Failing []string
}

func (s StaticHealth) OverallOK() bool            { return s.OK }
func (s StaticHealth) FailingExchanges() []string { return s.Failing }

// AlwaysHealthy is the default when no watchdog is wired.
var AlwaysHealthy Health = StaticHealth{OK: true}
