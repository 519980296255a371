package engine

// ErrorBudget bounds how many errors are logged while still counting all of
// them. Logged() == min(Errors(), max) holds after every Record.
type ErrorBudget struct {
	errorCount  int
	loggedCount int
	maxLogged   int
}

func NewErrorBudget(maxLogged int) *ErrorBudget {
	if maxLogged < 0 {
		maxLogged = 0
	}
	return &ErrorBudget{maxLogged: maxLogged}
}

// Record counts one error and reports whether its detail may be logged.
func (b *ErrorBudget) Record() bool {
	b.errorCount++
	if b.loggedCount >= b.maxLogged {
		return false
	}
	b.loggedCount++
	return true
}

func (b *ErrorBudget) Errors() int { return b.errorCount }
func (b *ErrorBudget) Logged() int { return b.loggedCount }

// Exhausted reports whether further errors will go unlogged.
func (b *ErrorBudget) Exhausted() bool {
	return b.loggedCount >= b.maxLogged
}
