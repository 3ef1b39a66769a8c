package zkapp

import "errors"

// Assertions collects the outcome of every check of a method call. Checks never
// short-circuit: all of them are evaluated and the verdict is their conjunction.
type Assertions struct {
	failed []error
}

// That records err unless ok holds.
func (a *Assertions) That(ok bool, err error) {
	if !ok {
		a.failed = append(a.failed, err)
	}
}

// Check records err if it is not nil.
func (a *Assertions) Check(err error) {
	if err != nil {
		a.failed = append(a.failed, err)
	}
}

// Err joins every failure, or returns nil when all checks held.
func (a *Assertions) Err() error {
	return errors.Join(a.failed...)
}
