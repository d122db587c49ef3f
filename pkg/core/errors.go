package core

import (
	"errors"
	"fmt"
	"strings"
)

// Load-time problems. None of them is fatal: the loader reports them and
// keeps going with the rest of the description.
var (
	// name errors
	ErrDuplicateName     = errors.New("duplicate declaration")
	ErrNoSuchSource      = errors.New("no such source")
	ErrNoSuchDestination = errors.New("no such destination")

	// topology errors
	ErrSecondaryTarget = errors.New("destination is a secondary synapse")

	// value errors; the entity stays in the network with a default value
	ErrNegativeDelay = errors.New("illegal negative delay")

	// syntax errors, reported by the loader only
	ErrExpectedName    = errors.New("expected a name")
	ErrExpectedNumber  = errors.New("expected a number")
	ErrExpectedNewline = errors.New("expected a newline")
	ErrUnknownCommand  = errors.New("what is that")
)

// IsRecovered reports whether err describes a problem that was patched with a
// default value, meaning the entity was still added to the network.
func IsRecovered(err error) bool {
	return errors.Is(err, ErrNegativeDelay)
}

// Diagnostic is one problem found while loading a network description.
type Diagnostic struct {
	// Line is the 1-based input line, or 0 when not tied to input text.
	Line int

	// Subject is the canonical rendering of the offending entity or token.
	Subject string

	Err error
}

// Error renders the diagnostic as "line N: SUBJECT -- reason".
func (d Diagnostic) Error() string {
	var b strings.Builder
	if d.Line > 0 {
		fmt.Fprintf(&b, "line %d: ", d.Line)
	}
	if d.Subject != "" {
		b.WriteString(d.Subject)
		b.WriteString(" -- ")
	}
	if d.Err != nil {
		b.WriteString(d.Err.Error())
	}
	return b.String()
}

func (d Diagnostic) Unwrap() error {
	return d.Err
}

// Diagnostics collects load problems in the order they were found.
type Diagnostics []Diagnostic

// Add appends a diagnostic.
func (ds *Diagnostics) Add(line int, subject string, err error) {
	*ds = append(*ds, Diagnostic{Line: line, Subject: subject, Err: err})
}

// Len returns the number of diagnostics.
func (ds Diagnostics) Len() int {
	return len(ds)
}

// Err joins all diagnostics into one error, or returns nil when there are none.
func (ds Diagnostics) Err() error {
	if len(ds) == 0 {
		return nil
	}
	errs := make([]error, len(ds))
	for i, d := range ds {
		errs[i] = d
	}
	return errors.Join(errs...)
}
