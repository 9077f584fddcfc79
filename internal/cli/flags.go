package cli

import (
	"flag"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/Makepad-fr/tada/internal/model"
)

func newFlagSet(name string, w io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet("todo "+name, flag.ContinueOnError)
	fs.SetOutput(w)
	return fs
}

// parseArgs lets flags and positional words mix, so
// `todo add Buy milk --priority HIGH` works.
func parseArgs(fs *flag.FlagSet, args []string) ([]string, error) {
	var rest []string
	for {
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		args = fs.Args()
		if len(args) == 0 {
			return rest, nil
		}
		rest = append(rest, args[0])
		args = args[1:]
	}
}

// optionalBool is a flag that records whether it was given.
type optionalBool struct{ v *bool }

func (o *optionalBool) String() string {
	if o.v == nil {
		return ""
	}
	return strconv.FormatBool(*o.v)
}

func (o *optionalBool) Set(s string) error {
	b, err := strconv.ParseBool(s)
	if err != nil {
		return fmt.Errorf("want true or false")
	}
	o.v = &b
	return nil
}

func (o *optionalBool) IsBoolFlag() bool { return true }

// optionalString records whether the flag was given, even as "".
type optionalString struct {
	set bool
	v   string
}

func (o *optionalString) String() string { return o.v }

func (o *optionalString) Set(s string) error {
	o.set, o.v = true, s
	return nil
}

func parsePriority(s string) (*model.Priority, error) {
	if s == "" {
		return nil, nil
	}
	p, ok := model.ParsePriority(s)
	if !ok {
		return nil, fmt.Errorf("invalid priority %q: want LOW, MEDIUM or HIGH", s)
	}
	return &p, nil
}

func parseDue(s string) (time.Time, error) {
	t, ok := model.ParseDueDate(s)
	if !ok {
		return time.Time{}, fmt.Errorf("invalid due date %q: want YYYY-MM-DD or RFC 3339", s)
	}
	return t, nil
}

func parseIndex(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("not a number: %s", s)
	}
	return n, nil
}
