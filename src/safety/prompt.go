// Package safety guards destructive commands behind an interactive prompt.
package safety

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Options are the global safety flags.
type Options struct {
	DryRun bool
	Yes    bool
	Force  bool
}

// maxAttempts bounds how often an unrecognized answer is asked again.
const maxAttempts = 3

// Confirm asks whether a destructive action may go ahead. Dry-run always
// declines; Yes and Force accept without asking. Otherwise details are listed
// one per line, followed by the question. Anything but yes/no is asked again,
// and an empty answer, end of input or a nil reader declines.
func Confirm(opts Options, in io.Reader, out io.Writer, question string, details ...string) (bool, error) {
	if opts.DryRun {
		return false, nil
	}
	if opts.Yes || opts.Force {
		return true, nil
	}
	if in == nil {
		return false, nil
	}
	if out == nil {
		out = io.Discard
	}

	for _, d := range details {
		fmt.Fprintf(out, "  %s\n", d)
	}
	r := bufio.NewReader(in)
	for attempt := 0; attempt < maxAttempts; attempt++ {
		fmt.Fprintf(out, "%s [y/N]: ", strings.TrimSpace(question))
		line, err := r.ReadString('\n')
		if err != nil && err != io.EOF {
			return false, err
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
			return true, nil
		case "", "n", "no":
			return false, nil
		}
		if err == io.EOF {
			return false, nil
		}
		fmt.Fprintln(out, "Please answer yes or no.")
	}
	return false, nil
}
