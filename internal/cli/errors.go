package cli

import (
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/bool64/ctxd"
)

// ReportError prints err and any structured fields attached along the way.
func ReportError(w io.Writer, err error) {
	fmt.Fprintf(w, "Error: %v\n", err)

	var se ctxd.StructuredError
	if !errors.As(err, &se) {
		return
	}
	fields := se.Fields()
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "  %s: %v\n", k, fields[k])
	}
}
