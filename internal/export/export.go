// Package export writes truncation results to the text formats the
// surrounding tooling consumes: a transition list, a perimeter-state
// list, and a full model dump.
package export

import (
	"bufio"
	"fmt"
	"os"

	"stamina/internal/builder"
	"stamina/internal/logging"
	"stamina/internal/storage"
)

// Transitions writes "<from> <to> <rate>" lines, rows in id order.
func Transitions(path string, res *builder.Result) error {
	timer := logging.StartTimer(logging.CategoryExport, "export transitions")
	defer timer.Stop()

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("export transitions: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	m := res.Matrix
	for row := 0; row < m.NumRows(); row++ {
		cols, rates := m.Row(storage.StateID(row))
		for i, col := range cols {
			fmt.Fprintf(w, "%d %d %g\n", row, col, rates[i])
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("export transitions: %w", err)
	}
	logging.Export("wrote %d transitions to %s", m.NNZ(), path)
	return nil
}

// PerimeterStates appends the perimeter state ids and their variable
// valuations to a file, one state per line. Appending matches the
// surrounding tooling, which collects perimeters across runs.
func PerimeterStates(path string, res *builder.Result, vt varStringer) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("export perimeter states: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	fmt.Fprintf(w, "# run %s\n", res.RunID)
	for _, id := range res.Perimeter {
		fmt.Fprintf(w, "%d %s\n", id, vt.String(res.Index.StateOf(id)))
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("export perimeter states: %w", err)
	}
	logging.Export("appended %d perimeter states to %s", len(res.Perimeter), path)
	return nil
}

// varStringer renders a compressed state for humans.
type varStringer interface {
	String(cs storage.CompressedState) string
}

// Model writes a readable dump of the truncation: header, labels and the
// transition matrix.
func Model(path string, res *builder.Result, vt varStringer) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("export model: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	fmt.Fprintf(w, "# stamina truncation %s\n", res.RunID)
	fmt.Fprintf(w, "# method=%s states=%d transitions=%d pi_hat=%g iterations=%d\n",
		res.Method, res.NumStates(), res.Matrix.NNZ(), res.PiHat, res.Iterations)

	for label, ids := range res.Labels() {
		fmt.Fprintf(w, "label %q =", label)
		for _, id := range ids {
			fmt.Fprintf(w, " %d", id)
		}
		fmt.Fprintln(w)
	}

	for row := 0; row < res.Matrix.NumRows(); row++ {
		id := storage.StateID(row)
		cols, rates := res.Matrix.Row(id)
		for i, col := range cols {
			fmt.Fprintf(w, "%d %d %g\n", id, col, rates[i])
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("export model: %w", err)
	}
	logging.Export("wrote model dump to %s", path)
	return nil
}
