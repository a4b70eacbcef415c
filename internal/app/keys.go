package app

import (
	"fmt"
	"io"
	"text/tabwriter"
)

// PrintKeys lists the activity vocabulary in effect, or writes the raw document.
func (a *App) PrintKeys(w io.Writer, raw bool) error {
	schema, err := a.loadSchema()
	if err != nil {
		return err
	}
	if raw {
		_, err := w.Write(schema.Raw())
		return err
	}

	writer := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(writer, "version %d\n", schema.Version())
	fmt.Fprintln(writer, "Section\tKey\tDisplay name")
	for _, e := range schema.Stats() {
		fmt.Fprintf(writer, "stat\t%s\t%s\n", e.Key, e.Name)
	}
	for _, e := range schema.Windows() {
		fmt.Fprintf(writer, "window\t%s\t%s\n", e.Key, e.Name)
	}
	for _, e := range schema.Selections() {
		fmt.Fprintf(writer, "selection\t%s\t%s\n", e.Key, e.Name)
	}
	return writer.Flush()
}
