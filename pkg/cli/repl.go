// pkg/cli/repl.go
package cli

import (
	"fmt"
	"io"
	"strings"

	"firidx/pkg/btree"
)

// REPL drives one attached index from a line-oriented command stream.
type REPL struct {
	// ix is the attached index
	ix *btree.Index

	// shell handles input and prompting
	shell *Shell

	// output is where results are written
	output io.Writer

	// errOutput is where errors are written
	errOutput io.Writer
}

// NewREPL creates a REPL over an attached index with custom input/output
// streams.
func NewREPL(ix *btree.Index, input io.Reader, output, errOutput io.Writer) *REPL {
	if errOutput == nil {
		errOutput = output
	}
	return &REPL{
		ix:        ix,
		shell:     NewShell(input, output, errOutput),
		output:    output,
		errOutput: errOutput,
	}
}

// Run reads and executes commands until EOF or .exit.
func (r *REPL) Run() {
	fmt.Fprintf(r.output, "firidx: keysize=%d valuesize=%d\n", r.ix.KeySize(), r.ix.ValueSize())
	fmt.Fprintln(r.output, "Enter \".help\" for usage hints.")

	for {
		line, eof := r.shell.ReadCommand()
		if eof && line == "" {
			fmt.Fprintln(r.output)
			return
		}
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, ".") {
			if r.handleDotCommand(line) {
				return
			}
		} else if err := r.execute(line); err != nil {
			fmt.Fprintf(r.errOutput, "error: %v\n", err)
		}

		if eof {
			return
		}
	}
}

// execute runs one index operation command.
func (r *REPL) execute(line string) error {
	fields := strings.Fields(line)
	cmd := strings.ToLower(fields[0])
	args := fields[1:]

	switch cmd {
	case "insert":
		if len(args) != 2 {
			return fmt.Errorf("usage: insert <key> <value>")
		}
		if err := r.ix.Insert([]byte(args[0]), []byte(args[1])); err != nil {
			return err
		}
		fmt.Fprintln(r.output, "ok")
		return nil

	case "lookup":
		if len(args) != 1 {
			return fmt.Errorf("usage: lookup <key>")
		}
		value, err := r.ix.Lookup([]byte(args[0]))
		if err != nil {
			return err
		}
		fmt.Fprintf(r.output, "%s\n", value)
		return nil

	case "update":
		if len(args) != 2 {
			return fmt.Errorf("usage: update <key> <value>")
		}
		if err := r.ix.Update([]byte(args[0]), []byte(args[1])); err != nil {
			return err
		}
		fmt.Fprintln(r.output, "ok")
		return nil

	case "delete":
		if len(args) != 1 {
			return fmt.Errorf("usage: delete <key>")
		}
		return r.ix.Delete([]byte(args[0]))

	default:
		return fmt.Errorf("unknown command %q; try .help", cmd)
	}
}

// handleDotCommand runs a meta command. It returns true when the REPL
// should exit.
func (r *REPL) handleDotCommand(line string) bool {
	fields := strings.Fields(line)
	cmd := strings.ToLower(fields[0])
	args := fields[1:]

	switch cmd {
	case ".exit", ".quit":
		return true

	case ".help":
		r.printHelp()

	case ".display":
		mode := btree.DisplayDepth
		if len(args) > 0 {
			switch strings.ToLower(args[0]) {
			case "depth":
				mode = btree.DisplayDepth
			case "dot":
				mode = btree.DisplayDepthDot
			case "sorted":
				mode = btree.DisplaySortedKeyVal
			default:
				fmt.Fprintf(r.errOutput, "unknown display mode %q; want depth, dot or sorted\n", args[0])
				return false
			}
		}
		if err := r.ix.Display(r.output, mode); err != nil {
			fmt.Fprintf(r.errOutput, "error: %v\n", err)
		}

	case ".sanity":
		if err := r.ix.SanityCheck(); err != nil {
			fmt.Fprintf(r.errOutput, "sanity: %v\n", err)
		} else {
			fmt.Fprintln(r.output, "ok")
		}

	case ".stats":
		free, err := r.ix.FreeBlocks()
		if err != nil {
			fmt.Fprintf(r.errOutput, "error: %v\n", err)
			return false
		}
		fmt.Fprintf(r.output, "keys:       %d\n", r.ix.NumKeys())
		fmt.Fprintf(r.output, "root block: %d\n", r.ix.RootBlock())
		fmt.Fprintf(r.output, "free blocks: %d\n", free)

	default:
		fmt.Fprintf(r.errOutput, "unknown command %q; try .help\n", cmd)
	}
	return false
}

func (r *REPL) printHelp() {
	fmt.Fprintln(r.output, "Commands:")
	fmt.Fprintln(r.output, "  insert <key> <value>   store a new pair")
	fmt.Fprintln(r.output, "  lookup <key>           print the value for key")
	fmt.Fprintln(r.output, "  update <key> <value>   overwrite an existing pair")
	fmt.Fprintln(r.output, "  delete <key>           (not implemented)")
	fmt.Fprintln(r.output, "  .display [depth|dot|sorted]")
	fmt.Fprintln(r.output, "  .sanity                run the structural audit")
	fmt.Fprintln(r.output, "  .stats                 show counters")
	fmt.Fprintln(r.output, "  .help                  show this help")
	fmt.Fprintln(r.output, "  .exit                  quit")
}
