package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"movecheck/internal/binary"
	"movecheck/internal/bundle"
	"movecheck/internal/verifier"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <bundle>",
	Short: "Print the pool sizes of every unit in a bundle",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := bundle.Read(args[0])
		if err != nil {
			return err
		}
		return writeInspect(cmd.OutOrStdout(), b)
	},
}

type poolSizes struct {
	name       string
	version    uint32
	handles    [3]int // module, struct, function
	signatures int
	constants  int
	structs    int
	functions  int
	code       int
}

func modulePools(name string, m *binary.CompiledModule) poolSizes {
	p := poolSizes{
		name:       name,
		version:    m.Version,
		handles:    [3]int{len(m.ModuleHandles), len(m.StructHandles), len(m.FunctionHandles)},
		signatures: len(m.Signatures),
		constants:  len(m.ConstantPool),
		structs:    len(m.StructDefs),
		functions:  len(m.FunctionDefs),
	}
	for _, def := range m.FunctionDefs {
		if def.Code != nil {
			p.code += len(def.Code.Code)
		}
	}
	return p
}

func scriptPools(name string, s *binary.CompiledScript) poolSizes {
	return poolSizes{
		name:       name,
		version:    s.Version,
		handles:    [3]int{len(s.ModuleHandles), len(s.StructHandles), len(s.FunctionHandles)},
		signatures: len(s.Signatures),
		constants:  len(s.ConstantPool),
		functions:  1,
		code:       len(s.Code.Code),
	}
}

func writeInspect(w io.Writer, b *bundle.Bundle) error {
	names := verifier.UnitNames(b)
	rows := make([]poolSizes, 0, len(names))
	for i, m := range b.Modules {
		rows = append(rows, modulePools(names[i], m))
	}
	for i, s := range b.Scripts {
		rows = append(rows, scriptPools(names[len(b.Modules)+i], s))
	}

	p := message.NewPrinter(language.English)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "unit\tversion\tmodules\tstructs\tfunctions\tsignatures\tconstants\tstruct defs\tfunction defs\tinstructions\t")
	total := 0
	for _, r := range rows {
		p.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%d\t%d\t%d\t%d\t%d\t\n",
			r.name, r.version, r.handles[0], r.handles[1], r.handles[2],
			r.signatures, r.constants, r.structs, r.functions, r.code)
		total += r.code
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := p.Fprintf(w, "%d units, %d instructions\n", len(rows), total)
	return err
}
