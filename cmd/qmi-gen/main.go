// Command qmi-gen generates the message and indication name tables of
// package wire from a YAML description.
//
// Usage:
//
//	qmi-gen -input names.yaml -output names_gen.go [-package wire]
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/tools/imports"
)

func main() {
	input := flag.String("input", "", "Names YAML file")
	output := flag.String("output", "", "Generated Go file")
	pkg := flag.String("package", "wire", "Package name of the generated file")
	flag.Parse()

	if *input == "" || *output == "" {
		fmt.Fprintln(os.Stderr, "Usage: qmi-gen -input <names.yaml> -output <file.go> [-package <name>]")
		flag.PrintDefaults()
		os.Exit(1)
	}

	if err := run(*input, *output, *pkg); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(input, output, pkg string) error {
	names, err := LoadNames(input)
	if err != nil {
		return fmt.Errorf("loading names: %w", err)
	}

	code, err := GenerateNames(names, pkg, filepath.Base(input))
	if err != nil {
		return fmt.Errorf("generating names: %w", err)
	}
	if err := writeFormatted(output, code); err != nil {
		return fmt.Errorf("writing %s: %w", filepath.Base(output), err)
	}
	fmt.Printf("  generated %s\n", output)
	return nil
}

// writeFormatted formats Go source code with goimports and writes it to a file.
func writeFormatted(path string, code string) error {
	formatted, err := imports.Process(path, []byte(code), nil)
	if err != nil {
		// Write unformatted so you can debug the generator output
		_ = os.WriteFile(path+".broken", []byte(code), 0o644)
		return fmt.Errorf("goimports %s: %w", filepath.Base(path), err)
	}
	return os.WriteFile(path, formatted, 0o644)
}
