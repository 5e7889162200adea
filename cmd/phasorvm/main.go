// phasorvm is the minimal host for the Phasor bytecode VM: it loads a
// compiled .phsb (binary) or .phir (textual) bytecode container,
// registers the array natives, and executes it to completion.
//
// There is no lexer/parser in this module (see pkg/ast's doc comment),
// so phasorvm never compiles Phasor source directly — only the two
// bytecode container formats are accepted. A front end that produces
// an *ast.Program can turn it into a container with pkg/codegen plus
// pkg/binarycodec.Encode or pkg/textir.Encode.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/dmcguire/phasor/pkg/binarycodec"
	"github.com/dmcguire/phasor/pkg/bytecode"
	"github.com/dmcguire/phasor/pkg/textir"
	"github.com/dmcguire/phasor/pkg/vm"
)

const version = "0.1.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "version", "-v", "--version":
		fmt.Printf("phasorvm version %s\n", version)
	case "help", "-h", "--help":
		printUsage()
	case "run":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "error: no file specified")
			printUsage()
			os.Exit(1)
		}
		runFile(os.Args[2])
	case "disassemble", "disasm":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "error: no file specified")
			os.Exit(1)
		}
		disassembleFile(os.Args[2])
	default:
		runFile(os.Args[1])
	}
}

func printUsage() {
	fmt.Println("phasorvm - the Phasor bytecode virtual machine")
	fmt.Println("\nUsage:")
	fmt.Println("  phasorvm [file]              Run a .phsb or .phir container")
	fmt.Println("  phasorvm run [file]          Run a .phsb or .phir container")
	fmt.Println("  phasorvm disassemble [file]  Print a container's instruction table")
	fmt.Println("  phasorvm version             Show version")
	fmt.Println("  phasorvm help                Show this help")
	fmt.Println("\nFile Extensions:")
	fmt.Println("  .phsb   Binary container (CRC32-checked)")
	fmt.Println("  .phir   Textual IR container")
}

func loadContainer(filename string) (*bytecode.Bytecode, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", filename, err)
	}
	defer f.Close()

	if filepath.Ext(filename) == ".phir" {
		return textir.Decode(f)
	}
	return binarycodec.Decode(f)
}

func runFile(filename string) {
	bc, err := loadContainer(filename)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading %s: %v\n", filename, err)
		os.Exit(1)
	}

	v := vm.New()
	h := v.Load(bc)
	if err := v.Execute(h); err != nil {
		fmt.Fprintf(os.Stderr, "runtime error: %v\n", err)
		os.Exit(1)
	}
}

func disassembleFile(filename string) {
	bc, err := loadContainer(filename)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading %s: %v\n", filename, err)
		os.Exit(1)
	}
	textir.DumpTable(bc, os.Stdout)
}
