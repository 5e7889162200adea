// Package vm - debugger support
package vm

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/davecgh/go-spew/spew"
	"github.com/fatih/color"

	"github.com/dmcguire/phasor/pkg/bytecode"
	"github.com/dmcguire/phasor/pkg/isa"
)

// Debugger provides interactive debugging for a single Instance attached
// to a VM. Breakpoints and step mode apply to that Instance's active
// Frame's program counter.
type Debugger struct {
	vm          *VM
	handle      InstanceHandle
	breakpoints map[int]bool
	stepMode    bool
	enabled     bool
}

// NewDebugger creates a debugger attached to h.
func NewDebugger(vm *VM, h InstanceHandle) *Debugger {
	return &Debugger{
		vm:          vm,
		handle:      h,
		breakpoints: make(map[int]bool),
	}
}

// Enable activates the debugger.
func (d *Debugger) Enable() { d.enabled = true }

// Disable deactivates the debugger.
func (d *Debugger) Disable() { d.enabled = false }

// SetStepMode enables or disables step mode.
func (d *Debugger) SetStepMode(enabled bool) { d.stepMode = enabled }

// AddBreakpoint adds a breakpoint at the given instruction index.
func (d *Debugger) AddBreakpoint(pc int) { d.breakpoints[pc] = true }

// RemoveBreakpoint removes a breakpoint at the given instruction index.
func (d *Debugger) RemoveBreakpoint(pc int) { delete(d.breakpoints, pc) }

// ClearBreakpoints removes every breakpoint.
func (d *Debugger) ClearBreakpoints() { d.breakpoints = make(map[int]bool) }

func (d *Debugger) instance() *Instance {
	inst, err := d.vm.instance(d.handle)
	if err != nil {
		return nil
	}
	return inst
}

// ShouldPause reports whether execution should pause before the active
// Frame's current instruction.
func (d *Debugger) ShouldPause() bool {
	if !d.enabled {
		return false
	}
	if d.stepMode {
		return true
	}
	inst := d.instance()
	if inst == nil {
		return false
	}
	return d.breakpoints[inst.activeFrame().PC]
}

// ShowCurrentInstruction prints the instruction about to execute.
func (d *Debugger) ShowCurrentInstruction() {
	inst := d.instance()
	if inst == nil {
		fmt.Println("no instance attached")
		return
	}
	f := inst.activeFrame()
	if f.PC >= len(inst.Code.Instructions) {
		fmt.Println("program counter past end of instruction stream")
		return
	}
	printInstruction(f.PC, inst.Code)
}

func printInstruction(pc int, bc *bytecode.Bytecode) {
	ins := bc.Instructions[pc]
	fmt.Printf("  %s", color.CyanString("%4d: %s", pc, ins.Op))
	for i := 0; i < isa.OperandCount(ins.Op); i++ {
		fmt.Printf(" %d", ins.Operands[i])
	}
	fmt.Println()
}

// ShowStack prints the active Frame's operand stack, top first.
func (d *Debugger) ShowStack() {
	inst := d.instance()
	if inst == nil {
		return
	}
	f := inst.activeFrame()
	fmt.Println("Operand stack (top to bottom):")
	if len(f.Stack) == 0 {
		fmt.Println("  (empty)")
		return
	}
	for i := len(f.Stack) - 1; i >= 0; i-- {
		fmt.Printf("  [%d] %s", i, spew.Sdump(f.Stack[i]))
	}
}

// ShowRegisters prints the active Frame's non-Null registers.
func (d *Debugger) ShowRegisters() {
	inst := d.instance()
	if inst == nil {
		return
	}
	f := inst.activeFrame()
	fmt.Println("Registers:")
	any := false
	for i, v := range f.Registers {
		if v.Kind() == 0 {
			continue
		}
		any = true
		fmt.Printf("  r%d = %v\n", i, v)
	}
	if !any {
		fmt.Println("  (none set)")
	}
}

// ShowLocals prints the active Frame's frame-local variable slots.
func (d *Debugger) ShowLocals() {
	inst := d.instance()
	if inst == nil {
		return
	}
	f := inst.activeFrame()
	fmt.Println("Locals:")
	if f.Locals == nil {
		fmt.Println("  (bottom frame has no locals; see globals)")
		return
	}
	for i, v := range f.Locals {
		fmt.Printf("  [%d] %v\n", i, v)
	}
}

// ShowGlobals prints the Instance's top-level Variables array.
func (d *Debugger) ShowGlobals() {
	inst := d.instance()
	if inst == nil {
		return
	}
	fmt.Println("Globals:")
	if len(inst.Variables) == 0 {
		fmt.Println("  (none)")
		return
	}
	for i, v := range inst.Variables {
		fmt.Printf("  [%d] %v\n", i, v)
	}
}

// ShowCallStack prints the Instance's Frames, innermost last.
func (d *Debugger) ShowCallStack() {
	inst := d.instance()
	if inst == nil {
		return
	}
	fmt.Println("Call stack (bottom to top):")
	for i, f := range inst.Frames {
		name := f.FuncName
		if name == "" {
			name = "<top-level>"
		}
		fmt.Printf("  #%d %s [pc=%d]\n", i, name, f.PC)
	}
}

// InteractivePrompt pauses execution and reads debugger commands from
// stdin until the user resumes or quits.
func (d *Debugger) InteractivePrompt() (continueExecution bool) {
	scanner := bufio.NewScanner(os.Stdin)

	color.Yellow("\n=== Debugger Paused ===")
	d.ShowCurrentInstruction()

	for {
		fmt.Print("debug> ")
		if !scanner.Scan() {
			return false
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		parts := strings.Fields(line)
		switch parts[0] {
		case "help", "h", "?":
			d.printHelp()
		case "continue", "c":
			d.SetStepMode(false)
			return true
		case "step", "s", "next", "n":
			d.SetStepMode(true)
			return true
		case "stack", "st":
			d.ShowStack()
		case "registers", "r":
			d.ShowRegisters()
		case "locals", "l":
			d.ShowLocals()
		case "globals", "g":
			d.ShowGlobals()
		case "callstack", "cs":
			d.ShowCallStack()
		case "instruction", "i":
			d.ShowCurrentInstruction()
		case "breakpoint", "b":
			if len(parts) < 2 {
				fmt.Println("usage: breakpoint <pc>")
				continue
			}
			pc, err := strconv.Atoi(parts[1])
			if err != nil {
				fmt.Println("invalid instruction index")
				continue
			}
			d.AddBreakpoint(pc)
			fmt.Printf("breakpoint added at %d\n", pc)
		case "delete", "d":
			if len(parts) < 2 {
				fmt.Println("usage: delete <pc>")
				continue
			}
			pc, err := strconv.Atoi(parts[1])
			if err != nil {
				fmt.Println("invalid instruction index")
				continue
			}
			d.RemoveBreakpoint(pc)
			fmt.Printf("breakpoint removed at %d\n", pc)
		case "list", "ls":
			d.listInstructions()
		case "quit", "q":
			return false
		default:
			fmt.Printf("unknown command: %s (type 'help' for commands)\n", parts[0])
		}
	}
}

func (d *Debugger) printHelp() {
	fmt.Println("Debugger commands:")
	fmt.Println("  help, h, ?           show this help")
	fmt.Println("  continue, c          resume execution")
	fmt.Println("  step, s, next, n     execute one instruction")
	fmt.Println("  stack, st            show the active frame's operand stack")
	fmt.Println("  registers, r         show the active frame's registers")
	fmt.Println("  locals, l            show the active frame's locals")
	fmt.Println("  globals, g           show the instance's top-level variables")
	fmt.Println("  callstack, cs        show the frame stack")
	fmt.Println("  instruction, i       show the current instruction")
	fmt.Println("  breakpoint <n>, b    add a breakpoint at instruction n")
	fmt.Println("  delete <n>, d        remove a breakpoint at instruction n")
	fmt.Println("  list, ls             list all instructions")
	fmt.Println("  quit, q              quit debugging")
}

func (d *Debugger) listInstructions() {
	inst := d.instance()
	if inst == nil {
		return
	}
	pc := inst.activeFrame().PC
	fmt.Println("Instructions:")
	for i := range inst.Code.Instructions {
		marker := "  "
		if i == pc {
			marker = "->"
		} else if d.breakpoints[i] {
			marker = "* "
		}
		fmt.Print(marker)
		printInstruction(i, inst.Code)
	}
}
