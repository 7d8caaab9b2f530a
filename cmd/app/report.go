package main

import (
	"errors"
	"fmt"
	"io"
	"strings"
)

var (
	helpParams  = map[string]bool{"-help": true, "--help": true, "-h": true}
	debugParams = map[string]bool{"-debug": true, "--debug": true}

	// Older scripts call the commands with a leading dash.
	legacyCommands = map[string]string{
		"-create_sequencer":      "create-sequencer",
		"-create_viseme_mapping": "create-viseme-mapping",
	}
)

// stripStandardParams removes the help and debug switches from anywhere in
// args so they never count as positional arguments.
func stripStandardParams(args []string) (out []string, help, debug bool) {
	out = make([]string, 0, len(args))
	for i, a := range args {
		switch {
		case i == 0:
			out = append(out, a)
		case helpParams[a]:
			help = true
		case debugParams[a]:
			debug = true
		case legacyCommands[a] != "":
			out = append(out, legacyCommands[a])
		default:
			out = append(out, a)
		}
	}
	return out, help, debug
}

// commandName returns the first positional argument, skipping root flags.
func commandName(args []string) string {
	for i := 1; i < len(args); i++ {
		a := args[i]
		if a == "--config" || a == "-config" || a == "-c" {
			i++
			continue
		}
		if strings.HasPrefix(a, "-") {
			continue
		}
		return a
	}
	return ""
}

func commandDoc(name string) (string, bool) {
	switch name {
	case "create-sequencer", "create_sequencer":
		return sequencerDoc, true
	case "create-viseme-mapping", "create_viseme_mapping":
		return mappingDoc, true
	case "serve":
		return serveDoc, true
	case "mcp":
		return mcpDoc, true
	case "history":
		return historyDoc, true
	}
	return "", false
}

func generalUsage() string {
	var b strings.Builder
	b.WriteString("List of possible commands:\n")
	for _, c := range newRootCommand(false).Commands {
		fmt.Fprintf(&b, "  %-22s %s\n", c.Name, c.Usage)
	}
	b.WriteString("\nList of parameters that can be used with every command:\n")
	b.WriteString("  -help    print the command documentation\n")
	b.WriteString("  -debug   verbose logging and detailed errors\n")
	b.WriteString("  --config path to config file (before the command)\n")
	return b.String()
}

// printHelp writes the documentation of the command named in args, or the
// command list when there is none.
func printHelp(w io.Writer, args []string) {
	if doc, ok := commandDoc(commandName(args)); ok {
		fmt.Fprintln(w, doc)
		return
	}
	fmt.Fprint(w, generalUsage())
}

// reportError prints err. Command line shape errors come with the command
// documentation; everything else with a --debug hint, or the wrapped chain
// when debug is set.
func reportError(w io.Writer, err error, debug bool) {
	fmt.Fprintf(w, "Error: %v\n", err)

	var ue *usageError
	if errors.As(err, &ue) {
		fmt.Fprintf(w, "\n%s\n", ue.doc)
		return
	}
	if !debug {
		fmt.Fprintln(w, "Rerun with --debug for details.")
		return
	}
	fmt.Fprintln(w, "\nError chain:")
	for e := err; e != nil; e = errors.Unwrap(e) {
		fmt.Fprintf(w, "  %T: %v\n", e, e)
	}
}
