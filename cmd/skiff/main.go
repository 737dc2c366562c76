// skiff - run .sk scripts or start an interactive session
//
// Build: go build ./cmd/skiff
// Usage:
//
//	skiff script.sk              # run a script
//	skiff -e '1 + 2'             # evaluate an expression
//	skiff                        # start the REPL
//	skiff -d script.sk           # print disassembly instead of running
//
// Exit codes: 0 on success, 1 on a runtime error, 2 on a compile error.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"

	"github.com/chazu/skiff/pkg/diag"
	"github.com/chazu/skiff/pkg/parser"
	"github.com/chazu/skiff/pkg/skiff"
)

const historyFile = ".skiff_history"

var (
	interactive = flag.Bool("i", false, "Start interactive REPL")
	evalExpr    = flag.String("e", "", "Evaluate an expression and print its value")
	disassemble = flag.Bool("d", false, "Print disassembly instead of running")
	configPath  = flag.String("config", "skiff.toml", "Path to the configuration file")
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: skiff [options] [script.sk]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  skiff hello.sk           # run a script\n")
		fmt.Fprintf(os.Stderr, "  skiff -e '6 * 7'         # evaluate and print\n")
		fmt.Fprintf(os.Stderr, "  skiff                    # start the REPL\n")
	}
	flag.Parse()

	engine, cache, err := buildEngine()
	if err != nil {
		fmt.Fprintf(os.Stderr, "skiff: %v\n", err)
		os.Exit(1)
	}
	if cache != nil {
		defer cache.Close()
	}

	switch {
	case *evalExpr != "":
		os.Exit(runSource(engine, "<eval>", "return "+*evalExpr, true))
	case *interactive || flag.NArg() == 0:
		os.Exit(runREPL(engine))
	case flag.NArg() == 1:
		os.Exit(runFile(engine, flag.Arg(0)))
	default:
		flag.Usage()
		os.Exit(2)
	}
}

// buildEngine loads the configuration and assembles an engine, opening
// the module cache when one is configured.
func buildEngine() (*skiff.Engine, *skiff.ModuleCache, error) {
	cfg, err := skiff.LoadConfig(*configPath)
	if err != nil {
		return nil, nil, err
	}
	opts := []skiff.Option{skiff.WithLimits(cfg.VMLimits())}
	var cache *skiff.ModuleCache
	if cfg.Cache.Enabled && cfg.Cache.Path != "" {
		cache, err = skiff.OpenModuleCache(cfg.Cache.Path)
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, skiff.WithCache(cache))
	}
	return skiff.New(opts...), cache, nil
}

func runFile(engine *skiff.Engine, path string) int {
	source, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "skiff: %v\n", err)
		return 1
	}
	return runSource(engine, filepath.Base(path), string(source), false)
}

// runSource compiles and executes one program. When printResult is set
// the script's value is displayed, the way the REPL does.
func runSource(engine *skiff.Engine, name, source string, printResult bool) int {
	script, err := engine.Compile(name, source)
	if err != nil {
		fmt.Fprintln(os.Stderr, engine.RenderError(nil, err))
		return 2
	}
	if *disassemble {
		fmt.Print(script.Disassemble())
		return 0
	}
	session := engine.NewSession(script)
	defer session.Close()
	result, err := session.Run()
	if err != nil {
		fmt.Fprintln(os.Stderr, engine.RenderError(script, err))
		return 1
	}
	if printResult && result != nil {
		fmt.Println(formatResult(result))
	}
	return 0
}

// ---- REPL ------------------------------------------------------------------

func runREPL(engine *skiff.Engine) int {
	fmt.Println("skiff repl. Type :help for help, Ctrl+D to exit.")

	home, _ := os.UserHomeDir()
	histPath := filepath.Join(home, historyFile)

	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)

	if f, err := os.Open(histPath); err == nil {
		_, _ = ln.ReadHistory(f)
		_ = f.Close()
	}

	for {
		code, ok := readEntry(ln, ">> ", ".. ")
		if !ok {
			fmt.Println()
			break
		}
		trimmed := strings.TrimSpace(code)
		if trimmed == "" {
			continue
		}
		if strings.HasPrefix(trimmed, ":") {
			if done := handleReplCommand(engine, trimmed); done {
				break
			}
			continue
		}

		// Bare expressions are wrapped so their value prints; anything
		// else runs as-is. Each entry is a fresh program.
		source := code
		if isExpression(code) {
			source = "return " + code
		}
		runSource(engine, "<repl>", source, true)
		ln.AppendHistory(strings.ReplaceAll(code, "\n", " "))
	}

	if f, err := os.Create(histPath); err == nil {
		_, _ = ln.WriteHistory(f)
		_ = f.Close()
	}
	return 0
}

// readEntry reads lines until the parser stops reporting an unexpected
// end of file, so block constructs can span multiple prompts.
func readEntry(ln *liner.State, prompt, cont string) (string, bool) {
	var b strings.Builder
	for {
		var line string
		var err error
		if b.Len() == 0 {
			line, err = ln.Prompt(prompt)
		} else {
			line, err = ln.Prompt(cont)
		}
		if errors.Is(err, io.EOF) {
			return "", false
		}
		if errors.Is(err, liner.ErrPromptAborted) {
			return "", true
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "skiff: %v\n", err)
			return "", false
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(line)
		if isComplete(b.String()) {
			return b.String(), true
		}
	}
}

// isComplete reports whether the buffer parses without running off the
// end of the input. Other parse errors count as complete so they get
// reported instead of trapping the user in continuation prompts.
func isComplete(source string) bool {
	_, diags := parser.Parse(diag.NewSource("<repl>", source))
	for _, d := range diags {
		if d.Code == diag.CodeUnexpectedEOF {
			return false
		}
	}
	return true
}

// isExpression reports whether the entry is a single bare expression.
func isExpression(source string) bool {
	_, diags := parser.Parse(diag.NewSource("<repl>", "return "+source))
	return !diag.HasErrors(diags)
}

func handleReplCommand(engine *skiff.Engine, line string) (exit bool) {
	fields := strings.Fields(line)
	switch fields[0] {
	case ":help":
		fmt.Println("  :help          show this help")
		fmt.Println("  :load FILE     run a script file")
		fmt.Println("  :dis CODE      disassemble an entry")
		fmt.Println("  :quit          exit")
	case ":quit", ":exit":
		return true
	case ":load":
		if len(fields) != 2 {
			fmt.Println("usage: :load FILE")
			return false
		}
		runFile(engine, fields[1])
	case ":dis":
		code := strings.TrimSpace(strings.TrimPrefix(line, ":dis"))
		if code == "" {
			fmt.Println("usage: :dis CODE")
			return false
		}
		script, err := engine.Compile("<repl>", code)
		if err != nil {
			fmt.Fprintln(os.Stderr, engine.RenderError(nil, err))
			return false
		}
		fmt.Print(script.Disassemble())
	default:
		fmt.Println("unknown command. Type :help for help.")
	}
	return false
}

// formatResult renders a converted host value for the terminal.
func formatResult(v interface{}) string {
	switch v := v.(type) {
	case string:
		return fmt.Sprintf("%q", v)
	case []interface{}:
		parts := make([]string, len(v))
		for i, e := range v {
			parts[i] = formatResult(e)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case map[string]interface{}:
		parts := make([]string, 0, len(v))
		for k, e := range v {
			parts = append(parts, k+" = "+formatResult(e))
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case float64:
		s := fmt.Sprintf("%g", v)
		if !strings.ContainsAny(s, ".eE") {
			s += ".0"
		}
		return s
	default:
		return fmt.Sprintf("%v", v)
	}
}
