// yaplc compiles an analyzed YAPL program into JVM class files.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/chazu/yapl/classfile"
	"github.com/chazu/yapl/codegen"
	"github.com/chazu/yapl/compiler"
	"github.com/chazu/yapl/manifest"
	"github.com/chazu/yapl/vm"
)

var (
	red    = color.New(color.FgRed).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	green  = color.New(color.FgGreen).SprintFunc()
)

func fatal(msg any) {
	fmt.Fprintf(os.Stderr, "%s %v\n", red("error:"), msg)
	os.Exit(1)
}

func main() {
	outDir := flag.String("o", "", "Output directory for .class files (default \"classes\")")
	major := flag.Int("major", 0, "Class file major version (default 58)")
	vardump := flag.String("vardump", "", "Comma separated lines before which all visible variables are printed")
	watch := flag.String("watch", "", "Comma separated lines whose values are printed, or \"all\"")
	calltrace := flag.String("calltrace", "", "Comma separated procedures whose arguments are printed on entry")
	noProfile := flag.Bool("no-profile", false, "Ignore the [profile] section of yapl.toml")
	dump := flag.Bool("dump", false, "Print a disassembly of every generated class")
	run := flag.Bool("run", false, "Execute main in the built-in interpreter after compiling")
	verbosity := flag.Int("v", 0, "Log verbosity (1 info, 2 debug)")
	logFile := flag.String("log", "", "Write logs to this file instead of stderr")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: yaplc [options] [program.yir | project-dir]\n\n")
		fmt.Fprintf(os.Stderr, "Compiles an analyzed YAPL program into JVM class files.\n")
		fmt.Fprintf(os.Stderr, "Without a .yir argument the nearest yapl.toml names the program.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  yaplc sieve.yir                  # Write classes/Sieve.class\n")
		fmt.Fprintf(os.Stderr, "  yaplc -watch all -run sieve.yir  # Instrument every line and run\n")
		fmt.Fprintf(os.Stderr, "  yaplc -dump ./project            # Build from yapl.toml, print bytecode\n")
	}
	flag.Parse()

	var logPath *string
	if *logFile != "" {
		logPath = logFile
	}
	commonlog.Configure(*verbosity, logPath)

	if flag.NArg() > 1 {
		flag.Usage()
		os.Exit(2)
	}
	target := "."
	if flag.NArg() == 1 {
		target = flag.Arg(0)
	}

	programPath, settings, err := resolve(target, *noProfile)
	if err != nil {
		fatal(err)
	}

	// Explicit flags override the manifest.
	if *outDir != "" {
		settings.OutputDir = *outDir
	}
	if *major != 0 {
		if settings.Major, err = majorVersion(*major); err != nil {
			fatal(fmt.Errorf("-major: %w", err))
		}
	}
	if *vardump != "" {
		if settings.Profile.Vardump, err = parseLines(*vardump); err != nil {
			fatal(fmt.Errorf("-vardump: %w", err))
		}
	}
	if *watch == "all" {
		settings.Profile.WatchAll = true
	} else if *watch != "" {
		if settings.Profile.Watch, err = parseLines(*watch); err != nil {
			fatal(fmt.Errorf("-watch: %w", err))
		}
	}
	if *calltrace != "" {
		settings.Profile.CallTrace = splitList(*calltrace)
	}

	prog, err := compiler.LoadProgram(programPath)
	if err != nil {
		fatal(err)
	}
	ctx := compiler.NewContext(settings)
	out, err := ctx.Build(prog)
	if err != nil {
		fatal(err)
	}
	fmt.Fprintf(os.Stderr, "%s %d classes in %s\n", green("compiled"), len(out.Classes), settings.OutputDir)

	if *dump {
		for _, c := range out.Classes {
			cf, err := classfile.Parse(c.Data)
			if err != nil {
				fatal(fmt.Errorf("%s: %w", c.File, err))
			}
			fmt.Println(classfile.Disassemble(cf))
		}
	}

	if *run {
		machine, err := vm.Load(out.Images()...)
		if err != nil {
			fatal(err)
		}
		if err := machine.Run(out.MainClass(), os.Stdin, os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "%s %v\n", yellow("exception:"), err)
			os.Exit(1)
		}
	}
}

// resolve maps the command line target to a program path and settings.
// A .yir file compiles with defaults unless a yapl.toml sits above it.
func resolve(target string, noProfile bool) (string, compiler.Settings, error) {
	settings := compiler.DefaultSettings()

	info, err := os.Stat(target)
	if err != nil {
		return "", settings, err
	}
	dir := target
	if !info.IsDir() {
		dir = filepath.Dir(target)
	}

	m, err := manifest.FindAndLoad(dir)
	if err != nil {
		return "", settings, err
	}
	if m != nil {
		settings = compiler.SettingsFromManifest(m)
		if noProfile {
			settings.Profile = codegen.ProfileOptions{}
		}
	}

	if !info.IsDir() {
		return target, settings, nil
	}
	if m == nil || m.ProgramPath() == "" {
		return "", settings, fmt.Errorf("%s: no program given and no yapl.toml with project.program found", target)
	}
	return m.ProgramPath(), settings, nil
}

func majorVersion(v int) (uint16, error) {
	if err := manifest.CheckMajorVersion(v); err != nil {
		return 0, err
	}
	return uint16(v), nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseLines(s string) ([]int, error) {
	var lines []int
	for _, part := range splitList(s) {
		n, err := strconv.Atoi(part)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("%q is not a line number", part)
		}
		lines = append(lines, n)
	}
	return lines, nil
}
