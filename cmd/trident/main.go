// Trident CLI - workflow orchestration runtime.
package main

import (
	"fmt"
	"os"

	"github.com/groksrc/trident/pkg/models"
)

const version = "0.1.0"

const usage = `Trident - lightweight agent orchestration runtime

USAGE:
    trident <command> [options]

COMMANDS:
    project init [path]       Scaffold a new Trident project
    project validate [path]   Validate a project (exit 2 on failure)
    project graph [path]      Visualize the project DAG
    project run [path]        Execute a project
    project runs [path]       List recorded runs
    project schedule [path]   Emit a scheduler snippet for the project
    project signals [path]    List or clear orchestration signals
    version                   Show version information
    help                      Show this help message

Run 'trident project <command> -h' for command-specific options.
`

func main() {
	os.Exit(int(run(os.Args[1:])))
}

func run(args []string) models.ExitCode {
	if len(args) == 0 {
		fmt.Print(usage)
		return models.ExitSuccess
	}

	switch args[0] {
	case "version", "--version":
		fmt.Printf("trident %s\n", version)
		return models.ExitSuccess

	case "help", "-h", "--help":
		fmt.Print(usage)
		return models.ExitSuccess

	case "project":
		if len(args) < 2 {
			fmt.Print(usage)
			return models.ExitSuccess
		}
		return runProjectCommand(args[1], args[2:])

	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n%s", args[0], usage)
		return models.ExitRuntimeError
	}
}

func runProjectCommand(sub string, args []string) models.ExitCode {
	var err error
	switch sub {
	case "init":
		err = cmdProjectInit(args)
	case "validate":
		err = cmdProjectValidate(args)
	case "graph":
		err = cmdProjectGraph(args)
	case "run":
		err = cmdProjectRun(args)
	case "runs":
		err = cmdProjectRuns(args)
	case "schedule":
		err = cmdProjectSchedule(args)
	case "signals":
		err = cmdProjectSignals(args)
	default:
		fmt.Fprintf(os.Stderr, "unknown project command: %s\n\n%s", sub, usage)
		return models.ExitRuntimeError
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return models.ExitCodeFor(err)
	}
	return models.ExitSuccess
}

// pathArg extracts the optional positional project path, defaulting to ".".
func pathArg(args []string) (string, []string) {
	if len(args) > 0 && len(args[0]) > 0 && args[0][0] != '-' {
		return args[0], args[1:]
	}
	return ".", args
}
