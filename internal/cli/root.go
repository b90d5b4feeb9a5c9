package cli

import "fmt"

// Run dispatches the adforge subcommands.
func Run(args []string) error {
	if len(args) == 0 {
		printRootUsage()
		return nil
	}

	switch args[0] {
	case "run":
		return runPipeline(args[1:])
	case "resume":
		return runResume(args[1:])
	case "list":
		return runList(args[1:])
	case "show":
		return runShow(args[1:])
	case "serve":
		return runServe(args[1:])
	case "help", "-h", "--help":
		printRootUsage()
		return nil
	default:
		printRootUsage()
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func printRootUsage() {
	fmt.Println("adforge: ad creative pipeline orchestrator")
	fmt.Println()
	fmt.Println("Quick Start:")
	fmt.Println("  adforge run https://example.com")
	fmt.Println("  adforge list")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  run      run the full pipeline for a landing page URL")
	fmt.Println("  resume   re-enter an interrupted job at its persisted stage")
	fmt.Println("  list     list recent jobs, newest first")
	fmt.Println("  show     print a job's stored snapshot as JSON (-audit for its trail)")
	fmt.Println("  serve    expose the engine over a local HTTP API")
	fmt.Println()
	fmt.Println("Notes:")
	fmt.Println("  - State lives under .adforge/ in the current directory")
	fmt.Println("  - During the approval gate: a approves all, r rejects, q cancels")
}
