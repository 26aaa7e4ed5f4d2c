// evolve: self-improvement workflow engine over MCP.
//
// Proposals for changing the system move through review, approval,
// implementation and rollback, with filesystem snapshots taken at the
// implementation boundary so every change can be undone.
//
// Usage:
//
//	evolve serve    # Start MCP server (stdio transport)
//	evolve report   # Print the current report
//	evolve init     # Write a default config file
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/mark3labs/mcp-go/server"

	"github.com/HendryAvila/evolve/internal/config"
	"github.com/HendryAvila/evolve/internal/logging"
	evolveserver "github.com/HendryAvila/evolve/internal/server"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "serve":
		err = run()
	case "report":
		err = runReport()
	case "init":
		err = runInit()
	case "--help", "-h", "help":
		printUsage()
		os.Exit(0)
	case "--version", "-v", "version":
		fmt.Printf("evolve v%s\n", evolveserver.Version)
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load("")
	if err != nil {
		return err
	}
	logger := logging.New(cfg.LogLevel)

	s, cleanup, err := evolveserver.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	defer cleanup()

	// ServeStdio stops on SIGINT/SIGTERM.
	return server.ServeStdio(s)
}

// runReport prints the markdown report to stdout.
func runReport() error {
	cfg, err := config.Load("")
	if err != nil {
		return err
	}
	e, cleanup, err := evolveserver.NewEngine(cfg, logging.New(cfg.LogLevel))
	if err != nil {
		return err
	}
	defer cleanup()

	text, err := e.GenerateReport()
	if err != nil {
		return err
	}
	fmt.Print(text)
	return nil
}

// runInit writes the default configuration unless a file already exists.
func runInit() error {
	path := os.Getenv(config.EnvPath)
	cfg := config.DefaultConfig()
	if path == "" {
		path = filepath.Join(cfg.DataDir, config.FileName)
	}
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config already exists at %s", path)
	}
	if err := cfg.SaveToFile(path); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Wrote %s\nAdd tracked_paths to choose what implementation snapshots capture.\n", path)
	return nil
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `evolve v%s: self-improvement workflow engine

Usage:
  evolve serve    Start the MCP server (stdio transport)
  evolve report   Print the current report
  evolve init     Write a default config file
  evolve version  Print the version

Environment:
  %s    Config file (default: <data_dir>/%s)
  %s  Data directory (default: ~/.evolve)

Configuration:
  Add to your AI tool's MCP config:

  {
    "mcpServers": {
      "evolve": {
        "command": "evolve",
        "args": ["serve"]
      }
    }
  }
`, evolveserver.Version, config.EnvPath, config.FileName, config.EnvDataDir)
}
