package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/joho/godotenv"

	"github.com/nhle/labconsole/internal/model"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// configPath returns $LABCONSOLE_CONFIG or the default config location.
func configPath() string {
	if p := os.Getenv(model.EnvPrefix + "_CONFIG"); p != "" {
		return p
	}
	return model.DefaultConfigPath()
}

func run(args []string) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading .env: %w", err)
	}

	cmd := "watch"
	if len(args) > 0 {
		cmd, args = args[0], args[1:]
	}

	switch cmd {
	case "--version", "version", "-v":
		fmt.Println("labconsole " + version)
		return nil
	case "help", "--help", "-h":
		printHelp(os.Stdout)
		return nil
	case "config":
		return runConfig(args)
	}

	cfg, err := model.LoadConfig(configPath())
	if err != nil {
		return err
	}

	switch cmd {
	case "watch":
		return runWatch(cfg, args)
	case "login":
		return runLogin(args)
	case "logout":
		return runLogout()
	case "list":
		return runList(cfg, args, os.Stdout)
	default:
		printHelp(os.Stderr)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func printHelp(w io.Writer) {
	fmt.Fprint(w, `labconsole - lab console notifications in the terminal

Usage:
  labconsole [watch] [--metrics-addr ADDR]   open the live notification view
  labconsole login [--token T --username U]  store the session token and profile
  labconsole logout                          remove the stored session
  labconsole list [--archived] [--offline]   print notifications and exit
  labconsole config init [--force]           write the default config file
  labconsole config path                     print the config file location
  labconsole version                         print the version

Configuration is read from $LABCONSOLE_CONFIG or ~/.config/labconsole/config.yaml.
Any key can be overridden from the environment, e.g. LABCONSOLE_API_BASE_URL.
`)
}
