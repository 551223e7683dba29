package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/pflag"

	"github.com/nhle/labconsole/internal/model"
)

func runConfig(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: labconsole config init|path")
	}

	path := configPath()
	switch args[0] {
	case "path":
		fmt.Println(path)
		return nil
	case "init":
		flags := pflag.NewFlagSet("config init", pflag.ContinueOnError)
		force := flags.Bool("force", false, "overwrite an existing config file")
		if err := flags.Parse(args[1:]); err != nil {
			return err
		}
		return initConfig(path, *force)
	default:
		return fmt.Errorf("unknown config command %q", args[0])
	}
}

// initConfig writes the effective configuration (defaults, the existing
// file when forced, and any environment overrides) to path.
func initConfig(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%s already exists, use --force to overwrite", path)
	} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	cfg, err := model.LoadConfig(path)
	if err != nil {
		return err
	}
	if err := model.SaveConfig(path, cfg); err != nil {
		return err
	}
	fmt.Printf("Wrote %s\n", path)
	return nil
}
