package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/hashicorp/go-hclog"
	"github.com/mitchellh/cli"
	"lab47.dev/strata/pkg/cmd"
)

func main() {
	c := cli.NewCLI("strata", Version)
	c.Args = os.Args[1:]
	c.Commands = map[string]cli.CommandFactory{
		"build": func() (cli.Command, error) {
			return cmd.New(
				"build",
				"Build a package into an output directory, wrapping its executables",
				buildF,
			), nil
		},
		"reactivate": func() (cli.Command, error) {
			return cmd.New(
				"reactivate",
				"Re-source login files and print the merged environment dump",
				reactivateF,
			), nil
		},
		"wrap": func() (cli.Command, error) {
			return cmd.New(
				"wrap",
				"Patch shebangs and wrap executables of an existing output directory",
				wrapF,
			), nil
		},
		"pack-cache": func() (cli.Command, error) {
			return cmd.New(
				"pack-cache",
				"Pack a build working directory into a cache archive",
				packCacheF,
			), nil
		},
		"clean": func() (cli.Command, error) {
			return cmd.New(
				"clean",
				"Remove stale build leftovers from the build directory",
				cleanF,
			), nil
		},
		"version": func() (cli.Command, error) {
			return cmd.New(
				"version",
				"Print the version",
				versionF,
			), nil
		},
	}

	exitStatus, err := c.Run()
	if err != nil {
		log.Println(err)
	}

	os.Exit(exitStatus)
}

func logger(debug bool) hclog.Logger {
	level := hclog.Warn

	if debug || os.Getenv("STRATA_DEBUG") != "" {
		level = hclog.Trace
	}

	return hclog.New(&hclog.LoggerOptions{
		Name:   "strata",
		Level:  level,
		Output: os.Stderr,
	})
}

const Version = "0.1.0"

type versionOptions struct{}

func versionF(ctx context.Context, opts versionOptions) error {
	fmt.Printf("strata %s\n", Version)
	return nil
}
