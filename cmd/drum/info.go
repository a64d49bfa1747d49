package main

import (
	"flag"
	"fmt"
	"os"

	"drumkit/drum"
)

func createInfoCommand() *command {

	args := logArgs{}

	flags := flag.NewFlagSet("info", flag.ExitOnError)

	registerLogFlags(flags, &args)

	return &command{
		Name: "info",
		Help: "print a summary of drum files",
		Run: func(self *command) error {
			if self.Flags.NArg() < 1 {
				printCommandUsage(self, " file...")
			}
			setupLogging(args)

			for i, p := range self.Flags.Args() {
				if i > 0 {
					fmt.Println()
				}
				d, err := drum.ReadFile(p)
				if err != nil {
					return err
				}
				fmt.Printf("%s\n", p)
				if err := d.WriteSummary(os.Stdout); err != nil {
					return err
				}
			}
			return nil
		},
		Flags: flags,
	}
}
