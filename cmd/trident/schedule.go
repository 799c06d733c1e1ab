package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/groksrc/trident/pkg/project"
)

func cmdProjectSchedule(args []string) error {
	path, args := pathArg(args)

	fs := flag.NewFlagSet("project schedule", flag.ExitOnError)
	format := fs.String("format", "cron", "scheduler format: cron, systemd, launchd")
	spec := fs.String("spec", "0 * * * *", "cron schedule specification")
	show := fs.Bool("show", false, "preview the next run times")
	if err := fs.Parse(args); err != nil {
		return err
	}

	proj, err := project.Load(path)
	if err != nil {
		return err
	}

	schedule, err := cron.ParseStandard(*spec)
	if err != nil {
		return fmt.Errorf("invalid cron spec %q: %w", *spec, err)
	}

	if *show {
		next := time.Now()
		fmt.Printf("Next runs for %q:\n", *spec)
		for i := 0; i < 3; i++ {
			next = schedule.Next(next)
			fmt.Printf("  %s\n", next.Format(time.RFC3339))
		}
		return nil
	}

	binary, err := os.Executable()
	if err != nil {
		binary = "trident"
	}
	absRoot, err := filepath.Abs(proj.Root)
	if err != nil {
		absRoot = proj.Root
	}

	switch *format {
	case "cron":
		fmt.Printf("%s %s project run %s\n", *spec, binary, absRoot)

	case "systemd":
		fmt.Printf(`[Unit]
Description=Trident run of %[1]s

[Service]
Type=oneshot
ExecStart=%[2]s project run %[3]s
`, proj.Name, binary, absRoot)

	case "launchd":
		fmt.Printf(`<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
    <key>Label</key>
    <string>com.trident.%s</string>
    <key>ProgramArguments</key>
    <array>
        <string>%s</string>
        <string>project</string>
        <string>run</string>
        <string>%s</string>
    </array>
    <key>StartInterval</key>
    <integer>3600</integer>
</dict>
</plist>
`, proj.Name, binary, absRoot)

	default:
		return fmt.Errorf("unknown schedule format: %s", *format)
	}
	return nil
}
