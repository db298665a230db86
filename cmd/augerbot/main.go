package main

import (
	"errors"
	"io/fs"
	"os"

	"github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"

	"github.com/gwillem/augerbot/pkg/robot"
)

type Options struct {
	Config  string `short:"c" long:"config" default:"augerbot.toml" description:"Config file (.toml or .json)"`
	EnvFile string `long:"env-file" default:".env" description:"Environment file loaded before the config"`

	Run   RunCommand   `command:"run" description:"Relay control commands to the robot controller"`
	Ports PortsCommand `command:"ports" description:"Find the robot controller's serial port"`
	Send  SendCommand  `command:"send" description:"Send one command batch to a running engine"`
}

var opts Options
var parser = flags.NewParser(&opts, flags.Default)

func main() {
	parser.LongDescription = "Augerbot - teleoperation bridge between a control endpoint and the robot's microcontroller"

	_, err := parser.Parse()
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				os.Exit(0)
			}
		}
		os.Exit(1)
	}
}

// loadConfig reads the env file and the config file, falling back to the
// defaults when the file does not exist, then applies env overrides.
func loadConfig(path, envFile string) (*robot.Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	var cfg *robot.Config
	if _, err := os.Stat(path); err == nil {
		cfg, err = robot.LoadConfigFrom(path)
		if err != nil {
			return nil, err
		}
	} else if errors.Is(err, fs.ErrNotExist) {
		def := robot.DefaultConfig()
		cfg = &def
	} else {
		return nil, err
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}
