// Copyright 2025 Flant JSC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"errors"
	"flag"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-logr/logr"

	"github.com/aleksandr-podmoskovniy/gpu-telemetry/internal/app"
	"github.com/aleksandr-podmoskovniy/gpu-telemetry/internal/config"
	"github.com/aleksandr-podmoskovniy/gpu-telemetry/pkg/logger"
)

var (
	loadConfigFile = config.LoadFile
	runApp         = app.Run

	newLogger func(development bool) logr.Logger = logger.New

	setupSignals = func() (context.Context, context.CancelFunc) {
		return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	}
)

func main() {
	os.Exit(runMain(os.Args[1:], os.Getenv))
}

func runMain(args []string, getenv func(string) string) int {
	flagSet := flag.NewFlagSet("gpumond", flag.ExitOnError)
	configFlag := flagSet.String("config", "", "path to the config file")
	development := flagSet.Bool("dev", false, "enable development logging")
	if err := flagSet.Parse(args); err != nil {
		return 1
	}

	log := newLogger(*development).WithName("gpumond")

	sysCfg := config.DefaultSystem()
	configPath := *configFlag
	if configPath == "" {
		configPath = getenv("CONFIG_PATH")
	}
	if configPath == "" {
		configPath = "./config.yaml"
	}

	if info, err := os.Stat(configPath); err == nil && !info.IsDir() {
		loaded, err := loadConfigFile(configPath)
		if err != nil {
			log.Error(err, "failed to load config", "path", configPath)
			return 1
		}
		sysCfg = loaded
	} else if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			log.Error(err, "failed to access config", "path", configPath)
			return 1
		}
		log.Info("config file not found, using defaults", "path", configPath)
	}

	ctx, cancel := setupSignals()
	defer cancel()

	if err := runApp(ctx, log, sysCfg); err != nil {
		log.Error(err, "daemon exited with error")
		return 1
	}

	return 0
}
