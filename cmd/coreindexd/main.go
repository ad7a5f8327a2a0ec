// Command coreindexd is the metadata-indexing core daemon: it crawls and
// watches the configured modules and reports file-level changes to an
// external indexer process over a Unix-domain RPC socket.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"coreindexd/internal/app"
	"coreindexd/internal/logging"
	"coreindexd/internal/setup"
	"coreindexd/internal/utils"
)

func main() {
	exeDir, err := utils.ExeDir()
	if err != nil {
		exeDir, _ = os.Getwd()
	}

	defaultConfigDir := setup.GetDefaultConfigDir(exeDir)
	defaultDataDir := filepath.Join(exeDir, "data")
	defaultLogDir := filepath.Join(exeDir, "logs")
	defaultSocket := filepath.Join(os.TempDir(), "coreindexd-indexer.sock")

	configDir := flag.String("config-dir", defaultConfigDir, "directory holding config.ini and modules/*.toml")
	dataDir := flag.String("data-dir", defaultDataDir, "directory for on-disk state (first-run marker); its free space is watched")
	logDir := flag.String("log-dir", defaultLogDir, "directory for daily log files")
	noLogs := flag.Bool("no-logs", false, "log to stdout only, skip file logging")
	indexerSocket := flag.String("indexer-socket", defaultSocket, "Unix-domain socket path for the indexer RPC connection")
	flag.Parse()

	opts := app.Options{
		ConfigDir: *configDir,
		DataDir:   *dataDir,
		LogSettings: logging.LogSettings{
			NoLogs: *noLogs,
			LogDir: *logDir,
		},
		IndexerSocket: *indexerSocket,
	}

	if err := os.MkdirAll(opts.DataDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "coreindexd: create data dir: %v\n", err)
		os.Exit(1)
	}

	if err := app.RunUntilSignal(opts); err != nil {
		fmt.Fprintf(os.Stderr, "coreindexd: %v\n", err)
		os.Exit(1)
	}
}
