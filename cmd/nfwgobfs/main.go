package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/iwl-dev/nfwgobfs"
)

const (
	exitConfigError  = 1
	exitBindError    = 2
	exitRuntimeError = 3
)

var version = "0.2.0"

var (
	flagQueue         int
	flagGenerateUnits bool
	flagUnitDir       string
)

func main() {
	logrus.SetOutput(os.Stderr)
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	root := &cobra.Command{
		Use:     "nfwgobfs",
		Short:   "NFQUEUE WireGuard traffic obfuscator",
		Version: version,
		Args:    cobra.NoArgs,
		RunE:    run,

		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.Flags().IntVar(&flagQueue, "queue", -1, "single-queue mode: run one filter on this queue number")
	root.Flags().BoolVar(&flagGenerateUnits, "generate-units", false, "write systemd unit templates and exit")
	root.Flags().StringVar(&flagUnitDir, "unit-dir", nfwgobfs.DefaultUnitDir, "output directory for --generate-units")

	viper.SetDefault("config", nfwgobfs.DefaultConfigPath)
	_ = viper.BindEnv("config", "NF_WGOBFS_CONF")
	_ = viper.BindEnv("queue", "NF_WGOBFS_QUEUE")
	_ = viper.BindEnv("secret", "NF_WGOBFS_SECRET")
	viper.SetDefault("direction", "out")
	_ = viper.BindEnv("direction", "NF_WGOBFS_DIR")

	if err := root.Execute(); err != nil {
		logrus.Error(err)
		os.Exit(exitCode(err))
	}
}

func run(cmd *cobra.Command, args []string) (err error) {
	if flagGenerateUnits {
		entries, lerr := nfwgobfs.LoadConfig(viper.GetString("config"))
		if lerr != nil {
			return lerr
		}
		return nfwgobfs.GenerateSystemdUnits(entries, flagUnitDir)
	}

	entries, err := resolveEntries()
	if err != nil {
		return
	}
	if len(entries) == 0 {
		err = fmt.Errorf("no filter entries configured")
		return
	}

	if os.Geteuid() != 0 {
		logrus.Warn("not running as root; binding NFQUEUE will likely fail")
	}

	sup, err := nfwgobfs.NewSupervisor(entries)
	if err != nil {
		return
	}
	return sup.Run()
}

// resolveEntries picks between single-queue mode (--queue flag,
// overridden by NF_WGOBFS_QUEUE) and the config file.
func resolveEntries() (entries []nfwgobfs.QueueEntry, err error) {
	queueNum := flagQueue
	if env := viper.GetString("queue"); env != "" {
		queueNum, err = strconv.Atoi(env)
		if err != nil {
			err = fmt.Errorf("NF_WGOBFS_QUEUE: %w", err)
			return
		}
	}
	if queueNum < 0 {
		return nfwgobfs.LoadConfig(viper.GetString("config"))
	}
	if queueNum > 0xffff {
		err = fmt.Errorf("queue number %d out of range", queueNum)
		return
	}

	secret := viper.GetString("secret")
	if secret == "" {
		err = fmt.Errorf("single-queue mode needs NF_WGOBFS_SECRET")
		return
	}
	direction, err := nfwgobfs.ParseDirection(viper.GetString("direction"))
	if err != nil {
		return
	}
	entries = []nfwgobfs.QueueEntry{{
		QueueNum:  uint16(queueNum),
		Direction: direction,
		Name:      fmt.Sprintf("queue%d", queueNum),
		Key:       nfwgobfs.DeriveKey(secret),
		Mode:      nfwgobfs.ModeAuto,
		MTU:       nfwgobfs.DefaultMTU,
	}}
	return
}

func exitCode(err error) int {
	var bindErr nfwgobfs.ErrQueueBind
	if errors.As(err, &bindErr) {
		return exitBindError
	}
	var runtimeErr nfwgobfs.ErrQueueRuntime
	if errors.As(err, &runtimeErr) {
		return exitRuntimeError
	}
	return exitConfigError
}
