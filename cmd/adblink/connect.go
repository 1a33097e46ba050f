package main

import (
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/adblink/adblink/cmd"
	"github.com/adblink/adblink/pkg/config"
	"github.com/adblink/adblink/pkg/dispatch"
	"github.com/adblink/adblink/pkg/logging"
	"github.com/adblink/adblink/pkg/must"
	"github.com/adblink/adblink/pkg/transport"
)

var connectConfiguration struct {
	address string
	timeout time.Duration
}

var connectCommand = &cobra.Command{
	Use:   "connect <service>",
	Short: "Open a stream for <service> and pipe it to stdio",
	Args:  cobra.ExactArgs(1),
	Run:   cmd.Mainify(connectMain),
}

func init() {
	flags := connectCommand.Flags()
	flags.StringVar(&connectConfiguration.address, "address", "", "host:port to dial (overrides the configured default)")
	flags.DurationVar(&connectConfiguration.timeout, "timeout", 10*time.Second, "dial timeout")
}

func connectMain(_ *cobra.Command, arguments []string) error {
	serviceString := arguments[0]

	cfg, err := config.Load(rootConfiguration.configPath)
	if err != nil {
		return errors.Wrap(err, "unable to load configuration")
	}

	level := cfg.LogLevel
	if rootConfiguration.logLevel != "" {
		level = rootConfiguration.logLevel
	}
	logLevel, ok := logging.NameToLevel(level)
	if !ok {
		cmd.Warning("unrecognized log level " + level + ", defaulting to warn")
		logLevel = logging.LevelWarn
	}
	logger := logging.NewLogger(logLevel, os.Stderr)

	address := cfg.Address
	if connectConfiguration.address != "" {
		address = connectConfiguration.address
	}

	connectionID := uuid.New().String()
	log := logger.Sublogger(connectionID[:8])

	log.Infof("dialing %s", address)
	t, err := transport.DialTCP(address, connectConfiguration.timeout, transport.Options{
		VerifyChecksum: cfg.VerifyChecksum,
		MaxPayloadSize: cfg.MaxPayloadSize,
	})
	if err != nil {
		return errors.Wrap(err, "unable to dial transport")
	}

	d := dispatch.New(t, nil, cfg.DispatchConfiguration(), log.Sublogger("dispatch"))
	defer func() {
		if err := d.Dispose(); err != nil {
			log.Warnf("unable to dispose dispatcher: %s", err.Error())
		}
	}()

	d.OnError(func(err error) {
		log.Warnf("dispatcher error: %v", err)
	})

	log.Infof("opening stream for service %q", serviceString)
	stream, err := d.CreateStream(serviceString)
	if err != nil {
		return errors.Wrap(err, "unable to open stream")
	}
	defer must.Close(stream, log)

	restore := enterRawModeIfTerminal()
	defer restore()

	copyErrors := make(chan error, 2)
	go func() {
		written, err := io.Copy(stream, os.Stdin)
		log.Debugf("stdin -> stream: %s written", humanize.Bytes(uint64(written)))
		copyErrors <- err
	}()
	go func() {
		written, err := io.Copy(os.Stdout, stream)
		log.Debugf("stream -> stdout: %s written", humanize.Bytes(uint64(written)))
		copyErrors <- err
	}()

	if err := <-copyErrors; err != nil && err != io.EOF {
		return errors.Wrap(err, "stream copy failed")
	}
	return nil
}

// enterRawModeIfTerminal puts stdin into raw mode when it's an interactive
// terminal, returning a function that restores it. It's a no-op (returning a
// no-op restore function) when stdin isn't a terminal, e.g. under a pipe.
func enterRawModeIfTerminal() func() {
	fd := int(os.Stdin.Fd())
	if !isatty.IsTerminal(fd) && !isatty.IsCygwinTerminal(fd) {
		return func() {}
	}
	state, err := term.MakeRaw(fd)
	if err != nil {
		return func() {}
	}
	return func() {
		_ = term.Restore(fd, state)
	}
}
