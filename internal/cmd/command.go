package cmd

import (
	"context"
	"os"

	"github.com/jessevdk/go-flags"
	"github.com/nguyengg/archivist/internal/config"
	"github.com/spf13/afero"
	"go.uber.org/zap"
	"golang.org/x/term"
)

// Options are the global options and commands of the archivist command line.
type Options struct {
	Profile  string `short:"p" long:"profile" description:"override the AWS profile of every bucket"`
	Spool    bool   `long:"spool" description:"download S3 archives to a temporary file instead of reading them with ranged GetObject calls"`
	Debug    bool   `long:"debug" description:"use development logging"`
	LogLevel string `long:"log-level" description:"minimum log level" choice:"debug" choice:"info" choice:"warn" choice:"error" default:"info"`

	List    List    `command:"list" alias:"ls" description:"list the members of archives"`
	Cat     Cat     `command:"cat" description:"write the contents of archive members to standard output"`
	Extract Extract `command:"extract" alias:"x" description:"extract archives into new directories named after the archives"`

	env env
}

// NewParser returns the parser for the archivist command line.
//
// The parser's CommandHandler sets up logging and loads the .archivist configuration file before running the command.
func NewParser() (*flags.Parser, *Options) {
	opts := &Options{
		env: env{
			loader: config.DefaultLoader,
			fs:     afero.NewOsFs(),
			stdin:  os.Stdin,
			stdout: os.Stdout,
			stderr: os.Stderr,
		},
	}
	opts.List.env = &opts.env
	opts.Cat.env = &opts.env
	opts.Extract.env = &opts.env

	p := flags.NewNamedParser("archivist", flags.Default)
	if _, err := p.AddGroup("Global Options", "", opts); err != nil {
		panic(err)
	}

	p.CommandHandler = func(command flags.Commander, args []string) error {
		logger, err := createLogger(opts.Debug, opts.LogLevel)
		if err != nil {
			return err
		}
		defer func() {
			_ = logger.Sync()
		}()

		opts.env.logger = logger
		opts.env.spool = opts.Spool
		opts.env.interactive = term.IsTerminal(int(os.Stderr.Fd()))

		name, err := opts.env.loader.LoadProfile(context.Background(), opts.Profile)
		switch {
		case err != nil:
			logger.Error("load configuration error", zap.String("file", name), zap.Error(err))
			return err
		case name != "":
			logger.Debug("loaded configuration", zap.String("file", name))
		}

		return command.Execute(args)
	}

	return p, opts
}
