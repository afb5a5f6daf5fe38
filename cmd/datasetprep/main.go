package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/fiapx/fiapx-dataset-service/internal/infra/config"
	"github.com/fiapx/fiapx-dataset-service/pkg/logger"
	cli "github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// prep carries what every subcommand needs. Human output goes to stdout,
// logs go to stderr.
type prep struct {
	cfg    *config.Config
	log    *zap.Logger
	stdout io.Writer
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(stderr, "config: %v\n", err)
		return exitUsage
	}
	log, err := logger.NewConsole(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(stderr, "logger: %v\n", err)
		return exitUsage
	}
	defer log.Sync()

	p := &prep{cfg: cfg, log: log, stdout: stdout}
	err = p.command(stdout, stderr).Run(ctx, append([]string{"datasetprep"}, args...))
	return exitCode(stderr, err)
}

// exitCode prints err and maps it to the process exit code. Anything that
// is not a cli.ExitCoder comes from flag parsing, which cli has already
// reported.
func exitCode(stderr io.Writer, err error) int {
	if err == nil {
		return exitOK
	}
	var exit cli.ExitCoder
	if errors.As(err, &exit) {
		if msg := exit.Error(); msg != "" {
			fmt.Fprintln(stderr, msg)
		}
		return exit.ExitCode()
	}
	return exitUsage
}

func (p *prep) command(stdout, stderr io.Writer) *cli.Command {
	return &cli.Command{
		Name:  "datasetprep",
		Usage: "prepare object-detection training datasets from video",
		Description: `A reference is a file path, a camera index ("0" or "device:0"), or a
stream URI (rtsp://, http://, ...). Settings come from the environment;
flags override them for one run.`,
		Writer:    stdout,
		ErrWriter: stderr,
		// exitCode settles every error; cli must not call os.Exit.
		ExitErrHandler: func(context.Context, *cli.Command, error) {},
		Action: func(_ context.Context, cmd *cli.Command) error {
			if cmd.Args().Present() {
				return cli.Exit(fmt.Sprintf("unknown command %q", cmd.Args().First()), exitUsage)
			}
			return cli.ShowAppHelp(cmd)
		},
		Commands: []*cli.Command{
			{
				Name:   "sources",
				Usage:  "list video files in the media directory",
				Flags:  []cli.Flag{dirFlag(p.cfg.MediaDir, "media directory to scan")},
				Action: p.sources,
			},
			{
				Name:      "extract",
				Usage:     "save every Nth frame of a file, camera or stream",
				ArgsUsage: "<reference>",
				Flags: append(p.extractFlags(),
					&cli.StringFlag{Name: "out", Value: p.cfg.ImagesDir, Usage: "directory for saved frames"},
				),
				Action: p.extract,
			},
			{
				Name:   "reconcile",
				Usage:  "report images and labels that do not pair up",
				Flags:  []cli.Flag{dirFlag(p.cfg.ImagesDir, "directory holding images and labels")},
				Action: p.reconcile,
			},
			{
				Name:   "classes",
				Usage:  "show, replace or discover the class list",
				Action: p.classesUsage,
				Commands: []*cli.Command{
					{
						Name:   "show",
						Usage:  "print the saved class list",
						Action: p.showClasses,
					},
					{
						Name:      "set",
						Usage:     "replace the class list",
						ArgsUsage: "<name>...",
						Action:    p.setClasses,
					},
					{
						Name:   "discover",
						Usage:  "adopt the class list exported by the labeling tool",
						Flags:  []cli.Flag{dirFlag(p.cfg.ImagesDir, "labels directory")},
						Action: p.discoverClasses,
					},
				},
			},
			{
				Name:   "configure",
				Usage:  "write obj.names and the tuned model config",
				Flags:  []cli.Flag{dirFlag(p.cfg.ImagesDir, "labels directory searched when no class list is saved")},
				Action: p.configure,
			},
			{
				Name:   "package",
				Usage:  "stage complete pairs and build obj.zip",
				Flags:  append([]cli.Flag{dirFlag(p.cfg.ImagesDir, "directory holding images and labels")}, p.packageFlags()...),
				Action: p.pkg,
			},
			{
				Name:      "prepare",
				Usage:     "extract (when given), then classes, configure and package",
				ArgsUsage: "[<reference>]",
				Flags: append(append(p.extractFlags(),
					dirFlag(p.cfg.ImagesDir, "frames and labels directory")),
					p.packageFlags()...),
				Action: p.prepare,
			},
		},
	}
}

func dirFlag(value, usage string) cli.Flag {
	return &cli.StringFlag{Name: "dir", Value: value, Usage: usage}
}

func (p *prep) extractFlags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{Name: "interval", Value: p.cfg.FrameInterval, Usage: "save every Nth raw frame"},
		&cli.IntFlag{Name: "max-frames", Value: p.cfg.MaxFrames, Usage: "stop after N saved frames, 0 for no cap"},
		&cli.BoolFlag{Name: "cap-files", Value: p.cfg.CapFileSources, Usage: "apply --max-frames to file sources too"},
	}
}

func (p *prep) packageFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "staging", Value: p.cfg.StagingDir, Usage: "staging directory, emptied on every run"},
		&cli.StringFlag{Name: "archive", Value: p.cfg.ArchivePath, Usage: "archive to write"},
		&cli.BoolFlag{Name: "validate", Value: p.cfg.ValidateIDs, Usage: "check label class ids against the class list"},
	}
}
