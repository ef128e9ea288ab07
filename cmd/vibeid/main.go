package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	arg "github.com/alexflint/go-arg"
	"go.uber.org/zap"
)

type args struct {
	Download *downloadCmd `arg:"subcommand:download" help:"download and extract the dataset archive"`
	Segment  *segmentCmd  `arg:"subcommand:segment" help:"cut raw traces into labeled events"`
	Encode   *encodeCmd   `arg:"subcommand:encode" help:"convert event tables into time-frequency images"`
	Split    *splitCmd    `arg:"subcommand:split" help:"split class folders into train/test subsets"`
	Train    *trainCmd    `arg:"subcommand:train" help:"train a classifier"`
	Adapt    *adaptCmd    `arg:"subcommand:adapt" help:"adapt a saved snapshot to another domain"`
	Eval     *evalCmd     `arg:"subcommand:eval" help:"evaluate a saved snapshot"`
	Verbose  bool         `arg:"-v,--verbose" help:"log debug messages"`
}

func (args) Description() string {
	return "vibeid: person identification from footstep vibrations"
}

type command interface {
	run(ctx context.Context, logger *zap.SugaredLogger) error
}

func main() {
	var a args
	var p = arg.MustParse(&a)
	cmd, ok := p.Subcommand().(command)
	if !ok {
		p.WriteHelp(os.Stdout)
		os.Exit(2)
	}

	var logger = newLogger(a.Verbose)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.run(ctx, logger.Sugar()); err != nil {
		logger.Sugar().Errorw("command failed", "error", err)
		logger.Sync()
		os.Exit(1)
	}
}
