package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-resty/resty/v2"
	logger "github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"tradeengine/cmd/engine"
)

var Version string

func main() {
	SetupLogger()

	app := cli.NewApp()
	app.Name = "Tradeengine CMD"
	app.Usage = "The tradeengine command line interface"

	app.Commands = []cli.Command{
		engineCMD,
		closeAllCMD,
	}

	if err := app.Run(os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func SetupLogger() {
	levelStr := strings.ToLower(os.Getenv("LOG_LEVEL"))

	level, err := logger.ParseLevel(levelStr)
	if err != nil {
		level = logger.InfoLevel
	}

	logger.SetLevel(level)
	logger.SetFormatter(&logger.TextFormatter{
		FullTimestamp: true,
	})
}

var (
	engineCMD = cli.Command{
		Name:        "engine",
		Usage:       "run the trading engine",
		Action:      engineAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Run the signal admission and execution engine`,
	}
	closeAllCMD = cli.Command{
		Name:      "closeall",
		Usage:     "force-close all open positions on a running engine",
		Action:    closeAllAction,
		ArgsUsage: "",
		Flags: []cli.Flag{
			cli.StringFlag{
				Name:  "addr",
				Usage: "base URL of the running engine",
				Value: "http://localhost:8080",
			},
			cli.StringFlag{
				Name:  "reason",
				Usage: "reason recorded on each closed position",
				Value: "operator close-all",
			},
		},
		Description: `Ask a running engine to liquidate every open position at market`,
	}
)

func engineAction(_ *cli.Context) error {
	logger.Info("Starting engine CMD")

	eng := &engine.Engine{}
	if err := eng.Start(); err != nil {
		logger.WithError(err).Error("Starting cmd")
		return err
	}

	return nil
}

// closeAllAction talks to the running engine over its operator API; a
// second process cannot share the in-memory ledger.
func closeAllAction(c *cli.Context) error {
	addr := c.String("addr")
	reason := c.String("reason")

	logger.WithField("addr", addr).Info("Starting closeall CMD")

	var result struct {
		Closed int `json:"closed"`
	}

	resp, err := resty.New().R().
		SetQueryParam("reason", reason).
		SetResult(&result).
		Post(addr + "/close-all")
	if err != nil {
		logger.WithError(err).Error("close-all request failed")
		return err
	}
	if resp.IsError() {
		err := fmt.Errorf("close-all returned %s", resp.Status())
		logger.WithError(err).Error("close-all rejected")
		return err
	}

	fmt.Printf("Done: %d position(s) closed.\n", result.Closed)
	return nil
}
