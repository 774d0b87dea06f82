package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli"
	"github.com/vaughan0/go-ini"
	"github.com/winprodai/winprod/backend"
	"github.com/winprodai/winprod/backend/data"
	"github.com/winprodai/winprod/backend/email"
)

const version = "0.1.0"

func main() {
	app := cli.NewApp()
	app.Name = "winprod"
	app.Usage = "WinProd AI product feed server"
	app.Version = version

	configFlag := cli.StringFlag{Name: "config, c", Value: "winprod.conf", Usage: "path to config file"}

	app.Commands = []cli.Command{
		{
			Name:        "server",
			ShortName:   "s",
			Usage:       "run the server",
			Description: "run the winprod server",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "address, a", Value: "127.0.0.1", Usage: "address to listen on"},
				cli.StringFlag{Name: "port, p", Value: "8080", Usage: "port to listen on"},
				configFlag,
			},
			Action: Serve,
		},
		{
			Name:        "seed-email-templates",
			Usage:       "store the built-in email templates",
			Description: "insert or update the built-in email templates in the email_templates table",
			Flags:       []cli.Flag{configFlag},
			Action:      SeedEmailTemplates,
		},
		{
			Name:        "reset-password",
			Usage:       "reset a user's password",
			ArgsUsage:   "username",
			Description: "set a random password for a user and print it",
			Flags:       []cli.Flag{configFlag},
			Action:      ResetPassword,
		},
	}

	err := app.Run(os.Args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadHTTPConfig(c *cli.Context, conf ini.File) (backend.HTTPConfig, error) {
	config := backend.HTTPConfig{
		ListenAddress: c.String("address"),
		ListenPort:    c.String("port"),
	}

	var ok bool
	if !c.IsSet("address") {
		if config.ListenAddress, ok = conf.Get("server", "address"); !ok {
			return config, errors.New("missing server address")
		}
	}

	if !c.IsSet("port") {
		if config.ListenPort, ok = conf.Get("server", "port"); !ok {
			return config, errors.New("missing server port")
		}
	}

	return config, nil
}

func Serve(c *cli.Context) error {
	conf, err := backend.LoadConfig(c.String("config"))
	if err != nil {
		return err
	}

	httpConfig, err := loadHTTPConfig(c, conf)
	if err != nil {
		return err
	}

	feedConfig, err := backend.LoadFeedConfig(conf)
	if err != nil {
		return err
	}

	logger, err := backend.NewLogger(conf)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := backend.NewPool(ctx, conf, logger)
	if err != nil {
		return err
	}
	defer pool.Close()

	server, err := backend.NewAppServer(pool, backend.NewPgxProductSource(pool), feedConfig, logger)
	if err != nil {
		return err
	}

	listenAt := fmt.Sprintf("%s:%s", httpConfig.ListenAddress, httpConfig.ListenPort)
	logger.Info("Starting to listen", "address", listenAt)

	return server.Serve(ctx, listenAt)
}

func SeedEmailTemplates(c *cli.Context) error {
	conf, err := backend.LoadConfig(c.String("config"))
	if err != nil {
		return err
	}

	logger, err := backend.NewLogger(conf)
	if err != nil {
		return err
	}

	ctx := context.Background()
	pool, err := backend.NewPool(ctx, conf, logger)
	if err != nil {
		return err
	}
	defer pool.Close()

	rows := email.Rows()
	err = data.UpsertEmailTemplates(ctx, pool, rows)
	if err != nil {
		return err
	}

	fmt.Println("Email templates:", len(rows))
	return nil
}

func ResetPassword(c *cli.Context) error {
	if len(c.Args()) != 1 {
		cli.ShowCommandHelp(c, c.Command.Name)
		return errors.New("username is required")
	}

	name := c.Args().First()

	conf, err := backend.LoadConfig(c.String("config"))
	if err != nil {
		return err
	}

	logger, err := backend.NewLogger(conf)
	if err != nil {
		return err
	}

	ctx := context.Background()
	pool, err := backend.NewPool(ctx, conf, logger)
	if err != nil {
		return err
	}
	defer pool.Close()

	password, err := backend.ResetPassword(ctx, pool, name)
	if err != nil {
		return err
	}

	fmt.Println("User:", name)
	fmt.Println("Password:", password)
	return nil
}
