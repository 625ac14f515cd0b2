// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

func formatFlag(value string) *cli.StringFlag {
	return &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "Output format (txt, json, csv, md)",
		Value:   value,
	}
}

// setupCommand handles setup operations for configuration and the database.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Setup and configuration commands",
		Commands: []*cli.Command{
			{
				Name:   "config",
				Usage:  "Write a config.toml from the built-in template",
				Action: r.SetupConfig,
			},
			{
				Name:   "database",
				Usage:  "Initialize database and run migrations",
				Action: r.SetupDatabase,
			},
		},
	}
}

// authCommand handles account and session operations
func authCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Manage the signed-in session",
		Commands: []*cli.Command{
			{
				Name:  "login",
				Usage: "Sign in with email and password",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "email",
						Aliases:  []string{"e"},
						Usage:    "Account email",
						Required: true,
					},
					&cli.StringFlag{
						Name:    "password",
						Aliases: []string{"p"},
						Usage:   "Account password",
						Sources: cli.EnvVars("PODSESSION_PASSWORD"),
					},
				},
				Action: r.AuthLogin,
			},
			{
				Name:  "register",
				Usage: "Create an account; a one-time code is sent to the chosen channel",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "name", Usage: "Full name", Required: true},
					&cli.StringFlag{Name: "email", Aliases: []string{"e"}, Usage: "Account email"},
					&cli.StringFlag{Name: "phone", Usage: "Phone number"},
					&cli.StringFlag{Name: "password", Aliases: []string{"p"}, Usage: "Password", Sources: cli.EnvVars("PODSESSION_PASSWORD")},
					&cli.StringFlag{Name: "confirm-password", Usage: "Password confirmation"},
					&cli.StringFlag{Name: "channel", Usage: "OTP channel (email or sms)", Value: "email"},
				},
				Action: r.AuthRegister,
			},
			{
				Name:  "verify",
				Usage: "Confirm a one-time code",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "contact", Usage: "Email or phone the code was sent to", Required: true},
					&cli.StringFlag{Name: "code", Usage: "One-time code", Required: true},
					&cli.StringFlag{Name: "channel", Usage: "OTP channel (email or sms)", Value: "email"},
					&cli.StringFlag{Name: "type", Usage: "OTP purpose (registration or password_reset)", Value: "registration"},
				},
				Action: r.AuthVerify,
			},
			{
				Name:   "logout",
				Usage:  "End the session and clear the stored credential",
				Action: r.AuthLogout,
			},
			{
				Name:   "refresh",
				Usage:  "Exchange the stored token for a new one",
				Action: r.AuthRefresh,
			},
			{
				Name:   "status",
				Usage:  "Show session state, roles and expiry",
				Flags:  []cli.Flag{formatFlag("txt")},
				Action: r.AuthStatus,
			},
			{
				Name:   "whoami",
				Usage:  "Fetch the signed-in user's profile",
				Flags:  []cli.Flag{formatFlag("txt")},
				Action: r.AuthWhoami,
			},
			{
				Name:  "history",
				Usage: "Show recorded session events",
				Flags: []cli.Flag{
					formatFlag("txt"),
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of events to show",
						Value: 20,
					},
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Write to a file instead of stdout",
					},
				},
				Action: r.AuthHistory,
			},
		},
	}
}

// apiCommand handles direct, authenticated backend calls
func apiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "api",
		Usage: "Direct calls to the backend with the session's bearer token",
		Commands: []*cli.Command{
			{
				Name:  "get",
				Usage: "Direct GET, prints the response body",
				Arguments: []cli.Argument{
					&cli.StringArg{
						Name: "path",
					},
				},
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "pretty",
						Usage: "Pretty-print output",
						Value: true,
					},
				},
				Action: r.APIGet,
			},
			{
				Name:  "post",
				Usage: "Direct POST with JSON body",
				Arguments: []cli.Argument{
					&cli.StringArg{
						Name: "path",
					},
				},
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "data",
						Aliases:  []string{"d"},
						Usage:    "JSON body to send",
						Required: true,
					},
				},
				Action: r.APIPost,
			},
		},
	}
}

// watchCommand returns the top-level TUI command for monitoring the session.
func watchCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "watch",
		Aliases: []string{"tui", "ui"},
		Usage:   "Live session monitor with expiry countdown",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "log-file",
				Usage: "Where logs go while the monitor owns the terminal",
				Value: "./tmp/podsession-watch.log",
			},
		},
		Action: r.Watch,
	}
}

// serveCommand runs the local HTTP gateway.
func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the session over HTTP for local clients",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Usage: "Listen address (defaults to server.host:server.port)",
			},
		},
		Action: r.Serve,
	}
}
