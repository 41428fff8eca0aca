// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

func jsonFlag() cli.Flag {
	return &cli.BoolFlag{Name: "json", Usage: "Output raw JSON"}
}

// setupCommand initializes the database and the config file
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Initialize the database or the config file",
		Commands: []*cli.Command{
			{
				Name:  "database",
				Usage: "Create the database and run migrations",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "rollback",
						Usage: "Roll back the most recent migration instead",
					},
				},
				Action: r.SetupDatabase,
			},
			{
				Name:   "config",
				Usage:  "Write a config file from the built-in template",
				Action: r.SetupConfig,
			},
		},
	}
}

// movieCommand handles movie writes and reads against the local store
func movieCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "movie",
		Aliases: []string{"m"},
		Usage:   "Add, vote on and inspect movies",
		Commands: []*cli.Command{
			{
				Name:      "add",
				Usage:     "Add a movie; without --id it gets a temporary key",
				Arguments: []cli.Argument{&cli.StringArg{Name: "title"}},
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "id", Usage: "IMDb id (tt...)"},
					&cli.IntFlag{Name: "year", Usage: "Release year"},
					&cli.StringFlag{Name: "by", Usage: "Record a recommendation from this person"},
					&cli.StringFlag{Name: "vote", Usage: "Vote for --by: upvote or downvote", Value: "upvote"},
				},
				Action: r.MovieAdd,
			},
			{
				Name:      "vote",
				Usage:     "Record or replace a person's vote",
				Arguments: []cli.Argument{&cli.StringArg{Name: "movie"}, &cli.StringArg{Name: "person"}},
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "down", Usage: "Downvote instead of upvote"},
				},
				Action: r.MovieVote,
			},
			{
				Name:      "unvote",
				Usage:     "Withdraw a person's vote",
				Arguments: []cli.Argument{&cli.StringArg{Name: "movie"}, &cli.StringArg{Name: "person"}},
				Action:    r.MovieUnvote,
			},
			{
				Name:      "watch",
				Usage:     "Mark a movie watched",
				Arguments: []cli.Argument{&cli.StringArg{Name: "movie"}},
				Flags: []cli.Flag{
					&cli.FloatFlag{Name: "rating", Usage: "Rating from 1 to 10"},
					&cli.StringFlag{Name: "date", Usage: "Watch date (YYYY-MM-DD), defaults to now"},
				},
				Action: r.MovieWatch,
			},
			{
				Name:      "status",
				Usage:     "Move a movie to toWatch, watched, deleted or custom",
				Arguments: []cli.Argument{&cli.StringArg{Name: "movie"}, &cli.StringArg{Name: "state"}},
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "list", Usage: "Custom list id, required for custom"},
				},
				Action: r.MovieStatus,
			},
			{
				Name:      "delete",
				Usage:     "Delete a movie",
				Arguments: []cli.Argument{&cli.StringArg{Name: "movie"}},
				Action:    r.MovieDelete,
			},
			{
				Name:      "show",
				Usage:     "Show a movie with its votes and watch",
				Arguments: []cli.Argument{&cli.StringArg{Name: "movie"}},
				Flags:     []cli.Flag{jsonFlag()},
				Action:    r.MovieShow,
			},
			{
				Name:  "list",
				Usage: "List movies",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "status", Usage: "Only movies in this state"},
					&cli.StringFlag{Name: "person", Usage: "Only movies this person voted on"},
					&cli.StringFlag{Name: "list", Usage: "Only movies in this custom list"},
					&cli.BoolFlag{Name: "temporary", Usage: "Only movies without a canonical id"},
					&cli.IntFlag{Name: "limit", Usage: "Maximum number of movies"},
					jsonFlag(),
				},
				Action: r.MovieList,
			},
			{
				Name:      "enrich",
				Usage:     "Resolve temporary movies to IMDb ids; all of them when no movie is given",
				Arguments: []cli.Argument{&cli.StringArg{Name: "movie"}},
				Action:    r.MovieEnrich,
			},
			{
				Name:      "remap",
				Usage:     "Replace a temporary key with a canonical one",
				Arguments: []cli.Argument{&cli.StringArg{Name: "temp"}, &cli.StringArg{Name: "canonical"}},
				Action:    r.MovieRemap,
			},
		},
	}
}

// personCommand manages the people who recommend movies
func personCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "person",
		Aliases: []string{"p"},
		Usage:   "Manage people",
		Commands: []*cli.Command{
			{
				Name:      "add",
				Usage:     "Add a person",
				Arguments: []cli.Argument{&cli.StringArg{Name: "name"}},
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "trusted", Usage: "Mark as trusted"},
					&cli.BoolFlag{Name: "default", Usage: "Make this the default recommender"},
					&cli.StringFlag{Name: "color", Usage: "Hex color"},
					&cli.StringFlag{Name: "emoji", Usage: "Emoji shown next to the name"},
				},
				Action: r.PersonAdd,
			},
			{
				Name:      "update",
				Usage:     "Change a person's settings; unset flags are left alone",
				Arguments: []cli.Argument{&cli.StringArg{Name: "name"}},
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "default", Usage: "Default recommender"},
					&cli.StringFlag{Name: "color", Usage: "Hex color"},
					&cli.StringFlag{Name: "emoji", Usage: "Emoji shown next to the name"},
				},
				Action: r.PersonUpdate,
			},
			{
				Name:      "trust",
				Usage:     "Trust a person, or revoke trust",
				Arguments: []cli.Argument{&cli.StringArg{Name: "name"}},
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "revoke", Usage: "Remove trust"},
				},
				Action: r.PersonTrust,
			},
			{
				Name:      "delete",
				Usage:     "Delete a person and their votes",
				Arguments: []cli.Argument{&cli.StringArg{Name: "name"}},
				Action:    r.PersonDelete,
			},
			{
				Name:  "list",
				Usage: "List people",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "trusted", Usage: "Only trusted people"},
					jsonFlag(),
				},
				Action: r.PersonList,
			},
		},
	}
}

// listCommand manages custom lists
func listCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "list",
		Aliases: []string{"l"},
		Usage:   "Manage custom lists",
		Commands: []*cli.Command{
			{
				Name:      "add",
				Usage:     "Create a list",
				Arguments: []cli.Argument{&cli.StringArg{Name: "name"}},
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "color", Usage: "Hex color"},
					&cli.StringFlag{Name: "icon", Usage: "Icon name"},
				},
				Action: r.ListAdd,
			},
			{
				Name:      "update",
				Usage:     "Change a list; unset flags are left alone",
				Arguments: []cli.Argument{&cli.StringArg{Name: "id"}},
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "name", Usage: "New name"},
					&cli.StringFlag{Name: "color", Usage: "Hex color"},
					&cli.StringFlag{Name: "icon", Usage: "Icon name"},
					&cli.IntFlag{Name: "position", Usage: "Sort position"},
				},
				Action: r.ListUpdate,
			},
			{
				Name:      "delete",
				Usage:     "Delete a list; its movies go back to toWatch",
				Arguments: []cli.Argument{&cli.StringArg{Name: "id"}},
				Action:    r.ListDelete,
			},
			{
				Name:      "show",
				Usage:     "Show every list, or one list with its movies",
				Arguments: []cli.Argument{&cli.StringArg{Name: "id"}},
				Flags:     []cli.Flag{jsonFlag()},
				Action:    r.ListShow,
			},
		},
	}
}

// queueCommand inspects and repairs the mutation queue
func queueCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "queue",
		Aliases: []string{"q"},
		Usage:   "Inspect the mutation queue",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List queued mutations, head first",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "state", Usage: "pending, processing or failed"},
					&cli.BoolFlag{Name: "csv", Usage: "Output CSV"},
					jsonFlag(),
				},
				Action: r.QueueList,
			},
			{
				Name:      "retry",
				Usage:     "Reset a failed entry to pending",
				Arguments: []cli.Argument{&cli.StringArg{Name: "seq"}},
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "all", Usage: "Retry every failed entry"},
				},
				Action: r.QueueRetry,
			},
			{
				Name:      "clear",
				Usage:     "Drop a failed entry without sending it",
				Arguments: []cli.Argument{&cli.StringArg{Name: "seq"}},
				Action:    r.QueueClear,
			},
			{
				Name:  "stats",
				Usage: "Show queue counts and recent sync log entries",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "limit", Usage: "Sync log entries to show", Value: 10},
					jsonFlag(),
				},
				Action: r.QueueStats,
			},
		},
	}
}

// syncCommand drives the sync processor
func syncCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "Synchronize with the server",
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "Run one sync, honoring retry backoff",
				Flags:  []cli.Flag{jsonFlag()},
				Action: r.SyncRun,
			},
			{
				Name:   "force",
				Usage:  "Run one sync immediately, ignoring backoff",
				Flags:  []cli.Flag{jsonFlag()},
				Action: r.SyncForce,
			},
			{
				Name:   "status",
				Usage:  "Show the current sync status",
				Flags:  []cli.Flag{jsonFlag()},
				Action: r.SyncStatus,
			},
			{
				Name:  "watch",
				Usage: "Sync periodically, on local changes and on server notifications",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "no-feed", Usage: "Do not connect to the change feed"},
				},
				Action: r.SyncWatch,
			},
		},
	}
}

// serveCommand runs the local status server next to the processor loop
func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve sync status over HTTP while syncing in the background",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "host", Usage: "Listen host (overrides config)"},
			&cli.IntFlag{Name: "port", Usage: "Listen port (overrides config)"},
			&cli.BoolFlag{Name: "no-feed", Usage: "Do not connect to the change feed"},
		},
		Action: r.Serve,
	}
}

// tuiCommand launches the terminal monitor
func tuiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "tui",
		Usage: "Launch the terminal sync monitor",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "log", Usage: "Log file while the monitor owns the terminal", Value: "./tmp/reelsync-tui.log"},
		},
		Action: r.TUI,
	}
}

// exportCommand writes the local snapshot to a file
func exportCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Export movies, people and lists",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "format", Aliases: []string{"f"}, Usage: "json, csv, md or txt", Value: "json"},
			&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "Output file path (default movies.<format>)"},
		},
		Action: r.Export,
	}
}

// apiCommand handles direct requests to the sync server
func apiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "api",
		Usage: "Direct calls to the sync server",
		Commands: []*cli.Command{
			{
				Name:      "get",
				Usage:     "Direct GET, prints the raw response",
				Arguments: []cli.Argument{&cli.StringArg{Name: "path"}},
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "pretty", Usage: "Pretty-print JSON output", Value: true},
				},
				Action: r.APIGet,
			},
			{
				Name:      "post",
				Usage:     "Direct POST with a JSON body",
				Arguments: []cli.Argument{&cli.StringArg{Name: "path"}},
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
