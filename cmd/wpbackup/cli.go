package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/pklaus/backup-wordpress-blog/internal/archive"
	"github.com/pklaus/backup-wordpress-blog/internal/config"
	"github.com/pklaus/backup-wordpress-blog/internal/content"
	"github.com/pklaus/backup-wordpress-blog/internal/errors"
	"github.com/pklaus/backup-wordpress-blog/internal/logging"
	"github.com/pklaus/backup-wordpress-blog/internal/wordpress"
)

// dialFunc opens an authenticated content source.
type dialFunc func(ctx context.Context, endpoint string, creds wordpress.Credentials, opts ...wordpress.Option) (archive.ContentSource, error)

// cliEnv holds the process I/O so tests can substitute it.
type cliEnv struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
	dial   dialFunc
}

func defaultEnv() cliEnv {
	return cliEnv{
		stdin:  os.Stdin,
		stdout: os.Stdout,
		stderr: os.Stderr,
		dial:   dialWordPress,
	}
}

func dialWordPress(ctx context.Context, endpoint string, creds wordpress.Credentials, opts ...wordpress.Option) (archive.ContentSource, error) {
	return wordpress.Dial(ctx, endpoint, creds, opts...)
}

// newCLIApp creates the CLI application.
func newCLIApp(env cliEnv) *cli.App {
	app := &cli.App{
		Name:      "wpbackup",
		Usage:     "Back up the posts of a WordPress blog to your local file system",
		Version:   Version,
		ArgsUsage: "BLOG_URL",
		Reader:    env.stdin,
		Writer:    env.stdout,
		ErrWriter: env.stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "username", Aliases: []string{"u"}, EnvVars: []string{"WP_USERNAME"}, Usage: "Username used to log in to your blog"},
			&cli.StringFlag{Name: "password", Aliases: []string{"p"}, EnvVars: []string{"WP_PASSWORD"}, Usage: "Password (or application password) used to log in"},
			&cli.StringFlag{Name: "folder", Aliases: []string{"f"}, Value: ".", Usage: "Folder to store the backups of the blog posts"},
			&cli.IntFlag{Name: "number", Aliases: []string{"n"}, Value: archive.DefaultLimit, Usage: "Number of blog posts to back up"},
			&cli.BoolFlag{Name: "long-filenames", Aliases: []string{"l"}, Usage: "Use extended filenames for the blog post backup files"},
			&cli.BoolFlag{Name: "media", Usage: "Also back up media files and their metadata"},
			&cli.StringFlag{Name: "extension", Aliases: []string{"e"}, Value: archive.DefaultExtension, Usage: "File extension of the backed up blog post files"},
			&cli.BoolFlag{Name: "no-meta", Usage: "Write only the post body, without the metadata header"},
			&cli.IntFlag{Name: "workers", Aliases: []string{"w"}, Value: archive.DefaultWorkers, Usage: "Number of items processed concurrently (1 = sequential)"},
			&cli.Float64Flag{Name: "download-rps", Usage: "Maximum media downloads per second (0 = unlimited)"},
			&cli.BoolFlag{Name: "strict-collisions", Usage: "Fail the later of two posts or media items resolving to the same file"},
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "Config file (default: <folder>/" + config.FileName + ")"},
			&cli.BoolFlag{Name: "debug", Aliases: []string{"d"}, Usage: "Log every step to stderr"},
		},
		Action: func(c *cli.Context) error {
			return backupAction(c, env)
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// backupAction authenticates, mirrors the blog, and reports the summary.
func backupAction(c *cli.Context, env cliEnv) error {
	if c.NArg() != 1 {
		return outputError(errors.NewInvalidRequest("exactly one BLOG_URL argument is required"))
	}
	blogURL := c.Args().First()
	folder := c.String("folder")

	cfg, err := loadConfig(c, folder)
	if err != nil {
		return outputError(err)
	}

	logger := logging.New(env.stderr, c.Bool("debug"))
	defer func() { _ = logger.Sync() }()

	creds, err := resolveCredentials(c, cfg, env, blogURL)
	if err != nil {
		return outputError(err)
	}

	src, err := env.dial(c.Context, blogURL, creds,
		wordpress.WithTimeout(cfg.HTTPTimeout()),
		wordpress.WithUserAgent(cfg.UserAgent),
		wordpress.WithLogger(logger),
	)
	if err != nil {
		if errors.Is(err, errors.ErrAuthentication) {
			fmt.Fprintln(env.stderr, "Invalid credentials")
		}
		return outputError(err)
	}

	runner, err := archive.NewRunner(runnerOptions(cfg, folder), logger)
	if err != nil {
		return outputError(err)
	}

	summary, runErr := runner.Run(c.Context, src)
	printSummary(env, summary, cfg.Media)
	if runErr != nil {
		return outputError(runErr)
	}
	return nil
}

// loadConfig reads the config file and applies explicitly set flags on top.
func loadConfig(c *cli.Context, folder string) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if path := c.String("config"); path != "" {
		cfg, err = config.LoadFile(path)
	} else {
		cfg, err = config.Load(folder)
	}
	if err != nil {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("failed to load config: %v", err))
	}

	overlay := &config.Config{}
	if c.IsSet("number") {
		overlay.Number = c.Int("number")
	}
	if c.IsSet("extension") {
		overlay.Extension = c.String("extension")
	}
	if c.IsSet("workers") {
		overlay.Workers = c.Int("workers")
	}
	if c.IsSet("download-rps") {
		overlay.DownloadRPS = c.Float64("download-rps")
	}
	if c.Bool("no-meta") {
		includeMetadata := false
		overlay.IncludeMetadata = &includeMetadata
	}
	overlay.LongFilenames = c.Bool("long-filenames")
	overlay.Media = c.Bool("media")
	overlay.StrictCollisions = c.Bool("strict-collisions")

	merged := config.Merge(cfg, overlay)
	if err := merged.Validate(); err != nil {
		return nil, err
	}
	return merged, nil
}

func runnerOptions(cfg *config.Config, folder string) archive.Options {
	form := content.FormShort
	if cfg.LongFilenames {
		form = content.FormLong
	}
	return archive.Options{
		Root:             folder,
		Limit:            cfg.Number,
		Form:             form,
		Extension:        cfg.Extension,
		IncludeMetadata:  cfg.WithMetadata(),
		Media:            cfg.Media,
		Workers:          cfg.Workers,
		DownloadRPS:      cfg.DownloadRPS,
		StrictCollisions: cfg.StrictCollisions,
	}
}

// resolveCredentials takes credentials from flags, environment, or config,
// and prompts on stdin for whatever is still missing.
func resolveCredentials(c *cli.Context, cfg *config.Config, env cliEnv, blogURL string) (wordpress.Credentials, error) {
	creds := wordpress.Credentials{
		Username: c.String("username"),
		Password: c.String("password"),
	}
	if creds.Username == "" {
		creds.Username = cfg.Username
	}

	in := bufio.NewReader(env.stdin)
	var err error
	if creds.Username == "" {
		creds.Username, err = prompt(in, env.stdout, fmt.Sprintf("Please enter the username for the blog %s: ", blogURL))
		if err != nil {
			return creds, err
		}
	}
	if creds.Password == "" {
		creds.Password, err = prompt(in, env.stdout, fmt.Sprintf("Please enter the password for the user %s: ", creds.Username))
		if err != nil {
			return creds, err
		}
	}
	return creds, nil
}

// prompt writes label and reads one line.
func prompt(in *bufio.Reader, out io.Writer, label string) (string, error) {
	fmt.Fprint(out, label)
	line, err := in.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", errors.NewInvalidRequest("no input for prompt: " + strings.TrimSpace(label))
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// printSummary reports counts on stdout and per-item failures on stderr.
func printSummary(env cliEnv, summary *archive.RunSummary, media bool) {
	if summary == nil {
		return
	}
	if media {
		fmt.Fprintf(env.stdout, "Successfully backed up %d media files.\n", summary.Media)
	}
	fmt.Fprintf(env.stdout, "Successfully backed up %d blog posts.\n", summary.Posts)

	for _, col := range summary.Collisions {
		fmt.Fprintf(env.stderr, "collision: %s claimed by %s and %s\n", col.Path, col.First, col.Second)
	}
	if len(summary.Failures) == 0 {
		return
	}
	fmt.Fprintf(env.stderr, "%d items failed:\n", len(summary.Failures))
	for _, key := range summary.FailureKeys() {
		fmt.Fprintf(env.stderr, "  %s: %v\n", key, summary.Failures[key])
	}
}

// outputError formats error for CLI.
func outputError(err error) error {
	if mErr, ok := err.(*errors.MirrorError); ok {
		return cli.Exit(fmt.Sprintf("[%s] %s", mErr.Code, mErr.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}
