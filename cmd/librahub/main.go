package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"syscall"

	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/librahub-admin/admin"
	"github.com/jrsteele09/librahub-admin/apiclient"
	"github.com/jrsteele09/librahub-admin/auth"
	"github.com/jrsteele09/librahub-admin/internal/config"
	"github.com/jrsteele09/librahub-admin/internal/logging"
	"github.com/jrsteele09/librahub-admin/routes"
	"github.com/jrsteele09/librahub-admin/session"
	"github.com/jrsteele09/librahub-admin/token/durable"
	"github.com/jrsteele09/librahub-admin/token/durable/redisstore"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

const tokenFile = "session.json"

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, errUsage) {
			os.Exit(2)
		}
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

func run(args []string) (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("Recovered from panic")
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	c := config.New()
	logging.Setup(c.GetEnv(), c.GetLogLevel())

	if len(args) == 0 || args[0] == "help" || args[0] == "-h" {
		displayAppname(c.GetAppName())
		printUsage()
		if len(args) == 0 {
			return errUsage
		}
		return nil
	}
	cmd, ok := commands[args[0]]
	if !ok {
		printUsage()
		return fmt.Errorf("%w: unknown command %q", errUsage, args[0])
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, c)
	if err != nil {
		return err
	}
	defer a.close()

	return cmd.run(ctx, a, args[1:])
}

// app is one CLI invocation's wiring: durable tokens, the session store, the
// intercepted client and the two services on top of it.
type app struct {
	tokens  durable.Storage
	store   *session.Store
	client  *apiclient.Client
	auth    *auth.Service
	admin   *admin.Service
	closers []func() error
}

func newApp(ctx context.Context, c config.Config) (*app, error) {
	a := &app{store: session.NewStore()}

	tokens, closer, err := openTokenStore(ctx, c)
	if err != nil {
		return nil, err
	}
	a.tokens = tokens
	if closer != nil {
		a.closers = append(a.closers, closer)
	}

	a.store.Subscribe(func(s session.State) {
		log.Debug().
			Bool("authenticated", s.IsAuthenticated).
			Bool("loading", s.IsLoading).
			Msg("session changed")
	})

	opts := []apiclient.Option{
		apiclient.WithTimeout(c.GetAPITimeout()),
		apiclient.WithMetrics(apiclient.NewMetrics(prometheus.NewRegistry())),
		apiclient.WithNavigator(routes.NavigatorFunc(func(path string) {
			log.Warn().Str("route", path).Msg("session ended, sign in again")
		})),
	}
	if rps := c.GetRateLimit(); rps > 0 {
		opts = append(opts, apiclient.WithRateLimit(rps, c.GetRateBurst()))
	}
	if c.GetRefreshDedupe() {
		opts = append(opts, apiclient.WithRefreshDedupe())
	}
	a.client = apiclient.New(c.GetAPIBaseURL(), a.tokens, a.store, opts...)

	if a.auth, err = auth.New(a.client, a.store, a.tokens); err != nil {
		return nil, err
	}
	if a.admin, err = admin.New(a.client); err != nil {
		return nil, err
	}
	return a, nil
}

// restore hydrates the store from durable storage and validates the session
// with the server, as an application load would.
func (a *app) restore(ctx context.Context) error {
	accessToken, _ := durable.AccessToken(ctx, a.tokens)
	refreshToken, _ := durable.RefreshToken(ctx, a.tokens)
	a.store.Hydrate(accessToken, refreshToken)

	_, err := a.auth.Initialize(ctx)
	return err
}

func (a *app) close() {
	for _, c := range a.closers {
		if err := c(); err != nil {
			log.Warn().Err(err).Msg("closing token store")
		}
	}
}

func openTokenStore(ctx context.Context, c config.Config) (durable.Storage, func() error, error) {
	switch c.GetTokenStore() {
	case config.TokenStoreMemory:
		return durable.NewMemory(), nil, nil
	case config.TokenStoreRedis:
		s, err := redisstore.Dial(ctx, c.GetRedisURL(), c.GetRedisPassword(), c.GetRedisPrefix())
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case config.TokenStoreFile:
		f, err := durable.NewFile(filepath.Join(c.GetDataFolder(), tokenFile))
		if err != nil {
			return nil, nil, err
		}
		return f, nil, nil
	}
	return nil, nil, fmt.Errorf("unknown token store %q", c.GetTokenStore())
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
