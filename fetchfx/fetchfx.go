// Package fetchfx wires a configured *client.Client into an fx.App.
//
// The enclosing application supplies a *viper.Viper; settings are read
// from it with config.Load. A *slog.Logger, a trace.TracerProvider and
// extra client options in the "fetch.options" group are used when
// present.
package fetchfx

import (
	"context"
	"log/slog"

	"github.com/spf13/viper"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"

	"github.com/adamwoolhether/fetch/client"
	"github.com/adamwoolhether/fetch/config"
)

// OptionsGroup is the value group collecting additional client options.
const OptionsGroup = "fetch.options"

// Module provides config.Settings and *client.Client.
var Module = fx.Module("fetch",
	fx.Provide(
		ProvideSettings,
		ProvideClient,
	),
)

// ProvideSettings loads config.Settings from the application's viper.
func ProvideSettings(v *viper.Viper) (config.Settings, error) {
	return config.Load(v)
}

// ClientIn is the set of dependencies for ProvideClient.
type ClientIn struct {
	fx.In

	Lifecycle fx.Lifecycle
	Settings  config.Settings

	Logger         *slog.Logger         `optional:"true"`
	TracerProvider trace.TracerProvider `optional:"true"`
	Options        []client.Option      `group:"fetch.options"`
}

// ProvideClient builds the client. Options from the group are applied
// after the loaded settings, so they win. Idle connections are closed
// when the application stops.
func ProvideClient(in ClientIn) (*client.Client, error) {
	opts := []client.Option{client.WithSettings(in.Settings)}
	if in.Logger != nil {
		opts = append(opts, client.WithLogger(in.Logger))
	}
	if in.TracerProvider != nil {
		opts = append(opts, client.WithTracerProvider(in.TracerProvider))
	}
	opts = append(opts, in.Options...)

	c, err := client.Build(opts...)
	if err != nil {
		return nil, err
	}

	in.Lifecycle.Append(fx.Hook{
		OnStop: func(context.Context) error {
			c.CloseIdleConnections()
			return nil
		},
	})

	return c, nil
}

// Option supplies an extra client option to the "fetch.options" group.
func Option(opt client.Option) fx.Option {
	return fx.Provide(fx.Annotated{
		Group:  OptionsGroup,
		Target: func() client.Option { return opt },
	})
}
