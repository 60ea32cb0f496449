package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/collectivehq/collectivist/internal/publish"
	"github.com/collectivehq/collectivist/pkg/events"
	"github.com/collectivehq/collectivist/pkg/pipeline"
	"github.com/collectivehq/collectivist/pkg/plugin"
	"github.com/collectivehq/collectivist/pkg/plugin/builtin"
)

func newRegistry() *plugin.Registry {
	reg := plugin.NewRegistry()
	builtin.RegisterAll(reg)
	return reg
}

// runPipeline executes the selected stages against the current working
// directory with progress rendered to the console.
func runPipeline(opts pipeline.Options) error {
	root, err := os.Getwd()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bus := events.NewBus(0)
	sink := events.NewConsoleSink(bus, os.Stdout)
	drained := make(chan struct{})
	go func() {
		sink.Run()
		close(drained)
	}()

	p := &pipeline.Pipeline{
		Root:      root,
		Registry:  newRegistry(),
		Emitter:   events.NewEmitter(bus),
		Publisher: publish.New(),
	}
	_, err = p.Run(ctx, opts)

	sink.Close()
	<-drained
	return err
}
