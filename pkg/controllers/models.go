package controllers

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/killallgit/genesis/pkg/backend"
	"github.com/killallgit/genesis/pkg/config"
	"github.com/killallgit/genesis/pkg/logger"
)

type ModelLister interface {
	ListModels(ctx context.Context) ([]backend.Model, error)
}

type ModelsController struct {
	client ModelLister
	models config.ModelsConfig
}

func NewModelsController(client ModelLister, models config.ModelsConfig) *ModelsController {
	return &ModelsController{
		client: client,
		models: models,
	}
}

// Names returns the selectable models, the auto alias first
func (mc *ModelsController) Names(ctx context.Context) ([]string, error) {
	log := logger.WithComponent("models_controller")
	log.Debug("Listing backend models")

	models, err := mc.client.ListModels(ctx)
	if err != nil {
		log.Error("Listing backend models failed", "error", err)
		return nil, fmt.Errorf("failed to list models: %w", err)
	}

	log.Debug("Listed backend models", "model_count", len(models))
	return backend.ModelNames(mc.models.AutoAlias, models), nil
}

func (mc *ModelsController) ListModels(ctx context.Context, writer io.Writer) error {
	names, err := mc.Names(ctx)
	if err != nil {
		return err
	}

	if len(names) == 0 || (len(names) == 1 && names[0] == mc.models.AutoAlias) {
		fmt.Fprintln(writer, "No models found")
		return nil
	}

	def := mc.models.Default
	if def == "" {
		def = mc.models.AutoAlias
	}

	w := tabwriter.NewWriter(writer, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tIMAGES\tDEFAULT")
	for _, name := range names {
		fmt.Fprintf(w, "%s\t%s\t%s\n", name, yesNo(mc.models.SupportsVision(name)), mark(name == def))
	}
	return w.Flush()
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func mark(b bool) string {
	if b {
		return "*"
	}
	return ""
}
