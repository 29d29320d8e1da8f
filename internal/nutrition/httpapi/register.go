// SPDX-License-Identifier: MPL-2.0

package httpapi

import (
	"context"
	"net/http"
	"path/filepath"

	"github.com/gantryhq/gantry/internal/application"
	"github.com/gantryhq/gantry/internal/nutrition"
)

const (
	// Ref is the application reference the nutrition API is served under.
	Ref = "app:app"
	// DatasetEnv overrides the dataset location.
	DatasetEnv = "NUTRITION_DATASET"
)

// Register binds the nutrition API to Ref. The factory loads the dataset
// from DatasetEnv, or dataset.json in the application directory.
func Register(reg *application.Registry) error {
	return reg.Register(Ref, Factory)
}

// Factory builds the nutrition API for one worker.
func Factory(_ context.Context, env application.Env) (http.Handler, error) {
	path := env.Lookup(DatasetEnv)
	if path == "" {
		path = filepath.Join(env.WorkDir, nutrition.DatasetFileName)
	}

	ds, err := nutrition.LoadDataset(path)
	if err != nil {
		return nil, err
	}

	logger := env.Logger
	if logger != nil {
		logger = logger.WithPrefix("nutrition")
		logger.Info("dataset loaded", "path", path, "foods", ds.Len())
	}
	return New(ds, logger), nil
}
