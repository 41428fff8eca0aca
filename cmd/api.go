package main

import (
	"context"
	"fmt"

	gojson "github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/desertthunder/reelsync/internal/services"
	"github.com/desertthunder/reelsync/internal/shared"
)

// APIGet makes a direct GET request to the sync server
func (r *Runner) APIGet(ctx context.Context, cmd *cli.Command) error {
	path, err := requiredArg(cmd, "path")
	if err != nil {
		return err
	}

	r.logger.Info("GET request", "path", path)

	resp, err := r.remote().Get(ctx, path)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}
	return r.writeResponse(resp, cmd.Bool("pretty"))
}

// APIPost makes a direct POST request to the sync server
func (r *Runner) APIPost(ctx context.Context, cmd *cli.Command) error {
	path, err := requiredArg(cmd, "path")
	if err != nil {
		return err
	}
	data := cmd.String("data")
	if data == "" {
		return fmt.Errorf("%w: --data flag is required", shared.ErrMissingArgument)
	}
	if !gojson.Valid([]byte(data)) {
		return fmt.Errorf("%w: --data is not valid JSON", shared.ErrInvalidArgument)
	}

	r.logger.Info("POST request", "path", path)

	resp, err := r.remote().Post(ctx, path, []byte(data))
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}
	return r.writeResponse(resp, true)
}

func (r *Runner) writeResponse(resp *services.APIResponse, pretty bool) error {
	if !resp.OK() {
		return fmt.Errorf("%w: status %d, body: %s", shared.ErrAPIRequest, resp.StatusCode, string(resp.Body))
	}

	if resp.IsJSON {
		return r.writeJSON(resp.JSONData, pretty)
	}

	if _, err := r.output.Write(resp.Body); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return r.writePlain("\n")
}
