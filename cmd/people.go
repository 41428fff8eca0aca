package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/reelsync/internal/formatter"
	"github.com/desertthunder/reelsync/internal/models"
	"github.com/desertthunder/reelsync/internal/shared"
	"github.com/desertthunder/reelsync/internal/store"
)

// PersonAdd creates a person.
func (r *Runner) PersonAdd(ctx context.Context, cmd *cli.Command) error {
	name, err := requiredArg(cmd, "name")
	if err != nil {
		return err
	}
	if err := r.open(ctx); err != nil {
		return err
	}

	p := models.Person{
		Name:      name,
		IsTrusted: cmd.Bool("trusted"),
		IsDefault: cmd.Bool("default"),
		Color:     cmd.String("color"),
		Emoji:     cmd.String("emoji"),
	}
	if err := r.store.AddPerson(ctx, p); err != nil {
		return err
	}
	r.writePlain("✓ Added %s\n", name)
	return nil
}

// PersonUpdate changes only the flags that were passed.
func (r *Runner) PersonUpdate(ctx context.Context, cmd *cli.Command) error {
	name, err := requiredArg(cmd, "name")
	if err != nil {
		return err
	}

	update := models.PersonPayload{Name: name}
	if cmd.IsSet("default") {
		v := cmd.Bool("default")
		update.IsDefault = &v
	}
	if cmd.IsSet("color") {
		v := cmd.String("color")
		update.Color = &v
	}
	if cmd.IsSet("emoji") {
		v := cmd.String("emoji")
		update.Emoji = &v
	}
	if update.IsDefault == nil && update.Color == nil && update.Emoji == nil {
		return fmt.Errorf("%w: nothing to update", shared.ErrMissingArgument)
	}
	if err := r.open(ctx); err != nil {
		return err
	}

	if err := r.store.UpdatePerson(ctx, update); err != nil {
		return err
	}
	r.writePlain("✓ Updated %s\n", name)
	return nil
}

// PersonTrust trusts a person, or revokes trust with --revoke.
func (r *Runner) PersonTrust(ctx context.Context, cmd *cli.Command) error {
	name, err := requiredArg(cmd, "name")
	if err != nil {
		return err
	}
	if err := r.open(ctx); err != nil {
		return err
	}

	trusted := !cmd.Bool("revoke")
	if err := r.store.SetPersonTrust(ctx, name, trusted); err != nil {
		return err
	}
	if trusted {
		r.writePlain("✓ %s is trusted\n", name)
	} else {
		r.writePlain("✓ %s is no longer trusted\n", name)
	}
	return nil
}

// PersonDelete removes a person and their votes.
func (r *Runner) PersonDelete(ctx context.Context, cmd *cli.Command) error {
	name, err := requiredArg(cmd, "name")
	if err != nil {
		return err
	}
	if err := r.open(ctx); err != nil {
		return err
	}

	if err := r.store.DeletePerson(ctx, name); err != nil {
		return err
	}
	r.writePlain("✓ Deleted %s\n", name)
	return nil
}

// PersonList prints people; --trusted keeps only trusted ones.
func (r *Runner) PersonList(ctx context.Context, cmd *cli.Command) error {
	if err := r.open(ctx); err != nil {
		return err
	}

	people, err := r.store.People(ctx, cmd.Bool("trusted"))
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		out := make([]formatter.PersonExport, 0, len(people))
		for _, p := range people {
			out = append(out, formatter.NewPersonExport(p))
		}
		return r.writeJSON(out, true)
	}

	r.writePlain("People: %d\n\n", len(people))
	for _, p := range people {
		r.writePlain("%s", p.Name)
		if p.Emoji != "" {
			r.writePlain(" %s", p.Emoji)
		}
		if p.IsTrusted {
			r.writePlain(" (trusted)")
		}
		if p.IsDefault {
			r.writePlain(" (default)")
		}
		r.writePlain("\n")
	}
	return nil
}

// ListAdd creates a custom list.
func (r *Runner) ListAdd(ctx context.Context, cmd *cli.Command) error {
	name, err := requiredArg(cmd, "name")
	if err != nil {
		return err
	}
	if err := r.open(ctx); err != nil {
		return err
	}

	list, err := r.store.AddList(ctx, name, cmd.String("color"), cmd.String("icon"))
	if err != nil {
		return err
	}
	r.writePlain("✓ Created list %s (%s)\n", list.Name, list.ID)
	return nil
}

// ListUpdate changes only the flags that were passed.
func (r *Runner) ListUpdate(ctx context.Context, cmd *cli.Command) error {
	id, err := requiredArg(cmd, "id")
	if err != nil {
		return err
	}

	update := models.ListPayload{ID: id}
	if cmd.IsSet("name") {
		v := cmd.String("name")
		update.Name = &v
	}
	if cmd.IsSet("color") {
		v := cmd.String("color")
		update.Color = &v
	}
	if cmd.IsSet("icon") {
		v := cmd.String("icon")
		update.Icon = &v
	}
	if cmd.IsSet("position") {
		v := cmd.Int("position")
		update.Position = &v
	}
	if update.Name == nil && update.Color == nil && update.Icon == nil && update.Position == nil {
		return fmt.Errorf("%w: nothing to update", shared.ErrMissingArgument)
	}
	if err := r.open(ctx); err != nil {
		return err
	}

	if err := r.store.UpdateList(ctx, update); err != nil {
		return err
	}
	r.writePlain("✓ Updated list %s\n", id)
	return nil
}

// ListDelete removes a list.
func (r *Runner) ListDelete(ctx context.Context, cmd *cli.Command) error {
	id, err := requiredArg(cmd, "id")
	if err != nil {
		return err
	}
	if err := r.open(ctx); err != nil {
		return err
	}

	if err := r.store.DeleteList(ctx, id); err != nil {
		return err
	}
	r.writePlain("✓ Deleted list %s\n", id)
	return nil
}

// ListShow prints every list, or one list with its movies.
func (r *Runner) ListShow(ctx context.Context, cmd *cli.Command) error {
	if err := r.open(ctx); err != nil {
		return err
	}

	id := cmd.StringArg("id")
	if id == "" {
		lists, err := r.store.Lists(ctx)
		if err != nil {
			return err
		}
		if cmd.Bool("json") {
			out := make([]formatter.ListExport, 0, len(lists))
			for _, l := range lists {
				out = append(out, formatter.NewListExport(l))
			}
			return r.writeJSON(out, true)
		}
		r.writePlain("Lists: %d\n\n", len(lists))
		for _, l := range lists {
			r.writePlain("%d. %s (%s)\n", l.Position, l.Name, l.ID)
		}
		return nil
	}

	list, err := r.store.List(ctx, id)
	if err != nil {
		return err
	}
	movies, err := r.store.Movies(ctx, store.MovieFilter{List: id})
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		out := struct {
			formatter.ListExport
			Movies []formatter.MovieExport `json:"movies"`
		}{ListExport: formatter.NewListExport(*list), Movies: make([]formatter.MovieExport, 0, len(movies))}
		for _, m := range movies {
			out.Movies = append(out.Movies, formatter.NewMovieExport(m))
		}
		return r.writeJSON(out, true)
	}

	r.writePlainHeader(list.Name)
	data, err := formatter.ExportToText(movies)
	if err != nil {
		return err
	}
	return r.writePlain("%s", data)
}
