package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/iudanet/medsync/internal/client/repository"
	"github.com/iudanet/medsync/internal/models"
)

// entitySpec описывает команды одной таблицы
type entitySpec[T any] struct {
	repo    func(*App) *repository.Repository[T]
	summary func(*T) string
	name    string // patients
	single  string // patient
	example string // пример payload для справки save
}

var patientsSpec = entitySpec[models.Patient]{
	name:   "patients",
	single: "patient",
	repo:   func(a *App) *repository.Patients { return a.Patients },
	summary: func(p *models.Patient) string {
		s := p.LastName + ", " + p.FirstName
		if !p.Active {
			s += " (inactive)"
		}
		return s
	},
	example: `{"first_name": "Ada", "last_name": "Lovelace", "birth_date": "1815-12-10", "active": true}`,
}

var consultationsSpec = entitySpec[models.Consultation]{
	name:   "consultations",
	single: "consultation",
	repo:   func(a *App) *repository.Consultations { return a.Consultations },
	summary: func(c *models.Consultation) string {
		status := c.Status
		if status == "" {
			status = models.ConsultationScheduled
		}
		return time.UnixMilli(c.ScheduledAt).Format("2006-01-02 15:04") + " " + status
	},
	example: `{"patient_id": "<patient id>", "scheduled_at": 1767261600000, "complaints": "headache"}`,
}

var prescriptionsSpec = entitySpec[models.Prescription]{
	name:   "prescriptions",
	single: "prescription",
	repo:   func(a *App) *repository.Prescriptions { return a.Prescriptions },
	summary: func(p *models.Prescription) string {
		return strings.TrimSpace(p.Medication + " " + p.Dosage)
	},
	example: `{"patient_id": "<patient id>", "medication": "Amoxicillin", "dosage": "500mg", "duration_days": 7}`,
}

// entityCommand builds list/get/save/finalize/discard/delete/drafts for one table.
func entityCommand[T any](c *Cli, spec entitySpec[T]) *cobra.Command {
	cmd := &cobra.Command{
		Use:   spec.name,
		Short: "Work with " + spec.name,
	}
	cmd.AddCommand(
		entityListCommand(c, spec),
		entityGetCommand(c, spec),
		entitySaveCommand(c, spec),
		entityFinalizeCommand(c, spec),
		entityDiscardCommand(c, spec),
		entityDeleteCommand(c, spec),
		entityDraftsCommand(c, spec),
	)
	return cmd
}

func printEntities[T any](c *Cli, spec entitySpec[T], entities []*repository.Entity[T]) error {
	if len(entities) == 0 {
		c.io.Printf("No %s found.\n", spec.name)
		return nil
	}

	w := c.table()
	_, _ = fmt.Fprintln(w, "ID\tSUMMARY\tPATIENT\tSTATE\tUPDATED")
	for _, e := range entities {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			e.Record.ID, spec.summary(&e.Value), e.Record.ParentID, recordState(e.Record), formatMillis(e.Record.UpdatedAt))
	}
	return w.Flush()
}

func entityListCommand[T any](c *Cli, spec entitySpec[T]) *cobra.Command {
	var parent string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List " + spec.name + " (from the server when online, from the cache otherwise)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			session, err := c.unlock(ctx)
			if err != nil {
				return err
			}
			c.connect(ctx)

			entities, err := spec.repo(c.app).Load(ctx, session.ScopeID, parent)
			if err != nil {
				return err
			}
			return printEntities(c, spec, entities)
		},
	}

	cmd.Flags().StringVar(&parent, "parent", "", "only records of this patient")
	return cmd
}

func entityGetCommand[T any](c *Cli, spec entitySpec[T]) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show one " + spec.single,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if _, err := c.unlock(ctx); err != nil {
				return err
			}
			c.connect(ctx)

			e, err := spec.repo(c.app).GetByID(ctx, args[0])
			if err != nil {
				return err
			}
			c.io.Printf("=== %s ===\n", spec.summary(&e.Value))
			c.io.Println()
			c.printRecord(e.Record)
			return nil
		},
	}
}

func entitySaveCommand[T any](c *Cli, spec entitySpec[T]) *cobra.Command {
	var (
		file, id, priority string
		draft              bool
	)

	cmd := &cobra.Command{
		Use:   "save",
		Short: "Create or update a " + spec.single + " from a JSON file",
		Long: "Create or update a " + spec.single + " from a JSON file.\n\n" +
			"Online changes go to the server directly; offline changes are queued.\n" +
			"Drafts are stored locally and never synchronized.\n\nExample payload:\n  " + spec.example,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			var value T
			if err := readJSONFile(file, &value); err != nil {
				return err
			}
			opts, err := saveOptions(priority)
			if err != nil {
				return err
			}

			session, err := c.unlock(ctx)
			if err != nil {
				return err
			}
			if !draft {
				c.connect(ctx)
			}

			e := &repository.Entity[T]{Value: value}
			if id != "" || draft {
				e.Record = &models.Record{ID: id, IsDraft: draft}
			}

			saved, err := spec.repo(c.app).Save(ctx, e, session.ScopeID, opts...)
			if err != nil {
				return err
			}
			c.reportSaved(spec.single, saved.Record)
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "JSON payload file, - for stdin")
	cmd.Flags().StringVar(&id, "id", "", "id of the record to update (new record when empty)")
	cmd.Flags().BoolVar(&draft, "draft", false, "save as a local draft")
	cmd.Flags().StringVar(&priority, "priority", "", "queue priority if the change is queued: low, normal, medium, high")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func entityFinalizeCommand[T any](c *Cli, spec entitySpec[T]) *cobra.Command {
	var priority string

	cmd := &cobra.Command{
		Use:   "finalize <id>",
		Short: "Turn a draft into a regular " + spec.single,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			opts, err := saveOptions(priority)
			if err != nil {
				return err
			}
			session, err := c.unlock(ctx)
			if err != nil {
				return err
			}
			c.connect(ctx)

			saved, err := spec.repo(c.app).FinalizeDraft(ctx, args[0], session.ScopeID, opts...)
			if err != nil {
				return err
			}
			c.reportSaved(spec.single, saved.Record)
			return nil
		},
	}

	cmd.Flags().StringVar(&priority, "priority", "", "queue priority if the change is queued: low, normal, medium, high")
	return cmd
}

func entityDiscardCommand[T any](c *Cli, spec entitySpec[T]) *cobra.Command {
	return &cobra.Command{
		Use:   "discard <id>",
		Short: "Delete a draft " + spec.single,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if _, err := c.unlock(ctx); err != nil {
				return err
			}
			if err := spec.repo(c.app).DeleteDraft(ctx, args[0]); err != nil {
				return err
			}
			c.io.Printf("✓ Draft %s discarded\n", args[0])
			return nil
		},
	}
}

func entityDeleteCommand[T any](c *Cli, spec entitySpec[T]) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a " + spec.single,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			session, err := c.unlock(ctx)
			if err != nil {
				return err
			}

			ok, err := c.confirm(fmt.Sprintf("Are you sure you want to delete %s %s?", spec.single, args[0]), yes)
			if err != nil {
				return err
			}
			if !ok {
				c.io.Println("Deletion cancelled.")
				return nil
			}

			online := c.connect(ctx)
			if err := spec.repo(c.app).Delete(ctx, args[0], session.ScopeID); err != nil {
				return err
			}

			c.io.Printf("✓ %s %s deleted\n", capitalize(spec.single), args[0])
			if !online {
				c.io.Println("The deletion is queued and will be sent on the next 'medsync sync'.")
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	return cmd
}

func entityDraftsCommand[T any](c *Cli, spec entitySpec[T]) *cobra.Command {
	return &cobra.Command{
		Use:   "drafts",
		Short: "List local draft " + spec.name,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			session, err := c.unlock(ctx)
			if err != nil {
				return err
			}

			drafts, err := spec.repo(c.app).Drafts(ctx, session.ScopeID)
			if err != nil {
				return err
			}
			return printEntities(c, spec, drafts)
		},
	}
}

func saveOptions(priority string) ([]repository.SaveOption, error) {
	if priority == "" {
		return nil, nil
	}
	p, err := models.ParsePriority(priority)
	if err != nil {
		return nil, err
	}
	return []repository.SaveOption{repository.WithPriority(p)}, nil
}

func (c *Cli) reportSaved(single string, rec *models.Record) {
	switch recordState(rec) {
	case "draft":
		c.io.Printf("✓ Draft %s %s saved locally (not synchronized)\n", single, rec.ID)
	case "synced":
		c.io.Printf("✓ %s %s saved on server\n", capitalize(single), rec.ID)
	default:
		c.io.Printf("✓ %s %s saved locally and queued for synchronization\n", capitalize(single), rec.ID)
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
