package orchestrator

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/monofuel/scriptorium/internal/plan"
	"github.com/monofuel/scriptorium/internal/planstore"
)

// AreaDoc is one generated area: the id becomes the file stem under areas/.
type AreaDoc struct {
	ID      string
	Content string
}

// TicketDoc is one generated ticket. The orchestrator assigns the numeric
// id and guarantees the area marker line.
type TicketDoc struct {
	Slug string
	Body string
}

// AreaGenerator produces areas from the spec. Implemented by the architect
// LLM adapter; tests substitute fakes.
type AreaGenerator func(model, spec string) ([]AreaDoc, error)

// TicketGenerator produces tickets for one area. Implemented by the manager
// LLM adapter; tests substitute fakes.
type TicketGenerator func(model, areaPath, areaContent string) ([]TicketDoc, error)

// Commit messages for the plan-sync steps.
const (
	msgUpdateAreas   = "scriptorium: update areas from spec"
	msgCreateTickets = "scriptorium: create tickets from areas"
)

// SyncAreasFromSpec generates areas when areas/ holds no markdown files.
// Idempotent: once areas exist, repeated calls produce no commits.
func (o *Orchestrator) SyncAreasFromSpec() error {
	if o.areaGen == nil {
		return nil
	}
	return o.store.WithWorktree(func(planDir string) error {
		if err := planstore.EnsureLayout(planDir); err != nil {
			return err
		}
		if hasMarkdown(filepath.Join(planDir, plan.AreasDir)) {
			return nil
		}
		specBody, err := os.ReadFile(filepath.Join(planDir, plan.SpecFile))
		if err != nil {
			if os.IsNotExist(err) {
				return ErrSpecMissing
			}
			return fmt.Errorf("read spec: %w", err)
		}
		areas, err := o.areaGen(o.config().Models.Architect, string(specBody))
		if err != nil {
			return fmt.Errorf("generate areas: %w", err)
		}
		for _, a := range areas {
			id, err := plan.NormalizeSlug(a.ID)
			if err != nil {
				return fmt.Errorf("area id: %w", err)
			}
			path := filepath.Join(planDir, plan.AreasDir, id+".md")
			if err := os.WriteFile(path, []byte(a.Content), 0o644); err != nil {
				return fmt.Errorf("write area %s: %w", id, err)
			}
		}
		committed, err := planstore.CommitAll(planDir, msgUpdateAreas)
		if err != nil {
			return err
		}
		if committed {
			o.logger.Printf("PlanSync: generated %d area(s) from spec", len(areas))
		}
		return nil
	})
}

// SyncTicketsFromAreas generates tickets for every area with no ticket in
// open or in-progress. Idempotent: covered areas are skipped.
func (o *Orchestrator) SyncTicketsFromAreas() error {
	if o.ticketGen == nil {
		return nil
	}
	return o.store.WithWorktree(func(planDir string) error {
		if err := planstore.EnsureLayout(planDir); err != nil {
			return err
		}
		needs, err := plan.AreasNeedingTickets(planDir)
		if err != nil {
			return err
		}
		if len(needs) == 0 {
			return nil
		}
		created := 0
		for _, areaRel := range needs {
			rel, err := plan.NormalizeAreaPath(areaRel)
			if err != nil {
				return err
			}
			content, err := os.ReadFile(filepath.Join(planDir, filepath.FromSlash(rel)))
			if err != nil {
				return fmt.Errorf("read area %s: %w", rel, err)
			}
			areaID := strings.TrimSuffix(filepath.Base(rel), ".md")
			docs, err := o.ticketGen(o.config().Models.Manager, rel, string(content))
			if err != nil {
				return fmt.Errorf("generate tickets for %s: %w", rel, err)
			}
			for _, doc := range docs {
				id, err := plan.NextTicketID(planDir)
				if err != nil {
					return err
				}
				slug, err := plan.NormalizeSlug(doc.Slug)
				if err != nil {
					return err
				}
				body := doc.Body
				if plan.ParseAreaID(body) == "" {
					body = plan.AreaMarker + " " + areaID + "\n\n" + body
				}
				name := plan.TicketFilename(id, slug)
				path := filepath.Join(planDir, plan.TicketsDir, plan.StateOpen, name)
				if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
					return fmt.Errorf("write ticket %s: %w", name, err)
				}
				created++
			}
		}
		committed, err := planstore.CommitAll(planDir, msgCreateTickets)
		if err != nil {
			return err
		}
		if committed {
			o.logger.Printf("PlanSync: created %d ticket(s) for %d area(s)", created, len(needs))
		}
		return nil
	})
}

func hasMarkdown(dir string) bool {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false
	}
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".md") {
			return true
		}
	}
	return false
}
