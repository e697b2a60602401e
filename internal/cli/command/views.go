package command

import (
	"sort"
	"strconv"
	"time"

	"github.com/yndnr/worldsnap/internal/cli/output"
	"github.com/yndnr/worldsnap/internal/core/domain"
	"github.com/yndnr/worldsnap/internal/core/service"
	"github.com/yndnr/worldsnap/internal/generation"
)

type generationList []*domain.Generation

func (l generationList) Table(wide bool) *output.Table {
	t := &output.Table{}
	if wide {
		t.SetHeaders("GENERATION", "STATE", "MODE", "FILES", "COPIED", "REFERENCED", "FALLBACKS", "SIZE", "SEALED", "RUN")
	} else {
		t.SetHeaders("GENERATION", "STATE", "FILES", "COPIED", "SIZE")
	}
	for _, g := range l {
		if wide {
			t.AddRow(string(g.ID), string(g.State), string(g.Mode),
				strconv.Itoa(g.Files), strconv.Itoa(g.Copied), strconv.Itoa(g.Referenced),
				strconv.Itoa(g.Fallbacks), output.Bytes(g.BytesCopied), output.Time(g.SealedAt), g.RunID)
			continue
		}
		t.AddRow(string(g.ID), string(g.State), strconv.Itoa(g.Files),
			strconv.Itoa(g.Copied), output.Bytes(g.BytesCopied))
	}
	return t
}

// referenceEntry is one tracked path of a generation.
type referenceEntry struct {
	Path   string              `json:"path"`
	Target domain.Reference    `json:"target"`
	Owner  domain.GenerationID `json:"owner,omitempty"`
	Error  string              `json:"error,omitempty"`
}

type generationDetail struct {
	Generation *domain.Generation `json:"generation"`
	Files      []referenceEntry   `json:"files"`
}

func (d *generationDetail) Table(wide bool) *output.Table {
	t := &output.Table{}
	if wide {
		t.SetHeaders("PATH", "TARGET", "OWNER")
	} else {
		t.SetHeaders("PATH", "OWNER")
	}
	for _, f := range d.Files {
		owner := string(f.Owner)
		if f.Error != "" {
			owner = "broken: " + f.Error
		}
		if wide {
			t.AddRow(f.Path, f.Target.String(), owner)
			continue
		}
		t.AddRow(f.Path, owner)
	}
	return t
}

func newGenerationDetail(g *domain.Generation, refs map[string]domain.Reference, owners map[string]domain.Reference, broken map[string]error) *generationDetail {
	d := &generationDetail{Generation: g, Files: make([]referenceEntry, 0, len(refs))}
	for p, ref := range refs {
		e := referenceEntry{Path: p, Target: ref}
		if owner, ok := owners[p]; ok {
			e.Owner = owner.Generation
		}
		if err := broken[p]; err != nil {
			e.Error = err.Error()
		}
		d.Files = append(d.Files, e)
	}
	sort.Slice(d.Files, func(i, j int) bool { return d.Files[i].Path < d.Files[j].Path })
	return d
}

type backupView struct {
	Generation domain.GenerationID `json:"generation"`
	Previous   domain.GenerationID `json:"previous,omitempty"`
	UpToDate   bool                `json:"up_to_date"`
	Files      int                 `json:"files"`
	Copied     int                 `json:"copied"`
	Referenced int                 `json:"referenced"`
	Fallbacks  int                 `json:"fallbacks"`
	Bytes      int64               `json:"bytes_copied"`
	Elapsed    time.Duration       `json:"elapsed"`
}

func newBackupView(label domain.GenerationID, r *service.BackupResult) *backupView {
	v := &backupView{Generation: label, Previous: r.Previous, UpToDate: r.UpToDate, Elapsed: r.Elapsed}
	if g := r.Generation; g != nil {
		v.Generation = g.ID
		v.Files, v.Copied, v.Referenced, v.Fallbacks, v.Bytes = g.Files, g.Copied, g.Referenced, g.Fallbacks, g.BytesCopied
	}
	return v
}

func (v *backupView) Table(bool) *output.Table {
	t := &output.Table{Headers: []string{"FIELD", "VALUE"}}
	t.AddRow("Generation", string(v.Generation))
	if v.UpToDate {
		t.AddRow("Status", "up to date")
		return t
	}
	prev := string(v.Previous)
	if prev == "" {
		prev = "-"
	}
	t.AddRow("Previous", prev)
	t.AddRow("Files", strconv.Itoa(v.Files))
	t.AddRow("Copied", strconv.Itoa(v.Copied))
	t.AddRow("Referenced", strconv.Itoa(v.Referenced))
	t.AddRow("Fallbacks", strconv.Itoa(v.Fallbacks))
	t.AddRow("Bytes copied", output.Bytes(v.Bytes))
	t.AddRow("Elapsed", v.Elapsed.Round(time.Millisecond).String())
	return t
}

type compactionList []*service.CompactionResult

func (l compactionList) Table(bool) *output.Table {
	t := &output.Table{}
	t.SetHeaders("REMOVED", "SUCCESSOR", "FORWARDED", "COPIED", "RETARGETED", "DISCARDED")
	for _, r := range l {
		t.AddRow(string(r.Generation), string(r.Successor), strconv.Itoa(r.Forwarded),
			strconv.Itoa(r.Copied), strconv.Itoa(r.Retargeted), strconv.Itoa(r.Discarded))
	}
	return t
}

type reportView struct {
	*generation.Report
	OK bool `json:"ok"`
}

func (v *reportView) Table(bool) *output.Table {
	t := &output.Table{}
	t.SetHeaders("GENERATION", "PATH", "PROBLEM")
	for _, id := range v.Provisional {
		t.AddRow(string(id), "-", "provisional")
	}
	for _, p := range v.Broken {
		t.AddRow(string(p.Generation), p.Path, p.Error)
	}
	for _, o := range v.Orphans {
		t.AddRow("-", o, "orphan")
	}
	if len(t.Rows) == 0 {
		t.AddRow("-", "-", "none ("+strconv.Itoa(v.Generations)+" generations, "+
			strconv.Itoa(v.References)+" references, "+strconv.Itoa(v.PhysicalFiles)+" files)")
	}
	return t
}

type idList []domain.GenerationID

func (l idList) Table(bool) *output.Table {
	t := &output.Table{}
	t.SetHeaders("GENERATION")
	for _, id := range l {
		t.AddRow(string(id))
	}
	return t
}
