package snapshot

import "sort"

// Diff is the structural difference between two snapshots.
type Diff struct {
	AddedConfigs     []string `json:"added_configs"`
	RemovedConfigs   []string `json:"removed_configs"`
	ChangedConfigs   []string `json:"changed_configs"`
	AddedLanguages   []string `json:"added_languages"`
	RemovedLanguages []string `json:"removed_languages"`
	FileDelta        int      `json:"file_delta"`
	LineDelta        int      `json:"line_delta"`
	HasChanges       bool     `json:"has_changes"`
}

// Compare returns the diff from before to after. It does not touch the
// filesystem and does not modify either snapshot.
func Compare(before, after *Snapshot) Diff {
	d := Diff{
		AddedConfigs:     []string{},
		RemovedConfigs:   []string{},
		ChangedConfigs:   []string{},
		AddedLanguages:   []string{},
		RemovedLanguages: []string{},
	}
	if before == nil || after == nil {
		return d
	}

	prev := make(map[string]string, len(before.ConfigFiles))
	for _, c := range before.ConfigFiles {
		prev[c.Path] = c.Hash
	}
	next := make(map[string]string, len(after.ConfigFiles))
	for _, c := range after.ConfigFiles {
		next[c.Path] = c.Hash
		h, ok := prev[c.Path]
		switch {
		case !ok:
			d.AddedConfigs = append(d.AddedConfigs, c.Path)
		case h != c.Hash:
			d.ChangedConfigs = append(d.ChangedConfigs, c.Path)
		}
	}
	for p := range prev {
		if _, ok := next[p]; !ok {
			d.RemovedConfigs = append(d.RemovedConfigs, p)
		}
	}

	for lang := range after.Languages {
		if _, ok := before.Languages[lang]; !ok {
			d.AddedLanguages = append(d.AddedLanguages, lang)
		}
	}
	for lang := range before.Languages {
		if _, ok := after.Languages[lang]; !ok {
			d.RemovedLanguages = append(d.RemovedLanguages, lang)
		}
	}

	sort.Strings(d.AddedConfigs)
	sort.Strings(d.RemovedConfigs)
	sort.Strings(d.ChangedConfigs)
	sort.Strings(d.AddedLanguages)
	sort.Strings(d.RemovedLanguages)

	d.FileDelta = after.TotalFiles - before.TotalFiles
	d.LineDelta = after.TotalLines - before.TotalLines
	d.HasChanges = len(d.AddedConfigs) > 0 || len(d.RemovedConfigs) > 0 || len(d.ChangedConfigs) > 0 ||
		len(d.AddedLanguages) > 0 || len(d.RemovedLanguages) > 0 ||
		d.FileDelta != 0 || d.LineDelta != 0
	return d
}
