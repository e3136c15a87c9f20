// Package query builds C-FIND and C-MOVE identifier datasets: match keys
// from caller criteria, return keys from per-level attribute presets.
package query

import (
	"fmt"

	"github.com/pacsops/dicomqr/dicom"
	"github.com/pacsops/dicomqr/types"
)

// Preset selects how many return keys a query asks for.
type Preset string

const (
	PresetMinimal  Preset = "minimal"
	PresetStandard Preset = "standard"
	PresetExtended Preset = "extended"
)

// presetTags lists the return keys per level. Extended builds on standard,
// standard on minimal.
var presetTags = map[types.QueryLevel]map[Preset][]dicom.Tag{
	types.QueryLevelPatient: {
		PresetMinimal: {
			dicom.TagPatientID,
			dicom.TagPatientName,
		},
		PresetStandard: {
			dicom.TagPatientBirthDate,
			dicom.TagPatientSex,
		},
		PresetExtended: {
			dicom.TagPatientComments,
		},
	},
	types.QueryLevelStudy: {
		PresetMinimal: {
			dicom.TagStudyInstanceUID,
			dicom.TagStudyDate,
			dicom.TagStudyDescription,
		},
		PresetStandard: {
			dicom.TagPatientID,
			dicom.TagPatientName,
			dicom.TagStudyTime,
			dicom.TagAccessionNumber,
			dicom.TagModalitiesInStudy,
			dicom.TagStudyID,
		},
		PresetExtended: {
			dicom.TagNumberOfStudyRelatedSeries,
			dicom.TagNumberOfStudyRelatedInstances,
			dicom.TagReferringPhysicianName,
		},
	},
	types.QueryLevelSeries: {
		PresetMinimal: {
			dicom.TagSeriesInstanceUID,
			dicom.TagSeriesNumber,
			dicom.TagModality,
		},
		PresetStandard: {
			dicom.TagSeriesDescription,
			dicom.TagStudyInstanceUID,
		},
		PresetExtended: {
			dicom.TagNumberOfSeriesRelatedInstances,
			dicom.TagBodyPartExamined,
		},
	},
	types.QueryLevelImage: {
		PresetMinimal: {
			dicom.TagSOPInstanceUID,
			dicom.TagInstanceNumber,
		},
		PresetStandard: {
			dicom.TagSOPClassUID,
			dicom.TagSeriesInstanceUID,
			dicom.TagStudyInstanceUID,
		},
		PresetExtended: {
			dicom.TagRows,
			dicom.TagColumns,
			dicom.TagNumberOfFrames,
		},
	},
}

// Builder assembles one query identifier.
type Builder struct {
	level   types.QueryLevel
	preset  Preset
	match   map[dicom.Tag]string
	include []dicom.Tag
	exclude map[dicom.Tag]bool
}

// New starts a builder for the given level with the standard preset.
func New(level types.QueryLevel) *Builder {
	return &Builder{
		level:   level,
		preset:  PresetStandard,
		match:   make(map[dicom.Tag]string),
		exclude: make(map[dicom.Tag]bool),
	}
}

// WithPreset selects the return-key preset.
func (b *Builder) WithPreset(p Preset) *Builder {
	b.preset = p
	return b
}

// Match sets a match key. Empty values are ignored so callers can pass
// optional criteria through unconditionally.
func (b *Builder) Match(tag dicom.Tag, value string) *Builder {
	if value != "" {
		b.match[tag] = value
	}
	return b
}

// Include adds extra return keys beyond the preset.
func (b *Builder) Include(tags ...dicom.Tag) *Builder {
	b.include = append(b.include, tags...)
	return b
}

// Exclude removes return keys the preset would otherwise request.
func (b *Builder) Exclude(tags ...dicom.Tag) *Builder {
	for _, tag := range tags {
		b.exclude[tag] = true
	}
	return b
}

// returnKeys resolves the preset chain for the builder's level.
func (b *Builder) returnKeys() ([]dicom.Tag, error) {
	levels, ok := presetTags[b.level]
	if !ok {
		return nil, fmt.Errorf("query: unknown level %q", b.level)
	}

	var tags []dicom.Tag
	tags = append(tags, levels[PresetMinimal]...)
	if b.preset == PresetStandard || b.preset == PresetExtended {
		tags = append(tags, levels[PresetStandard]...)
	}
	if b.preset == PresetExtended {
		tags = append(tags, levels[PresetExtended]...)
	}
	if b.preset != PresetMinimal && b.preset != PresetStandard && b.preset != PresetExtended {
		return nil, fmt.Errorf("query: unknown preset %q", b.preset)
	}
	return append(tags, b.include...), nil
}

// Build produces the identifier dataset: QueryRetrieveLevel, the match keys,
// and zero-valued return keys for everything the preset asks for. A match
// key doubles as its own return key, so it is never zeroed.
func (b *Builder) Build() (*dicom.Dataset, error) {
	keys, err := b.returnKeys()
	if err != nil {
		return nil, err
	}

	ds := dicom.NewDataset()
	ds.AddString(dicom.TagQueryRetrieveLevel, string(b.level))
	for tag, value := range b.match {
		ds.AddString(tag, value)
	}
	for _, tag := range keys {
		if b.exclude[tag] {
			continue
		}
		if _, ok := ds.Get(tag); ok {
			continue
		}
		ds.AddString(tag, "")
	}
	return ds, nil
}

// FindSOPClass returns the information model matching the builder's level.
func (b *Builder) FindSOPClass() string { return b.level.FindSOPClass() }
