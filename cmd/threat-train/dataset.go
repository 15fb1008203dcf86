package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"threat-detector/internal/features"
	"threat-detector/internal/model"
	"threat-detector/internal/pipeline"
	"threat-detector/internal/scoring"
)

const benignLabel = "normal"

// labelOf reads the ground truth of a raw event. Events carry either a
// "label" string ("normal" is benign, anything else an attack) or an
// "is_attack" flag.
func labelOf(raw map[string]interface{}) (attack bool, labelled bool) {
	if v, ok := raw["is_attack"]; ok {
		switch b := v.(type) {
		case bool:
			return b, true
		case float64:
			return b != 0, true
		}
	}
	if v, ok := raw["label"].(string); ok && v != "" {
		return !strings.EqualFold(v, benignLabel), true
	}
	return false, false
}

type dataset struct {
	samples   []scoring.LabelledVector
	unlabeled int
	malformed int
}

// benign returns the vectors to fit on: labelled benign events, or every
// event when the set carries no labels at all.
func (d *dataset) benign() []features.Vector {
	var out []features.Vector
	for _, s := range d.samples {
		if !s.Attack {
			out = append(out, s.Vector)
		}
	}
	return out
}

func (d *dataset) labelled() []scoring.LabelledVector {
	return d.samples
}

func readDataset(ctx context.Context, r io.Reader, now time.Time) (*dataset, error) {
	d := &dataset{}
	stats, err := pipeline.ReadEvents(ctx, r, func(raw map[string]interface{}) {
		attack, ok := labelOf(raw)
		if !ok {
			d.unlabeled++
		}
		d.samples = append(d.samples, scoring.LabelledVector{
			Vector: features.Extract(model.NormalizeEvent(raw, now)),
			Attack: attack,
		})
	})
	d.malformed = stats.Malformed
	return d, err
}

func readDatasetFile(ctx context.Context, path string, now time.Time) (*dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	d, err := readDataset(ctx, f, now)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return d, nil
}
