// Package reconciler rebuilds the active alert set from one feed batch and
// works out which alerts are new since the previous batch.
package reconciler

import (
	"cmp"
	"slices"

	"github.com/mr1hm/severe-weather-dashboard/internal/models"
)

type Classifier interface {
	Classify(raw models.RawAlert) (models.ClassifiedAlert, bool)
}

// State is carried by the caller between reconciles. The zero value is the
// state before the first load.
type State struct {
	Seen   map[string]struct{}
	Primed bool
}

type Result struct {
	Alerts        []models.ClassifiedAlert
	NewlyAppeared []models.ClassifiedAlert
	State         State
	// Excluded counts batch entries the classifier rejected.
	Excluded int
}

type Reconciler struct {
	classifier Classifier
}

func New(c Classifier) *Reconciler {
	return &Reconciler{classifier: c}
}

// Reconcile classifies batch, keeps the last entry per id, and sorts by
// priority with ties in feed order. NewlyAppeared is always empty when prev
// has not been primed yet.
func (r *Reconciler) Reconcile(batch []models.RawAlert, prev State) Result {
	survivors := make([]models.ClassifiedAlert, 0, len(batch))
	index := make(map[string]int, len(batch))
	dropped := make(map[int]bool)
	excluded := 0

	for _, raw := range batch {
		a, ok := r.classifier.Classify(raw)
		if !ok {
			excluded++
			continue
		}
		if i, dup := index[a.ID]; dup {
			dropped[i] = true
		}
		index[a.ID] = len(survivors)
		survivors = append(survivors, a)
	}

	alerts := make([]models.ClassifiedAlert, 0, len(survivors)-len(dropped))
	for i, a := range survivors {
		if !dropped[i] {
			alerts = append(alerts, a)
		}
	}

	slices.SortStableFunc(alerts, func(a, b models.ClassifiedAlert) int {
		return cmp.Compare(a.Priority, b.Priority)
	})

	seen := make(map[string]struct{}, len(alerts))
	for _, a := range alerts {
		seen[a.ID] = struct{}{}
	}

	res := Result{
		Alerts:        alerts,
		NewlyAppeared: []models.ClassifiedAlert{},
		State:         State{Seen: seen, Primed: true},
		Excluded:      excluded,
	}
	if !prev.Primed {
		return res
	}

	for _, a := range alerts {
		if _, ok := prev.Seen[a.ID]; !ok {
			res.NewlyAppeared = append(res.NewlyAppeared, a)
		}
	}
	return res
}

type Counters struct {
	ByCode map[string]int `json:"by_code"`
	Total  int            `json:"total"`
}

// Count tallies alerts per counter code. Every standard code is present,
// zero when absent.
func Count(alerts []models.ClassifiedAlert) Counters {
	c := Counters{ByCode: make(map[string]int, len(models.CounterCodes))}
	for _, code := range models.CounterCodes {
		c.ByCode[code] = 0
	}
	for _, a := range alerts {
		c.ByCode[a.Code]++
		c.Total++
	}
	return c
}
