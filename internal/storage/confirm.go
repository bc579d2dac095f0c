package storage

import "fmt"

// Decision is the operator's answer to a model drift prompt.
type Decision int

const (
	// DecisionDefer leaves the store read-only until the next start.
	DecisionDefer Decision = iota
	// DecisionRebuild wipes the store and registers the new model.
	DecisionRebuild
	// DecisionKeep registers the new model alongside the stored rows.
	DecisionKeep
)

// ParseDecision maps a configuration string to a Decision.
func ParseDecision(s string) (Decision, error) {
	switch s {
	case "rebuild":
		return DecisionRebuild, nil
	case "keep":
		return DecisionKeep, nil
	case "defer":
		return DecisionDefer, nil
	}
	return DecisionDefer, fmt.Errorf("unknown rebuild decision %q", s)
}

// Confirmer answers the open-time drift prompt. The store never resolves
// drift on its own.
type Confirmer interface {
	Confirm(check UpdateCheck, cfg ModelConfig) (Decision, error)
}

// StaticConfirmer answers every prompt with a fixed decision, typically
// taken from configuration.
type StaticConfirmer struct {
	Decision Decision
}

func (c StaticConfirmer) Confirm(UpdateCheck, ModelConfig) (Decision, error) {
	return c.Decision, nil
}

// Resolve applies the confirmer's answer to the result of Open. A CheckOK
// store needs no resolution; any drift state is put to the confirmer.
// After a deferred answer the store stays open for reads but rejects
// writes with ErrNoModel.
func (s *Store) Resolve(check UpdateCheck, c Confirmer) error {
	if check == CheckOK {
		return nil
	}
	decision, err := c.Confirm(check, s.cfg)
	if err != nil {
		return err
	}
	switch decision {
	case DecisionRebuild:
		return s.Rebuild()
	case DecisionKeep:
		return s.RegisterModel()
	}
	return nil
}
