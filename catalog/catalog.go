/*
Package catalog is the reference tax-benefit system: a slice of French
legislation expressed as engine variables.

PURPOSE:
  Gives the engine a realistic formula graph to evaluate: monthly family
  benefits reading yearly resources, monthly social contributions summed
  over a year, and a yearly income tax computed on a progressive scale.

CONTENTS:
  - famille.go:     complément familial (monthly, famille)
  - cotisations.go: employee social contributions (monthly, individu)
  - impot.go:       income tax (yearly, foyer_fiscal)
  - legislation.json: the parameter tree, embedded

ENTITIES:
  individu      person
  famille       roles parent, enfant
  foyer_fiscal  roles declarant, personne_a_charge

SEE ALSO:
  - reforms/: reforms built on this system
*/
package catalog

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"

	"github.com/warp/fisc-engine/engine"
	"github.com/warp/fisc-engine/legislation"
)

// Entity kinds.
const (
	Individu    = "individu"
	Famille     = "famille"
	FoyerFiscal = "foyer_fiscal"
)

// Roles in groups.
const (
	RoleParent          = "parent"
	RoleEnfant          = "enfant"
	RoleDeclarant       = "declarant"
	RolePersonneACharge = "personne_a_charge"
)

// ReferenceName is the name of the reference system.
const ReferenceName = "france"

//go:embed legislation.json
var legislationJSON []byte

// Entities returns the entity kinds of the reference system.
func Entities() []engine.Entity {
	return []engine.Entity{
		{Key: Individu, Plural: "individus", Label: "Individu", Person: true},
		{Key: Famille, Plural: "familles", Label: "Famille", Roles: []string{RoleParent, RoleEnfant}},
		{Key: FoyerFiscal, Plural: "foyers_fiscaux", Label: "Foyer fiscal", Roles: []string{RoleDeclarant, RolePersonneACharge}},
	}
}

// Variables returns every variable of the reference system.
func Variables() []engine.Variable {
	var vars []engine.Variable
	vars = append(vars, familleVariables()...)
	vars = append(vars, cotisationsVariables()...)
	vars = append(vars, impotVariables()...)
	return vars
}

// Legislation parses the embedded parameter tree. Every call returns a
// fresh tree.
func Legislation() (*legislation.Node, error) {
	root, err := legislation.Load(bytes.NewReader(legislationJSON))
	if err != nil {
		return nil, fmt.Errorf("embedded legislation: %w", err)
	}
	return root, nil
}

// LoadLegislation reads a parameter tree from a JSON or YAML file, chosen
// by extension.
func LoadLegislation(path string) (*legislation.Node, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if isYAML(path) {
		return legislation.LoadYAML(f)
	}
	return legislation.Load(f)
}

func isYAML(path string) bool {
	n := len(path)
	return (n > 5 && path[n-5:] == ".yaml") || (n > 4 && path[n-4:] == ".yml")
}

// NewSystem builds the reference system on the embedded legislation.
func NewSystem() (*engine.System, error) {
	params, err := Legislation()
	if err != nil {
		return nil, err
	}
	return NewSystemWith(params)
}

// NewSystemWith builds the reference system on the given legislation.
func NewSystemWith(params *legislation.Node) (*engine.System, error) {
	return engine.NewSystem(ReferenceName, Entities(), params, Variables()...)
}
