// Package decl loads YAML workflow declarations and builds runnable machines
// from them. A declaration file is a mapping whose "entry" key names the
// machine to run; every other top-level key defines one machine:
//
//	entry: main
//	main:
//	  name: order-flow
//	  lambda_dir: lambdas
//	  timeout: 120
//	  tree:
//	    validate: route
//	    route: route_conditions
//	    express: null
//	    standard: null
//	  states:
//	    validate: {name: validate_order, type: lambda, timeout: 10}
//	    route: {name: route_order, type: choice}
//	    express: {name: ship_express, type: lambda}
//	    standard: {name: ship_standard, type: lambda}
//	  vars:
//	    route_conditions:
//	      - "when $.order.priority eq 'high' then #express"
//	      - "#standard"
//
// The tree is an ordered mapping from state key to successor key; for a
// choice state the successor key instead names the vars entry holding its
// decision statements, and the choice's real successors come from the
// statements themselves (#tag references resolve through the states table).
// Parallel states list sibling machine keys under workflows.
package decl

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// File is a parsed declaration file.
type File struct {
	Entry    string
	Machines map[string]*MachineDecl
}

// MachineDecl is one machine definition within a declaration file.
type MachineDecl struct {
	Name      string                `yaml:"name"`
	LambdaDir string                `yaml:"lambda_dir"`
	Timeout   int                   `yaml:"timeout"`
	Tree      yaml.Node             `yaml:"tree"`
	States    map[string]*StateDecl `yaml:"states"`
	Vars      map[string][]string   `yaml:"vars"`
}

// StateDecl is one state definition within a machine.
type StateDecl struct {
	Name      string   `yaml:"name"`
	Type      string   `yaml:"type"`
	Timeout   int      `yaml:"timeout"`
	Workflows []string `yaml:"workflows"`
}

// treePair is one edge of the ordered execution tree.
type treePair struct {
	current string
	next    string
}

// UnmarshalYAML splits the top-level mapping into the entry key and the
// machine definitions.
func (f *File) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("declaration root must be a mapping")
	}

	f.Machines = make(map[string]*MachineDecl)
	for i := 0; i+1 < len(node.Content); i += 2 {
		key := node.Content[i].Value
		value := node.Content[i+1]

		if key == "entry" {
			if err := value.Decode(&f.Entry); err != nil {
				return fmt.Errorf("decode entry: %w", err)
			}
			continue
		}

		var m MachineDecl
		if err := value.Decode(&m); err != nil {
			return fmt.Errorf("decode machine %q: %w", key, err)
		}
		f.Machines[key] = &m
	}

	if f.Entry == "" {
		return fmt.Errorf("declaration has no entry key")
	}
	if _, ok := f.Machines[f.Entry]; !ok {
		return fmt.Errorf("entry machine %q is not defined", f.Entry)
	}
	return nil
}

// Parse decodes a declaration from YAML bytes.
func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse declaration: %w", err)
	}
	return &f, nil
}

// Load reads and decodes a declaration file.
func Load(filename string) (*File, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("read declaration file: %w", err)
	}
	return Parse(data)
}

// treePairs returns the execution tree edges in declaration order. A null
// successor maps to the empty string.
func (m *MachineDecl) treePairs() ([]treePair, error) {
	if m.Tree.Kind == 0 {
		return nil, fmt.Errorf("machine %q has no tree", m.Name)
	}
	if m.Tree.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("machine %q: tree must be a mapping", m.Name)
	}

	pairs := make([]treePair, 0, len(m.Tree.Content)/2)
	for i := 0; i+1 < len(m.Tree.Content); i += 2 {
		pair := treePair{current: m.Tree.Content[i].Value}
		if m.Tree.Content[i+1].Tag != "!!null" {
			pair.next = m.Tree.Content[i+1].Value
		}
		pairs = append(pairs, pair)
	}
	if len(pairs) == 0 {
		return nil, fmt.Errorf("machine %q has an empty tree", m.Name)
	}
	return pairs, nil
}

// stateRefs maps every state key to its state name, for #tag resolution in
// decision statements.
func (m *MachineDecl) stateRefs() map[string]string {
	refs := make(map[string]string, len(m.States))
	for key, st := range m.States {
		refs[key] = st.Name
	}
	return refs
}
