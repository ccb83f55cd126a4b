// Package axon is a memory graph for AI agents with brain-inspired dynamics.
//
// Memories are nodes in a graph whose weighted connections change over time:
// they strengthen when used together, weaken when unused, and disappear when
// they fall below a pruning threshold. Compartments group memories and
// control, through permeability settings, which data may flow in or out and
// which connections may form across their boundary.
//
// The Client type is the main entry point. It composes a GraphStore backend
// (embedded Ladybug by default, Neo4j for server deployments), a plasticity
// engine for weight dynamics, a permeability evaluator for data-flow
// decisions and a maintenance scheduler for decay and pruning cycles.
package axon
