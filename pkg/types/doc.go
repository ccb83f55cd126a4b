// Package types defines the core data model for the axon memory graph:
// memories, compartments, weighted connections, and the permeability and
// curve enumerations shared by the engines.
package types
