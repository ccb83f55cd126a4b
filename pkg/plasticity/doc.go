// Package plasticity implements weight dynamics for memory connections:
// explicit strengthen and weaken, Hebbian co-access learning, retrieval
// effects, time-based decay and pruning. All weight changes route through a
// single curve-adjusted delta function governed by a Config value.
package plasticity
