// Package sim implements a deterministic, discrete-time, individual-based
// microsimulation engine for early-childhood health models: fertility,
// mortality, disease state machines, nutritional risk exposures,
// fortification interventions, and stratified outcome observers.
//
// A run is a pure synchronous loop. Each tick executes a fixed phase order
// (prepare, transitions, cleanup, metrics collection), and within a phase
// components run in declaration order. Components communicate only through
// the shared population table and named value pipelines. Randomness is
// keyed, not sequential: every draw is a hash of the global seed, a decision
// point, and the simulant's identity, which gives common random numbers
// across scenario variants.
package sim
