// Package types defines the shared data model of the coordination engine:
// agents, tasks, results, consensus proposals, votes, conflict events, and
// the unified error taxonomy.
//
// The types package is the lowest-level package with no internal
// dependencies, so placing the shared records here avoids circular imports
// between the queue, consensus, conflict, and coordinator packages.
package types
