// Package analytics records privacy-filtered usage events and rolls them
// up into day, week and month summaries.
//
// The Aggregator is best effort. Recording never returns an error and
// never blocks the caller on a failing database; every internal failure
// is logged and swallowed.
package analytics
