// Package schedule computes the next run of recurring maintenance: fixed
// intervals, a weekly wall-clock slot, or a five-field cron expression.
package schedule
